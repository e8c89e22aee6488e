// Package config holds the YAML configuration that sets up sandboxes and
// interpreters.
package config

import (
	_ "embed"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sandsh/sandsh/core/interp"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	LogsDirName       = "session_logs"
	AppLogName        = "app.log"
)

type Configuration struct {
	configFs afero.Fs

	Shell   Shell   `json:"shell"`
	Limits  Limits  `json:"limits"`
	Sandbox Sandbox `json:"sandbox"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

type Shell struct {
	User    string            `json:"user" validate:"required"`
	Home    string            `json:"home" validate:"required,startswith=/"`
	Path    string            `json:"path" validate:"required"`
	Shell   string            `json:"shell" validate:"required"`
	Env     map[string]string `json:"env" validate:"dive,keys,required,excludesall==,endkeys"`
	Options []string          `json:"options" validate:"unique,dive,oneof=errexit nounset pipefail"`
}

type Limits struct {
	TimeoutMs       uint64  `json:"timeout_ms"`
	SpawnsPerSecond float64 `json:"spawns_per_second" validate:"gte=0"`
	SpawnBurst      int64   `json:"spawn_burst" validate:"gte=0"`
}

type Sandbox struct {
	Hostname      string   `json:"hostname" validate:"required,hostname_rfc1123"`
	RootFS        string   `json:"root_fs"`
	ReadOnlyPaths []string `json:"read_only_paths" validate:"dive,startswith=/"`
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		return afero.NewOsFs()
	}
	return c.configFs
}

// CreateSessionLog creates a file in the session log directory.
func (c *Configuration) CreateSessionLog(name string) (afero.File, error) {
	if err := c.fs().MkdirAll(LogsDirName, 0700); err != nil {
		return nil, err
	}
	return c.fs().Create(LogsDirName + "/" + name)
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadAppLog opens the application log for reading.
func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().Open(AppLogName)
}

// Timeout is the longest a single evaluation may run, zero means no limit.
func (c *Configuration) Timeout() time.Duration {
	return time.Duration(c.Limits.TimeoutMs) * time.Millisecond
}

// InterpreterDefaults converts the shell section into interpreter defaults.
func (c *Configuration) InterpreterDefaults() interp.Defaults {
	env := map[string]string{
		"USER":  c.Shell.User,
		"HOME":  c.Shell.Home,
		"PATH":  c.Shell.Path,
		"SHELL": c.Shell.Shell,
	}
	for k, v := range c.Shell.Env {
		env[k] = v
	}

	var opts interp.Options
	for _, opt := range c.Shell.Options {
		switch opt {
		case "errexit":
			opts.Errexit = true
		case "nounset":
			opts.Nounset = true
		case "pipefail":
			opts.Pipefail = true
		}
	}

	return interp.Defaults{
		Env:     env,
		Options: opts,
		Cwd:     c.Shell.Home,
	}
}

// Default returns the built-in configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
