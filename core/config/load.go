package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/sandsh/sandsh/core/vos"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	configFs := afero.NewBasePathFs(afero.NewOsFs(), path)
	configContents, err := afero.ReadFile(configFs, ConfigurationName)
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigurationName, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigurationName, err)
	}
	out.configFs = configFs
	return &out, nil
}

// Initialize creates a configuration directory holding the default
// configuration if one doesn't exist yet. Existing files are never
// overwritten.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	configFs := afero.NewBasePathFs(afero.NewOsFs(), dir)
	if err := afero.NewOsFs().MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	_, err := configFs.Stat(ConfigurationName)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Printf("writing default configuration to %s", filepath.Join(dir, ConfigurationName))
		if err := afero.WriteFile(configFs, ConfigurationName, defaultConfigData, 0600); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		logger.Printf("keeping existing configuration %s", filepath.Join(dir, ConfigurationName))
	}

	if err := configFs.MkdirAll(LogsDirName, 0700); err != nil {
		return nil, err
	}

	return Load(dir)
}

// NewImage builds the base system every sandbox is overlaid on. The root
// filesystem comes from sandbox.root_fs if set, then the home directory and
// a placeholder for each tool are provisioned on top.
func (c *Configuration) NewImage(resolver vos.ProcessResolver, tools []string, now vos.TimeSource) (*vos.Image, error) {
	base := vos.NewMemFs()
	if c.Sandbox.RootFS != "" {
		rootFs := c.fs()
		if filepath.IsAbs(c.Sandbox.RootFS) {
			rootFs = afero.NewOsFs()
		}
		fd, err := rootFs.Open(c.Sandbox.RootFS)
		if err != nil {
			return nil, fmt.Errorf("opening root filesystem: %w", err)
		}
		defer fd.Close()

		if base, err = vos.LoadRootFS(fd); err != nil {
			return nil, fmt.Errorf("loading root filesystem %s: %w", c.Sandbox.RootFS, err)
		}
	}

	if err := vos.Provision(base, c.Sandbox.Hostname, c.Shell.Home, tools); err != nil {
		return nil, fmt.Errorf("provisioning image: %w", err)
	}

	return vos.NewImage(base, resolver, c.Sandbox.Hostname, now), nil
}

// SandboxOptions converts the limits and sandbox sections into options for
// vos.NewSandbox.
func (c *Configuration) SandboxOptions(logger *log.Logger) vos.SandboxOptions {
	return vos.SandboxOptions{
		ReadOnlyPaths:   append([]string(nil), c.Sandbox.ReadOnlyPaths...),
		SpawnsPerSecond: c.Limits.SpawnsPerSecond,
		SpawnBurst:      c.Limits.SpawnBurst,
		Path:            c.Shell.Path,
		Logger:          logger,
	}
}
