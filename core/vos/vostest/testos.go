// Package vostest runs vos programs in deterministic sandboxes for tests.
package vostest

import (
	"path"
	"strings"
	"time"

	"github.com/sandsh/sandsh/core/host"
	"github.com/sandsh/sandsh/core/vos"
)

const (
	Hostname = "sandbox"
	Home     = "/home/user"
)

// FixedTime is Go's reference timestamp with a different value in each
// position.
func FixedTime() time.Time {
	return time.Date(2006, 1, 2, 3, 4, 5, 0, time.UTC)
}

func SingleProcessResolver(process vos.ProcessFunc) vos.ProcessResolver {
	return func(path string) vos.ProcessFunc {
		return process
	}
}

// NewDeterministicSandbox creates a sandbox with a fixed clock, an empty home
// directory and a placeholder executable for each of the tool paths.
func NewDeterministicSandbox(resolver vos.ProcessResolver, tools ...string) *vos.Sandbox {
	base := vos.NewMemFs()
	if err := vos.Provision(base, Hostname, Home, tools); err != nil {
		panic(err)
	}

	image := vos.NewImage(base, resolver, Hostname, FixedTime)
	return vos.NewSandbox(image, vos.SandboxOptions{})
}

// Cmd is similar to exec.Cmd.
type Cmd struct {
	// Argv holds the process arguments, the first argument is the process name.
	Argv []string
	// Dir is the working directory, it defaults to Home.
	Dir string
	// Stdin is passed to the process in full.
	Stdin string

	// Sandbox runs the command. Files created through VFS are visible to it.
	Sandbox *vos.Sandbox
	// VFS is the sandbox's filesystem.
	VFS vos.VFS
	// VEnv is the environment passed to the process.
	VEnv *vos.MapEnv

	ExitStatus int
}

// Command prepares process to run as name inside a fresh sandbox.
func Command(process vos.ProcessFunc, name string, arg ...string) *Cmd {
	tool := name
	if !strings.Contains(name, "/") {
		tool = path.Join("/bin", name)
	}

	sandbox := NewDeterministicSandbox(SingleProcessResolver(process), tool)
	return &Cmd{
		Argv:    append([]string{name}, arg...),
		Dir:     Home,
		Sandbox: sandbox,
		VFS:     sandbox.Fs(),
		VEnv: vos.NewMapEnvFromEnvList([]string{
			"HOME=" + Home,
			"PATH=/bin:/usr/bin",
			"PWD=" + Home,
			"USER=user",
		}),
	}
}

// Run starts the comand and waits for it to complete, returning its output.
func (c *Cmd) Run() (host.SpawnResult, error) {
	res, err := c.Sandbox.Spawn(host.SpawnRequest{
		Program: c.Argv[0],
		Args:    c.Argv[1:],
		Env:     c.VEnv.Environ(),
		Dir:     c.Dir,
		Stdin:   c.Stdin,
	})
	if err != nil {
		return res, err
	}

	c.ExitStatus = res.ExitCode
	return res, nil
}

// CombinedOutput runs the command and returns stdout followed by stderr.
func (c *Cmd) CombinedOutput() ([]byte, error) {
	res, err := c.Run()
	if err != nil {
		return nil, err
	}
	return []byte(res.Stdout + res.Stderr), nil
}
