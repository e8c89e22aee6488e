// Package vos implements the virtual operating system the shell's programs
// run against: an afero filesystem with symlinks, per-process environment
// and working directory, and in-memory standard streams.
//
// Sandbox exposes a vos system to the interpreter through host.Host.
package vos

import "github.com/sandsh/sandsh/core/host"

type VNetwork interface {
	// Hostname returns the host name reported by the kernel.
	Hostname() (string, error)
}

type VProc interface {
	// Returns the path to the executable that started the process.
	Executable() (string, error)

	// Getpid returns the process id of the caller.
	Getpid() int

	// Getuid returns the numeric user id of the caller.
	Getuid() int

	// Returns the arguments to the current process.
	Args() []string

	// Getwd returns a rooted path name corresponding to the current directory.
	Getwd() (dir string, err error)

	// Chdir changes the directory.
	Chdir(dir string) error
}

// VOS provides a virtual OS interface.
type VOS interface {
	VNetwork
	VEnv
	VIO
	VProc
	VFS

	// Host returns the capabilities of the sandbox the process runs in, so
	// programs can start other programs or re-enter the shell.
	Host() host.Host

	// LogInvalidInvocation records a usage error for later analysis.
	LogInvalidInvocation(err error)
}
