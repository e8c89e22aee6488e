package vos

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sandsh/sandsh/core/host"
	"github.com/spf13/afero"
)

// ProcessFunc is a "process" that can be run.
type ProcessFunc func(VOS) int

// ProcessResolver looks up a process by absolute path, it returns nil if no
// process was found.
type ProcessResolver func(path string) ProcessFunc

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = errors.New("executable file not found in $PATH")

// PathSearcher is the part of a VOS needed to search $PATH.
type PathSearcher interface {
	Stat(name string) (os.FileInfo, error)
	Getenv(key string) string
}

func findExecutable(search PathSearcher, file string) error {
	d, err := search.Stat(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// LookPath searches for an executable named file in the directories named by
// the PATH environment variable. If file contains a slash, it is tried directly
// and the PATH is not consulted. The result may be an absolute path or a path
// relative to the current directory.
func LookPath(search PathSearcher, file string) (string, error) {
	if strings.Contains(file, "/") {
		err := findExecutable(search, file)
		if err == nil {
			return file, nil
		}
		return "", err
	}
	path := search.Getenv("PATH")
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(search, path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// Proc is a single running program inside a Sandbox.
type Proc struct {
	VEnv
	VFS
	VIO

	sandbox *Sandbox

	// Path to the executable that started the process, errors if blank.
	ExecutablePath string
	// Args holds command line arguments, including the command as Args[0].
	ProcArgs []string
	// The process ID of the process
	PID int
	// Dir specifies the working directory of the command.
	Dir string
}

var (
	_ VOS           = (*Proc)(nil)
	_ afero.Lstater = (*Proc)(nil)
	_ afero.Linker  = (*Proc)(nil)
)

func (p *Proc) Executable() (string, error) {
	if p.ExecutablePath == "" {
		return "", os.ErrNotExist
	}

	return p.ExecutablePath, nil
}

// Args implements VOS.Args.
func (p *Proc) Args() []string {
	return p.ProcArgs
}

// Getpid implements VOS.Getpid.
func (p *Proc) Getpid() int {
	return p.PID
}

// Getuid implements VOS.Getuid, every process runs as the same user.
func (p *Proc) Getuid() int {
	return 1000
}

// Getwd implements VOS.Getwd.
func (p *Proc) Getwd() (dir string, err error) {
	return p.Dir, nil
}

func (p *Proc) cwd() string {
	return p.Dir
}

// Chdir implements VOS.Chdir.
func (p *Proc) Chdir(dir string) error {
	dir = Abs(p.Dir, dir)

	stat, err := p.Stat(dir)
	switch {
	case err != nil:
		return fmt.Errorf("%s: %w", dir, err)
	case !stat.IsDir():
		return fmt.Errorf("%s: Not a directory", dir)
	default:
		p.Dir = dir
		return nil
	}
}

// LstatIfPossible implements afero.Lstater so programs can see links.
func (p *Proc) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	if lstater, ok := p.VFS.(afero.Lstater); ok {
		return lstater.LstatIfPossible(name)
	}
	fi, err := p.VFS.Stat(name)
	return fi, false, err
}

// SymlinkIfPossible implements afero.Linker.
func (p *Proc) SymlinkIfPossible(oldname, newname string) error {
	if linker, ok := p.VFS.(afero.Linker); ok {
		return linker.SymlinkIfPossible(oldname, newname)
	}
	return &os.LinkError{Op: "symlink", Old: oldname, New: newname, Err: afero.ErrNoSymlink}
}

// ReadlinkIfPossible implements afero.LinkReader.
func (p *Proc) ReadlinkIfPossible(name string) (string, error) {
	if reader, ok := p.VFS.(afero.LinkReader); ok {
		return reader.ReadlinkIfPossible(name)
	}
	return "", &os.PathError{Op: "readlink", Path: name, Err: afero.ErrNoReadlink}
}

// Hostname implements VOS.Hostname.
func (p *Proc) Hostname() (string, error) {
	return p.sandbox.image.Hostname(), nil
}

// Host implements VOS.Host.
func (p *Proc) Host() host.Host {
	return p.sandbox
}

// LogInvalidInvocation implements VOS.LogInvalidInvocation.
func (p *Proc) LogInvalidInvocation(err error) {
	p.sandbox.logf("%s: invalid invocation: %v", p.ProcArgs[0], err)
}

// Run executes fn as this process. A panicking program exits with status 2.
func (p *Proc) Run(fn ProcessFunc) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(p.Stderr(), "%s: internal error\n", p.ProcArgs[0])
			p.sandbox.logf("%s: panic: %v", p.ProcArgs[0], r)
			code = 2
		}
	}()

	return fn(p)
}

// lookupError converts a LookPath failure into a host error.
func lookupError(name string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return host.NewError(host.NotFound, "exec", name, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return host.NewError(host.PermissionDenied, "exec", name, fs.ErrPermission)
	default:
		return host.FromError("exec", name, err)
	}
}
