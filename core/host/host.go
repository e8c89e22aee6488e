// Package host defines the capability boundary between the shell interpreter
// and the outside world. The interpreter performs every effect (running
// programs, touching files, reading the clock, checking for cancellation)
// through a Host and never talks to the operating system directly.
package host

// SpawnResult is the complete captured result of a finished process.
type SpawnResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// SpawnRequest describes a process to run.
type SpawnRequest struct {
	// Program is the command name as typed, resolved by the host.
	Program string
	// Args holds the arguments, not including the program name.
	Args []string
	// Env holds the process environment as "key=value" pairs.
	Env []string
	// Dir is the working directory of the process.
	Dir string
	// Stdin is fed to the process in full.
	Stdin string
}

// StatInfo describes a path. A missing path is reported with Exists set to
// false rather than an error.
type StatInfo struct {
	Exists    bool   `json:"exists"`
	IsFile    bool   `json:"is_file"`
	IsDir     bool   `json:"is_dir"`
	IsSymlink bool   `json:"is_symlink"`
	Size      uint64 `json:"size"`
	Mode      uint32 `json:"mode"`
	MtimeMs   uint64 `json:"mtime_ms"`
}

// CancelStatus reports whether the current evaluation should stop.
type CancelStatus int

const (
	Running CancelStatus = iota
	Cancelled
	TimedOut
)

func (c CancelStatus) String() string {
	switch c {
	case Running:
		return "running"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// WriteMode selects whether WriteFile replaces or extends a file.
type WriteMode int

const (
	Truncate WriteMode = iota
	Append
)

// Processes runs programs.
type Processes interface {
	// Spawn runs a program to completion and returns its captured output.
	// A program that cannot be found is reported as a NotFound *Error.
	Spawn(req SpawnRequest) (SpawnResult, error)

	// HasTool reports whether a program with the given name can be spawned.
	HasTool(name string) bool
}

// Canceller is polled by the interpreter at every loop iteration and before
// every pipeline stage.
type Canceller interface {
	CheckCancel() CancelStatus
}

// Clock provides wall-clock time.
type Clock interface {
	// TimeMs returns the current time in milliseconds since the Unix epoch.
	TimeMs() uint64
}

// FS is the filesystem capability. All paths are absolute.
type FS interface {
	Stat(path string) (StatInfo, error)
	ReadFile(path string) (string, error)
	WriteFile(path, data string, mode WriteMode) error
	ReadDir(path string) ([]string, error)
	Mkdir(path string) error
	Remove(path string, recursive bool) error
	Chmod(path string, mode uint32) error
	// Glob returns the absolute paths matching pattern in sorted order.
	Glob(pattern string) ([]string, error)
	Rename(from, to string) error
	Symlink(target, link string) error
	Readlink(path string) (string, error)
}

// Host is the full capability set the interpreter depends on.
type Host interface {
	Processes
	Canceller
	Clock
	FS
}
