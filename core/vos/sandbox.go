package vos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anmitsu/go-shlex"
	"github.com/juju/ratelimit"
	"github.com/sandsh/sandsh/core/host"
	"github.com/spf13/afero"
)

// maxInterpreterDepth bounds "#!" chains such as a script whose interpreter
// is itself a script.
const maxInterpreterDepth = 4

var (
	// ErrSpawnBudget is returned when a sandbox has started too many
	// processes too quickly.
	ErrSpawnBudget = errors.New("process spawn budget exhausted")

	// ErrExecFormat is returned for files that are neither a known program
	// nor a "#!" script.
	ErrExecFormat = errors.New("exec format error")
)

// Image is the shared base system each Sandbox is overlaid on.
//
// All public methods on this type are safe to call from multiple sandboxes.
type Image struct {
	// fs holds the base filesystem that is shared between ALL sandboxes.
	fs VFS
	// hostname is reported to programs.
	hostname string
	// The resolver for processes.
	processResolver ProcessResolver
	// timeSource provides the wall clock.
	timeSource TimeSource
}

func NewImage(baseFS VFS, procResolver ProcessResolver, hostname string, timeSource TimeSource) *Image {
	if procResolver == nil {
		procResolver = func(string) ProcessFunc { return nil }
	}
	if timeSource == nil {
		timeSource = time.Now
	}

	return &Image{
		fs:              baseFS,
		hostname:        hostname,
		processResolver: procResolver,
		timeSource:      timeSource,
	}
}

func (i *Image) Hostname() string {
	return i.hostname
}

// Now returns the image's current time.
func (i *Image) Now() time.Time {
	return i.timeSource()
}

// Provision creates the directories every sandbox expects and an executable
// placeholder file for each tool path so PATH lookups find them.
func Provision(vfs VFS, hostname, home string, tools []string) error {
	for _, dir := range []string{"/bin", "/usr/bin", "/etc", "/tmp", home} {
		if err := vfs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if err := afero.WriteFile(vfs, "/etc/hostname", []byte(hostname+"\n"), 0644); err != nil {
		return err
	}

	for _, tool := range tools {
		if err := vfs.MkdirAll(path.Dir(tool), 0755); err != nil {
			return err
		}
		if err := afero.WriteFile(vfs, tool, nil, 0755); err != nil {
			return err
		}
		// Existing files keep their mode on write.
		if err := vfs.Chmod(tool, 0755); err != nil {
			return err
		}
	}

	return nil
}

// SandboxOptions configures a Sandbox.
type SandboxOptions struct {
	// ReadOnlyPaths deny writes at or below each prefix.
	ReadOnlyPaths []string
	// SpawnsPerSecond limits how fast programs can be started, zero is
	// unlimited.
	SpawnsPerSecond float64
	// SpawnBurst is the number of spawns allowed at once.
	SpawnBurst int64
	// Path is searched by HasTool.
	Path string
	// Logger receives diagnostics, nil discards them.
	Logger *log.Logger
}

// Sandbox is a single user's copy-on-write view of an Image. It implements
// host.Host for the interpreter.
type Sandbox struct {
	*HostFS

	image   *Image
	fs      VFS
	limiter *ratelimit.Bucket
	path    string
	log     *log.Logger
	lastPID int32

	mu  sync.Mutex
	ctx context.Context
}

var _ host.Host = (*Sandbox)(nil)

func NewSandbox(image *Image, opts SandboxOptions) *Sandbox {
	fs := NewMemCopyOnWriteFs(image.fs, opts.ReadOnlyPaths)

	var limiter *ratelimit.Bucket
	if opts.SpawnsPerSecond > 0 {
		burst := opts.SpawnBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = ratelimit.NewBucketWithRate(opts.SpawnsPerSecond, burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	searchPath := opts.Path
	if searchPath == "" {
		searchPath = "/bin:/usr/bin"
	}

	return &Sandbox{
		HostFS:  NewHostFS(fs),
		image:   image,
		fs:      fs,
		limiter: limiter,
		path:    searchPath,
		log:     logger,
		lastPID: 1,
		ctx:     context.Background(),
	}
}

// Arm sets the context that CheckCancel reports on until the next Arm.
func (s *Sandbox) Arm(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
}

// CheckCancel implements host.Canceller.
func (s *Sandbox) CheckCancel() host.CancelStatus {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return host.TimedOut
		}
		return host.Cancelled
	default:
		return host.Running
	}
}

// TimeMs implements host.Clock.
func (s *Sandbox) TimeMs() uint64 {
	return uint64(s.image.Now().UnixNano() / int64(time.Millisecond))
}

// HasTool implements host.Processes.
func (s *Sandbox) HasTool(name string) bool {
	_, err := LookPath(&searchEnv{s.fs, s.path}, name)
	return err == nil
}

// Spawn implements host.Processes.
func (s *Sandbox) Spawn(req host.SpawnRequest) (host.SpawnResult, error) {
	if s.limiter != nil && s.limiter.TakeAvailable(1) == 0 {
		return host.SpawnResult{}, host.NewError(host.PermissionDenied, "exec", req.Program, ErrSpawnBudget)
	}

	proc := &Proc{
		sandbox: s,
		VEnv:    NewMapEnvFromEnvList(req.Env),
		PID:     int(atomic.AddInt32(&s.lastPID, 1)),
		Dir:     Abs("/", req.Dir),
	}
	proc.VFS = NewRelativeFs(s.fs, proc.cwd)

	exe, argv, fn, err := s.resolveProgram(proc, req.Program, req.Args)
	if err != nil {
		return host.SpawnResult{}, err
	}

	vio, capture := NewCaptureIO(req.Stdin)
	proc.VIO = vio
	proc.ExecutablePath = exe
	proc.ProcArgs = argv

	code := proc.Run(fn)
	return host.SpawnResult{
		ExitCode: code,
		Stdout:   capture.Stdout.String(),
		Stderr:   capture.Stderr.String(),
	}, nil
}

// resolveProgram finds the function to run for name, following "#!" lines
// until a registered program is reached.
func (s *Sandbox) resolveProgram(proc *Proc, name string, args []string) (string, []string, ProcessFunc, error) {
	argv := append([]string{name}, args...)

	for i := 0; i < maxInterpreterDepth; i++ {
		exe, err := LookPath(proc, argv[0])
		if err != nil {
			return "", nil, nil, lookupError(argv[0], err)
		}
		exe = Abs(proc.Dir, exe)

		if fn := s.image.processResolver(exe); fn != nil {
			return exe, argv, fn, nil
		}

		interpreter, err := s.readShebang(exe)
		if err != nil {
			return "", nil, nil, err
		}
		// The script path replaces the name it was invoked by.
		argv = append(append(interpreter, exe), argv[1:]...)
	}

	return "", nil, nil, host.NewError(host.PermissionDenied, "exec", name, ErrExecFormat)
}

// readShebang returns the interpreter command line of a "#!" script.
func (s *Sandbox) readShebang(exe string) ([]string, error) {
	data, err := afero.ReadFile(s.fs, exe)
	if err != nil {
		return nil, host.FromError("exec", exe, err)
	}

	line := string(data)
	if !strings.HasPrefix(line, "#!") {
		return nil, host.NewError(host.PermissionDenied, "exec", exe, ErrExecFormat)
	}
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}

	fields, err := shlex.Split(line[2:], true)
	if err != nil || len(fields) == 0 {
		return nil, host.NewError(host.PermissionDenied, "exec", exe, ErrExecFormat)
	}

	// "#!/usr/bin/env prog" looks prog up on $PATH.
	if path.Base(fields[0]) == "env" && len(fields) > 1 {
		fields = fields[1:]
	}
	return fields, nil
}

func (s *Sandbox) logf(format string, args ...interface{}) {
	s.log.Output(2, fmt.Sprintf(format, args...))
}

// searchEnv searches a fixed PATH.
type searchEnv struct {
	VFS
	path string
}

func (e *searchEnv) Getenv(key string) string {
	if key == "PATH" {
		return e.path
	}
	return ""
}
