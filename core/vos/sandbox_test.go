package vos

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sandsh/sandsh/core/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTime() time.Time {
	return time.Date(2006, 1, 2, 3, 4, 5, 0, time.UTC)
}

func newTestSandbox(t *testing.T, programs map[string]ProcessFunc, opts SandboxOptions) *Sandbox {
	t.Helper()

	var tools []string
	for path := range programs {
		tools = append(tools, path)
	}

	base := NewMemFs()
	require.NoError(t, Provision(base, "box", "/home/user", tools))

	resolver := func(path string) ProcessFunc {
		return programs[path]
	}
	return NewSandbox(NewImage(base, resolver, "box", fixedTime), opts)
}

func printArgs(virtOS VOS) int {
	fmt.Fprintln(virtOS.Stdout(), strings.Join(virtOS.Args(), " "))
	return 0
}

func spawn(s *Sandbox, program string, args ...string) (host.SpawnResult, error) {
	return s.Spawn(host.SpawnRequest{
		Program: program,
		Args:    args,
		Env:     []string{"PATH=/bin:/usr/bin"},
		Dir:     "/home/user",
	})
}

func TestSandbox_Spawn(t *testing.T) {
	s := newTestSandbox(t, map[string]ProcessFunc{"/bin/hello": printArgs}, SandboxOptions{})

	res, err := spawn(s, "hello", "a", "b c")
	require.NoError(t, err)
	assert.Equal(t, host.SpawnResult{Stdout: "hello a b c\n"}, res)

	res, err = spawn(s, "/bin/hello")
	require.NoError(t, err)
	assert.Equal(t, "/bin/hello\n", res.Stdout)
}

func TestSandbox_SpawnNotFound(t *testing.T) {
	s := newTestSandbox(t, nil, SandboxOptions{})

	_, err := spawn(s, "missing")
	assert.Equal(t, host.NotFound, host.KindOf(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSandbox_SpawnProcessState(t *testing.T) {
	s := newTestSandbox(t, map[string]ProcessFunc{
		"/bin/inspect": func(virtOS VOS) int {
			in, _ := io.ReadAll(virtOS.Stdin())
			wd, _ := virtOS.Getwd()
			host, _ := virtOS.Hostname()
			fmt.Fprintf(virtOS.Stdout(), "stdin=%q foo=%q wd=%s host=%s pid=%d\n",
				in, virtOS.Getenv("FOO"), wd, host, virtOS.Getpid())
			fmt.Fprintln(virtOS.Stderr(), "to stderr")

			fd, err := virtOS.Create("relative.txt")
			if err != nil {
				return 1
			}
			fd.WriteString("written")
			fd.Close()
			return 7
		},
	}, SandboxOptions{})

	res, err := s.Spawn(host.SpawnRequest{
		Program: "inspect",
		Env:     []string{"PATH=/bin", "FOO=bar"},
		Dir:     "/tmp",
		Stdin:   "input\n",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)
	assert.Equal(t, "stdin=\"input\\n\" foo=\"bar\" wd=/tmp host=box pid=2\n", res.Stdout)
	assert.Equal(t, "to stderr\n", res.Stderr)

	data, err := s.ReadFile("/tmp/relative.txt")
	require.NoError(t, err)
	assert.Equal(t, "written", data)

	// Every process gets a new PID.
	res, err = s.Spawn(host.SpawnRequest{Program: "inspect", Env: []string{"PATH=/bin"}, Dir: "/"})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "pid=3")
}

func TestSandbox_SpawnShebang(t *testing.T) {
	s := newTestSandbox(t, map[string]ProcessFunc{"/usr/bin/interp": printArgs}, SandboxOptions{})

	require.NoError(t, s.WriteFile("/home/user/script", "#!/usr/bin/env interp -x\nbody\n", host.Truncate))
	require.NoError(t, s.Chmod("/home/user/script", 0755))

	res, err := spawn(s, "./script", "arg")
	require.NoError(t, err)
	assert.Equal(t, "interp -x /home/user/script arg\n", res.Stdout)

	require.NoError(t, s.WriteFile("/home/user/direct", "#!/usr/bin/interp 'quoted arg'\n", host.Truncate))
	require.NoError(t, s.Chmod("/home/user/direct", 0755))

	res, err = spawn(s, "/home/user/direct")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/interp quoted arg /home/user/direct\n", res.Stdout)
}

func TestSandbox_SpawnNotExecutable(t *testing.T) {
	s := newTestSandbox(t, nil, SandboxOptions{})

	require.NoError(t, s.WriteFile("/home/user/data", "not a program", host.Truncate))

	_, err := spawn(s, "./data")
	assert.Equal(t, host.PermissionDenied, host.KindOf(err), "missing execute bit")

	require.NoError(t, s.Chmod("/home/user/data", 0755))
	_, err = spawn(s, "./data")
	assert.Equal(t, host.PermissionDenied, host.KindOf(err))
	assert.ErrorIs(t, err, ErrExecFormat)
}

func TestSandbox_SpawnPanic(t *testing.T) {
	s := newTestSandbox(t, map[string]ProcessFunc{
		"/bin/boom": func(VOS) int { panic("kaboom") },
	}, SandboxOptions{})

	res, err := spawn(s, "boom")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "boom: internal error\n", res.Stderr)
}

func TestSandbox_SpawnBudget(t *testing.T) {
	s := newTestSandbox(t, map[string]ProcessFunc{"/bin/hello": printArgs}, SandboxOptions{
		SpawnsPerSecond: 0.001,
		SpawnBurst:      2,
	})

	for i := 0; i < 2; i++ {
		_, err := spawn(s, "hello")
		require.NoError(t, err)
	}

	_, err := spawn(s, "hello")
	assert.Equal(t, host.PermissionDenied, host.KindOf(err))
	assert.ErrorIs(t, err, ErrSpawnBudget)
}

func TestSandbox_CheckCancel(t *testing.T) {
	s := newTestSandbox(t, nil, SandboxOptions{})
	assert.Equal(t, host.Running, s.CheckCancel())

	ctx, cancel := context.WithCancel(context.Background())
	s.Arm(ctx)
	assert.Equal(t, host.Running, s.CheckCancel())
	cancel()
	assert.Equal(t, host.Cancelled, s.CheckCancel())

	ctx, cancel = context.WithDeadline(context.Background(), time.Unix(0, 0))
	defer cancel()
	s.Arm(ctx)
	assert.Equal(t, host.TimedOut, s.CheckCancel())

	s.Arm(context.Background())
	assert.Equal(t, host.Running, s.CheckCancel())
}

func TestSandbox_ClockAndTools(t *testing.T) {
	s := newTestSandbox(t, map[string]ProcessFunc{"/usr/bin/hello": printArgs}, SandboxOptions{})

	assert.Equal(t, uint64(1136171045000), s.TimeMs())
	assert.True(t, s.HasTool("hello"))
	assert.False(t, s.HasTool("nope"))
}

func TestSandbox_ReadOnlyPaths(t *testing.T) {
	s := newTestSandbox(t, nil, SandboxOptions{ReadOnlyPaths: []string{"/etc"}})

	data, err := s.ReadFile("/etc/hostname")
	require.NoError(t, err)
	assert.Equal(t, "box\n", data)

	err = s.WriteFile("/etc/hostname", "evil", host.Truncate)
	assert.Equal(t, host.PermissionDenied, host.KindOf(err))
	err = s.Remove("/etc/hostname", false)
	assert.Equal(t, host.PermissionDenied, host.KindOf(err))
}

func TestProc_Chdir(t *testing.T) {
	s := newTestSandbox(t, nil, SandboxOptions{})
	proc := &Proc{sandbox: s, VEnv: NewMapEnv(), Dir: "/"}
	proc.VFS = NewRelativeFs(s.Fs(), proc.cwd)

	require.NoError(t, proc.Chdir("home"))
	require.NoError(t, proc.Chdir("user"))
	wd, _ := proc.Getwd()
	assert.Equal(t, "/home/user", wd)

	assert.Error(t, proc.Chdir("/etc/hostname"), "not a directory")
	assert.Error(t, proc.Chdir("/missing"))
	wd, _ = proc.Getwd()
	assert.Equal(t, "/home/user", wd)
}
