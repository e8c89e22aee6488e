// Package hosttest provides an in-memory host.Host for interpreter tests.
package hosttest

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/sandsh/sandsh/core/host"
	"github.com/sandsh/sandsh/core/vos"
)

// FixedTimeMs is the clock reading of every new Host.
const FixedTimeMs uint64 = 1136171045000

// Handler simulates a program.
type Handler func(req host.SpawnRequest) host.SpawnResult

// Host is a host.Host backed by an in-memory afero filesystem whose programs
// are canned results or Go handlers keyed by program base name.
type Host struct {
	*vos.HostFS

	// Now is reported by TimeMs.
	Now uint64

	mu          sync.Mutex
	handlers    map[string]Handler
	spawns      []host.SpawnRequest
	polls       int
	cancelAfter int
	cancelAs    host.CancelStatus
}

var _ host.Host = (*Host)(nil)

// New creates a Host with /home/user, /tmp and /bin directories and no
// programs.
func New() *Host {
	vfs := vos.NewMemFs()
	for _, dir := range []string{"/home/user", "/tmp", "/bin"} {
		if err := vfs.MkdirAll(dir, 0755); err != nil {
			panic(err)
		}
	}

	return &Host{
		HostFS:      vos.NewHostFS(vfs),
		Now:         FixedTimeMs,
		handlers:    make(map[string]Handler),
		cancelAfter: -1,
	}
}

// Handle registers fn as the program name.
func (h *Host) Handle(name string, fn Handler) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[name] = fn
	return h
}

// Canned registers a program that always returns res.
func (h *Host) Canned(name string, res host.SpawnResult) *Host {
	return h.Handle(name, func(host.SpawnRequest) host.SpawnResult {
		return res
	})
}

// WithStandardTools registers Echo as "echo", Cat as "cat" and the
// constant programs "true" and "false".
func (h *Host) WithStandardTools() *Host {
	h.Handle("echo", Echo)
	h.Handle("cat", Cat)
	h.Canned("true", host.SpawnResult{})
	h.Canned("false", host.SpawnResult{ExitCode: 1})
	return h
}

// CancelAfter makes CheckCancel report Cancelled from poll k+1 on.
func (h *Host) CancelAfter(k int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelAfter = k
	h.cancelAs = host.Cancelled
}

// TimeoutAfter makes CheckCancel report TimedOut from poll k+1 on.
func (h *Host) TimeoutAfter(k int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelAfter = k
	h.cancelAs = host.TimedOut
}

// Polls returns how many times CheckCancel was called.
func (h *Host) Polls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.polls
}

// Spawns returns every recorded spawn request in order.
func (h *Host) Spawns() []host.SpawnRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]host.SpawnRequest(nil), h.spawns...)
}

// CheckCancel implements host.Canceller.
func (h *Host) CheckCancel() host.CancelStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.polls++
	if h.cancelAfter >= 0 && h.polls > h.cancelAfter {
		return h.cancelAs
	}
	return host.Running
}

// TimeMs implements host.Clock.
func (h *Host) TimeMs() uint64 {
	return h.Now
}

func (h *Host) handler(program string) (Handler, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn, ok := h.handlers[path.Base(program)]
	return fn, ok
}

// HasTool implements host.Processes.
func (h *Host) HasTool(name string) bool {
	_, ok := h.handler(name)
	return ok
}

// Spawn implements host.Processes.
func (h *Host) Spawn(req host.SpawnRequest) (host.SpawnResult, error) {
	h.mu.Lock()
	h.spawns = append(h.spawns, req)
	h.mu.Unlock()

	fn, ok := h.handler(req.Program)
	if !ok {
		return host.SpawnResult{}, host.NewError(host.NotFound, "exec", req.Program, fmt.Errorf("no such program"))
	}
	return fn(req), nil
}

// Echo prints its arguments separated by spaces.
func Echo(req host.SpawnRequest) host.SpawnResult {
	return host.SpawnResult{Stdout: strings.Join(req.Args, " ") + "\n"}
}

// Cat copies stdin to stdout.
func Cat(req host.SpawnRequest) host.SpawnResult {
	return host.SpawnResult{Stdout: req.Stdin}
}
