package interp

import (
	"strings"
	"sync"

	"github.com/sandsh/sandsh/core/host"
	"github.com/sandsh/sandsh/core/shell"
)

// CommandEvent describes one evaluated command line.
type CommandEvent struct {
	Line       string
	ExitCode   int
	DurationMs uint64
	Flow       string
}

// EventRecorder receives an event for every evaluation.
type EventRecorder interface {
	RecordCommand(event CommandEvent)
	RecordShellError(line string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordCommand(CommandEvent)     {}
func (nopRecorder) RecordShellError(string, error) {}

// Defaults configure the state of a new Interpreter.
type Defaults struct {
	// Env is merged over the default environment.
	Env        map[string]string
	Options    Options
	Cwd        string
	ScriptName string
	Positional []string
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithState makes the interpreter run against an existing state.
func WithState(st *State) Option {
	return func(in *Interpreter) {
		in.state = st
	}
}

// WithEventRecorder sets where evaluation events are sent.
func WithEventRecorder(rec EventRecorder) Option {
	return func(in *Interpreter) {
		in.events = rec
	}
}

// WithDefaults applies configured defaults to the state.
func WithDefaults(d Defaults) Option {
	return func(in *Interpreter) {
		in.defaults = &d
	}
}

// Interpreter runs command lines against a single State. It is safe for
// concurrent use, evaluations are serialized.
type Interpreter struct {
	mu       sync.Mutex
	host     host.Host
	state    *State
	events   EventRecorder
	defaults *Defaults
	exited   bool
}

// New creates an interpreter performing its effects through h.
func New(h host.Host, opts ...Option) *Interpreter {
	in := &Interpreter{host: h, events: nopRecorder{}}
	for _, opt := range opts {
		opt(in)
	}
	if in.state == nil {
		in.state = NewState()
		in.state.StartTimeMs = h.TimeMs()
	}
	if d := in.defaults; d != nil {
		in.applyDefaults(*d)
	}
	return in
}

func (in *Interpreter) applyDefaults(d Defaults) {
	st := in.state
	for k, v := range d.Env {
		st.Env[k] = v
	}
	st.Options = d.Options
	if d.Cwd != "" {
		st.Cwd = d.Cwd
		st.Env["PWD"] = d.Cwd
	}
	if d.ScriptName != "" {
		st.ScriptName = d.ScriptName
	}
	if d.Positional != nil {
		st.Positional = append([]string(nil), d.Positional...)
	}
}

// State returns the interpreter's state. It must not be modified while an
// evaluation is running.
func (in *Interpreter) State() *State {
	return in.state
}

// Exited reports whether a command line ran exit.
func (in *Interpreter) Exited() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.exited
}

// Eval parses and executes a command line and returns its raw control flow.
func (in *Interpreter) Eval(line string) (ControlFlow, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.eval(line, "")
}

func (in *Interpreter) eval(line, stdin string) (ControlFlow, error) {
	st := in.state
	if strings.TrimSpace(line) != "" {
		st.History = append(st.History, line)
	}

	node, err := shell.Parse(line)
	if err != nil {
		return ControlFlow{}, err
	}

	functionDepth, substDepth, sourceDepth := st.FunctionDepth, st.SubstitutionDepth, st.sourceDepth
	flow, err := newRunner(st, in.host, stdin).exec(node)
	if err != nil {
		st.FunctionDepth = functionDepth
		st.SubstitutionDepth = substDepth
		st.sourceDepth = sourceDepth
		st.ParamError = nil
	}
	return flow, err
}

// Run evaluates a command line and returns its result.
func (in *Interpreter) Run(line string) (RunResult, error) {
	return in.RunStdin(line, "")
}

// RunStdin evaluates a command line with the given standard input.
//
// A shell error such as a syntax error is returned along with a result
// holding status 2 and the message on stderr.
func (in *Interpreter) RunStdin(line, stdin string) (RunResult, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	start := in.host.TimeMs()
	flow, err := in.eval(line, stdin)
	res := in.result(flow, err)
	if end := in.host.TimeMs(); end > start {
		res.ExecutionTimeMs = end - start
	}

	if err != nil {
		in.events.RecordShellError(line, err)
	}
	in.events.RecordCommand(CommandEvent{
		Line:       line,
		ExitCode:   res.ExitCode,
		DurationMs: res.ExecutionTimeMs,
		Flow:       flow.Kind.String(),
	})
	return res, err
}

// result maps the flow of a top level evaluation onto a RunResult.
func (in *Interpreter) result(flow ControlFlow, err error) RunResult {
	st := in.state
	if err != nil {
		st.LastExitCode = 2
		return RunResult{ExitCode: 2, Stderr: ShellName + ": " + err.Error() + "\n"}
	}

	res := flow.Result
	switch flow.Kind {
	case FlowExit:
		res.ExitCode = flow.Code
		in.exited = true
		trap := in.runExitTrap()
		res.Stdout += trap.Stdout
		res.Stderr += trap.Stderr
	case FlowReturn:
		res.ExitCode = flow.Code
	case FlowBreak, FlowContinue:
		res.ExitCode = 0
	case FlowCancelled:
		res.ExitCode = flow.Reason.exitCode()
		res.Stderr += ShellName + ": " + flow.Reason.String() + "\n"
	}
	st.LastExitCode = res.ExitCode
	return res
}

// Close runs the EXIT trap if the shell has not exited yet.
func (in *Interpreter) Close() RunResult {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.exited {
		return RunResult{ExitCode: in.state.LastExitCode}
	}
	in.exited = true
	res := in.runExitTrap()
	res.ExitCode = in.state.LastExitCode
	return res
}

// runExitTrap runs the EXIT trap once.
func (in *Interpreter) runExitTrap() RunResult {
	st := in.state
	action, ok := st.Traps["EXIT"]
	if !ok {
		return RunResult{}
	}
	delete(st.Traps, "EXIT")
	if action == "" {
		return RunResult{}
	}

	node, err := shell.Parse(action)
	if err != nil {
		return RunResult{Stderr: ShellName + ": " + err.Error() + "\n"}
	}
	code := st.LastExitCode
	flow, err := newRunner(st, in.host, "").exec(node)
	st.LastExitCode = code
	if err != nil {
		return RunResult{Stderr: ShellName + ": " + err.Error() + "\n"}
	}
	return flow.Result
}
