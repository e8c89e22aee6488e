package interp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sandsh/sandsh/core/host"
	"github.com/sandsh/sandsh/core/host/hosttest"
	"github.com/sandsh/sandsh/core/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInterpreter(t *testing.T, opts ...Option) (*Interpreter, *hosttest.Host) {
	t.Helper()
	h := hosttest.New().WithStandardTools()
	return New(h, opts...), h
}

// scriptCase runs script in a fresh interpreter.
type scriptCase struct {
	name   string
	script string
	stdout string
	code   int
}

func runScriptCases(t *testing.T, cases []scriptCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, _ := newTestInterpreter(t)
			res, err := in.Run(tc.script)
			require.NoError(t, err)
			assert.Equal(t, tc.stdout, res.Stdout, "stderr: %s", res.Stderr)
			assert.Equal(t, tc.code, res.ExitCode)
		})
	}
}

type recordedEvents struct {
	commands []CommandEvent
	errors   []error
}

func (r *recordedEvents) RecordCommand(event CommandEvent) {
	r.commands = append(r.commands, event)
}

func (r *recordedEvents) RecordShellError(line string, err error) {
	r.errors = append(r.errors, err)
}

func TestInterpreter_StatePersists(t *testing.T) {
	in, _ := newTestInterpreter(t)

	_, err := in.Run("x=1; f() { echo fn $x; }")
	require.NoError(t, err)

	res, err := in.Run("f")
	require.NoError(t, err)
	assert.Equal(t, "fn 1\n", res.Stdout)
}

func TestInterpreter_SyntaxError(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res, err := in.Run("if true; then")
	require.Error(t, err)

	var perr *shell.ParseError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, res.ExitCode)
	assert.Contains(t, res.Stderr, "sandsh: syntax error")
	assert.Equal(t, 2, in.State().LastExitCode)

	res, err = in.Run("echo $?")
	require.NoError(t, err)
	assert.Equal(t, "2\n", res.Stdout)
}

func TestInterpreter_Exit(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res, err := in.Run("echo bye; exit 4; echo no")
	require.NoError(t, err)
	assert.Equal(t, "bye\n", res.Stdout)
	assert.Equal(t, 4, res.ExitCode)
	assert.True(t, in.Exited())
}

func TestInterpreter_ExitTrap(t *testing.T) {
	t.Run("on exit", func(t *testing.T) {
		in, _ := newTestInterpreter(t)

		res, err := in.Run("trap 'echo cleanup $?' EXIT; exit 3")
		require.NoError(t, err)
		assert.Equal(t, "cleanup 3\n", res.Stdout)
		assert.Equal(t, 3, res.ExitCode)
	})

	t.Run("on close", func(t *testing.T) {
		in, _ := newTestInterpreter(t)

		_, err := in.Run("trap 'echo bye' EXIT")
		require.NoError(t, err)

		res := in.Close()
		assert.Equal(t, "bye\n", res.Stdout)
		assert.True(t, in.Exited())

		// The trap runs once.
		assert.Equal(t, "", in.Close().Stdout)
	})
}

func TestInterpreter_TopLevelFlows(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res, err := in.Run("break")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	res, err = in.Run("return 5")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "sandsh: return: can only `return' from a function or sourced script\n", res.Stderr)
}

func TestInterpreter_FunctionDepth(t *testing.T) {
	script := `f() { n="${n}x"; if [ "${#n}" -lt %d ]; then f; fi; }; f; echo ${#n}`

	t.Run("at limit", func(t *testing.T) {
		in, _ := newTestInterpreter(t)

		res, err := in.Run(fmt.Sprintf(script, MaxFunctionDepth))
		require.NoError(t, err)
		assert.Equal(t, "100\n", res.Stdout)
		assert.Equal(t, 0, in.State().FunctionDepth)
	})

	t.Run("over limit", func(t *testing.T) {
		in, _ := newTestInterpreter(t)

		res, err := in.Run(fmt.Sprintf(script, MaxFunctionDepth+1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFunctionTooDeep))
		assert.Equal(t, 2, res.ExitCode)

		st := in.State()
		assert.Equal(t, 0, st.FunctionDepth)
		assert.Empty(t, st.Locals)
		assert.Equal(t, 2, st.LastExitCode)

		// The interpreter is still usable.
		res, err = in.Run("echo ok")
		require.NoError(t, err)
		assert.Equal(t, "ok\n", res.Stdout)
	})
}

func TestInterpreter_SubstitutionDepth(t *testing.T) {
	in, _ := newTestInterpreter(t)

	_, err := in.Run("f() { echo $(f); }; f")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubstitutionTooDeep))
	assert.Equal(t, 0, in.State().SubstitutionDepth)
	assert.Equal(t, 0, in.State().FunctionDepth)
}

func TestInterpreter_Cancellation(t *testing.T) {
	t.Run("cancelled while loop", func(t *testing.T) {
		in, h := newTestInterpreter(t)
		h.CancelAfter(5)

		flow, err := in.Eval("while true; do :; done")
		require.NoError(t, err)
		assert.Equal(t, FlowCancelled, flow.Kind)
		assert.Equal(t, ReasonCancelled, flow.Reason)
		assert.Equal(t, 6, h.Polls())
	})

	t.Run("cancelled result", func(t *testing.T) {
		in, h := newTestInterpreter(t)
		h.CancelAfter(2)

		res, err := in.Run("while true; do :; done")
		require.NoError(t, err)
		assert.Equal(t, 130, res.ExitCode)
		assert.Equal(t, "sandsh: cancelled\n", res.Stderr)
	})

	t.Run("timed out for loop", func(t *testing.T) {
		in, h := newTestInterpreter(t)
		h.TimeoutAfter(3)

		res, err := in.Run("for i in 1 2 3 4 5 6; do echo $i; done")
		require.NoError(t, err)
		assert.Equal(t, "1\n2\n3\n", res.Stdout)
		assert.Equal(t, 124, res.ExitCode)
		assert.Equal(t, "sandsh: timed out\n", res.Stderr)
	})

	t.Run("pipeline stage", func(t *testing.T) {
		in, h := newTestInterpreter(t)
		h.CancelAfter(1)

		res, err := in.Run("echo a | cat | cat")
		require.NoError(t, err)
		assert.Equal(t, 130, res.ExitCode)
		assert.Equal(t, "", res.Stdout)
		assert.Empty(t, h.Spawns())
	})
}

func TestInterpreter_NestedCancellation(t *testing.T) {
	cases := []struct {
		name   string
		after  int
		script string
		stdout string
	}{
		{"assignment substitution", 3, "x=$(while true; do :; done); cat; cat", ""},
		{"argument substitution", 3, "echo before; echo $(while true; do :; done); cat", "before\n"},
		{"for word substitution", 2, "for i in $(while true; do :; done) a; do cat; done", ""},
		{"redirect target substitution", 2, "echo x > $(while true; do :; done); cat", ""},
		{"nested substitution", 4, "x=$(y=$(while true; do :; done); cat); cat", ""},
		{"pipeline stage body", 3, "while true; do :; done | cat; cat", ""},
		{"function body in pipeline", 3, "f() { while true; do :; done; }; f | cat; cat", ""},
		{"before spawn", 0, "cat; cat", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, h := newTestInterpreter(t)
			h.CancelAfter(tc.after)

			res, err := in.Run(tc.script)
			require.NoError(t, err)
			assert.Equal(t, 130, res.ExitCode)
			assert.Equal(t, tc.stdout, res.Stdout)
			assert.Equal(t, "sandsh: cancelled\n", res.Stderr)
			assert.Empty(t, h.Spawns())
		})
	}

	t.Run("timed out substitution", func(t *testing.T) {
		in, h := newTestInterpreter(t)
		h.TimeoutAfter(2)

		res, err := in.Run("x=$(while true; do :; done); cat")
		require.NoError(t, err)
		assert.Equal(t, 124, res.ExitCode)
		assert.Empty(t, h.Spawns())
	})

	t.Run("state usable after cancel", func(t *testing.T) {
		in, h := newTestInterpreter(t)
		h.CancelAfter(2)

		res, err := in.Run("x=$(while true; do :; done)")
		require.NoError(t, err)
		require.Equal(t, 130, res.ExitCode)
		assert.Equal(t, 0, in.State().SubstitutionDepth)
	})
}

func TestInterpreter_ScopedAndHeredocErrors(t *testing.T) {
	runScriptCases(t, []scriptCase{
		{
			name:   "array locals restored",
			script: `arr=(outer1 outer2); f() { local arr=(inner); local -a other=(z); }; f; echo "${arr[@]}|${other[@]}"`,
			stdout: "outer1 outer2|\n",
		},
		{
			name:   "nested array locals",
			script: `a=(1); f() { local a=(2); g; echo "${a[@]}"; }; g() { local a=(3); a+=(4); }; f; echo "${a[@]}"`,
			stdout: "2\n1\n",
		},
		{
			name:   "heredoc parameter error stops command",
			script: "cat <<EOF\n${missing:?must be set}\nEOF\necho next $?",
			stdout: "next 1\n",
		},
	})
}

func TestInterpreter_History(t *testing.T) {
	in, _ := newTestInterpreter(t)

	for _, line := range []string{"echo a", "   ", "history"} {
		_, err := in.Run(line)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"echo a", "history"}, in.State().History)
	res, err := in.Run("history 1")
	require.NoError(t, err)
	assert.Equal(t, "    3  history 1\n", res.Stdout)
}

func TestInterpreter_Events(t *testing.T) {
	rec := &recordedEvents{}
	in, _ := newTestInterpreter(t, WithEventRecorder(rec))

	_, err := in.Run("false")
	require.NoError(t, err)
	_, err = in.Run("fi")
	require.Error(t, err)

	require.Len(t, rec.commands, 2)
	assert.Equal(t, CommandEvent{Line: "false", ExitCode: 1, Flow: "normal"}, rec.commands[0])
	assert.Equal(t, 2, rec.commands[1].ExitCode)
	require.Len(t, rec.errors, 1)
}

func TestInterpreter_Defaults(t *testing.T) {
	in, _ := newTestInterpreter(t, WithDefaults(Defaults{
		Env:        map[string]string{"GREETING": "hi"},
		Options:    Options{Errexit: true},
		Cwd:        "/tmp",
		Positional: []string{"p1"},
	}))

	res, err := in.Run("echo $GREETING $1; pwd; echo $-")
	require.NoError(t, err)
	assert.Equal(t, "hi p1\n/tmp\ne\n", res.Stdout)
}

func TestInterpreter_WithState(t *testing.T) {
	st := NewState()
	st.Env["SHARED"] = "yes"
	in, _ := newTestInterpreter(t, WithState(st))

	res, err := in.Run("echo $SHARED; x=set")
	require.NoError(t, err)
	assert.Equal(t, "yes\n", res.Stdout)
	assert.Equal(t, "set", st.Env["x"])
}

func TestInterpreter_RunStdin(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res, err := in.RunStdin("read a b; echo $b; cat", "one two three\nrest\n")
	require.NoError(t, err)
	assert.Equal(t, "two three\nrest\n", res.Stdout)
}

func TestInterpreter_ExecutionTime(t *testing.T) {
	in, h := newTestInterpreter(t)
	h.Handle("slow", func(req host.SpawnRequest) host.SpawnResult {
		h.Now += 250
		return host.SpawnResult{}
	})

	res, err := in.Run("slow")
	require.NoError(t, err)
	assert.Equal(t, uint64(250), res.ExecutionTimeMs)
}

func ExampleInterpreter_Run() {
	in := New(hosttest.New())

	res, _ := in.Run(`greet() { echo "hello, ${1:-world}"; }; greet; greet sandsh`)
	fmt.Print(res.Stdout)
	// Output:
	// hello, world
	// hello, sandsh
}
