package interp

import (
	"testing"

	"github.com/sandsh/sandsh/core/host"
	"github.com/sandsh/sandsh/core/host/hosttest"
	"github.com/sandsh/sandsh/core/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExec_Simple(t *testing.T) {
	runScriptCases(t, []scriptCase{
		{name: "prefix assignment", script: `FOO=bar echo $FOO; echo "[$FOO]"`, stdout: "bar\n[]\n"},
		{name: "assignment persists", script: `FOO=bar; echo $FOO`, stdout: "bar\n"},
		{name: "append assignment", script: `x=a; x+=b; echo $x`, stdout: "ab\n"},
		{name: "assignment not split", script: `x="a   b"; y=$x; echo "$y"`, stdout: "a   b\n"},
		{name: "spawned", script: `cat <<< spawned`, stdout: "spawned\n"},
		{name: "not found", script: `nosuch arg`, code: 127},
	})
}

func TestExec_NotFoundMessage(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res, err := in.Run("nosuch")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
	assert.Equal(t, "sandsh: nosuch: command not found\n", res.Stderr)
}

func TestExec_PermissionDenied(t *testing.T) {
	in, _ := newTestInterpreter(t)

	res, err := in.Run("/home/user")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)

	// A host reporting permission denied yields 126.
	h := &deniedHost{hosttest.New()}
	res, err = New(h).Run("tool")
	require.NoError(t, err)
	assert.Equal(t, 126, res.ExitCode)
	assert.Equal(t, "sandsh: tool: Permission denied\n", res.Stderr)
}

type deniedHost struct {
	*hosttest.Host
}

func (d *deniedHost) Spawn(req host.SpawnRequest) (host.SpawnResult, error) {
	return host.SpawnResult{}, host.NewError(host.PermissionDenied, "exec", req.Program, nil)
}

func TestExec_SpawnRequest(t *testing.T) {
	in, h := newTestInterpreter(t)

	_, err := in.Run("export X=5; cd /tmp; Y=2 cat a 'b c' <<< input")
	require.NoError(t, err)

	spawns := h.Spawns()
	require.Len(t, spawns, 1)
	req := spawns[0]
	assert.Equal(t, "cat", req.Program)
	assert.Equal(t, []string{"a", "b c"}, req.Args)
	assert.Equal(t, "/tmp", req.Dir)
	assert.Equal(t, "input\n", req.Stdin)
	assert.Contains(t, req.Env, "X=5")
	assert.Contains(t, req.Env, "Y=2")

	_, ok := in.State().Env["Y"]
	assert.False(t, ok)
}

func TestExec_Pipelines(t *testing.T) {
	runScriptCases(t, []scriptCase{
		{name: "forward", script: `echo hello | cat | cat`, stdout: "hello\n"},
		{name: "last status", script: `false | true; echo $?`, stdout: "0\n"},
		{name: "pipefail", script: `set -o pipefail; false | true; echo $?`, stdout: "1\n"},
		{name: "pipefail rightmost", script: `set -o pipefail; exit 3 | exit 4 | true; echo $?`, stdout: "4\n"},
		{name: "middle stage fails", script: `true | exit 5 | true; echo $?`, stdout: "0\n"},
		{name: "middle stage fails pipefail", script: `set -o pipefail; true | exit 5 | true; echo $?`, stdout: "5\n"},
		{name: "pipestatus", script: `false | true; echo ${PIPESTATUS[@]}`, stdout: "1 0\n"},
		{name: "read loop", script: `printf 'a\nb\n' | while read l; do echo "got $l"; done`, stdout: "got a\ngot b\n"},
		{name: "partial line", script: `printf 'x' | { read l; echo "$l $?"; }`, stdout: "x 1\n"},
		{name: "negated", script: `! echo a | cat; echo $?`, stdout: "a\n1\n"},
		{name: "last stage keeps variables", script: `echo a | read x; echo "[$x]"`, stdout: "[a]\n"},
		{name: "earlier stage isolated", script: `x=outer; x=inner | cat; echo $x`, stdout: "outer\n"},
		{name: "earlier stage cd", script: `cd /tmp | cat; pwd`, stdout: "/home/user\n"},
		{name: "earlier stage local array", script: `a=(1 2); { a=(z); echo ${#a[@]}; } | cat; echo ${a[@]}`, stdout: "1\n1 2\n"},
	})
}

func TestExec_PipelineStderr(t *testing.T) {
	in, h := newTestInterpreter(t)
	h.Canned("warn", host.SpawnResult{Stderr: "oops\n", ExitCode: 3})

	res, err := in.Run("warn | warn | cat")
	require.NoError(t, err)
	assert.Equal(t, "oops\noops\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExec_Lists(t *testing.T) {
	runScriptCases(t, []scriptCase{
		{name: "and", script: `true && echo yes; false && echo no`, stdout: "yes\n", code: 1},
		{name: "or", script: `false || echo yes; true || echo no`, stdout: "yes\n"},
		{name: "chain", script: `false && echo a || echo b`, stdout: "b\n"},
		{name: "sequence", script: "echo a\necho b", stdout: "a\nb\n"},
	})
}

func TestExec_Errexit(t *testing.T) {
	cases := []struct {
		name   string
		script string
		stdout string
		code   int
		exited bool
	}{
		{"stops", `set -e; echo a; false; echo b`, "a\n", 1, true},
		{"if condition", `set -e; if false; then echo x; fi; echo ok`, "ok\n", 0, false},
		{"or list", `set -e; false || echo rescued`, "rescued\n", 0, false},
		{"negated", `set -e; ! true; echo ok`, "ok\n", 0, false},
		{"while condition", `set -e; while false; do :; done; echo ok`, "ok\n", 0, false},
		{"subshell", `set -e; (false); echo no`, "", 1, true},
		{"substitution", `set -e; x=$(false); echo no`, "", 1, true},
		{"disabled", `set -e; set +e; false; echo ok`, "ok\n", 0, false},
		{"pipeline", `set -e; true | false; echo no`, "", 1, true},
		{"function", `set -e; f() { false; echo no; }; f; echo no`, "", 1, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, _ := newTestInterpreter(t)

			res, err := in.Run(tc.script)
			require.NoError(t, err)
			assert.Equal(t, tc.stdout, res.Stdout)
			assert.Equal(t, tc.code, res.ExitCode)
			assert.Equal(t, tc.exited, in.Exited())
		})
	}
}

func TestExec_Redirects(t *testing.T) {
	runScriptCases(t, []scriptCase{
		{name: "overwrite and append", script: `echo hi > out.txt; echo there >> out.txt; cat < out.txt`, stdout: "hi\nthere\n"},
		{name: "truncate", script: `echo long > f; echo s > f; cat < f`, stdout: "s\n"},
		{name: "empty output creates", script: `: > empty; [ -f empty ] && echo made`, stdout: "made\n"},
		{name: "heredoc", script: "cat <<EOF\nhello $USER\nEOF", stdout: "hello user\n"},
		{name: "quoted heredoc", script: "cat <<'EOF'\nhello $USER\nEOF", stdout: "hello $USER\n"},
		{name: "here string", script: `cat <<< "a b"`, stdout: "a b\n"},
		{name: "dev null", script: `echo gone > /dev/null; echo kept`, stdout: "kept\n"},
		{name: "builtin to file", script: `pwd > p; read x < p; echo $x`, stdout: "/home/user\n"},
		{name: "compound", script: `{ echo a; echo b; } > f; cat < f`, stdout: "a\nb\n"},
		{name: "loop input", script: `printf '1\n2\n' > n; while read x; do echo "n$x"; done < n`, stdout: "n1\nn2\n"},
		{name: "stdout to stderr", script: `echo err >&2`},
	})
}

func TestExec_StderrRedirects(t *testing.T) {
	cases := []struct {
		name   string
		script string
		stdout string
		stderr string
	}{
		{"to file", `warn 2> err.txt; cat < err.txt`, "out\noops\n", ""},
		{"discard", `warn 2>/dev/null`, "out\n", ""},
		{"to stdout", `warn 2>&1`, "out\noops\n", ""},
		{"to stdout through pipe", `warn 2>&1 | cat`, "out\noops\n", ""},
		{"both to file", `warn &> all; cat < all`, "out\noops\n", ""},
		{"order matters", `warn 2>&1 > f`, "oops\n", ""},
		{"unredirected", `warn`, "out\n", "oops\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, h := newTestInterpreter(t)
			h.Canned("warn", host.SpawnResult{Stdout: "out\n", Stderr: "oops\n", ExitCode: 3})

			res, err := in.Run(tc.script)
			require.NoError(t, err)
			assert.Equal(t, tc.stdout, res.Stdout)
			assert.Equal(t, tc.stderr, res.Stderr)
		})
	}
}

func TestExec_RedirectErrors(t *testing.T) {
	cases := []struct {
		script string
		stderr string
	}{
		{`cat < missing`, "sandsh: missing: No such file or directory\n"},
		{`echo x > /nodir/f`, "sandsh: /nodir/f: No such file or directory\n"},
		{`echo x > $empty`, "sandsh: ambiguous redirect\n"},
		{"cat <<EOF\n${missing:?must be set}\nEOF", "sandsh: missing: must be set\n"},
		{"cat <<-EOF\n\t${missing:?}\n\tEOF", "sandsh: missing: parameter null or not set\n"},
	}

	for _, tc := range cases {
		t.Run(tc.script, func(t *testing.T) {
			in, h := newTestInterpreter(t)

			res, err := in.Run(tc.script)
			require.NoError(t, err)
			assert.Equal(t, 1, res.ExitCode)
			assert.Equal(t, tc.stderr, res.Stderr)
			assert.Empty(t, h.Spawns())
		})
	}
}

func TestExec_Control(t *testing.T) {
	runScriptCases(t, []scriptCase{
		{name: "if elif", script: `x=2; if [ $x = 1 ]; then echo one; elif [ $x = 2 ]; then echo two; else echo other; fi`, stdout: "two\n"},
		{name: "if without else", script: `if false; then echo no; fi`},
		{name: "break", script: `for i in 1 2 3; do if [ $i = 2 ]; then break; fi; echo $i; done`, stdout: "1\n"},
		{name: "continue", script: `for i in 1 2 3; do if [ $i = 2 ]; then continue; fi; echo $i; done`, stdout: "1\n3\n"},
		{name: "break levels", script: `for i in a b; do for j in 1 2; do break 2; done; echo no; done; echo end`, stdout: "end\n"},
		{name: "continue levels", script: `for i in a b; do for j in 1 2; do echo $i$j; continue 2; done; done`, stdout: "a1\nb1\n"},
		{name: "until", script: `x=; until [ "$x" = aaa ]; do x="${x}a"; echo $x; done`, stdout: "a\naa\naaa\n"},
		{name: "while status", script: `while false; do :; done; echo $?`, stdout: "0\n"},
		{name: "for variable kept", script: `for i in x y; do :; done; echo $i`, stdout: "y\n"},
		{name: "case", script: `x=foo.go; case $x in *.txt) echo text;; *.go|*.mod) echo go;; esac`, stdout: "go\n"},
		{name: "case quoted pattern", script: `x='*'; case a in "$x") echo lit;; *) echo any;; esac`, stdout: "any\n"},
		{name: "case no match", script: `case a in b) echo b;; esac; echo $?`, stdout: "0\n"},
		{name: "subshell isolation", script: `x=1; (x=2; echo $x); echo $x`, stdout: "2\n1\n"},
		{name: "subshell exit", script: `(exit 3); echo $?`, stdout: "3\n"},
		{name: "subshell cwd", script: `(cd /tmp; pwd); pwd`, stdout: "/tmp\n/home/user\n"},
		{name: "group shares state", script: `{ x=2; }; echo $x`, stdout: "2\n"},
		{name: "negate", script: `! false; echo $?`, stdout: "0\n"},
	})
}

func TestExec_Functions(t *testing.T) {
	runScriptCases(t, []scriptCase{
		{name: "return", script: `f() { echo "in $1"; return 3; echo no; }; f arg; echo $?`, stdout: "in arg\n3\n"},
		{name: "local", script: `x=g; f() { local x=l; echo $x; }; f; echo $x`, stdout: "l\ng\n"},
		{name: "local unset", script: `x=g; f() { local x; echo "[$x]"; }; f; echo $x`, stdout: "[]\ng\n"},
		{name: "globals", script: `f() { y=set; }; f; echo $y`, stdout: "set\n"},
		{name: "positional restored", script: `set -- a; f() { echo $1 $#; }; f b c; echo $1 $#`, stdout: "b 2\na 1\n"},
		{name: "return in loop", script: `f() { for i in 1 2; do return 7; done; }; f; echo $?`, stdout: "7\n"},
		{name: "keyword syntax", script: `function g { echo g; }; g`, stdout: "g\n"},
		{name: "recursion", script: `f() { if [ -n "$1" ]; then echo $1; shift; f "$@"; fi; }; f a b`, stdout: "a\nb\n"},
		{name: "redirected body", script: `f() { echo inside; }; f > out; cat < out`, stdout: "inside\n"},
	})
}

func TestExec_Direct(t *testing.T) {
	h := hosttest.New()
	st := NewState()

	node, err := shell.Parse("for i in 1 2; do echo $i; break; done")
	require.NoError(t, err)

	flow, err := Exec(st, h, node)
	require.NoError(t, err)
	assert.Equal(t, FlowNormal, flow.Kind)
	assert.Equal(t, "1\n", flow.Result.Stdout)

	flow, err = Exec(st, h, &shell.Break{Levels: 2})
	require.NoError(t, err)
	assert.Equal(t, BreakFlow(2), flow)
}
