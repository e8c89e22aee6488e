package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(ss ...string) []Word {
	var out []Word
	for _, s := range ss {
		out = append(out, Lit(s))
	}
	return out
}

func simple(ss ...string) *Simple {
	return &Simple{Words: words(ss...)}
}

func TestParse_simple(t *testing.T) {
	cmd, err := Parse("echo hello world")
	require.NoError(t, err)

	s, ok := cmd.(*Simple)
	require.True(t, ok, "expected *Simple, got %T", cmd)
	assert.Equal(t, words("echo", "hello", "world"), s.Words)
	assert.Empty(t, s.Redirects)
	assert.Empty(t, s.Assignments)
}

func TestParse_pipeline(t *testing.T) {
	cmd, err := Parse("cat f | grep x | wc -l")
	require.NoError(t, err)

	assert.Equal(t, &Pipeline{Commands: []Command{
		simple("cat", "f"),
		simple("grep", "x"),
		simple("wc", "-l"),
	}}, cmd)
}

func TestParse_listIsLeftAssociative(t *testing.T) {
	cmd, err := Parse("cmd1 && cmd2 || cmd3")
	require.NoError(t, err)

	assert.Equal(t, &List{
		Left:  &List{Left: simple("cmd1"), Op: And, Right: simple("cmd2")},
		Op:    Or,
		Right: simple("cmd3"),
	}, cmd)
}

func TestParse_if(t *testing.T) {
	cmd, err := Parse("if true; then echo yes; fi")
	require.NoError(t, err)

	ifCmd, ok := cmd.(*If)
	require.True(t, ok, "expected *If, got %T", cmd)
	assert.Nil(t, ifCmd.Else)
	assert.Equal(t, simple("echo", "yes"), ifCmd.Then)
}

func TestParse_elifDesugars(t *testing.T) {
	cmd, err := Parse("if a; then b; elif c; then d; else e; fi")
	require.NoError(t, err)

	assert.Equal(t, &If{
		Cond: simple("a"),
		Then: simple("b"),
		Else: &If{
			Cond: simple("c"),
			Then: simple("d"),
			Else: simple("e"),
		},
	}, cmd)
}

func TestParse_trailingSeparatorsAbsorbed(t *testing.T) {
	cmd, err := Parse("echo a;\n\n")
	require.NoError(t, err)
	assert.Equal(t, simple("echo", "a"), cmd)

	cmd, err = Parse("while true\ndo\n  echo a;\ndone\n")
	require.NoError(t, err)
	assert.Equal(t, &While{Cond: simple("true"), Body: simple("echo", "a")}, cmd)
}

func TestParse_empty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n", "# just a comment", ";"} {
		cmd, err := Parse(input)
		require.NoError(t, err, input)
		assert.Equal(t, &Simple{}, cmd, input)
	}
}

func TestParse_assignments(t *testing.T) {
	cmd, err := Parse("FOO=bar BAZ=1 env")
	require.NoError(t, err)
	assert.Equal(t, &Simple{
		Words: words("env"),
		Assignments: []Assignment{
			{Name: "FOO", Value: "bar"},
			{Name: "BAZ", Value: "1"},
		},
	}, cmd)

	// After the command name assignments are plain arguments.
	cmd, err = Parse("export FOO=bar")
	require.NoError(t, err)
	assert.Equal(t, simple("export", "FOO=bar"), cmd)
}

func TestParse_redirectsInterleaved(t *testing.T) {
	cmd, err := Parse("echo >out a 2>&1 b")
	require.NoError(t, err)

	out := Lit("out")
	assert.Equal(t, &Simple{
		Words: words("echo", "a", "b"),
		Redirects: []Redirect{
			{Kind: StdoutOverwrite, Target: &out},
			{Kind: StderrToStdout},
		},
	}, cmd)
}

func TestParse_for(t *testing.T) {
	cmd, err := Parse("for i in a b c; do echo $i; done")
	require.NoError(t, err)

	assert.Equal(t, &For{
		Var:   "i",
		Words: words("a", "b", "c"),
		Body: &Simple{Words: []Word{
			Lit("echo"),
			{Parts: []WordPart{{Kind: Variable, Value: "i"}}},
		}},
	}, cmd)
}

func TestParse_forWithoutIn(t *testing.T) {
	cmd, err := Parse("for arg; do echo; done")
	require.NoError(t, err)

	f := cmd.(*For)
	assert.Equal(t, []Word{{Parts: []WordPart{{Kind: Variable, Value: "@", Quoted: true}}}}, f.Words)
}

func TestParse_until(t *testing.T) {
	cmd, err := Parse("until false; do break; done")
	require.NoError(t, err)
	assert.Equal(t, &While{Cond: simple("false"), Body: &Break{Levels: 1}, Until: true}, cmd)
}

func TestParse_breakLevels(t *testing.T) {
	cmd, err := Parse("continue 2")
	require.NoError(t, err)
	assert.Equal(t, &Continue{Levels: 2}, cmd)

	_, err = Parse("break 0")
	assert.Error(t, err)
}

func TestParse_case(t *testing.T) {
	cmd, err := Parse("case $x in\n a|b) echo ab;;\n (c) ;;\n *) echo other\nesac")
	require.NoError(t, err)

	assert.Equal(t, &Case{
		Word: Word{Parts: []WordPart{{Kind: Variable, Value: "x"}}},
		Items: []CaseItem{
			{Patterns: words("a", "b"), Body: simple("echo", "ab")},
			{Patterns: words("c"), Body: &Simple{}},
			{Patterns: words("*"), Body: simple("echo", "other")},
		},
	}, cmd)
}

func TestParse_function(t *testing.T) {
	expected := &Function{Name: "greet", Body: simple("echo", "hi")}

	for _, input := range []string{
		"greet() { echo hi; }",
		"greet () {\n echo hi\n}",
		"function greet { echo hi; }",
		"function greet() { echo hi; }",
	} {
		cmd, err := Parse(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, cmd, input)
	}
}

func TestParse_subshellGroupNegate(t *testing.T) {
	cmd, err := Parse("! (cd /tmp; ls) && { echo a; echo b; }")
	require.NoError(t, err)

	assert.Equal(t, &List{
		Left: &Negate{Body: &Subshell{Body: &List{
			Left: simple("cd", "/tmp"), Op: Seq, Right: simple("ls"),
		}}},
		Op: And,
		Right: &Group{Body: &List{
			Left: simple("echo", "a"), Op: Seq, Right: simple("echo", "b"),
		}},
	}, cmd)
}

func TestParse_redirectedCompound(t *testing.T) {
	cmd, err := Parse("while read l; do echo $l; done < in.txt")
	require.NoError(t, err)

	r, ok := cmd.(*Redirected)
	require.True(t, ok, "expected *Redirected, got %T", cmd)
	assert.IsType(t, &While{}, r.Body)
	assert.Equal(t, StdinFrom, r.Redirects[0].Kind)
}

func TestParse_keywordsAsArguments(t *testing.T) {
	cmd, err := Parse("echo if then done")
	require.NoError(t, err)
	assert.Equal(t, simple("echo", "if", "then", "done"), cmd)
}

func TestParse_errors(t *testing.T) {
	for _, input := range []string{
		"if true; then echo",
		"if true; echo; fi",
		"for 1 in a; do b; done",
		"while true; do echo",
		"case x in a) echo",
		"(echo",
		"{ echo",
		"echo )",
		"fi",
		"echo |",
		"echo &&",
		"echo >",
		"f() echo",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			var perr *ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}
