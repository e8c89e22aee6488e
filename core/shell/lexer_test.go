package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func tokenTypes(toks []Token) []TokenType {
	var out []TokenType
	for _, tok := range toks {
		out = append(out, tok.Type)
	}
	return out
}

func TestTokenize_operators(t *testing.T) {
	cases := map[string][]TokenType{
		"a | b":               {TokWord, TokPipe, TokWord},
		"a || b":              {TokWord, TokOr, TokWord},
		"a && b":              {TokWord, TokAnd, TokWord},
		"a & b":               {TokWord, TokSemi, TokWord},
		"a; b\nc":             {TokWord, TokSemi, TokWord, TokNewline, TokWord},
		"(a)":                 {TokLParen, TokWord, TokRParen},
		"{ a; }":              {TokLBrace, TokWord, TokSemi, TokRBrace},
		"! a":                 {TokBang, TokWord},
		"echo !a {x} }":       {TokWord, TokWord, TokWord, TokWord},
		"a ;; b":              {TokWord, TokDoubleSemi, TokWord},
		"echo a # b c":        {TokWord, TokWord},
		"echo a#b":            {TokWord, TokWord},
		"if a; then b; fi":    {TokIf, TokWord, TokSemi, TokThen, TokWord, TokSemi, TokFi},
		"until a; do b; done": {TokUntil, TokWord, TokSemi, TokDo, TokWord, TokSemi, TokDone},
	}

	for input, expected := range cases {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, expected, tokenTypes(Tokenize(input)))
		})
	}
}

func TestTokenize_redirects(t *testing.T) {
	cases := []struct {
		input  string
		kind   RedirectKind
		target string
	}{
		{"echo >out", StdoutOverwrite, "out"},
		{"echo > out", StdoutOverwrite, "out"},
		{"echo 1>out", StdoutOverwrite, "out"},
		{"echo >>out", StdoutAppend, "out"},
		{"cat <in", StdinFrom, "in"},
		{"echo 2>err", StderrOverwrite, "err"},
		{"echo 2>>err", StderrAppend, "err"},
		{"echo 2>&1", StderrToStdout, ""},
		{"echo >&2", StdoutToStderr, ""},
		{"echo 1>&2", StdoutToStderr, ""},
		{"echo &>all", BothOverwrite, "all"},
		{"echo &>>all", BothAppend, "all"},
		{"cat <<< 'hi there'", HereString, "hi there"},
		{`echo >"a b"`, StdoutOverwrite, "a b"},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			toks := Tokenize(tc.input)
			last := toks[len(toks)-1]
			if !assert.Equal(t, TokRedirect, last.Type) {
				return
			}
			assert.Equal(t, tc.kind, last.Redirect.Kind)
			if tc.target == "" {
				assert.Nil(t, last.Redirect.Target)
			} else {
				assert.Equal(t, tc.target, last.Redirect.Target.String())
			}
		})
	}
}

func TestTokenize_redirectTargetStops(t *testing.T) {
	toks := Tokenize("echo hi>out;cat out")
	assert.Equal(t, []TokenType{TokWord, TokWord, TokRedirect, TokSemi, TokWord, TokWord}, tokenTypes(toks))
	assert.Equal(t, "out", toks[2].Redirect.Target.String())
}

func TestTokenize_words(t *testing.T) {
	cases := []struct {
		input    string
		expected Token
	}{
		{"plain", Token{Type: TokWord, Text: "plain"}},
		{"$HOME", Token{Type: TokVariable, Text: "HOME"}},
		{"${HOME:-/}", Token{Type: TokVariable, Text: "HOME:-/"}},
		{"$?", Token{Type: TokVariable, Text: "?"}},
		{"$1", Token{Type: TokVariable, Text: "1"}},
		{"$(echo (a) b)", Token{Type: TokCommandSub, Text: "echo (a) b"}},
		{"`echo hi`", Token{Type: TokCommandSub, Text: "echo hi"}},
		{"'a $b'", Token{Type: TokQuoted, Parts: []WordPart{{Kind: Literal, Value: "a $b", Quoted: true}}}},
		{`"a $b"`, Token{Type: TokQuoted, Parts: []WordPart{
			{Kind: Literal, Value: "a ", Quoted: true},
			{Kind: Variable, Value: "b", Quoted: true},
		}}},
		{`"a \"q\" \$b \n"`, Token{Type: TokQuoted, Parts: []WordPart{
			{Kind: Literal, Value: `a "q" $b \n`, Quoted: true},
		}}},
		{`a\ b`, Token{Type: TokQuoted, Parts: []WordPart{
			{Kind: Literal, Value: "a"},
			{Kind: Literal, Value: " ", Quoted: true},
			{Kind: Literal, Value: "b"},
		}}},
		{`pre"$x"post`, Token{Type: TokQuoted, Parts: []WordPart{
			{Kind: Literal, Value: "pre"},
			{Kind: Variable, Value: "x", Quoted: true},
			{Kind: Literal, Value: "post"},
		}}},
		{`""`, Token{Type: TokQuoted, Parts: []WordPart{{Kind: Literal, Quoted: true}}}},
		{"$", Token{Type: TokWord, Text: "$"}},
		{"'unterminated", Token{Type: TokQuoted, Parts: []WordPart{{Kind: Literal, Value: "unterminated", Quoted: true}}}},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			toks := Tokenize(tc.input)
			if assert.Len(t, toks, 1) {
				assert.Equal(t, tc.expected, toks[0])
			}
		})
	}
}

func TestTokenize_assignments(t *testing.T) {
	cases := []struct {
		input    string
		expected Token
	}{
		{"FOO=bar", Token{Type: TokAssignment, Text: "FOO=bar", Name: "FOO", Value: "bar"}},
		{"FOO=", Token{Type: TokAssignment, Text: "FOO=", Name: "FOO", Value: ""}},
		{`FOO="a b"`, Token{Type: TokAssignment, Text: `FOO="a b"`, Name: "FOO", Value: `"a b"`}},
		{"FOO=$(echo a b)", Token{Type: TokAssignment, Text: "FOO=$(echo a b)", Name: "FOO", Value: "$(echo a b)"}},
		{"FOO+=x", Token{Type: TokAssignment, Text: "FOO+=x", Name: "FOO", Value: "x", Append: true}},
		{"arr=(a b c)", Token{Type: TokAssignment, Text: "arr=(a b c)", Name: "arr", Value: "(a b c)"}},
		{"arr[2]=x", Token{Type: TokAssignment, Text: "arr[2]=x", Name: "arr", Index: "2", Value: "x"}},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			toks := Tokenize(tc.input)
			if assert.Len(t, toks, 1) {
				assert.Equal(t, tc.expected, toks[0])
			}
		})
	}

	// Not assignments
	for _, input := range []string{"=x", "1A=x", "a-b=c", `"A=b"`} {
		t.Run(input, func(t *testing.T) {
			toks := Tokenize(input)
			assert.NotEqual(t, TokAssignment, toks[0].Type)
		})
	}
}

func TestTokenize_keywordsOnlyInCommandPosition(t *testing.T) {
	toks := Tokenize("echo done { a }")
	assert.Equal(t, []TokenType{TokWord, TokDone, TokWord, TokWord, TokWord}, tokenTypes(toks))

	toks = Tokenize("if true; then { echo; }; fi")
	assert.Equal(t, []TokenType{
		TokIf, TokWord, TokSemi, TokThen, TokLBrace, TokWord, TokSemi, TokRBrace, TokSemi, TokFi,
	}, tokenTypes(toks))
}

func TestTokenize_heredoc(t *testing.T) {
	toks := Tokenize("cat <<EOF | wc -l\nhello $USER\n  world\nEOF\necho after")
	assert.Equal(t, []TokenType{
		TokWord, TokRedirect, TokPipe, TokWord, TokWord, TokNewline, TokWord, TokWord,
	}, tokenTypes(toks))

	body := toks[1].Redirect.Body
	assert.Equal(t, Heredoc, toks[1].Redirect.Kind)
	assert.Equal(t, []WordPart{
		{Kind: Literal, Value: "hello ", Quoted: true},
		{Kind: Variable, Value: "USER", Quoted: true},
		{Kind: Literal, Value: "\n  world\n", Quoted: true},
	}, body.Parts)
}

func TestTokenize_heredocQuotedAndStripped(t *testing.T) {
	toks := Tokenize("cat <<-'END'\n\tkeep $x\n\tEND\n")
	assert.Equal(t, HeredocStrip, toks[1].Redirect.Kind)
	assert.Equal(t, []WordPart{{Kind: Literal, Value: "keep $x\n", Quoted: true}}, toks[1].Redirect.Body.Parts)
}

func TestParseWord(t *testing.T) {
	w := ParseWord(`a"$b c"$(d)`)
	assert.Equal(t, []WordPart{
		{Kind: Literal, Value: "a"},
		{Kind: Variable, Value: "b", Quoted: true},
		{Kind: Literal, Value: " c", Quoted: true},
		{Kind: CommandSub, Value: "d"},
	}, w.Parts)
}

func TestParseWords(t *testing.T) {
	words := ParseWords(`a "b c" $d`)
	assert.Equal(t, []Word{
		Lit("a"),
		{Parts: []WordPart{{Kind: Literal, Value: "b c", Quoted: true}}},
		{Parts: []WordPart{{Kind: Variable, Value: "d"}}},
	}, words)
}

func TestIsName(t *testing.T) {
	assert.True(t, IsName("_a1"))
	assert.True(t, IsName("FOO"))
	assert.False(t, IsName(""))
	assert.False(t, IsName("1a"))
	assert.False(t, IsName("a-b"))
}
