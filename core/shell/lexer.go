package shell

import "strings"

// Tokenize converts shell source text into a flat sequence of tokens.
//
// Tokenize is total: it never fails, unterminated quotes and substitutions
// run to the end of the input and anything unrecognized becomes part of a
// word.
func Tokenize(text string) []Token {
	l := &lexer{src: []rune(text), cmdStart: true}
	l.run()
	return l.tokens
}

type pendingHeredoc struct {
	redirect *Redirect
	delim    string
	quoted   bool
	strip    bool
}

type lexer struct {
	src    []rune
	pos    int
	tokens []Token

	// cmdStart is set when the next word would be in command position, braces
	// and bangs are only operators there.
	cmdStart bool
	// funcName is set after the "function" keyword so the name is followed by
	// a command position.
	funcName bool

	heredocs []pendingHeredoc
}

func (l *lexer) peek(offset int) rune {
	if i := l.pos + offset; i < len(l.src) {
		return l.src[i]
	}
	return 0
}

func isBlank(c rune) bool {
	return c == ' ' || c == '\t' || c == '\r'
}

// isWordBoundary reports whether c ends an unquoted word.
func isWordBoundary(c rune) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ';', '|', '&', '<', '>', '(', ')':
		return true
	}
	return false
}

func isNameStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c rune) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// IsName reports whether s is a valid variable or function name.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if i == 0 && !isNameStart(c) || !isNameChar(c) {
			return false
		}
	}
	return true
}

func (l *lexer) emit(t Token) {
	l.tokens = append(l.tokens, t)
	switch t.Type {
	case TokPipe, TokAnd, TokOr, TokSemi, TokNewline, TokLParen, TokRParen,
		TokLBrace, TokRBrace, TokBang, TokDoubleSemi,
		TokIf, TokThen, TokElif, TokElse, TokDo, TokWhile, TokUntil:
		l.cmdStart = true
	case TokRedirect:
		// Redirections don't change the command position.
	default:
		l.cmdStart = false
	}
}

func (l *lexer) op(t TokenType, width int) {
	l.pos += width
	l.emit(Token{Type: t, Text: t.String()})
}

func (l *lexer) run() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isBlank(c):
			l.pos++
		case c == '\\' && l.peek(1) == '\n':
			l.pos += 2
		case c == '\n':
			l.op(TokNewline, 1)
			l.readHeredocBodies()
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == ';':
			if l.peek(1) == ';' {
				l.op(TokDoubleSemi, 2)
			} else {
				l.op(TokSemi, 1)
			}
		case c == '|':
			if l.peek(1) == '|' {
				l.op(TokOr, 2)
			} else {
				l.op(TokPipe, 1)
			}
		case c == '&':
			switch {
			case l.peek(1) == '&':
				l.op(TokAnd, 2)
			case l.peek(1) == '>' && l.peek(2) == '>':
				l.pos += 3
				l.emitTargetRedirect(BothAppend)
			case l.peek(1) == '>':
				l.pos += 2
				l.emitTargetRedirect(BothOverwrite)
			default:
				// No background jobs, the command runs in sequence.
				l.op(TokSemi, 1)
			}
		case c == '(':
			l.op(TokLParen, 1)
		case c == ')':
			l.op(TokRParen, 1)
		case c == '{' && l.cmdStart && l.operatorFollows():
			l.op(TokLBrace, 1)
		case c == '}' && l.cmdStart && l.operatorFollows():
			l.op(TokRBrace, 1)
		case c == '!' && l.cmdStart && l.operatorFollows():
			l.op(TokBang, 1)
		case c == '<' || c == '>':
			l.lexRedirect(false)
		case (c == '1' || c == '2') && l.peek(1) == '>':
			l.lexRedirect(true)
		default:
			l.lexWord()
		}
	}
}

// operatorFollows reports whether the single character at pos stands alone.
func (l *lexer) operatorFollows() bool {
	next := l.peek(1)
	return next == 0 || isWordBoundary(next)
}

func (l *lexer) emitTargetRedirect(kind RedirectKind) {
	for isBlank(l.peek(0)) {
		l.pos++
	}
	target := Word{Parts: l.readWordParts()}
	l.emit(Token{Type: TokRedirect, Redirect: &Redirect{Kind: kind, Target: &target}})
}

func (l *lexer) emitFdRedirect(kind RedirectKind, width int) {
	l.pos += width
	l.emit(Token{Type: TokRedirect, Redirect: &Redirect{Kind: kind}})
}

// lexRedirect reads a redirection operator at pos, hasFd is set when the
// operator is prefixed with a 1 or 2.
func (l *lexer) lexRedirect(hasFd bool) {
	stderr := false
	if hasFd {
		stderr = l.src[l.pos] == '2'
		l.pos++
	}

	if l.src[l.pos] == '<' {
		switch {
		case l.peek(1) == '<' && l.peek(2) == '<':
			l.pos += 3
			l.emitTargetRedirect(HereString)
		case l.peek(1) == '<' && l.peek(2) == '-':
			l.pos += 3
			l.lexHeredoc(HeredocStrip)
		case l.peek(1) == '<':
			l.pos += 2
			l.lexHeredoc(Heredoc)
		default:
			l.pos++
			l.emitTargetRedirect(StdinFrom)
		}
		return
	}

	switch {
	case l.peek(1) == '>':
		l.pos += 2
		if stderr {
			l.emitTargetRedirect(StderrAppend)
		} else {
			l.emitTargetRedirect(StdoutAppend)
		}
	case l.peek(1) == '&' && l.peek(2) == '1':
		if stderr {
			l.emitFdRedirect(StderrToStdout, 3)
		} else {
			// >&1 is a no-op.
			l.pos += 3
		}
	case l.peek(1) == '&' && l.peek(2) == '2':
		if stderr {
			l.pos += 3
		} else {
			l.emitFdRedirect(StdoutToStderr, 3)
		}
	case l.peek(1) == '&':
		l.pos += 2
		l.emitTargetRedirect(BothOverwrite)
	default:
		l.pos++
		if stderr {
			l.emitTargetRedirect(StderrOverwrite)
		} else {
			l.emitTargetRedirect(StdoutOverwrite)
		}
	}
}

func (l *lexer) lexHeredoc(kind RedirectKind) {
	for isBlank(l.peek(0)) {
		l.pos++
	}
	var b partBuilder
	l.readWordInto(&b)
	delim := Word{Parts: b.finish()}

	redirect := &Redirect{Kind: kind, Body: &Word{}}
	l.heredocs = append(l.heredocs, pendingHeredoc{
		redirect: redirect,
		delim:    delim.String(),
		quoted:   b.quoted,
		strip:    kind == HeredocStrip,
	})
	l.emit(Token{Type: TokRedirect, Redirect: redirect})
}

// readHeredocBodies consumes the bodies of heredocs started on the line that
// just ended, in the order they appeared.
func (l *lexer) readHeredocBodies() {
	pending := l.heredocs
	l.heredocs = nil

	for _, hd := range pending {
		var body strings.Builder
		for l.pos < len(l.src) {
			end := l.pos
			for end < len(l.src) && l.src[end] != '\n' {
				end++
			}
			line := string(l.src[l.pos:end])
			l.pos = end
			if l.pos < len(l.src) {
				l.pos++
			}

			if hd.strip {
				line = strings.TrimLeft(line, "\t")
			}
			if line == hd.delim {
				break
			}
			body.WriteString(line)
			body.WriteByte('\n')
		}

		switch {
		case body.Len() == 0:
			// Leave the body empty.
		case hd.quoted:
			hd.redirect.Body.Parts = []WordPart{{Kind: Literal, Value: body.String(), Quoted: true}}
		default:
			hd.redirect.Body.Parts = parseTemplate(body.String())
		}
	}
}

// parseTemplate splits heredoc text into parts, expanding $ and backtick
// substitutions but leaving quotes alone.
func parseTemplate(text string) []WordPart {
	l := &lexer{src: []rune(text)}
	var b partBuilder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\' && strings.ContainsRune("$`\\", l.peek(1)):
			b.lit(string(l.peek(1)), true)
			l.pos += 2
		case c == '\\' && l.peek(1) == '\n':
			l.pos += 2
		case c == '$':
			l.readDollar(&b, true)
		case c == '`':
			l.readBacktick(&b, true)
		default:
			b.lit(string(c), true)
			l.pos++
		}
	}
	return b.finish()
}

func (l *lexer) lexWord() {
	wasCmdStart := l.cmdStart

	if tok, ok := l.readAssignment(); ok {
		l.emit(tok)
		return
	}

	var b partBuilder
	l.readWordInto(&b)
	parts := b.finish()

	tok := Token{Type: TokQuoted, Parts: parts}
	if len(parts) == 1 && !parts[0].Quoted {
		switch parts[0].Kind {
		case Literal:
			tok = Token{Type: TokWord, Text: parts[0].Value}
			if kw, ok := keywords[parts[0].Value]; ok {
				tok.Type = kw
			}
		case Variable:
			tok = Token{Type: TokVariable, Text: parts[0].Value}
		case CommandSub:
			tok = Token{Type: TokCommandSub, Text: parts[0].Value}
		}
	}

	l.emit(tok)

	switch {
	case tok.Type.IsKeyword() && !wasCmdStart:
		// Reserved words are only special in command position.
		l.cmdStart = false
	case l.funcName:
		l.funcName = false
		l.cmdStart = true
	case wasCmdStart && tok.Type == TokWord && tok.Text == "function":
		l.funcName = true
	}
}

// readAssignment tries to read NAME=value, NAME+=value or NAME[index]=value
// at pos. The position is left untouched if the word is not an assignment.
func (l *lexer) readAssignment() (Token, bool) {
	start := l.pos
	i := l.pos
	if i >= len(l.src) || !isNameStart(l.src[i]) {
		return Token{}, false
	}
	for i < len(l.src) && isNameChar(l.src[i]) {
		i++
	}
	name := string(l.src[start:i])

	index := ""
	if i < len(l.src) && l.src[i] == '[' {
		j := i + 1
		for j < len(l.src) && l.src[j] != ']' && l.src[j] != '\n' {
			j++
		}
		if j >= len(l.src) || l.src[j] != ']' {
			return Token{}, false
		}
		index = string(l.src[i+1 : j])
		i = j + 1
	}

	appendOp := false
	switch {
	case i+1 < len(l.src) && l.src[i] == '+' && l.src[i+1] == '=':
		appendOp = true
		i += 2
	case i < len(l.src) && l.src[i] == '=':
		i++
	default:
		return Token{}, false
	}

	l.pos = i
	valueStart := l.pos
	if l.peek(0) == '(' && index == "" {
		l.skipBalanced('(', ')')
	} else {
		var b partBuilder
		l.readWordInto(&b)
	}

	return Token{
		Type:   TokAssignment,
		Text:   string(l.src[start:l.pos]),
		Name:   name,
		Index:  index,
		Value:  string(l.src[valueStart:l.pos]),
		Append: appendOp,
	}, true
}

func (l *lexer) readWordParts() []WordPart {
	var b partBuilder
	l.readWordInto(&b)
	return b.finish()
}

// readWordInto reads a compound word up to the next unquoted boundary.
func (l *lexer) readWordInto(b *partBuilder) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isWordBoundary(c) {
			return
		}

		switch c {
		case '\'':
			b.quoted = true
			l.pos++
			start := l.pos
			for l.pos < len(l.src) && l.src[l.pos] != '\'' {
				l.pos++
			}
			if l.pos > start {
				b.lit(string(l.src[start:l.pos]), true)
			}
			if l.pos < len(l.src) {
				l.pos++
			}
		case '"':
			b.quoted = true
			l.pos++
			l.readDoubleQuoted(b)
		case '\\':
			if l.pos+1 >= len(l.src) {
				b.lit("\\", false)
				l.pos++
				continue
			}
			next := l.src[l.pos+1]
			l.pos += 2
			if next != '\n' {
				b.lit(string(next), true)
			}
		case '$':
			l.readDollar(b, false)
		case '`':
			l.readBacktick(b, false)
		default:
			b.lit(string(c), false)
			l.pos++
		}
	}
}

// readDoubleQuoted reads up to and including the closing double quote.
func (l *lexer) readDoubleQuoted(b *partBuilder) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '"':
			l.pos++
			return
		case c == '\\' && strings.ContainsRune("$\"\\`", l.peek(1)):
			b.lit(string(l.peek(1)), true)
			l.pos += 2
		case c == '\\' && l.peek(1) == '\n':
			l.pos += 2
		case c == '$':
			l.readDollar(b, true)
		case c == '`':
			l.readBacktick(b, true)
		default:
			b.lit(string(c), true)
			l.pos++
		}
	}
}

// readDollar reads a variable reference or command substitution at pos.
func (l *lexer) readDollar(b *partBuilder, quoted bool) {
	next := l.peek(1)
	switch {
	case next == '(':
		l.pos++
		start := l.pos + 1
		end := l.skipBalanced('(', ')')
		b.part(CommandSub, string(l.src[start:end]), quoted)
	case next == '{':
		l.pos++
		start := l.pos + 1
		end := l.skipBalanced('{', '}')
		b.part(Variable, string(l.src[start:end]), quoted)
	case isNameStart(next):
		l.pos++
		start := l.pos
		for l.pos < len(l.src) && isNameChar(l.src[l.pos]) {
			l.pos++
		}
		b.part(Variable, string(l.src[start:l.pos]), quoted)
	case (next >= '0' && next <= '9') || strings.ContainsRune("?$!#@*-", next):
		l.pos += 2
		b.part(Variable, string(next), quoted)
	default:
		b.lit("$", quoted)
		l.pos++
	}
}

// skipBalanced advances past a bracketed region starting at pos and returns
// the index of the closing bracket (or the end of input). Quoted text and
// escapes inside the region are skipped over.
func (l *lexer) skipBalanced(open, close rune) int {
	depth := 0
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '\\':
			l.pos++
		case '\'':
			if open == '(' || depth > 0 {
				l.pos++
				for l.pos < len(l.src) && l.src[l.pos] != '\'' {
					l.pos++
				}
			}
		case '"':
			l.pos++
			for l.pos < len(l.src) && l.src[l.pos] != '"' {
				if l.src[l.pos] == '\\' {
					l.pos++
				}
				l.pos++
			}
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				end := l.pos
				l.pos++
				return end
			}
		}
		l.pos++
	}
	l.pos = len(l.src)
	return len(l.src)
}

func (l *lexer) readBacktick(b *partBuilder, quoted bool) {
	l.pos++
	var body strings.Builder
	for l.pos < len(l.src) && l.src[l.pos] != '`' {
		c := l.src[l.pos]
		if c == '\\' && strings.ContainsRune("`\\$", l.peek(1)) {
			c = l.peek(1)
			l.pos++
		}
		body.WriteRune(c)
		l.pos++
	}
	if l.pos < len(l.src) {
		l.pos++
	}
	b.part(CommandSub, body.String(), quoted)
}

// partBuilder accumulates word parts, merging adjacent literals that share
// the same quoting.
type partBuilder struct {
	parts  []WordPart
	quoted bool
}

func (b *partBuilder) lit(s string, quoted bool) {
	if n := len(b.parts); n > 0 {
		last := &b.parts[n-1]
		if last.Kind == Literal && last.Quoted == quoted {
			last.Value += s
			return
		}
	}
	b.parts = append(b.parts, WordPart{Kind: Literal, Value: s, Quoted: quoted})
}

func (b *partBuilder) part(kind PartKind, value string, quoted bool) {
	b.parts = append(b.parts, WordPart{Kind: kind, Value: value, Quoted: quoted})
}

// finish returns the parts, an empty quoted string yields one empty literal.
func (b *partBuilder) finish() []WordPart {
	if len(b.parts) == 0 && b.quoted {
		return []WordPart{{Kind: Literal, Quoted: true}}
	}
	return b.parts
}

// ParseWord reads raw source text, such as an assignment value, into a single
// Word. Characters that would normally end a word are kept as literals.
func ParseWord(raw string) Word {
	l := &lexer{src: []rune(raw)}
	var b partBuilder
	for l.pos < len(l.src) {
		l.readWordInto(&b)
		if l.pos < len(l.src) {
			b.lit(string(l.src[l.pos]), false)
			l.pos++
		}
	}
	return Word{Parts: b.finish()}
}

// ParseWords splits raw source text into words, for example the elements of
// an array assignment. Operators and keywords in the text are treated as
// plain words.
func ParseWords(raw string) []Word {
	var out []Word
	for _, tok := range Tokenize(raw) {
		switch {
		case tok.isWordLike(), tok.Type.IsKeyword():
			out = append(out, tok.word())
		case tok.Type == TokLBrace, tok.Type == TokRBrace, tok.Type == TokBang:
			out = append(out, Lit(tok.Type.String()))
		}
	}
	return out
}
