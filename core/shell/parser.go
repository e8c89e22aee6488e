package shell

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports malformed script structure.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return "syntax error: " + e.Msg
}

// Parse tokenizes and parses text into a single Command.
//
// Empty input (or input containing only separators and comments) parses to
// an empty *Simple.
func Parse(text string) (Command, error) {
	p := &parser{tokens: Tokenize(text)}
	p.skipSeparators()
	if p.atEOF() {
		return &Simple{}, nil
	}

	cmd, err := p.parseList()
	if err != nil {
		return nil, err
	}

	p.skipSeparators()
	if !p.atEOF() {
		return nil, p.unexpected()
	}
	return cmd, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) atEOF() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek() Token {
	if p.atEOF() {
		return Token{Type: -1}
	}
	return p.tokens[p.pos]
}

func (p *parser) is(t TokenType) bool {
	return !p.atEOF() && p.tokens[p.pos].Type == t
}

func (p *parser) next() Token {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *parser) unexpected() error {
	if p.atEOF() {
		return &ParseError{Msg: "unexpected end of input"}
	}
	return &ParseError{Msg: fmt.Sprintf("unexpected token `%s'", p.peek())}
}

func (p *parser) expect(t TokenType) error {
	if !p.is(t) {
		if p.atEOF() {
			return &ParseError{Msg: fmt.Sprintf("unexpected end of input, expected `%s'", t)}
		}
		return &ParseError{Msg: fmt.Sprintf("unexpected token `%s', expected `%s'", p.peek(), t)}
	}
	p.pos++
	return nil
}

func (p *parser) skipNewlines() {
	for p.is(TokNewline) {
		p.pos++
	}
}

func (p *parser) skipSeparators() {
	for p.is(TokNewline) || p.is(TokSemi) {
		p.pos++
	}
}

// atCommandStart reports whether the next token can begin a command.
func (p *parser) atCommandStart() bool {
	if p.atEOF() {
		return false
	}
	switch p.peek().Type {
	case TokWord, TokQuoted, TokAssignment, TokVariable, TokCommandSub, TokRedirect,
		TokLParen, TokLBrace, TokBang,
		TokIf, TokFor, TokWhile, TokUntil, TokCase, TokBreak, TokContinue:
		return true
	}
	return false
}

// parseList parses pipelines joined by &&, || and separators. All three
// operators share one precedence level and associate to the left.
func (p *parser) parseList() (Command, error) {
	if !p.atCommandStart() {
		return nil, p.unexpected()
	}
	left, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}

	for {
		var op ListOp
		switch {
		case p.is(TokAnd):
			op = And
		case p.is(TokOr):
			op = Or
		case p.is(TokSemi), p.is(TokNewline):
			p.skipSeparators()
			if !p.atCommandStart() {
				return left, nil
			}
			right, err := p.parsePipeline()
			if err != nil {
				return nil, err
			}
			left = &List{Left: left, Op: Seq, Right: right}
			continue
		default:
			return left, nil
		}

		p.pos++
		p.skipNewlines()
		right, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		left = &List{Left: left, Op: op, Right: right}
	}
}

func (p *parser) parsePipeline() (Command, error) {
	negate := false
	if p.is(TokBang) {
		p.pos++
		negate = true
	}

	first, err := p.parseCommand()
	if err != nil {
		return nil, err
	}

	var out Command = first
	if p.is(TokPipe) {
		pipeline := &Pipeline{Commands: []Command{first}}
		for p.is(TokPipe) {
			p.pos++
			p.skipNewlines()
			cmd, err := p.parseCommand()
			if err != nil {
				return nil, err
			}
			pipeline.Commands = append(pipeline.Commands, cmd)
		}
		out = pipeline
	}

	if negate {
		return &Negate{Body: out}, nil
	}
	return out, nil
}

func (p *parser) parseCommand() (Command, error) {
	var (
		cmd Command
		err error
	)

	switch tok := p.peek(); tok.Type {
	case TokIf:
		cmd, err = p.parseIf()
	case TokFor:
		cmd, err = p.parseFor()
	case TokWhile, TokUntil:
		cmd, err = p.parseWhile()
	case TokCase:
		cmd, err = p.parseCase()
	case TokLParen:
		cmd, err = p.parseSubshell()
	case TokLBrace:
		cmd, err = p.parseGroup()
	case TokBreak, TokContinue:
		return p.parseLoopControl()
	case TokWord:
		switch {
		case p.isFunctionDef():
			cmd, err = p.parseFunction()
		case tok.Text == "function" && p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].Type == TokWord:
			p.pos++
			cmd, err = p.parseFunction()
		default:
			return p.parseSimple()
		}
	default:
		return p.parseSimple()
	}
	if err != nil {
		return nil, err
	}

	// Compound commands may be followed by redirections.
	var redirects []Redirect
	for p.is(TokRedirect) {
		r, err := p.redirect(p.next())
		if err != nil {
			return nil, err
		}
		redirects = append(redirects, r)
	}
	if len(redirects) > 0 {
		return &Redirected{Body: cmd, Redirects: redirects}, nil
	}
	return cmd, nil
}

func (p *parser) isFunctionDef() bool {
	return p.pos+2 < len(p.tokens) &&
		IsName(p.tokens[p.pos].Text) &&
		p.tokens[p.pos+1].Type == TokLParen &&
		p.tokens[p.pos+2].Type == TokRParen
}

func (p *parser) redirect(tok Token) (Redirect, error) {
	r := *tok.Redirect
	if r.Target != nil && len(r.Target.Parts) == 0 {
		return Redirect{}, &ParseError{Msg: fmt.Sprintf("missing target for redirection %s", r.Kind)}
	}
	return r, nil
}

func (p *parser) parseSimple() (Command, error) {
	cmd := &Simple{}

loop:
	for !p.atEOF() {
		tok := p.peek()
		switch {
		case tok.Type == TokAssignment && len(cmd.Words) == 0:
			cmd.Assignments = append(cmd.Assignments, Assignment{
				Name:   tok.Name,
				Index:  tok.Index,
				Value:  tok.Value,
				Append: tok.Append,
			})
		case tok.Type == TokRedirect:
			r, err := p.redirect(tok)
			if err != nil {
				return nil, err
			}
			cmd.Redirects = append(cmd.Redirects, r)
		case tok.isWordLike():
			cmd.Words = append(cmd.Words, tok.word())
		case tok.Type.IsKeyword() && len(cmd.Words) > 0:
			// Reserved words are ordinary arguments after the command name.
			cmd.Words = append(cmd.Words, tok.word())
		default:
			break loop
		}
		p.pos++
	}

	if cmd.IsEmpty() {
		return nil, p.unexpected()
	}
	return cmd, nil
}

func (p *parser) parseIf() (Command, error) {
	p.pos++ // if or elif

	cond, err := p.parseList()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if err := p.expect(TokThen); err != nil {
		return nil, err
	}
	p.skipSeparators()
	then, err := p.parseList()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()

	out := &If{Cond: cond, Then: then}
	switch {
	case p.is(TokElif):
		// elif chains desugar into nested ifs that share the outer fi.
		out.Else, err = p.parseIf()
		return out, err
	case p.is(TokElse):
		p.pos++
		p.skipSeparators()
		if out.Else, err = p.parseList(); err != nil {
			return nil, err
		}
		p.skipSeparators()
	}

	if err := p.expect(TokFi); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parser) parseFor() (Command, error) {
	p.pos++ // for

	nameTok := p.next()
	if nameTok.Type != TokWord || !IsName(nameTok.Text) {
		return nil, &ParseError{Msg: fmt.Sprintf("invalid for loop variable `%s'", nameTok)}
	}

	out := &For{Var: nameTok.Text}
	p.skipNewlines()
	if p.is(TokIn) {
		p.pos++
		for !p.atEOF() && !p.is(TokSemi) && !p.is(TokNewline) && !p.is(TokDo) {
			tok := p.next()
			if !tok.isWordLike() && !tok.Type.IsKeyword() {
				return nil, &ParseError{Msg: fmt.Sprintf("unexpected token `%s' in for loop", tok)}
			}
			out.Words = append(out.Words, tok.word())
		}
	} else {
		// "for x; do" iterates over the positional parameters.
		out.Words = []Word{{Parts: []WordPart{{Kind: Variable, Value: "@", Quoted: true}}}}
	}

	body, err := p.parseDoDone()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func (p *parser) parseDoDone() (Command, error) {
	p.skipSeparators()
	if err := p.expect(TokDo); err != nil {
		return nil, err
	}
	p.skipSeparators()
	body, err := p.parseList()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if err := p.expect(TokDone); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *parser) parseWhile() (Command, error) {
	until := p.next().Type == TokUntil

	cond, err := p.parseList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseDoDone()
	if err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body, Until: until}, nil
}

func (p *parser) parseCase() (Command, error) {
	p.pos++ // case

	wordTok := p.next()
	if !wordTok.isWordLike() && !wordTok.Type.IsKeyword() {
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected token `%s' after case", wordTok)}
	}
	out := &Case{Word: wordTok.word()}

	p.skipNewlines()
	if err := p.expect(TokIn); err != nil {
		return nil, err
	}
	p.skipSeparators()

	for !p.is(TokEsac) {
		if p.atEOF() {
			return nil, p.expect(TokEsac)
		}
		if p.is(TokLParen) {
			p.pos++
		}

		var item CaseItem
		for {
			tok := p.next()
			if !tok.isWordLike() && !tok.Type.IsKeyword() {
				return nil, &ParseError{Msg: fmt.Sprintf("unexpected token `%s' in case pattern", tok)}
			}
			item.Patterns = append(item.Patterns, tok.word())
			if !p.is(TokPipe) {
				break
			}
			p.pos++
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}

		p.skipSeparators()
		if p.is(TokDoubleSemi) || p.is(TokEsac) {
			item.Body = &Simple{}
		} else {
			body, err := p.parseList()
			if err != nil {
				return nil, err
			}
			item.Body = body
			p.skipSeparators()
		}
		out.Items = append(out.Items, item)

		if p.is(TokDoubleSemi) {
			p.pos++
			p.skipSeparators()
		} else if !p.is(TokEsac) {
			return nil, p.unexpected()
		}
	}
	p.pos++ // esac

	return out, nil
}

func (p *parser) parseSubshell() (Command, error) {
	p.pos++ // (
	p.skipSeparators()
	body, err := p.parseList()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return &Subshell{Body: body}, nil
}

func (p *parser) parseGroup() (Command, error) {
	p.pos++ // {
	p.skipSeparators()
	body, err := p.parseList()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return &Group{Body: body}, nil
}

func (p *parser) parseFunction() (Command, error) {
	name := p.next().Text
	if !IsName(name) {
		return nil, &ParseError{Msg: fmt.Sprintf("invalid function name `%s'", name)}
	}
	if p.is(TokLParen) {
		p.pos++
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
	}
	p.skipNewlines()

	if p.is(TokLBrace) {
		group, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		return &Function{Name: name, Body: group.(*Group).Body}, nil
	}

	switch p.peek().Type {
	case TokIf, TokFor, TokWhile, TokUntil, TokCase, TokLParen:
		body, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		return &Function{Name: name, Body: body}, nil
	}
	return nil, &ParseError{Msg: fmt.Sprintf("expected function body for `%s'", name)}
}

func (p *parser) parseLoopControl() (Command, error) {
	isBreak := p.next().Type == TokBreak

	levels := 1
	if p.is(TokWord) {
		n, err := strconv.Atoi(strings.TrimSpace(p.peek().Text))
		if err != nil || n < 1 {
			return nil, &ParseError{Msg: fmt.Sprintf("loop count out of range `%s'", p.peek().Text)}
		}
		levels = n
		p.pos++
	}

	if isBreak {
		return &Break{Levels: levels}, nil
	}
	return &Continue{Levels: levels}, nil
}
