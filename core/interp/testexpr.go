package interp

import (
	"errors"
	"strconv"
	"strings"

	"github.com/sandsh/sandsh/core/host"
)

var errTestSyntax = errors.New("syntax error")

// testParser evaluates the arguments of test and [ by recursive descent:
//
//	expr    = and { "-o" and }
//	and     = not { "-a" not }
//	not     = "!" not | primary
//	primary = "(" expr ")" | unary arg | arg binary arg | arg
type testParser struct {
	c    *call
	args []string
	pos  int
}

func biTest(c *call) int {
	args := c.args
	if c.name == "[" {
		if len(args) == 0 || args[len(args)-1] != "]" {
			c.errorf("missing `]'")
			return 2
		}
		args = args[:len(args)-1]
	}
	if len(args) == 0 {
		return 1
	}

	p := &testParser{c: c, args: args}
	ok, err := p.expr()
	if err == nil && p.pos < len(p.args) {
		err = &testError{arg: p.args[p.pos], msg: "unexpected argument"}
	}
	if err != nil {
		var terr *testError
		if errors.As(err, &terr) {
			c.errorf("%s: %s", terr.arg, terr.msg)
		} else {
			c.errorf("%v", err)
		}
		return 2
	}
	if ok {
		return 0
	}
	return 1
}

type testError struct {
	arg string
	msg string
}

func (e *testError) Error() string {
	return e.arg + ": " + e.msg
}

func (p *testParser) peek() (string, bool) {
	if p.pos >= len(p.args) {
		return "", false
	}
	return p.args[p.pos], true
}

func (p *testParser) next() (string, error) {
	if p.pos >= len(p.args) {
		return "", errTestSyntax
	}
	arg := p.args[p.pos]
	p.pos++
	return arg, nil
}

func (p *testParser) remaining() int {
	return len(p.args) - p.pos
}

func (p *testParser) expr() (bool, error) {
	left, err := p.and()
	if err != nil {
		return false, err
	}
	for {
		if arg, ok := p.peek(); !ok || arg != "-o" {
			return left, nil
		}
		p.pos++
		right, err := p.and()
		if err != nil {
			return false, err
		}
		left = left || right
	}
}

func (p *testParser) and() (bool, error) {
	left, err := p.not()
	if err != nil {
		return false, err
	}
	for {
		if arg, ok := p.peek(); !ok || arg != "-a" {
			return left, nil
		}
		p.pos++
		right, err := p.not()
		if err != nil {
			return false, err
		}
		left = left && right
	}
}

func (p *testParser) not() (bool, error) {
	if arg, ok := p.peek(); ok && arg == "!" && p.remaining() > 1 {
		p.pos++
		v, err := p.not()
		return !v, err
	}
	return p.primary()
}

func (p *testParser) primary() (bool, error) {
	arg, err := p.next()
	if err != nil {
		return false, err
	}

	// A binary operator takes precedence over the other readings.
	if p.remaining() >= 2 && isBinaryTest(p.args[p.pos]) {
		op := p.args[p.pos]
		right := p.args[p.pos+1]
		p.pos += 2
		return p.binary(arg, op, right)
	}

	if arg == "(" {
		v, err := p.expr()
		if err != nil {
			return false, err
		}
		if closing, err := p.next(); err != nil || closing != ")" {
			return false, &testError{arg: "(", msg: "missing `)'"}
		}
		return v, nil
	}

	if isUnaryTest(arg) && p.remaining() > 0 {
		operand, _ := p.next()
		return p.unary(arg, operand)
	}
	return arg != "", nil
}

func isUnaryTest(op string) bool {
	switch op {
	case "-e", "-f", "-d", "-s", "-r", "-w", "-x", "-h", "-L", "-n", "-z", "-v", "-a":
		return true
	}
	return false
}

func isBinaryTest(op string) bool {
	switch op {
	case "=", "==", "!=", "<", ">", "-eq", "-ne", "-lt", "-le", "-gt", "-ge", "-nt", "-ot", "-ef":
		return true
	}
	return false
}

func (p *testParser) stat(name string) host.StatInfo {
	r := p.c.r
	info, err := r.h.Stat(r.abs(name))
	if err != nil {
		return host.StatInfo{}
	}
	return info
}

func (p *testParser) unary(op, operand string) (bool, error) {
	switch op {
	case "-n":
		return operand != "", nil
	case "-z":
		return operand == "", nil
	case "-v":
		_, ok := p.c.r.st.Lookup(operand)
		return ok, nil
	case "-e", "-a":
		return p.stat(operand).Exists, nil
	case "-f":
		return p.stat(operand).IsFile, nil
	case "-d":
		return p.stat(operand).IsDir, nil
	case "-s":
		info := p.stat(operand)
		return info.Exists && info.Size > 0, nil
	case "-h", "-L":
		return p.stat(operand).IsSymlink, nil
	case "-r":
		info := p.stat(operand)
		return info.Exists && info.Mode&0o444 != 0, nil
	case "-w":
		info := p.stat(operand)
		return info.Exists && info.Mode&0o222 != 0, nil
	case "-x":
		info := p.stat(operand)
		return info.Exists && info.Mode&0o111 != 0, nil
	}
	return false, &testError{arg: op, msg: "unary operator expected"}
}

func (p *testParser) binary(left, op, right string) (bool, error) {
	switch op {
	case "=", "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case "<":
		return left < right, nil
	case ">":
		return left > right, nil
	case "-nt", "-ot":
		l, r := p.stat(left), p.stat(right)
		if op == "-nt" {
			return l.Exists && (!r.Exists || l.MtimeMs > r.MtimeMs), nil
		}
		return r.Exists && (!l.Exists || l.MtimeMs < r.MtimeMs), nil
	case "-ef":
		return p.c.r.abs(left) == p.c.r.abs(right) && p.stat(left).Exists, nil
	}

	a, err := testInt(left)
	if err != nil {
		return false, err
	}
	b, err := testInt(right)
	if err != nil {
		return false, err
	}
	switch op {
	case "-eq":
		return a == b, nil
	case "-ne":
		return a != b, nil
	case "-lt":
		return a < b, nil
	case "-le":
		return a <= b, nil
	case "-gt":
		return a > b, nil
	case "-ge":
		return a >= b, nil
	}
	return false, &testError{arg: op, msg: "binary operator expected"}
}

func testInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, &testError{arg: s, msg: "integer expression expected"}
	}
	return n, nil
}
