package commands

import (
	"io"
	"strings"

	"github.com/sandsh/sandsh/core/vos"
)

var echoEscapes = map[byte]byte{
	'a':  '\a',
	'b':  '\b',
	'e':  0x1b,
	'f':  '\f',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'v':  '\v',
	'\\': '\\',
}

func digitValue(c byte, base int) (int, bool) {
	var v int
	switch {
	case c >= '0' && c <= '9':
		v = int(c - '0')
	case c >= 'a' && c <= 'f':
		v = int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		v = int(c-'A') + 10
	default:
		return 0, false
	}
	return v, v < base
}

// readNumber consumes up to max digits in base from s.
func readNumber(s string, base, max int) (value, n int) {
	for n < max && n < len(s) {
		d, ok := digitValue(s[n], base)
		if !ok {
			break
		}
		value = value*base + d
		n++
	}
	return value, n
}

// unescape interprets the backslash escapes GNU echo -e understands. It
// reports stop when \c was seen; nothing after it is returned.
func unescape(s string) (out string, stop bool) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}

		i++
		c := s[i]
		if b, ok := echoEscapes[c]; ok {
			sb.WriteByte(b)
			continue
		}

		switch c {
		case 'c':
			return sb.String(), true
		case '0':
			v, n := readNumber(s[i+1:], 8, 3)
			sb.WriteByte(byte(v))
			i += n
		case 'x':
			v, n := readNumber(s[i+1:], 16, 2)
			if n == 0 {
				sb.WriteString(`\x`)
				continue
			}
			sb.WriteByte(byte(v))
			i += n
		default:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		}
	}
	return sb.String(), false
}

// echoOptions consumes leading arguments made up only of the letters n, e and
// E. Anything else, including "--", is the first operand.
func echoOptions(args []string) (operands []string, escapes, newline bool) {
	newline = true
	for len(args) > 0 {
		arg := args[0]
		if len(arg) < 2 || arg[0] != '-' || strings.Trim(arg[1:], "neE") != "" {
			break
		}
		for _, c := range arg[1:] {
			switch c {
			case 'n':
				newline = false
			case 'e':
				escapes = true
			case 'E':
				escapes = false
			}
		}
		args = args[1:]
	}
	return args, escapes, newline
}

// Echo implements GNU echo. It doesn't use SimpleCommand: echo has no --help
// and prints unknown options as text.
func Echo(virtOS vos.VOS) int {
	args, escapes, newline := echoOptions(virtOS.Args()[1:])

	w := virtOS.Stdout()
	for i, arg := range args {
		if i > 0 {
			io.WriteString(w, " ")
		}
		if escapes {
			var stop bool
			if arg, stop = unescape(arg); stop {
				io.WriteString(w, arg)
				return 0
			}
		}
		io.WriteString(w, arg)
	}

	if newline {
		io.WriteString(w, "\n")
	}
	return 0
}

var _ vos.ProcessFunc = Echo

func init() {
	mustAddBinCmd("echo", Echo)
}
