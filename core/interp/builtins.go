package interp

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pborman/getopt/v2"
	"github.com/sandsh/sandsh/core/shell"
	"mvdan.cc/sh/v3/syntax"
)

// builtinFunc implements a shell builtin. It returns the exit status.
type builtinFunc func(c *call) int

// call is a single invocation of a builtin.
type call struct {
	r      *runner
	name   string
	args   []string
	stdout strings.Builder
	stderr strings.Builder

	// flow, if set, replaces normal completion, for example with exit.
	flow *ControlFlow
	// err aborts evaluation with a shell error.
	err error
}

func (c *call) errorf(format string, args ...interface{}) int {
	fmt.Fprintf(&c.stderr, "%s: %s: %s\n", ShellName, c.name, fmt.Sprintf(format, args...))
	return 1
}

func (c *call) printf(format string, args ...interface{}) {
	fmt.Fprintf(&c.stdout, format, args...)
}

// parse parses the builtin's flags, leaving the operands in c.args.
func (c *call) parse(set *getopt.Set) bool {
	if err := set.Getopt(append([]string{c.name}, c.args...), nil); err != nil {
		fmt.Fprintf(&c.stderr, "%s: %s: %v\n", ShellName, c.name, err)
		fmt.Fprintf(&c.stderr, "%s: usage: %s\n", c.name, builtinUsage[c.name])
		return false
	}
	c.args = set.Args()
	return true
}

// absorb makes the outcome of a nested evaluation the outcome of the builtin.
func (c *call) absorb(flow ControlFlow, err error) int {
	if err != nil {
		c.err = err
		return 1
	}
	if flow.Kind != FlowNormal {
		c.flow = &flow
		return flow.Result.ExitCode
	}
	c.stdout.WriteString(flow.Result.Stdout)
	c.stderr.WriteString(flow.Result.Stderr)
	return flow.Result.ExitCode
}

var builtins map[string]builtinFunc

var builtinUsage = map[string]string{
	".":         ". filename [arguments]",
	":":         ":",
	"[":         "[ arg... ]",
	"cd":        "cd [dir]",
	"command":   "command [-vV] command [arg ...]",
	"declare":   "declare [-aAfFgiprx] [name[=value] ...]",
	"echo":      "echo [-neE] [arg ...]",
	"eval":      "eval [arg ...]",
	"exec":      "exec [command [arg ...]]",
	"exit":      "exit [n]",
	"export":    "export [-p] [name[=value] ...]",
	"false":     "false",
	"getopts":   "getopts optstring name [arg ...]",
	"help":      "help [pattern ...]",
	"history":   "history [-c] [n]",
	"local":     "local [-aAirx] [name[=value] ...]",
	"mapfile":   "mapfile [-t] [array]",
	"printf":    "printf [-v var] format [arguments]",
	"pwd":       "pwd",
	"read":      "read [-r] [-a array] [-p prompt] [name ...]",
	"readarray": "readarray [-t] [array]",
	"readonly":  "readonly [-p] [name[=value] ...]",
	"return":    "return [n]",
	"set":       "set [-eu] [-o option-name] [--] [arg ...]",
	"shift":     "shift [n]",
	"source":    "source filename [arguments]",
	"test":      "test [expr]",
	"trap":      "trap [-lp] [[arg] signal_spec ...]",
	"true":      "true",
	"type":      "type [-t] name [name ...]",
	"typeset":   "typeset [-aAfFgiprx] [name[=value] ...]",
	"unset":     "unset [-f] [-v] [name ...]",
	"which":     "which name [name ...]",
}

func init() {
	builtins = map[string]builtinFunc{
		".":         biSource,
		":":         biTrue,
		"[":         biTest,
		"cd":        biCd,
		"command":   biCommand,
		"declare":   biDeclare,
		"echo":      biEcho,
		"eval":      biEval,
		"exec":      biExec,
		"exit":      biExit,
		"export":    biExport,
		"false":     biFalse,
		"getopts":   biGetopts,
		"help":      biHelp,
		"history":   biHistory,
		"local":     biLocal,
		"mapfile":   biMapfile,
		"printf":    biPrintf,
		"pwd":       biPwd,
		"read":      biRead,
		"readarray": biMapfile,
		"readonly":  biReadonly,
		"return":    biReturn,
		"set":       biSet,
		"shift":     biShift,
		"source":    biSource,
		"test":      biTest,
		"trap":      biTrap,
		"true":      biTrue,
		"type":      biType,
		"typeset":   biDeclare,
		"unset":     biUnset,
		"which":     biWhich,
	}
}

// Builtins returns the names of the shell builtins in sorted order.
func Builtins() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsBuiltin reports whether name is a shell builtin.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func (r *runner) runBuiltin(fn builtinFunc, argv []string) (ControlFlow, error) {
	c := &call{r: r, name: argv[0], args: argv[1:]}
	code := fn(c)
	if c.err != nil {
		return ControlFlow{}, c.err
	}

	res := RunResult{ExitCode: code, Stdout: c.stdout.String(), Stderr: c.stderr.String()}
	if c.flow != nil {
		return c.flow.after(res), nil
	}
	return Normal(res), nil
}

// quote renders s as a shell word that reads back as s.
func quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return q
}

// dquote renders s in double quotes the way declare -p does.
func dquote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")
	return `"` + r.Replace(s) + `"`
}

func biTrue(c *call) int {
	return 0
}

func biFalse(c *call) int {
	return 1
}

func biPwd(c *call) int {
	c.printf("%s\n", c.r.st.Cwd)
	return 0
}

func biEcho(c *call) int {
	newline, escapes := true, false
	args := c.args

flags:
	for len(args) > 0 && len(args[0]) > 1 && args[0][0] == '-' {
		for _, f := range args[0][1:] {
			if f != 'n' && f != 'e' && f != 'E' {
				break flags
			}
		}
		for _, f := range args[0][1:] {
			switch f {
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

	out := strings.Join(args, " ")
	if escapes {
		var stop bool
		if out, stop = backslashEscapes(out, false); stop {
			c.stdout.WriteString(out)
			return 0
		}
	}
	c.stdout.WriteString(out)
	if newline {
		c.stdout.WriteString("\n")
	}
	return 0
}

// backslashEscapes interprets echo -e style escapes. In printf formats octal
// escapes don't need a leading zero. stop is set when \c ends the output.
func backslashEscapes(s string, format bool) (out string, stop bool) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 >= len(s) {
			sb.WriteByte(ch)
			continue
		}
		i++
		switch s[i] {
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'c':
			return sb.String(), true
		case 'e', 'E':
			sb.WriteByte(0x1b)
		case 'f':
			sb.WriteByte('\f')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'v':
			sb.WriteByte('\v')
		case '\\':
			sb.WriteByte('\\')
		case 'x':
			j := i + 1
			for j < len(s) && j < i+3 && isHex(s[j]) {
				j++
			}
			if j == i+1 {
				sb.WriteString(`\x`)
				continue
			}
			n, _ := strconv.ParseUint(s[i+1:j], 16, 8)
			sb.WriteByte(byte(n))
			i = j - 1
		case '0', '1', '2', '3', '4', '5', '6', '7':
			start := i
			if !format {
				if s[i] != '0' {
					sb.WriteByte('\\')
					sb.WriteByte(s[i])
					continue
				}
				start = i + 1
			}
			j := start
			for j < len(s) && j < start+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			var n uint64
			if j > start {
				n, _ = strconv.ParseUint(s[start:j], 8, 16)
			}
			sb.WriteByte(byte(n))
			i = j - 1
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String(), false
}

func isHex(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F'
}

func biPrintf(c *call) int {
	args := c.args
	target := ""
	if len(args) >= 2 && args[0] == "-v" {
		target, args = args[1], args[2:]
	}
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintf(&c.stderr, "%s: usage: %s\n", c.name, builtinUsage[c.name])
		return 2
	}

	p := &printfState{c: c, args: args[1:]}
	var out strings.Builder
	for {
		before := len(p.args)
		if stop := p.format(&out, args[0]); stop {
			break
		}
		if len(p.args) == 0 || len(p.args) == before {
			break
		}
	}

	code := 0
	if p.failed {
		code = 1
	}
	if target != "" {
		if err := c.r.st.Setenv(target, out.String()); err != nil {
			return c.errorf("%v", err)
		}
		return code
	}
	c.stdout.WriteString(out.String())
	return code
}

type printfState struct {
	c      *call
	args   []string
	failed bool
}

func (p *printfState) next() string {
	if len(p.args) == 0 {
		return ""
	}
	arg := p.args[0]
	p.args = p.args[1:]
	return arg
}

func (p *printfState) nextInt() int64 {
	arg := p.next()
	s := strings.TrimSpace(arg)
	switch {
	case s == "":
		return 0
	case s[0] == '\'' || s[0] == '"':
		r, _ := utf8.DecodeRuneInString(s[1:])
		if r == utf8.RuneError {
			return 0
		}
		return int64(r)
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		p.c.errorf("%s: invalid number", arg)
		p.failed = true
	}
	return n
}

func (p *printfState) nextFloat() float64 {
	arg := p.next()
	s := strings.TrimSpace(arg)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.c.errorf("%s: invalid number", arg)
		p.failed = true
	}
	return f
}

// format writes one pass over the format string. It reports whether output
// must stop, either because of \c or an invalid directive.
func (p *printfState) format(out *strings.Builder, format string) bool {
	for i := 0; i < len(format); i++ {
		ch := format[i]
		switch {
		case ch == '\\':
			j := i + 2
			if j > len(format) {
				j = len(format)
			}
			// Escapes are at most four bytes long.
			for j < len(format) && j < i+5 && format[j] != '\\' && format[j] != '%' {
				j++
			}
			esc, stop := escapePrefix(format[i:j])
			out.WriteString(esc.text)
			if stop {
				return true
			}
			i += esc.width - 1

		case ch == '%' && i+1 < len(format):
			j := i + 1
			for j < len(format) && strings.IndexByte("-+ #0", format[j]) >= 0 {
				j++
			}
			spec := format[i:j]
			for j < len(format) && (format[j] >= '0' && format[j] <= '9' || format[j] == '*') {
				if format[j] == '*' {
					spec += strconv.FormatInt(p.nextInt(), 10)
				} else {
					spec += string(format[j])
				}
				j++
			}
			if j < len(format) && format[j] == '.' {
				spec += "."
				j++
				for j < len(format) && (format[j] >= '0' && format[j] <= '9' || format[j] == '*') {
					if format[j] == '*' {
						spec += strconv.FormatInt(p.nextInt(), 10)
					} else {
						spec += string(format[j])
					}
					j++
				}
			}
			if j >= len(format) {
				out.WriteString(format[i:])
				return false
			}
			if !p.directive(out, spec, format[j]) {
				return true
			}
			i = j

		default:
			out.WriteByte(ch)
		}
	}
	return false
}

type escape struct {
	text  string
	width int
}

// escapePrefix decodes the escape sequence at the start of s.
func escapePrefix(s string) (escape, bool) {
	for n := len(s); n >= 2; n-- {
		text, stop := backslashEscapes(s[:n], true)
		if stop {
			return escape{text: text, width: n}, true
		}
		// A valid escape decodes to a single byte.
		if len(text) == 1 || n == 2 {
			return escape{text: text, width: n}, false
		}
	}
	return escape{text: s, width: len(s)}, false
}

func (p *printfState) directive(out *strings.Builder, spec string, verb byte) bool {
	switch verb {
	case '%':
		out.WriteByte('%')
	case 's':
		fmt.Fprintf(out, spec+"s", p.next())
	case 'b':
		text, stop := backslashEscapes(p.next(), false)
		fmt.Fprintf(out, spec+"s", text)
		if stop {
			return false
		}
	case 'q':
		fmt.Fprintf(out, spec+"s", quote(p.next()))
	case 'c':
		arg := p.next()
		if arg != "" {
			_, size := utf8.DecodeRuneInString(arg)
			arg = arg[:size]
		}
		fmt.Fprintf(out, spec+"s", arg)
	case 'd', 'i':
		fmt.Fprintf(out, spec+"d", p.nextInt())
	case 'u':
		fmt.Fprintf(out, spec+"d", uint64(p.nextInt()))
	case 'x', 'X', 'o':
		fmt.Fprintf(out, spec+string(verb), uint64(p.nextInt()))
	case 'e', 'E', 'f', 'F', 'g', 'G':
		fmt.Fprintf(out, spec+string(verb), p.nextFloat())
	default:
		p.c.errorf("`%c': invalid format character", verb)
		p.failed = true
		return false
	}
	return true
}

func biCd(c *call) int {
	st := c.r.st
	args := c.args
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) > 1 {
		return c.errorf("too many arguments")
	}

	var dir string
	printDir := false
	switch {
	case len(args) == 0:
		dir = st.Getenv("HOME")
		if dir == "" {
			return c.errorf("HOME not set")
		}
	case args[0] == "-":
		old, ok := st.Env["OLDPWD"]
		if !ok {
			return c.errorf("OLDPWD not set")
		}
		dir, printDir = old, true
	default:
		dir = args[0]
	}

	target := c.r.abs(dir)
	info, err := c.r.h.Stat(target)
	switch {
	case err != nil:
		return c.errorf("%s: %s", dir, hostMessage(err))
	case !info.Exists:
		return c.errorf("%s: No such file or directory", dir)
	case !info.IsDir:
		return c.errorf("%s: Not a directory", dir)
	}

	st.Env["OLDPWD"] = st.Cwd
	st.Env["PWD"] = target
	st.Cwd = target
	if printDir {
		c.printf("%s\n", target)
	}
	return 0
}

func biExit(c *call) int {
	code := c.r.st.LastExitCode
	switch len(c.args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(c.args[0])
		if err != nil {
			c.errorf("%s: numeric argument required", c.args[0])
			code = 2
			break
		}
		code = n & 255
	default:
		return c.errorf("too many arguments")
	}
	flow := ExitFlow(code, "", "")
	c.flow = &flow
	return code
}

func biReturn(c *call) int {
	st := c.r.st
	if st.FunctionDepth == 0 && st.sourceDepth == 0 {
		return c.errorf("can only `return' from a function or sourced script")
	}
	code := st.LastExitCode
	if len(c.args) > 0 {
		n, err := strconv.Atoi(c.args[0])
		if err != nil {
			c.errorf("%s: numeric argument required", c.args[0])
			n = 2
		}
		code = n & 255
	}
	flow := ReturnFlow(code)
	c.flow = &flow
	return code
}

func biShift(c *call) int {
	st := c.r.st
	n := 1
	if len(c.args) > 0 {
		var err error
		if n, err = strconv.Atoi(c.args[0]); err != nil {
			return c.errorf("%s: numeric argument required", c.args[0])
		}
	}
	if n < 0 {
		return c.errorf("%d: shift count out of range", n)
	}
	if n > len(st.Positional) {
		return 1
	}
	st.Positional = st.Positional[n:]
	return 0
}

// declArg is a parsed name[=value] argument of a declaration builtin.
type declArg struct {
	name     string
	value    string
	hasValue bool
	appendTo bool
	array    bool
}

func parseDecl(arg string) (declArg, bool) {
	d := declArg{name: arg}
	if i := strings.IndexByte(arg, '='); i >= 0 {
		d.name, d.value, d.hasValue = arg[:i], arg[i+1:], true
		if strings.HasSuffix(d.name, "+") {
			d.name = strings.TrimSuffix(d.name, "+")
			d.appendTo = true
		}
		d.array = strings.HasPrefix(d.value, "(") && strings.HasSuffix(d.value, ")")
	}
	return d, shell.IsName(d.name)
}

// assignDecl stores the value of a declaration argument.
func (c *call) assignDecl(d declArg) error {
	st := c.r.st
	if d.array {
		values, err := c.r.expandFields(shell.ParseWords(d.value[1 : len(d.value)-1]))
		if err != nil {
			c.err = err
			return err
		}
		return c.r.assignList(d.name, values, d.appendTo)
	}
	value := d.value
	if d.appendTo {
		value = st.Getenv(d.name) + value
	}
	return st.Setenv(d.name, value)
}

// declare applies one declaration argument. It reports false after writing
// an error.
func (c *call) declare(arg string, apply func(d declArg) error) bool {
	d, ok := parseDecl(arg)
	if !ok {
		c.errorf("`%s': not a valid identifier", arg)
		return false
	}
	if err := apply(d); err != nil {
		if c.err == nil {
			if aerr, ok := err.(*assignError); ok {
				err = aerr.err
			}
			c.errorf("%v", err)
		}
		return false
	}
	return true
}

func biExport(c *call) int {
	st := c.r.st
	args := c.args
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) == 0 {
		for _, name := range sortedKeys(st.Env) {
			c.printf("declare -x %s=%s\n", name, dquote(st.Env[name]))
		}
		return 0
	}

	code := 0
	for _, arg := range args {
		ok := c.declare(arg, func(d declArg) error {
			if !d.hasValue {
				return nil
			}
			return c.assignDecl(d)
		})
		if !ok {
			code = 1
		}
	}
	return code
}

func biReadonly(c *call) int {
	st := c.r.st
	args := c.args
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) == 0 {
		names := make([]string, 0, len(st.Readonly))
		for name := range st.Readonly {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c.printf("%s\n", c.describe(name))
		}
		return 0
	}

	code := 0
	for _, arg := range args {
		ok := c.declare(arg, func(d declArg) error {
			if d.hasValue {
				if err := c.assignDecl(d); err != nil {
					return err
				}
			}
			st.Readonly[d.name] = true
			return nil
		})
		if !ok {
			code = 1
		}
	}
	return code
}

func biUnset(c *call) int {
	st := c.r.st
	opts := getopt.New()
	funcs := opts.Bool('f', "treat each name as a function")
	vars := opts.Bool('v', "treat each name as a variable")
	if !c.parse(opts) {
		return 2
	}

	code := 0
	for _, name := range c.args {
		if *funcs && !*vars {
			delete(st.Functions, name)
			continue
		}

		if i := strings.IndexByte(name, '['); i > 0 && strings.HasSuffix(name, "]") {
			c.unsetElement(name[:i], name[i+1:len(name)-1])
			continue
		}
		if !shell.IsName(name) {
			code = c.errorf("`%s': not a valid identifier", name)
			continue
		}

		_, isVar := st.Lookup(name)
		_, isFunc := st.Functions[name]
		if !isVar && isFunc && !*vars {
			delete(st.Functions, name)
			continue
		}
		if err := st.Unsetenv(name); err != nil {
			code = c.errorf("%v", err)
		}
	}
	return code
}

// unsetElement removes one element of an array. Indexed arrays are dense,
// so elements other than the last are emptied.
func (c *call) unsetElement(name, key string) {
	st := c.r.st
	if m, ok := st.Assoc[name]; ok {
		delete(m, key)
		return
	}
	arr, ok := st.Arrays[name]
	if !ok {
		return
	}
	i, err := parseIndex(key)
	if err != nil {
		return
	}
	if i < 0 {
		i += len(arr)
	}
	switch {
	case i < 0 || i >= len(arr):
	case i == len(arr)-1:
		st.Arrays[name] = arr[:i]
	default:
		arr[i] = ""
	}
}

var optionNames = []string{"errexit", "nounset", "pipefail"}

func (o *Options) flag(name string) *bool {
	switch name {
	case "errexit", "e":
		return &o.Errexit
	case "nounset", "u":
		return &o.Nounset
	case "pipefail":
		return &o.Pipefail
	}
	return nil
}

// ignoredOptions are accepted by set but have no effect.
var ignoredOptions = map[string]bool{
	"x": true, "v": true, "h": true, "m": true, "B": true, "H": true,
	"xtrace": true, "verbose": true, "hashall": true, "monitor": true,
	"braceexpand": true, "histexpand": true, "interactive-comments": true,
}

func biSet(c *call) int {
	st := c.r.st
	args := c.args
	if len(args) == 0 {
		c.listVariables()
		return 0
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || arg == "-" {
			st.Positional = append([]string(nil), args[i+1:]...)
			return 0
		}
		if len(arg) < 2 || (arg[0] != '-' && arg[0] != '+') {
			st.Positional = append([]string(nil), args[i:]...)
			return 0
		}
		enable := arg[0] == '-'

		if arg[1:] == "o" {
			if i+1 >= len(args) {
				c.listOptions(enable)
				continue
			}
			i++
			name := args[i]
			if ignoredOptions[name] {
				continue
			}
			flag := st.Options.flag(name)
			if flag == nil {
				c.errorf("%s: invalid option name", name)
				return 2
			}
			*flag = enable
			continue
		}

		for _, f := range arg[1:] {
			if ignoredOptions[string(f)] {
				continue
			}
			flag := st.Options.flag(string(f))
			if flag == nil {
				c.errorf("%c%c: invalid option", arg[0], f)
				fmt.Fprintf(&c.stderr, "%s: usage: %s\n", c.name, builtinUsage[c.name])
				return 2
			}
			*flag = enable
		}
	}
	return 0
}

func (c *call) listOptions(long bool) {
	for _, name := range optionNames {
		state := "off"
		if *c.r.st.Options.flag(name) {
			state = "on"
		}
		if long {
			c.printf("%-15s\t%s\n", name, state)
			continue
		}
		sign := "+"
		if state == "on" {
			sign = "-"
		}
		c.printf("set %co %s\n", sign[0], name)
	}
}

// listVariables prints every variable in a form that can be read back.
func (c *call) listVariables() {
	st := c.r.st
	seen := make(map[string]bool)
	var names []string
	for name := range st.Env {
		names = append(names, name)
		seen[name] = true
	}
	for name := range st.Arrays {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if arr, ok := st.Arrays[name]; ok {
			quoted := make([]string, len(arr))
			for i, v := range arr {
				quoted[i] = quote(v)
			}
			c.printf("%s=(%s)\n", name, strings.Join(quoted, " "))
			continue
		}
		c.printf("%s=%s\n", name, quote(st.Env[name]))
	}
}

// describe renders a variable the way declare -p does.
func (c *call) describe(name string) string {
	st := c.r.st
	ro := ""
	if st.Readonly[name] {
		ro = "r"
	}

	if arr, ok := st.Arrays[name]; ok {
		elems := make([]string, len(arr))
		for i, v := range arr {
			elems[i] = fmt.Sprintf("[%d]=%s", i, dquote(v))
		}
		return fmt.Sprintf("declare -a%s %s=(%s)", ro, name, strings.Join(elems, " "))
	}
	if m, ok := st.Assoc[name]; ok {
		var elems []string
		for _, k := range sortedKeys(m) {
			elems = append(elems, fmt.Sprintf("[%s]=%s", k, dquote(m[k])))
		}
		return fmt.Sprintf("declare -A%s %s=(%s)", ro, name, strings.Join(elems, " "))
	}

	flags := "--"
	if ro != "" {
		flags = "-" + ro
	}
	v, ok := st.Env[name]
	if !ok {
		return fmt.Sprintf("declare %s %s", flags, name)
	}
	return fmt.Sprintf("declare %s %s=%s", flags, name, dquote(v))
}

func biLocal(c *call) int {
	if len(c.r.st.Locals) == 0 {
		return c.errorf("can only be used in a function")
	}

	opts := getopt.New()
	indexed := opts.Bool('a', "indexed array")
	assoc := opts.Bool('A', "associative array")
	readonly := opts.Bool('r', "readonly")
	opts.Bool('i', "integer attribute")
	opts.Bool('x', "export")
	if !c.parse(opts) {
		return 2
	}
	return c.declareVars(true, *indexed, *assoc, *readonly)
}

func biDeclare(c *call) int {
	st := c.r.st
	opts := getopt.New()
	indexed := opts.Bool('a', "indexed array")
	assoc := opts.Bool('A', "associative array")
	funcs := opts.Bool('f', "functions")
	funcNames := opts.Bool('F', "function names")
	global := opts.Bool('g', "global scope")
	opts.Bool('i', "integer attribute")
	printDecl := opts.Bool('p', "print declarations")
	readonly := opts.Bool('r', "readonly")
	opts.Bool('x', "export")
	if !c.parse(opts) {
		return 2
	}

	if *funcs || *funcNames {
		return c.declareFunctions(*funcNames)
	}

	if *printDecl || len(c.args) == 0 {
		names := c.args
		if len(names) == 0 {
			names = c.variableNames()
		}
		code := 0
		for _, name := range names {
			if _, ok := st.Lookup(name); !ok {
				code = c.errorf("%s: not found", name)
				continue
			}
			c.printf("%s\n", c.describe(name))
		}
		return code
	}

	return c.declareVars(len(st.Locals) > 0 && !*global, *indexed, *assoc, *readonly)
}

// declareVars applies the declaration arguments in c.args. The first local
// declaration of a name in a function saves the caller's binding and starts
// from unset unless it appends.
func (c *call) declareVars(local, indexed, assoc, readonly bool) int {
	st := c.r.st
	code := 0
	for _, arg := range c.args {
		ok := c.declare(arg, func(d declArg) error {
			if st.Readonly[d.name] && (d.hasValue || local) {
				return fmt.Errorf("%s: readonly variable", d.name)
			}
			if local && st.declareLocal(d.name) && !d.appendTo {
				st.dropVar(d.name)
			}
			switch {
			case assoc:
				if _, ok := st.Assoc[d.name]; !ok {
					st.dropVar(d.name)
					st.Assoc[d.name] = make(map[string]string)
				}
			case indexed:
				if _, ok := st.Arrays[d.name]; !ok {
					var arr []string
					if v, ok := st.Env[d.name]; ok {
						arr = []string{v}
					}
					if err := st.SetArray(d.name, arr); err != nil {
						return err
					}
				}
			}

			if d.hasValue {
				if err := c.assignDecl(d); err != nil {
					return err
				}
			}
			if readonly {
				st.Readonly[d.name] = true
			}
			return nil
		})
		if !ok {
			code = 1
		}
	}
	return code
}

func (c *call) variableNames() []string {
	st := c.r.st
	set := make(map[string]bool)
	for name := range st.Env {
		set[name] = true
	}
	for name := range st.Arrays {
		set[name] = true
	}
	for name := range st.Assoc {
		set[name] = true
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *call) declareFunctions(namesOnly bool) int {
	st := c.r.st
	names := c.args
	if len(names) == 0 {
		for name := range st.Functions {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	code := 0
	for _, name := range names {
		body, ok := st.Functions[name]
		if !ok {
			code = 1
			continue
		}
		if namesOnly {
			c.printf("declare -f %s\n", name)
			continue
		}
		src, err := shell.Marshal(body)
		if err != nil {
			code = c.errorf("%s: %v", name, err)
			continue
		}
		c.printf("%s () %s\n", name, src)
	}
	return code
}

func biRead(c *call) int {
	opts := getopt.New()
	raw := opts.Bool('r', "do not allow backslashes to escape characters")
	arrayName := opts.String('a', "", "assign the words to the indices of an array")
	opts.String('p', "", "prompt")
	opts.Bool('s', "silent")
	if !c.parse(opts) {
		return 2
	}

	line, err := c.r.stdin.readLine()
	eof := err == io.EOF
	if !*raw {
		for strings.HasSuffix(line, `\`) && !strings.HasSuffix(line, `\\`) && !eof {
			var more string
			more, err = c.r.stdin.readLine()
			eof = err == io.EOF
			line = line[:len(line)-1] + more
		}
		line = unescapeRead(line)
	}

	st := c.r.st
	if eof && line == "" {
		switch {
		case *arrayName != "":
			st.SetArray(*arrayName, nil)
		case len(c.args) == 0:
			st.Setenv("REPLY", "")
		default:
			for _, name := range c.args {
				st.Setenv(name, "")
			}
		}
		return 1
	}

	ifs := c.r.ifs()
	switch {
	case *arrayName != "":
		if err := st.SetArray(*arrayName, splitRead(line, ifs, -1)); err != nil {
			return c.errorf("%v", err)
		}
	case len(c.args) == 0:
		if err := st.Setenv("REPLY", line); err != nil {
			return c.errorf("%v", err)
		}
	default:
		fields := splitRead(line, ifs, len(c.args))
		for i, name := range c.args {
			if !shell.IsName(name) {
				return c.errorf("`%s': not a valid identifier", name)
			}
			v := ""
			if i < len(fields) {
				v = fields[i]
			}
			if err := st.Setenv(name, v); err != nil {
				return c.errorf("%v", err)
			}
		}
	}

	if eof {
		return 1
	}
	return 0
}

func unescapeRead(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// splitRead splits a line into at most n fields, the last field gets the
// rest of the line. A negative n splits every field.
func splitRead(line, ifs string, n int) []string {
	if ifs == "" {
		return []string{line}
	}
	isSep := func(r rune) bool { return strings.ContainsRune(ifs, r) }
	isSpace := func(r rune) bool { return isSep(r) && unicode.IsSpace(r) }

	s := strings.TrimLeftFunc(line, isSpace)
	var out []string
	for (n < 0 || len(out) < n-1) && s != "" {
		i := strings.IndexFunc(s, isSep)
		if i < 0 {
			out = append(out, s)
			s = ""
			break
		}
		out = append(out, s[:i])
		rest := strings.TrimLeftFunc(s[i:], isSpace)
		if r, size := utf8.DecodeRuneInString(rest); rest != "" && isSep(r) && !isSpace(r) {
			rest = strings.TrimLeftFunc(rest[size:], isSpace)
		}
		s = rest
	}
	if n >= 0 && len(out) < n && s != "" {
		out = append(out, strings.TrimRightFunc(s, isSpace))
	}
	return out
}

func biMapfile(c *call) int {
	opts := getopt.New()
	trim := opts.Bool('t', "remove a trailing newline from each line")
	if !c.parse(opts) {
		return 2
	}
	name := "MAPFILE"
	if len(c.args) > 0 {
		name = c.args[0]
	}

	var lines []string
	for _, line := range strings.SplitAfter(c.r.stdin.rest(), "\n") {
		if line == "" {
			continue
		}
		if *trim {
			line = strings.TrimSuffix(line, "\n")
		}
		lines = append(lines, line)
	}
	if err := c.r.st.SetArray(name, lines); err != nil {
		return c.errorf("%v", err)
	}
	return 0
}

// keywords are reported by type.
var keywords = map[string]bool{
	"if": true, "then": true, "else": true, "elif": true, "fi": true,
	"for": true, "in": true, "do": true, "done": true, "while": true,
	"until": true, "case": true, "esac": true, "function": true,
	"break": true, "continue": true, "{": true, "}": true, "!": true,
}

// lookPath finds a program in PATH. Tools the host provides without a file
// are reported by name.
func (r *runner) lookPath(name string) (string, bool) {
	if strings.Contains(name, "/") {
		info, err := r.h.Stat(r.abs(name))
		return name, err == nil && info.Exists && info.IsFile
	}
	for _, dir := range strings.Split(r.st.Getenv("PATH"), ":") {
		if dir == "" {
			continue
		}
		p := strings.TrimSuffix(dir, "/") + "/" + name
		if info, err := r.h.Stat(p); err == nil && info.Exists && info.IsFile {
			return p, true
		}
	}
	if r.h.HasTool(name) {
		return name, true
	}
	return "", false
}

func biType(c *call) int {
	opts := getopt.New()
	terse := opts.Bool('t', "print a single word describing the type")
	if !c.parse(opts) {
		return 2
	}

	code := 0
	for _, name := range c.args {
		kind, detail := c.r.commandKind(name)
		switch {
		case kind == "":
			if !*terse {
				c.errorf("%s: not found", name)
			}
			code = 1
		case *terse:
			c.printf("%s\n", kind)
		case kind == "function":
			c.printf("%s is a function\n", name)
		case kind == "builtin":
			c.printf("%s is a shell builtin\n", name)
		case kind == "keyword":
			c.printf("%s is a shell keyword\n", name)
		default:
			c.printf("%s is %s\n", name, detail)
		}
	}
	return code
}

// commandKind classifies how name would run.
func (r *runner) commandKind(name string) (kind, detail string) {
	if keywords[name] {
		return "keyword", name
	}
	if _, ok := r.st.Functions[name]; ok {
		return "function", name
	}
	if IsBuiltin(name) {
		return "builtin", name
	}
	if p, ok := r.lookPath(name); ok {
		return "file", p
	}
	return "", ""
}

func biCommand(c *call) int {
	opts := getopt.New()
	short := opts.Bool('v', "print a description of each command")
	verbose := opts.Bool('V', "print a verbose description of each command")
	if !c.parse(opts) {
		return 2
	}
	if len(c.args) == 0 {
		return 0
	}

	if *short || *verbose {
		code := 0
		for _, name := range c.args {
			kind, detail := c.r.commandKind(name)
			switch {
			case kind == "":
				if *verbose {
					c.errorf("%s: not found", name)
				}
				code = 1
			case *verbose:
				c.printf("%s is %s\n", name, map[string]string{
					"keyword":  "a shell keyword",
					"function": "a function",
					"builtin":  "a shell builtin",
				}[kind]+detailIfFile(kind, detail))
			default:
				c.printf("%s\n", detail)
			}
		}
		return code
	}

	// Run the command, skipping functions.
	var flow ControlFlow
	if fn, ok := builtins[c.args[0]]; ok {
		var err error
		flow, err = c.r.runBuiltin(fn, c.args)
		return c.absorb(flow, err)
	}
	return c.absorb(c.r.spawn(c.args), nil)
}

// biExec runs a builtin or program in place of the shell. Its status ends
// the evaluation.
func biExec(c *call) int {
	if len(c.args) > 0 && c.args[0] == "--" {
		c.args = c.args[1:]
	}
	if len(c.args) == 0 {
		return 0
	}

	var flow ControlFlow
	if fn, ok := builtins[c.args[0]]; ok {
		var err error
		if flow, err = c.r.runBuiltin(fn, c.args); err != nil {
			c.err = err
			return 1
		}
	} else {
		flow = c.r.spawn(c.args)
	}

	if flow.Kind != FlowCancelled {
		flow = ExitFlow(flow.ExitCode(), flow.Result.Stdout, flow.Result.Stderr)
	}
	c.flow = &flow
	return flow.ExitCode()
}

// biGetopts parses the next option from the positional parameters, or from
// the given arguments, the way POSIX getopts does. OPTIND holds the index of
// the next argument to look at.
func biGetopts(c *call) int {
	if len(c.args) < 2 {
		c.errorf("usage: %s", builtinUsage[c.name])
		return 2
	}
	st := c.r.st
	spec, name := c.args[0], c.args[1]
	args := c.args[2:]
	if len(c.args) == 2 {
		args = st.Positional
	}
	silent := strings.HasPrefix(spec, ":")
	if silent {
		spec = spec[1:]
	}

	ind, err := strconv.Atoi(st.Getenv("OPTIND"))
	if err != nil || ind < 1 {
		ind = 1
	}
	if ind != st.optInd || ind > len(args) || st.optPos >= len(args[ind-1]) {
		st.optPos = 0
	}

	opt, optarg, code := "?", "", 0
	setOptarg := false

	switch {
	case ind > len(args), st.optPos == 0 && !isOptionArg(args[ind-1]):
		code = 1
	case st.optPos == 0 && args[ind-1] == "--":
		ind++
		code = 1
	default:
		if st.optPos == 0 {
			st.optPos = 1
		}
		arg := args[ind-1]
		letter := arg[st.optPos]
		st.optPos++
		if st.optPos >= len(arg) {
			ind++
			st.optPos = 0
		}

		i := strings.IndexByte(spec, letter)
		switch {
		case letter == ':' || i < 0:
			if silent {
				optarg, setOptarg = string(letter), true
			} else {
				fmt.Fprintf(&c.stderr, "%s: illegal option -- %c\n", ShellName, letter)
			}
		case i+1 == len(spec) || spec[i+1] != ':':
			opt = string(letter)
		case st.optPos > 0:
			opt, optarg, setOptarg = string(letter), arg[st.optPos:], true
			ind++
			st.optPos = 0
		case ind <= len(args):
			opt, optarg, setOptarg = string(letter), args[ind-1], true
			ind++
		case silent:
			opt, optarg, setOptarg = ":", string(letter), true
		default:
			fmt.Fprintf(&c.stderr, "%s: option requires an argument -- %c\n", ShellName, letter)
		}
	}

	st.optInd = ind
	st.Env["OPTIND"] = strconv.Itoa(ind)
	if setOptarg {
		st.Env["OPTARG"] = optarg
	} else {
		delete(st.Env, "OPTARG")
	}
	if err := st.Setenv(name, opt); err != nil {
		c.errorf("%v", err)
		return 2
	}
	return code
}

func isOptionArg(arg string) bool {
	return len(arg) > 1 && arg[0] == '-'
}

func detailIfFile(kind, detail string) string {
	if kind == "file" {
		return detail
	}
	return ""
}

func biWhich(c *call) int {
	code := 0
	for _, name := range c.args {
		p, ok := c.r.lookPath(name)
		if !ok {
			code = 1
			continue
		}
		c.printf("%s\n", p)
	}
	return code
}

func biEval(c *call) int {
	src := strings.Join(c.args, " ")
	node, err := shell.Parse(src)
	if err != nil {
		c.errorf("%v", err)
		return 2
	}
	return c.absorb(c.r.exec(node))
}

func biSource(c *call) int {
	if len(c.args) == 0 {
		c.errorf("filename argument required")
		fmt.Fprintf(&c.stderr, "%s: usage: %s\n", c.name, builtinUsage[c.name])
		return 2
	}
	r := c.r
	st := r.st
	name := c.args[0]

	p := r.abs(name)
	if !strings.Contains(name, "/") {
		if found, ok := r.lookPath(name); ok && strings.HasPrefix(found, "/") {
			p = found
		}
	}
	src, err := r.h.ReadFile(p)
	if err != nil {
		return c.errorf("%s: %s", name, hostMessage(err))
	}
	node, err := shell.Parse(src)
	if err != nil {
		c.errorf("%s: %v", name, err)
		return 2
	}

	if len(c.args) > 1 {
		saved := st.Positional
		st.Positional = append([]string(nil), c.args[1:]...)
		defer func() { st.Positional = saved }()
	}
	st.sourceDepth++
	defer func() { st.sourceDepth-- }()

	flow, err := r.exec(node)
	if err == nil && flow.Kind == FlowReturn {
		flow.Kind = FlowNormal
		flow.Result.ExitCode = flow.Code
	}
	return c.absorb(flow, err)
}

func biHistory(c *call) int {
	st := c.r.st
	opts := getopt.New()
	clear := opts.Bool('c', "clear the history list")
	if !c.parse(opts) {
		return 2
	}
	if *clear {
		st.History = nil
		return 0
	}

	start := 0
	if len(c.args) > 0 {
		n, err := strconv.Atoi(c.args[0])
		if err != nil || n < 0 {
			return c.errorf("%s: numeric argument required", c.args[0])
		}
		if n < len(st.History) {
			start = len(st.History) - n
		}
	}
	for i := start; i < len(st.History); i++ {
		c.printf("%5d  %s\n", i+1, st.History[i])
	}
	return 0
}

var signalNumbers = map[string]string{
	"0": "EXIT", "1": "HUP", "2": "INT", "3": "QUIT", "6": "ABRT", "9": "KILL",
	"10": "USR1", "12": "USR2", "13": "PIPE", "14": "ALRM", "15": "TERM",
}

var signalNames = map[string]bool{
	"EXIT": true, "HUP": true, "INT": true, "QUIT": true, "ABRT": true,
	"KILL": true, "USR1": true, "USR2": true, "PIPE": true, "ALRM": true,
	"TERM": true, "CHLD": true, "ERR": true, "DEBUG": true, "RETURN": true,
}

// signalName normalizes a trap signal specification.
func signalName(spec string) (string, bool) {
	if name, ok := signalNumbers[spec]; ok {
		return name, true
	}
	name := strings.TrimPrefix(strings.ToUpper(spec), "SIG")
	return name, signalNames[name]
}

func biTrap(c *call) int {
	st := c.r.st
	args := c.args
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}

	if len(args) == 0 || args[0] == "-p" {
		for _, sig := range sortedKeys(st.Traps) {
			c.printf("trap -- %s %s\n", quote(st.Traps[sig]), sig)
		}
		return 0
	}
	if args[0] == "-l" {
		names := make([]string, 0, len(signalNames))
		for name := range signalNames {
			names = append(names, name)
		}
		sort.Strings(names)
		c.printf("%s\n", strings.Join(names, " "))
		return 0
	}

	action, specs := args[0], args[1:]
	if len(specs) == 0 {
		// "trap SIG" resets the signal.
		action, specs = "-", args
	}

	code := 0
	for _, spec := range specs {
		sig, ok := signalName(spec)
		if !ok {
			code = c.errorf("%s: invalid signal specification", spec)
			continue
		}
		if action == "-" {
			delete(st.Traps, sig)
			continue
		}
		st.Traps[sig] = action
	}
	return code
}

func biHelp(c *call) int {
	names := Builtins()
	if len(c.args) > 0 {
		code := 1
		for _, pat := range c.args {
			for _, name := range names {
				if matchPattern(pat, name) {
					c.printf("%s: %s\n", name, builtinUsage[name])
					code = 0
				}
			}
		}
		if code != 0 {
			c.errorf("no help topics match `%s'", strings.Join(c.args, " "))
		}
		return code
	}

	c.printf("%s, a sandboxed POSIX-like shell\n", ShellName)
	c.printf("These shell commands are defined internally.\n\n")
	for _, name := range names {
		c.printf(" %s\n", builtinUsage[name])
	}
	return 0
}
