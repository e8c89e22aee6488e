package interp

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sandsh/sandsh/core/shell"
	"mvdan.cc/sh/v3/pattern"
)

const (
	defaultIFS = " \t\n"

	// maxBraceWords bounds the number of words a single brace expression may
	// produce.
	maxBraceWords = 10000
)

// field is a word being assembled during expansion. pat mirrors text with
// the characters that came from quotes escaped, so it can be used as a glob.
type field struct {
	text string
	pat  string
	glob bool
	// keep is set once a quoted part was added, a quoted empty string is
	// still a field.
	keep bool
}

type fieldBuilder struct {
	ifs    string
	fields []field
	cur    field
}

// literal adds text that is never split.
func (b *fieldBuilder) literal(s string, quoted bool) {
	b.cur.text += s
	if quoted {
		b.cur.pat += escapeGlob(s)
		b.cur.keep = true
		return
	}
	b.cur.pat += s
	if strings.ContainsAny(s, "*?[") {
		b.cur.glob = true
	}
}

// expansion adds the result of an unquoted expansion, splitting it into
// fields on IFS.
func (b *fieldBuilder) expansion(s string) {
	if b.ifs == "" {
		b.literal(s, false)
		return
	}

	pieces, lead, trail := splitIFS(s, b.ifs)
	if lead {
		b.split()
	}
	for i, p := range pieces {
		if i > 0 {
			b.split()
		}
		b.literal(p, false)
	}
	if trail && len(pieces) > 0 {
		b.split()
	}
}

func (b *fieldBuilder) split() {
	if b.cur.text != "" || b.cur.keep {
		b.fields = append(b.fields, b.cur)
	}
	b.cur = field{}
}

func (b *fieldBuilder) finish() []field {
	b.split()
	return b.fields
}

// splitIFS splits s on the characters of ifs. Runs of IFS whitespace count as
// one separator and are trimmed from both ends. lead and trail report
// whether s started or ended with a separator.
func splitIFS(s, ifs string) (pieces []string, lead, trail bool) {
	isSep := func(r rune) bool { return strings.ContainsRune(ifs, r) }
	isSpace := func(r rune) bool { return isSep(r) && unicode.IsSpace(r) }

	if s == "" {
		return nil, false, false
	}
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	lead, trail = isSep(first), isSep(last)

	s = strings.TrimFunc(s, isSpace)
	if s == "" {
		return nil, lead, trail
	}

	var cur strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !isSep(r) {
			cur.WriteRune(r)
			continue
		}
		pieces = append(pieces, cur.String())
		cur.Reset()

		// Swallow surrounding whitespace and at most one non-space separator.
		sawHard := !unicode.IsSpace(r)
		for i+1 < len(runes) && isSep(runes[i+1]) {
			next := runes[i+1]
			if !unicode.IsSpace(next) {
				if sawHard {
					break
				}
				sawHard = true
			}
			i++
		}
	}
	pieces = append(pieces, cur.String())
	return pieces, lead, trail
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var sb strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]\`, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (r *runner) ifs() string {
	if v, ok := r.st.Env["IFS"]; ok {
		return v
	}
	return defaultIFS
}

// expandFields performs brace, tilde, parameter and command expansion
// followed by field splitting and pathname expansion.
func (r *runner) expandFields(words []shell.Word) ([]string, error) {
	var out []string
	for _, w := range words {
		for _, bw := range expandBraces(w) {
			fields, err := r.wordFields(bw)
			if err != nil {
				return nil, err
			}
			for _, f := range fields {
				if f.glob {
					if matches := r.glob(f.pat); len(matches) > 0 {
						out = append(out, matches...)
						continue
					}
				}
				out = append(out, f.text)
			}
		}
	}
	return out, nil
}

func (r *runner) wordFields(w shell.Word) ([]field, error) {
	b := &fieldBuilder{ifs: r.ifs()}

	for i, part := range w.Parts {
		switch part.Kind {
		case shell.Literal:
			text := part.Value
			if i == 0 && !part.Quoted {
				if home, rest, ok := r.tilde(text); ok {
					b.literal(home, true)
					text = rest
				}
			}
			b.literal(text, part.Quoted)

		case shell.Variable:
			val, err := r.param(part.Value)
			if err != nil {
				return nil, err
			}
			switch {
			case part.Quoted && val.multi:
				for j, v := range val.values {
					if j > 0 {
						b.split()
					}
					b.literal(v, true)
				}
			case part.Quoted:
				b.literal(val.join(r.ifs()), true)
			default:
				b.expansion(val.join(" "))
			}

		case shell.CommandSub:
			out, err := r.commandSubst(part.Value)
			if err != nil {
				return nil, err
			}
			if part.Quoted {
				b.literal(out, true)
			} else {
				b.expansion(out)
			}
		}
	}
	return b.finish(), nil
}

// expandString expands a word to a single string without field splitting or
// pathname expansion, as for assignment values and redirection targets.
func (r *runner) expandString(w shell.Word) (string, error) {
	var sb strings.Builder
	for i, part := range w.Parts {
		switch part.Kind {
		case shell.Literal:
			text := part.Value
			if i == 0 && !part.Quoted {
				if home, rest, ok := r.tilde(text); ok {
					text = home + rest
				}
			}
			sb.WriteString(text)
		case shell.Variable:
			val, err := r.param(part.Value)
			if err != nil {
				return "", err
			}
			sb.WriteString(val.join(" "))
		case shell.CommandSub:
			out, err := r.commandSubst(part.Value)
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
		}
	}
	return sb.String(), nil
}

// expandRaw expands unparsed source text such as an assignment value.
func (r *runner) expandRaw(raw string) (string, error) {
	if !strings.ContainsAny(raw, "$`'\"\\~") {
		return raw, nil
	}
	return r.expandString(shell.ParseWord(raw))
}

// expandPattern expands a word into a glob pattern in which the quoted parts
// match literally.
func (r *runner) expandPattern(w shell.Word) (string, error) {
	var sb strings.Builder
	for _, part := range w.Parts {
		var text string
		switch part.Kind {
		case shell.Literal:
			text = part.Value
		case shell.Variable:
			val, err := r.param(part.Value)
			if err != nil {
				return "", err
			}
			text = val.join(" ")
		case shell.CommandSub:
			out, err := r.commandSubst(part.Value)
			if err != nil {
				return "", err
			}
			text = out
		}
		if part.Quoted {
			text = escapeGlob(text)
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// tilde expands a leading "~", "~/", "~+" or "~-".
func (r *runner) tilde(text string) (prefix, rest string, ok bool) {
	if !strings.HasPrefix(text, "~") {
		return "", text, false
	}
	head, tail := text, ""
	if i := strings.IndexByte(text, '/'); i >= 0 {
		head, tail = text[:i], text[i:]
	}
	switch head {
	case "~":
		return r.st.Getenv("HOME"), tail, true
	case "~+":
		return r.st.Cwd, tail, true
	case "~-":
		if old, ok := r.st.Env["OLDPWD"]; ok {
			return old, tail, true
		}
	}
	return "", text, false
}

// glob expands a pattern against the host filesystem. Relative patterns are
// matched in the working directory and returned relative to it.
func (r *runner) glob(pat string) []string {
	abs := pat
	relative := !strings.HasPrefix(pat, "/")
	prefix := ""
	if relative {
		prefix = strings.TrimSuffix(escapeGlob(r.st.Cwd), "/") + "/"
		abs = prefix + pat
	}

	matches, err := r.h.Glob(abs)
	if err != nil || len(matches) == 0 {
		return nil
	}

	hideDots := !strings.HasPrefix(pat[strings.LastIndex(pat, "/")+1:], ".")
	cwd := strings.TrimSuffix(r.st.Cwd, "/") + "/"
	var out []string
	for _, m := range matches {
		base := m[strings.LastIndex(m, "/")+1:]
		if hideDots && strings.HasPrefix(base, ".") {
			continue
		}
		if relative {
			m = strings.TrimPrefix(m, cwd)
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// commandSubst runs body in a copy of the state and returns its output with
// trailing newlines removed.
// cancelError unwinds the expansion of a command whose substitution was
// cancelled. exec turns it back into a FlowCancelled result.
type cancelError struct {
	reason CancelReason
}

func (e *cancelError) Error() string {
	return e.reason.String()
}

func (r *runner) commandSubst(body string) (string, error) {
	if strings.HasPrefix(body, "(") && strings.HasSuffix(body, ")") {
		r.paramError("$("+body+")", "arithmetic expansion not supported")
		return "", nil
	}

	st := r.st
	if st.SubstitutionDepth >= MaxSubstitutionDepth {
		return "", ErrSubstitutionTooDeep
	}
	st.SubstitutionDepth++
	defer func() { st.SubstitutionDepth-- }()

	cmd, err := shell.Parse(body)
	if err != nil {
		r.diagf("%v", err)
		r.noteSubst(2)
		return "", nil
	}

	sub := &runner{st: st.Clone(), h: r.h, stdin: newInput(""), diag: r.diag}
	flow, err := sub.exec(cmd)
	if err != nil {
		return "", err
	}
	if flow.Kind == FlowCancelled {
		r.diag.WriteString(flow.Result.Stderr)
		return "", &cancelError{reason: flow.Reason}
	}

	r.noteSubst(flow.ExitCode())
	r.diag.WriteString(flow.Result.Stderr)
	return strings.TrimRight(flow.Result.Stdout, "\n"), nil
}

// paramValue is the result of a parameter expansion. multi is set for "$@"
// style expansions that produce one field per value when quoted.
type paramValue struct {
	values []string
	multi  bool
}

func scalar(s string) paramValue {
	return paramValue{values: []string{s}}
}

func (v paramValue) join(ifs string) string {
	sep := " "
	if !v.multi && len(v.values) > 1 {
		// "$*" joins with the first character of IFS.
		sep = ""
		if ifs != "" {
			sep = ifs[:1]
		}
	}
	return strings.Join(v.values, sep)
}

func (v paramValue) mapValues(fn func(string) string) paramValue {
	out := paramValue{multi: v.multi, values: make([]string, len(v.values))}
	for i, s := range v.values {
		out.values[i] = fn(s)
	}
	return out
}

// paramExpr is the parsed body of "${...}".
type paramExpr struct {
	name     string
	index    string
	hasIndex bool
	length   bool
	op       string
	arg      string
}

var paramOps = []string{
	":-", ":=", ":+", ":?", "-", "=", "+", "?",
	"##", "#", "%%", "%", "//", "/", "^^", "^", ",,", ",", ":",
}

func parseParamExpr(raw string) (paramExpr, bool) {
	var p paramExpr
	rest := raw
	if len(rest) > 1 && rest[0] == '#' {
		p.length = true
		rest = rest[1:]
	}

	switch {
	case rest == "":
		return p, false
	case strings.ContainsRune("?$!#@*-", rune(rest[0])):
		p.name, rest = rest[:1], rest[1:]
	case rest[0] >= '0' && rest[0] <= '9':
		i := 1
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		p.name, rest = rest[:i], rest[i:]
	default:
		i := 0
		for i < len(rest) && (rest[i] == '_' || rest[i] < utf8.RuneSelf && (unicode.IsLetter(rune(rest[i])) || unicode.IsDigit(rune(rest[i])))) {
			i++
		}
		if i == 0 {
			return p, false
		}
		p.name, rest = rest[:i], rest[i:]
	}

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return p, false
		}
		p.index, p.hasIndex = rest[1:end], true
		rest = rest[end+1:]
	}

	if rest == "" {
		return p, true
	}
	if p.length {
		return p, false
	}
	for _, op := range paramOps {
		if strings.HasPrefix(rest, op) {
			p.op, p.arg = op, rest[len(op):]
			return p, true
		}
	}
	return p, false
}

// param expands the body of a "$name" or "${...}" part.
func (r *runner) param(raw string) (paramValue, error) {
	p, ok := parseParamExpr(raw)
	if !ok {
		r.paramError(raw, "bad substitution")
		return scalar(""), nil
	}

	val, set, err := r.lookupParam(p)
	if err != nil {
		return paramValue{}, err
	}

	if p.length {
		if p.hasIndex && (p.index == "@" || p.index == "*") || p.name == "@" || p.name == "*" {
			return scalar(strconv.Itoa(len(val.values))), nil
		}
		return scalar(strconv.Itoa(utf8.RuneCountInString(val.join(" ")))), nil
	}

	switch p.op {
	case "":
		if !set && r.st.Options.Nounset && p.name != "@" && p.name != "*" {
			r.paramError(p.name, "unbound variable")
		}
		return val, nil

	case ":-", "-", ":=", "=", ":+", "+", ":?", "?":
		null := !set || (p.op[0] == ':' && val.join(" ") == "")
		op := strings.TrimPrefix(p.op, ":")
		switch {
		case op == "+" && null:
			return scalar(""), nil
		case op == "+", op == "-" && null, op == "=" && null:
			word, err := r.expandRaw(p.arg)
			if err != nil {
				return paramValue{}, err
			}
			if op == "=" {
				if err := r.assignParam(p, word); err != nil {
					r.paramError(p.name, "cannot assign in this way")
					return scalar(""), nil
				}
			}
			return scalar(word), nil
		case op == "?" && null:
			msg, err := r.expandRaw(p.arg)
			if err != nil {
				return paramValue{}, err
			}
			if msg == "" {
				msg = "parameter null or not set"
			}
			r.paramError(p.name, msg)
			return scalar(""), nil
		}
		return val, nil

	case "#", "##", "%", "%%":
		pat, err := r.expandPattern(shell.ParseWord(p.arg))
		if err != nil {
			return paramValue{}, err
		}
		longest := len(p.op) == 2
		return val.mapValues(func(s string) string {
			if p.op[0] == '#' {
				return trimPrefixPattern(s, pat, longest)
			}
			return trimSuffixPattern(s, pat, longest)
		}), nil

	case "/", "//":
		patText, repText := splitReplacement(p.arg)
		anchor := byte(0)
		if p.op == "/" && patText != "" && (patText[0] == '#' || patText[0] == '%') {
			anchor, patText = patText[0], patText[1:]
		}
		pat, err := r.expandPattern(shell.ParseWord(patText))
		if err != nil {
			return paramValue{}, err
		}
		rep, err := r.expandRaw(repText)
		if err != nil {
			return paramValue{}, err
		}
		return val.mapValues(func(s string) string {
			return replacePattern(s, pat, rep, p.op == "//", anchor)
		}), nil

	case "^^":
		return val.mapValues(strings.ToUpper), nil
	case ",,":
		return val.mapValues(strings.ToLower), nil
	case "^":
		return val.mapValues(func(s string) string { return mapFirst(s, unicode.ToUpper) }), nil
	case ",":
		return val.mapValues(func(s string) string { return mapFirst(s, unicode.ToLower) }), nil

	case ":":
		return r.substring(p, val)
	}
	return val, nil
}

// lookupParam resolves the value of a parameter ignoring any operator.
func (r *runner) lookupParam(p paramExpr) (paramValue, bool, error) {
	st := r.st

	switch p.name {
	case "?":
		return scalar(strconv.Itoa(st.LastExitCode)), true, nil
	case "$":
		return scalar("1"), true, nil
	case "!":
		return scalar(""), true, nil
	case "#":
		return scalar(strconv.Itoa(len(st.Positional))), true, nil
	case "@":
		return paramValue{values: append([]string(nil), st.Positional...), multi: true}, len(st.Positional) > 0, nil
	case "*":
		return paramValue{values: append([]string(nil), st.Positional...)}, len(st.Positional) > 0, nil
	case "-":
		flags := ""
		if st.Options.Errexit {
			flags += "e"
		}
		if st.Options.Nounset {
			flags += "u"
		}
		return scalar(flags), true, nil
	case "0":
		return scalar(st.ScriptName), true, nil
	case "RANDOM":
		return scalar(strconv.FormatUint(st.nextRandom(), 10)), true, nil
	case "SECONDS":
		elapsed := uint64(0)
		if now := r.h.TimeMs(); now > st.StartTimeMs {
			elapsed = (now - st.StartTimeMs) / 1000
		}
		return scalar(strconv.FormatUint(elapsed, 10)), true, nil
	}

	if p.name[0] >= '1' && p.name[0] <= '9' {
		n, _ := strconv.Atoi(p.name)
		if n <= len(st.Positional) {
			return scalar(st.Positional[n-1]), true, nil
		}
		return scalar(""), false, nil
	}

	if !p.hasIndex {
		v, ok := st.Lookup(p.name)
		return scalar(v), ok, nil
	}

	all := p.index == "@" || p.index == "*"

	if m, ok := st.Assoc[p.name]; ok {
		if all {
			keys := sortedKeys(m)
			out := paramValue{multi: p.index == "@"}
			for _, k := range keys {
				out.values = append(out.values, m[k])
			}
			return out, len(keys) > 0, nil
		}
		key, err := r.expandRaw(p.index)
		if err != nil {
			return paramValue{}, false, err
		}
		v, ok := m[key]
		return scalar(v), ok, nil
	}

	if arr, ok := st.Arrays[p.name]; ok {
		if all {
			return paramValue{values: append([]string(nil), arr...), multi: p.index == "@"}, len(arr) > 0, nil
		}
		idx, err := r.expandRaw(p.index)
		if err != nil {
			return paramValue{}, false, err
		}
		i, err := parseIndex(idx)
		if err != nil {
			return scalar(""), false, nil
		}
		if i < 0 {
			i += len(arr)
		}
		if i < 0 || i >= len(arr) {
			return scalar(""), false, nil
		}
		return scalar(arr[i]), true, nil
	}

	// A scalar behaves like a one element array.
	v, ok := st.Env[p.name]
	if !ok {
		return paramValue{multi: p.index == "@"}, false, nil
	}
	if all {
		return paramValue{values: []string{v}, multi: p.index == "@"}, true, nil
	}
	if idx, err := r.expandRaw(p.index); err == nil && strings.TrimSpace(idx) == "0" {
		return scalar(v), true, nil
	}
	return scalar(""), false, nil
}

func (r *runner) assignParam(p paramExpr, value string) error {
	if !shell.IsName(p.name) {
		return fmt.Errorf("%s: cannot assign", p.name)
	}
	if p.hasIndex {
		idx, err := r.expandRaw(p.index)
		if err != nil {
			return err
		}
		return r.st.SetIndex(p.name, idx, value)
	}
	return r.st.Setenv(p.name, value)
}

// substring implements ${var:offset} and ${var:offset:length}. Arrays and
// the positional parameters are sliced by element.
func (r *runner) substring(p paramExpr, val paramValue) (paramValue, error) {
	spec, err := r.expandRaw(p.arg)
	if err != nil {
		return paramValue{}, err
	}
	offText, lenText, hasLen := strings.Cut(spec, ":")
	offset, _ := parseIndex(offText)

	if p.name == "@" || p.name == "*" {
		all := append([]string{r.st.ScriptName}, r.st.Positional...)
		return paramValue{values: sliceRange(all, offset, lenText, hasLen), multi: p.name == "@"}, nil
	}
	if p.hasIndex && (p.index == "@" || p.index == "*") {
		return paramValue{values: sliceRange(val.values, offset, lenText, hasLen), multi: val.multi}, nil
	}

	runes := []rune(val.join(" "))
	idx := make([]string, len(runes))
	for i, c := range runes {
		idx[i] = string(c)
	}
	return scalar(strings.Join(sliceRange(idx, offset, lenText, hasLen), "")), nil
}

func sliceRange(items []string, offset int, lenText string, hasLen bool) []string {
	n := len(items)
	if offset < 0 {
		offset += n
		if offset < 0 {
			return nil
		}
	}
	if offset > n {
		return nil
	}

	end := n
	if hasLen {
		length, err := parseIndex(lenText)
		if err != nil {
			length = 0
		}
		if length < 0 {
			end = n + length
		} else {
			end = offset + length
		}
		if end > n {
			end = n
		}
		if end < offset {
			return nil
		}
	}
	return append([]string(nil), items[offset:end]...)
}

// parseIndex reads an array subscript or offset. Arithmetic is not
// supported, but a parenthesized number is accepted.
func parseIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func (r *runner) paramError(name, msg string) {
	if r.st.ParamError == nil {
		r.st.ParamError = &ParamError{Name: name, Message: msg}
	}
}

func mapFirst(s string, fn func(rune) rune) string {
	c, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(fn(c)) + s[size:]
}

// splitReplacement splits "pattern/replacement" at the first unescaped slash.
func splitReplacement(arg string) (pat, rep string) {
	for i := 0; i < len(arg); i++ {
		switch arg[i] {
		case '\\':
			i++
		case '/':
			return arg[:i], arg[i+1:]
		}
	}
	return arg, ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// compilePattern converts a shell pattern into a regular expression matching
// entire strings. Malformed patterns match themselves literally.
func compilePattern(pat string) *regexp.Regexp {
	expr, err := pattern.Regexp(pat, 0)
	if err != nil {
		expr = regexp.QuoteMeta(pat)
	}
	rx, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return regexp.MustCompile("^" + regexp.QuoteMeta(pat) + "$")
	}
	return rx
}

// matchPattern reports whether s matches the shell pattern pat.
func matchPattern(pat, s string) bool {
	return compilePattern(pat).MatchString(s)
}

// boundaries returns the byte offsets of every rune boundary in s, including
// len(s).
func boundaries(s string) []int {
	out := make([]int, 0, len(s)+1)
	for i := range s {
		out = append(out, i)
	}
	return append(out, len(s))
}

func trimPrefixPattern(s, pat string, longest bool) string {
	rx := compilePattern(pat)
	bs := boundaries(s)
	if longest {
		for i := len(bs) - 1; i >= 0; i-- {
			if rx.MatchString(s[:bs[i]]) {
				return s[bs[i]:]
			}
		}
		return s
	}
	for _, b := range bs {
		if rx.MatchString(s[:b]) {
			return s[b:]
		}
	}
	return s
}

func trimSuffixPattern(s, pat string, longest bool) string {
	rx := compilePattern(pat)
	bs := boundaries(s)
	if longest {
		for _, b := range bs {
			if rx.MatchString(s[b:]) {
				return s[:b]
			}
		}
		return s
	}
	for i := len(bs) - 1; i >= 0; i-- {
		if rx.MatchString(s[bs[i]:]) {
			return s[:bs[i]]
		}
	}
	return s
}

// replacePattern replaces the longest match of pat in s with rep. anchor is
// '#' to only match at the start, '%' to only match at the end.
func replacePattern(s, pat, rep string, all bool, anchor byte) string {
	if pat == "" {
		return s
	}
	rx := compilePattern(pat)
	bs := boundaries(s)

	var sb strings.Builder
	i := 0
	for i < len(bs)-1 {
		if anchor == '#' && i > 0 {
			break
		}
		start := bs[i]
		matched := -1
		for j := len(bs) - 1; j > i; j-- {
			if anchor == '%' && j != len(bs)-1 {
				break
			}
			if rx.MatchString(s[start:bs[j]]) {
				matched = j
				break
			}
		}
		if matched < 0 {
			sb.WriteString(s[start:bs[i+1]])
			i++
			continue
		}
		sb.WriteString(rep)
		i = matched
		if !all {
			break
		}
	}
	sb.WriteString(s[bs[i]:])
	return sb.String()
}

// braceUnit is a single unquoted literal character or an opaque word part
// that brace expansion does not look into.
type braceUnit struct {
	lit  rune
	part *shell.WordPart
}

func (u braceUnit) is(c rune) bool {
	return u.part == nil && u.lit == c
}

// expandBraces performs brace expansion on the unquoted literal text of w.
func expandBraces(w shell.Word) []shell.Word {
	candidate := false
	for _, p := range w.Parts {
		if p.Kind == shell.Literal && !p.Quoted && strings.Contains(p.Value, "{") {
			candidate = true
			break
		}
	}
	if !candidate {
		return []shell.Word{w}
	}

	var units []braceUnit
	for i := range w.Parts {
		p := &w.Parts[i]
		if p.Kind == shell.Literal && !p.Quoted {
			for _, c := range p.Value {
				units = append(units, braceUnit{lit: c})
			}
			continue
		}
		units = append(units, braceUnit{part: p})
	}

	var out []shell.Word
	for _, expanded := range braceExpand(units, 0) {
		out = append(out, unitsToWord(expanded))
	}
	return out
}

func unitsToWord(units []braceUnit) shell.Word {
	var w shell.Word
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			w.Parts = append(w.Parts, shell.WordPart{Kind: shell.Literal, Value: lit.String()})
			lit.Reset()
		}
	}
	for _, u := range units {
		if u.part == nil {
			lit.WriteRune(u.lit)
			continue
		}
		flush()
		w.Parts = append(w.Parts, *u.part)
	}
	flush()
	return w
}

func braceExpand(units []braceUnit, from int) [][]braceUnit {
	for i := from; i < len(units); i++ {
		if !units[i].is('{') {
			continue
		}
		end, alts := braceAlternatives(units, i)
		if end < 0 {
			continue
		}

		var out [][]braceUnit
		for _, alt := range alts {
			next := make([]braceUnit, 0, len(units)+len(alt))
			next = append(next, units[:i]...)
			next = append(next, alt...)
			next = append(next, units[end+1:]...)
			out = append(out, braceExpand(next, i)...)
			if len(out) >= maxBraceWords {
				return out[:maxBraceWords]
			}
		}
		return out
	}
	return [][]braceUnit{units}
}

// braceAlternatives finds the brace expression opening at units[open]. It
// returns the index of the closing brace and the alternatives, or -1 if the
// braces do not form a list or a sequence.
func braceAlternatives(units []braceUnit, open int) (int, [][]braceUnit) {
	depth := 0
	var commas []int
	for i := open + 1; i < len(units); i++ {
		u := units[i]
		switch {
		case u.is('{'):
			depth++
		case u.is('}') && depth > 0:
			depth--
		case u.is(',') && depth == 0:
			commas = append(commas, i)
		case u.is('}'):
			if len(commas) > 0 {
				var alts [][]braceUnit
				start := open + 1
				for _, c := range append(commas, i) {
					alts = append(alts, units[start:c])
					start = c + 1
				}
				return i, alts
			}
			if seq := braceSequence(units[open+1 : i]); seq != nil {
				return i, seq
			}
			return -1, nil
		}
	}
	return -1, nil
}

// braceSequence expands "a..e" or "1..10[..step]".
func braceSequence(units []braceUnit) [][]braceUnit {
	var sb strings.Builder
	for _, u := range units {
		if u.part != nil {
			return nil
		}
		sb.WriteRune(u.lit)
	}
	bounds := strings.Split(sb.String(), "..")
	if len(bounds) != 2 && len(bounds) != 3 {
		return nil
	}

	step := 1
	if len(bounds) == 3 {
		s, err := strconv.Atoi(bounds[2])
		if err != nil {
			return nil
		}
		if s < 0 {
			s = -s
		}
		if s != 0 {
			step = s
		}
	}

	var items []string
	lo, errLo := strconv.Atoi(bounds[0])
	hi, errHi := strconv.Atoi(bounds[1])
	switch {
	case errLo == nil && errHi == nil:
		items = intSequence(lo, hi, step)
	case utf8.RuneCountInString(bounds[0]) == 1 && utf8.RuneCountInString(bounds[1]) == 1:
		a, _ := utf8.DecodeRuneInString(bounds[0])
		b, _ := utf8.DecodeRuneInString(bounds[1])
		for _, n := range intSequence(int(a), int(b), step) {
			c, _ := strconv.Atoi(n)
			items = append(items, string(rune(c)))
		}
	default:
		return nil
	}

	out := make([][]braceUnit, 0, len(items))
	for _, item := range items {
		var alt []braceUnit
		for _, c := range item {
			alt = append(alt, braceUnit{lit: c})
		}
		out = append(out, alt)
	}
	return out
}

func intSequence(lo, hi, step int) []string {
	var out []string
	if lo <= hi {
		for i := lo; i <= hi && len(out) < maxBraceWords; i += step {
			out = append(out, strconv.Itoa(i))
		}
	} else {
		for i := lo; i >= hi && len(out) < maxBraceWords; i -= step {
			out = append(out, strconv.Itoa(i))
		}
	}
	return out
}
