package interp

import (
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/sandsh/sandsh/core/host"
	"github.com/sandsh/sandsh/core/shell"
)

// input is the stdin buffer of a command. read consumes it a line at a time,
// spawned programs consume whatever is left.
type input struct {
	data string
}

func newInput(data string) *input {
	return &input{data: data}
}

// readLine returns the next line without its newline. io.EOF is returned
// when the input ended before a newline, line holds any partial data.
func (in *input) readLine() (string, error) {
	if i := strings.IndexByte(in.data, '\n'); i >= 0 {
		line := in.data[:i]
		in.data = in.data[i+1:]
		return line, nil
	}
	line := in.data
	in.data = ""
	return line, io.EOF
}

func (in *input) rest() string {
	out := in.data
	in.data = ""
	return out
}

// runner executes commands against a State. Copies of a runner share the
// state but may have their own stdin.
type runner struct {
	st    *State
	h     host.Host
	stdin *input

	// cond is positive while a condition runs, errexit is suppressed.
	cond int

	// diag collects diagnostics raised during expansion, they are reported
	// with the stderr of the command being expanded.
	diag *strings.Builder

	substRan  bool
	substCode int
}

func newRunner(st *State, h host.Host, stdin string) *runner {
	return &runner{st: st, h: h, stdin: newInput(stdin), diag: &strings.Builder{}}
}

func (r *runner) withStdin(in *input) *runner {
	c := *r
	c.stdin = in
	return &c
}

func (r *runner) diagf(format string, args ...interface{}) {
	fmt.Fprintf(r.diag, ShellName+": "+format+"\n", args...)
}

func (r *runner) takeDiag() string {
	out := r.diag.String()
	r.diag.Reset()
	return out
}

func (r *runner) noteSubst(code int) {
	r.substRan = true
	r.substCode = code
}

func (r *runner) cancelled() (CancelReason, bool) {
	switch r.h.CheckCancel() {
	case host.Cancelled:
		return ReasonCancelled, true
	case host.TimedOut:
		return ReasonTimeout, true
	}
	return ReasonCancelled, false
}

// abs resolves name against the working directory.
func (r *runner) abs(name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(r.st.Cwd, name)
}

// failure is a completed command that wrote an error message.
func failure(code int, format string, args ...interface{}) ControlFlow {
	return Normal(RunResult{
		ExitCode: code,
		Stderr:   fmt.Sprintf(ShellName+": "+format+"\n", args...),
	})
}

// Exec runs node against state, performing every effect through h.
func Exec(state *State, h host.Host, node shell.Command) (ControlFlow, error) {
	return newRunner(state, h, "").exec(node)
}

func (r *runner) exec(node shell.Command) (ControlFlow, error) {
	flow, err := r.dispatch(node)
	var cerr *cancelError
	if errors.As(err, &cerr) {
		flow, err = CancelledFlow(cerr.reason), nil
	}
	if err != nil {
		return flow, err
	}

	if d := r.takeDiag(); d != "" {
		flow.Result.Stderr = d + flow.Result.Stderr
	}

	switch flow.Kind {
	case FlowNormal:
		r.st.LastExitCode = flow.Result.ExitCode
	case FlowReturn, FlowExit:
		r.st.LastExitCode = flow.Code
	}

	if flow.Kind == FlowNormal && flow.Result.ExitCode != 0 && r.st.Options.Errexit && r.cond == 0 {
		switch node.(type) {
		case *shell.Simple, *shell.Pipeline, *shell.Subshell:
			return ExitFlow(flow.Result.ExitCode, flow.Result.Stdout, flow.Result.Stderr), nil
		}
	}
	return flow, nil
}

// condition runs node with errexit suppressed.
func (r *runner) condition(node shell.Command) (ControlFlow, error) {
	r.cond++
	defer func() { r.cond-- }()
	return r.exec(node)
}

func (r *runner) dispatch(node shell.Command) (ControlFlow, error) {
	switch n := node.(type) {
	case nil:
		return Normal(RunResult{}), nil
	case *shell.Simple:
		return r.simple(n)
	case *shell.Pipeline:
		return r.pipeline(n)
	case *shell.List:
		return r.list(n)
	case *shell.If:
		return r.ifClause(n)
	case *shell.For:
		return r.forClause(n)
	case *shell.While:
		return r.whileClause(n)
	case *shell.Subshell:
		return r.subshell(n)
	case *shell.Group:
		return r.exec(n.Body)
	case *shell.Case:
		return r.caseClause(n)
	case *shell.Function:
		r.st.Functions[n.Name] = n.Body
		return Normal(RunResult{}), nil
	case *shell.Negate:
		flow, err := r.condition(n.Body)
		if err != nil || flow.Kind != FlowNormal {
			return flow, err
		}
		if flow.Result.ExitCode == 0 {
			flow.Result.ExitCode = 1
		} else {
			flow.Result.ExitCode = 0
		}
		return flow, nil
	case *shell.Break:
		return BreakFlow(levels(n.Levels)), nil
	case *shell.Continue:
		return ContinueFlow(levels(n.Levels)), nil
	case *shell.Redirected:
		return r.redirected(n)
	}
	return ControlFlow{}, fmt.Errorf("unsupported command %T", node)
}

func levels(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// paramFailure converts a pending parameter error into a failed command.
func (r *runner) paramFailure() (ControlFlow, bool) {
	perr := r.st.ParamError
	if perr == nil {
		return ControlFlow{}, false
	}
	r.st.ParamError = nil
	return failure(1, "%s: %s", perr.Name, perr.Message), true
}

func (r *runner) simple(cmd *shell.Simple) (ControlFlow, error) {
	if cmd.IsEmpty() {
		return Normal(RunResult{}), nil
	}
	r.substRan = false
	r.st.ParamError = nil

	if len(cmd.Words) == 0 {
		return r.assignOnly(cmd)
	}

	restore, err := r.applyPrefix(cmd.Assignments)
	defer restore()
	if err != nil {
		if flow, ok := assignFailure(err); ok {
			return flow, nil
		}
		return ControlFlow{}, err
	}

	argv, err := r.commandWords(cmd.Words)
	if err != nil {
		return ControlFlow{}, err
	}
	if flow, failed := r.paramFailure(); failed {
		return flow, nil
	}

	rd, fail, err := r.openRedirects(cmd.Redirects)
	if err != nil {
		return ControlFlow{}, err
	}
	if fail != nil {
		return *fail, nil
	}

	if len(argv) == 0 {
		code := 0
		if r.substRan {
			code = r.substCode
		}
		return rd.apply(r, Normal(RunResult{ExitCode: code})), nil
	}

	rn := r
	if rd.stdin != nil {
		rn = r.withStdin(rd.stdin)
	}
	flow, err := rn.invoke(argv)
	if err != nil {
		return flow, err
	}
	return rd.apply(r, flow), nil
}

// assignOnly runs a command made only of assignments and redirections, the
// assignments persist.
func (r *runner) assignOnly(cmd *shell.Simple) (ControlFlow, error) {
	for _, a := range cmd.Assignments {
		if err := r.assign(a); err != nil {
			if flow, ok := assignFailure(err); ok {
				return flow, nil
			}
			return ControlFlow{}, err
		}
	}
	if flow, failed := r.paramFailure(); failed {
		return flow, nil
	}

	rd, fail, err := r.openRedirects(cmd.Redirects)
	if err != nil {
		return ControlFlow{}, err
	}
	if fail != nil {
		return *fail, nil
	}

	code := 0
	if r.substRan {
		code = r.substCode
	}
	return rd.apply(r, Normal(RunResult{ExitCode: code})), nil
}

// assignError is a user-facing assignment failure such as a readonly
// variable.
type assignError struct {
	err error
}

func (e *assignError) Error() string {
	return e.err.Error()
}

func assignFailure(err error) (ControlFlow, bool) {
	var aerr *assignError
	if errors.As(err, &aerr) {
		return failure(1, "%v", aerr.err), true
	}
	return ControlFlow{}, false
}

// assign performs a single NAME=value, NAME[i]=value or NAME=(...)
// assignment.
func (r *runner) assign(a shell.Assignment) error {
	st := r.st

	if a.IsArray() {
		words := shell.ParseWords(a.Value[1 : len(a.Value)-1])
		values, err := r.expandFields(words)
		if err != nil {
			return err
		}
		return r.assignList(a.Name, values, a.Append)
	}

	value, err := r.expandRaw(a.Value)
	if err != nil {
		return err
	}

	if a.Index != "" {
		idx, err := r.expandRaw(a.Index)
		if err != nil {
			return err
		}
		if a.Append {
			prev, _, _ := r.lookupParam(paramExpr{name: a.Name, index: a.Index, hasIndex: true})
			value = prev.join(" ") + value
		}
		if err := st.SetIndex(a.Name, idx, value); err != nil {
			return &assignError{err}
		}
		return nil
	}

	if a.Append {
		value = st.Getenv(a.Name) + value
	}
	if err := st.Setenv(a.Name, value); err != nil {
		return &assignError{err}
	}
	return nil
}

var keyedElement = regexp.MustCompile(`^\[([^]]*)\]=(.*)$`)

// assignList assigns the elements of an array literal. Elements of the form
// [key]=value set that key or index.
func (r *runner) assignList(name string, values []string, appendTo bool) error {
	st := r.st
	if st.Readonly[name] {
		return &assignError{fmt.Errorf("%s: readonly variable", name)}
	}

	if m, ok := st.Assoc[name]; ok {
		if !appendTo {
			m = make(map[string]string)
			st.Assoc[name] = m
		}
		for _, v := range values {
			if kv := keyedElement.FindStringSubmatch(v); kv != nil {
				m[kv[1]] = kv[2]
			}
		}
		return nil
	}

	var arr []string
	if appendTo {
		arr = append(arr, st.Arrays[name]...)
		if v, ok := st.Env[name]; ok && len(arr) == 0 {
			arr = append(arr, v)
		}
	}
	if err := st.SetArray(name, arr); err != nil {
		return &assignError{err}
	}
	for _, v := range values {
		if kv := keyedElement.FindStringSubmatch(v); kv != nil {
			if err := st.SetIndex(name, kv[1], kv[2]); err != nil {
				return &assignError{err}
			}
			continue
		}
		st.Arrays[name] = append(st.Arrays[name], v)
	}
	return nil
}

// applyPrefix applies the assignments that precede a command name and
// returns a function restoring the previous values.
func (r *runner) applyPrefix(assignments []shell.Assignment) (func(), error) {
	type saved struct {
		name  string
		value string
		set   bool
	}
	var prev []saved
	restore := func() {
		for i := len(prev) - 1; i >= 0; i-- {
			p := prev[i]
			if p.set {
				r.st.Env[p.name] = p.value
			} else {
				delete(r.st.Env, p.name)
			}
		}
	}

	for _, a := range assignments {
		if a.IsArray() || a.Index != "" {
			continue
		}
		value, err := r.expandRaw(a.Value)
		if err != nil {
			return restore, err
		}
		if r.st.Readonly[a.Name] {
			return restore, &assignError{fmt.Errorf("%s: readonly variable", a.Name)}
		}
		old, ok := r.st.Env[a.Name]
		prev = append(prev, saved{a.Name, old, ok})
		if a.Append {
			value = old + value
		}
		r.st.Env[a.Name] = value
	}
	return restore, nil
}

// declarationBuiltins take assignments as arguments.
var declarationBuiltins = map[string]bool{
	"declare":  true,
	"typeset":  true,
	"local":    true,
	"export":   true,
	"readonly": true,
}

var assignmentWord = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\[[^]]*\])?\+?=`)

// commandWords expands the words of a simple command. Assignment arguments
// of declaration builtins are not split, array literals are passed as
// source text.
func (r *runner) commandWords(words []shell.Word) ([]string, error) {
	name, ok := words[0].LiteralValue()
	if !ok || !declarationBuiltins[name] {
		return r.expandFields(words)
	}

	argv := []string{name}
	for _, w := range words[1:] {
		prefix := ""
		if len(w.Parts) > 0 && w.Parts[0].Kind == shell.Literal && !w.Parts[0].Quoted {
			prefix = w.Parts[0].Value
		}
		loc := assignmentWord.FindStringIndex(prefix)
		switch {
		case loc == nil:
			fields, err := r.expandFields([]shell.Word{w})
			if err != nil {
				return nil, err
			}
			argv = append(argv, fields...)
		case strings.HasPrefix(prefix[loc[1]:], "("):
			argv = append(argv, sourceText(w))
		default:
			s, err := r.expandString(w)
			if err != nil {
				return nil, err
			}
			argv = append(argv, s)
		}
	}
	return argv, nil
}

// sourceText renders a word back into shell source, quoting the parts that
// were quoted.
func sourceText(w shell.Word) string {
	var sb strings.Builder
	for _, p := range w.Parts {
		switch {
		case p.Kind == shell.Literal && p.Quoted:
			sb.WriteString(quote(p.Value))
		case p.Kind == shell.Literal:
			sb.WriteString(p.Value)
		case p.Kind == shell.Variable && p.Quoted:
			sb.WriteString(`"${` + p.Value + `}"`)
		case p.Kind == shell.Variable:
			sb.WriteString("${" + p.Value + "}")
		case p.Quoted:
			sb.WriteString(`"$(` + p.Value + `)"`)
		default:
			sb.WriteString("$(" + p.Value + ")")
		}
	}
	return sb.String()
}

// invoke runs a function, builtin or program.
func (r *runner) invoke(argv []string) (ControlFlow, error) {
	name := argv[0]
	if body, ok := r.st.Functions[name]; ok {
		return r.callFunction(name, body, argv[1:])
	}
	if fn, ok := builtins[name]; ok {
		return r.runBuiltin(fn, argv)
	}
	return r.spawn(argv), nil
}

func (r *runner) callFunction(name string, body shell.Command, args []string) (ControlFlow, error) {
	st := r.st
	if st.FunctionDepth >= MaxFunctionDepth {
		return ControlFlow{}, fmt.Errorf("%s: %w", name, ErrFunctionTooDeep)
	}

	st.FunctionDepth++
	savedArgs := st.Positional
	st.Positional = args
	st.pushScope()
	defer func() {
		st.popScope()
		st.Positional = savedArgs
		st.FunctionDepth--
	}()

	flow, err := r.exec(body)
	if err != nil {
		return flow, err
	}

	switch flow.Kind {
	case FlowReturn:
		flow.Kind = FlowNormal
		flow.Result.ExitCode = flow.Code
	case FlowBreak, FlowContinue:
		flow.Kind = FlowNormal
	}
	return flow, nil
}

func (r *runner) spawn(argv []string) ControlFlow {
	if reason, stop := r.cancelled(); stop {
		return CancelledFlow(reason)
	}
	res, err := r.h.Spawn(host.SpawnRequest{
		Program: argv[0],
		Args:    argv[1:],
		Env:     r.st.Environ(),
		Dir:     r.st.Cwd,
		Stdin:   r.stdin.rest(),
	})
	if err != nil {
		switch host.KindOf(err) {
		case host.NotFound:
			return failure(127, "%s: command not found", argv[0])
		case host.PermissionDenied:
			return failure(126, "%s: %s", argv[0], hostMessage(err))
		default:
			return failure(1, "%s: %s", argv[0], hostMessage(err))
		}
	}
	return Normal(RunResult{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr})
}

// hostMessage describes a host error the way file utilities do.
func hostMessage(err error) string {
	switch host.KindOf(err) {
	case host.NotFound:
		return "No such file or directory"
	case host.PermissionDenied:
		return "Permission denied"
	}
	var herr *host.Error
	if errors.As(err, &herr) && herr.Err != nil {
		return herr.Err.Error()
	}
	return err.Error()
}

func (r *runner) pipeline(p *shell.Pipeline) (ControlFlow, error) {
	var stderr strings.Builder
	in := r.stdin
	codes := make([]int, 0, len(p.Commands))
	stdout := ""

	for i, cmd := range p.Commands {
		if reason, stop := r.cancelled(); stop {
			return CancelledFlow(reason).after(RunResult{Stderr: stderr.String()}), nil
		}

		// Every stage but the last runs on a copy of the state, like a
		// subshell. The last stage runs in the shell itself.
		stage := r.withStdin(in)
		if i < len(p.Commands)-1 {
			stage.st = r.st.Clone()
		}
		stage.cond++
		flow, err := stage.exec(cmd)
		if err != nil {
			return flow, err
		}
		if flow.Kind == FlowCancelled {
			return flow.after(RunResult{Stderr: stderr.String()}), nil
		}

		codes = append(codes, flow.ExitCode())
		stderr.WriteString(flow.Result.Stderr)
		if i == len(p.Commands)-1 {
			stdout = flow.Result.Stdout
		} else {
			in = newInput(flow.Result.Stdout)
		}
	}

	status := make([]string, len(codes))
	for i, c := range codes {
		status[i] = strconv.Itoa(c)
	}
	r.st.Arrays["PIPESTATUS"] = status

	code := 0
	if len(codes) > 0 {
		code = codes[len(codes)-1]
	}
	if r.st.Options.Pipefail {
		code = 0
		for i := len(codes) - 1; i >= 0; i-- {
			if codes[i] != 0 {
				code = codes[i]
				break
			}
		}
	}
	return Normal(RunResult{ExitCode: code, Stdout: stdout, Stderr: stderr.String()}), nil
}

func (r *runner) list(l *shell.List) (ControlFlow, error) {
	var left ControlFlow
	var err error
	if l.Op == shell.Seq {
		left, err = r.exec(l.Left)
	} else {
		left, err = r.condition(l.Left)
	}
	if err != nil || left.Kind != FlowNormal {
		return left, err
	}

	code := left.Result.ExitCode
	switch {
	case l.Op == shell.And && code != 0, l.Op == shell.Or && code == 0:
		return left, nil
	}

	right, err := r.exec(l.Right)
	if err != nil {
		return right, err
	}
	return right.after(left.Result), nil
}

func (r *runner) ifClause(n *shell.If) (ControlFlow, error) {
	cond, err := r.condition(n.Cond)
	if err != nil || cond.Kind != FlowNormal {
		return cond, err
	}

	var branch ControlFlow
	switch {
	case cond.Result.ExitCode == 0:
		branch, err = r.exec(n.Then)
	case n.Else != nil:
		branch, err = r.exec(n.Else)
	default:
		branch = Normal(RunResult{})
	}
	if err != nil {
		return branch, err
	}
	return branch.after(cond.Result), nil
}

type loopAction int

const (
	loopNext loopAction = iota
	loopBreak
	loopReturn
)

// iterate runs one loop body, adding its output to acc. With loopReturn the
// returned flow must be passed to the loop's caller.
func (r *runner) iterate(body shell.Command, acc *RunResult) (ControlFlow, loopAction, error) {
	flow, err := r.exec(body)
	if err != nil {
		return flow, loopReturn, err
	}
	*acc = acc.append(flow.Result)

	switch flow.Kind {
	case FlowNormal:
		return flow, loopNext, nil
	case FlowBreak, FlowContinue:
		if flow.Levels > 1 {
			out := ControlFlow{Kind: flow.Kind, Levels: flow.Levels - 1, Result: *acc}
			return out, loopReturn, nil
		}
		if flow.Kind == FlowBreak {
			return flow, loopBreak, nil
		}
		return flow, loopNext, nil
	default:
		flow.Result = *acc
		return flow, loopReturn, nil
	}
}

func (r *runner) forClause(n *shell.For) (ControlFlow, error) {
	words, err := r.expandFields(n.Words)
	if err != nil {
		return ControlFlow{}, err
	}
	if flow, failed := r.paramFailure(); failed {
		return flow, nil
	}
	acc := RunResult{Stderr: r.takeDiag()}

	for _, w := range words {
		if reason, stop := r.cancelled(); stop {
			return CancelledFlow(reason).after(acc), nil
		}
		if err := r.st.Setenv(n.Var, w); err != nil {
			return failure(1, "%v", err).after(acc), nil
		}

		flow, action, err := r.iterate(n.Body, &acc)
		if err != nil || action == loopReturn {
			return flow, err
		}
		if action == loopBreak {
			break
		}
	}
	return Normal(acc), nil
}

func (r *runner) whileClause(n *shell.While) (ControlFlow, error) {
	var acc RunResult
	for {
		if reason, stop := r.cancelled(); stop {
			return CancelledFlow(reason).after(acc), nil
		}

		cond, err := r.condition(n.Cond)
		if err != nil {
			return cond, err
		}
		if cond.Kind != FlowNormal {
			return cond.after(acc), nil
		}
		acc.Stdout += cond.Result.Stdout
		acc.Stderr += cond.Result.Stderr

		if (cond.Result.ExitCode == 0) == n.Until {
			break
		}

		flow, action, err := r.iterate(n.Body, &acc)
		if err != nil || action == loopReturn {
			return flow, err
		}
		if action == loopBreak {
			break
		}
	}
	return Normal(acc), nil
}

func (r *runner) subshell(n *shell.Subshell) (ControlFlow, error) {
	sub := *r
	sub.st = r.st.Clone()
	sub.cond = 0

	flow, err := sub.exec(n.Body)
	if err != nil {
		return flow, err
	}

	switch flow.Kind {
	case FlowExit, FlowReturn:
		flow.Kind = FlowNormal
		flow.Result.ExitCode = flow.Code
	case FlowBreak, FlowContinue:
		flow.Kind = FlowNormal
	}
	return flow, nil
}

func (r *runner) caseClause(n *shell.Case) (ControlFlow, error) {
	word, err := r.expandString(n.Word)
	if err != nil {
		return ControlFlow{}, err
	}
	if flow, failed := r.paramFailure(); failed {
		return flow, nil
	}

	for _, item := range n.Items {
		for _, p := range item.Patterns {
			pat, err := r.expandPattern(p)
			if err != nil {
				return ControlFlow{}, err
			}
			if matchPattern(pat, word) {
				return r.exec(item.Body)
			}
		}
	}
	return Normal(RunResult{}), nil
}

func (r *runner) redirected(n *shell.Redirected) (ControlFlow, error) {
	rd, fail, err := r.openRedirects(n.Redirects)
	if err != nil {
		return ControlFlow{}, err
	}
	if fail != nil {
		return *fail, nil
	}

	rn := r
	if rd.stdin != nil {
		rn = r.withStdin(rd.stdin)
	}
	flow, err := rn.exec(n.Body)
	if err != nil {
		return flow, err
	}
	return rd.apply(r, flow), nil
}
