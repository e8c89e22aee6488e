package interp

import (
	"strings"

	"github.com/sandsh/sandsh/core/host"
	"github.com/sandsh/sandsh/core/shell"
)

const devNull = "/dev/null"

type sinkKind int

const (
	sinkStdout sinkKind = iota
	sinkStderr
	sinkFile
	sinkNull
)

// sink is where one output stream of a command ends up.
type sink struct {
	kind sinkKind
	path string
}

// redirects is the routing a command's redirections establish.
type redirects struct {
	stdout sink
	stderr sink
	stdin  *input
}

func (rd *redirects) plain() bool {
	return rd.stdout.kind == sinkStdout && rd.stderr.kind == sinkStderr
}

// openRedirects evaluates redirections left to right. Output files are
// created or truncated immediately, the command's output is appended to them
// once it finishes. A non-nil flow reports a redirection that failed.
func (r *runner) openRedirects(list []shell.Redirect) (*redirects, *ControlFlow, error) {
	rd := &redirects{stdout: sink{kind: sinkStdout}, stderr: sink{kind: sinkStderr}}

	for _, redir := range list {
		switch redir.Kind {
		case shell.StderrToStdout:
			rd.stderr = rd.stdout
			continue
		case shell.StdoutToStderr:
			rd.stdout = rd.stderr
			continue
		case shell.Heredoc, shell.HeredocStrip:
			body := ""
			if redir.Body != nil {
				var err error
				if body, err = r.expandString(*redir.Body); err != nil {
					return nil, nil, err
				}
			}
			if flow, failed := r.paramFailure(); failed {
				return nil, &flow, nil
			}
			rd.stdin = newInput(body)
			continue
		}

		var target string
		if redir.Target != nil {
			var err error
			if target, err = r.expandString(*redir.Target); err != nil {
				return nil, nil, err
			}
		}
		if flow, failed := r.paramFailure(); failed {
			return nil, &flow, nil
		}

		if redir.Kind == shell.HereString {
			rd.stdin = newInput(target + "\n")
			continue
		}
		if target == "" {
			flow := failure(1, "ambiguous redirect")
			return nil, &flow, nil
		}

		if redir.Kind == shell.StdinFrom {
			if target == devNull {
				rd.stdin = newInput("")
				continue
			}
			data, err := r.h.ReadFile(r.abs(target))
			if err != nil {
				flow := failure(1, "%s: %s", target, hostMessage(err))
				return nil, &flow, nil
			}
			rd.stdin = newInput(data)
			continue
		}

		out, err := r.openSink(target, redir.Kind == shell.StdoutAppend ||
			redir.Kind == shell.StderrAppend || redir.Kind == shell.BothAppend)
		if err != nil {
			flow := failure(1, "%s: %s", target, hostMessage(err))
			return nil, &flow, nil
		}

		switch redir.Kind {
		case shell.StdoutOverwrite, shell.StdoutAppend:
			rd.stdout = out
		case shell.StderrOverwrite, shell.StderrAppend:
			rd.stderr = out
		case shell.BothOverwrite, shell.BothAppend:
			rd.stdout = out
			rd.stderr = out
		}
	}
	return rd, nil, nil
}

func (r *runner) openSink(target string, appendTo bool) (sink, error) {
	if target == devNull {
		return sink{kind: sinkNull}, nil
	}
	p := r.abs(target)
	mode := host.Truncate
	if appendTo {
		mode = host.Append
	}
	if err := r.h.WriteFile(p, "", mode); err != nil {
		return sink{}, err
	}
	return sink{kind: sinkFile, path: p}, nil
}

// apply routes the output of flow to its sinks. Write failures are reported
// on the command's stderr.
func (rd *redirects) apply(r *runner, flow ControlFlow) ControlFlow {
	if rd.plain() {
		return flow
	}

	var stdout, stderr strings.Builder
	var order []string
	files := make(map[string]*strings.Builder)

	route := func(s sink, data string) {
		switch s.kind {
		case sinkStdout:
			stdout.WriteString(data)
		case sinkStderr:
			stderr.WriteString(data)
		case sinkFile:
			buf, ok := files[s.path]
			if !ok {
				buf = &strings.Builder{}
				files[s.path] = buf
				order = append(order, s.path)
			}
			buf.WriteString(data)
		}
	}
	route(rd.stdout, flow.Result.Stdout)
	route(rd.stderr, flow.Result.Stderr)

	for _, p := range order {
		if files[p].Len() == 0 {
			continue
		}
		if err := r.h.WriteFile(p, files[p].String(), host.Append); err != nil {
			stderr.WriteString(ShellName + ": " + p + ": " + hostMessage(err) + "\n")
			if flow.Kind == FlowNormal && flow.Result.ExitCode == 0 {
				flow.Result.ExitCode = 1
			}
		}
	}

	flow.Result.Stdout = stdout.String()
	flow.Result.Stderr = stderr.String()
	return flow
}
