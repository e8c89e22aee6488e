package interp

import (
	"errors"
	"fmt"
)

var (
	// ErrSubstitutionTooDeep is returned when command substitutions nest more
	// than MaxSubstitutionDepth levels.
	ErrSubstitutionTooDeep = errors.New("maximum command substitution depth exceeded")

	// ErrFunctionTooDeep is returned when function calls nest more than
	// MaxFunctionDepth levels.
	ErrFunctionTooDeep = errors.New("maximum function call depth exceeded")
)

// RunResult is the outcome of running a command line.
type RunResult struct {
	ExitCode        int    `json:"exit_code"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExecutionTimeMs uint64 `json:"execution_time_ms"`
}

// append adds the output of next after r and takes its exit code.
func (r RunResult) append(next RunResult) RunResult {
	return RunResult{
		ExitCode: next.ExitCode,
		Stdout:   r.Stdout + next.Stdout,
		Stderr:   r.Stderr + next.Stderr,
	}
}

// FlowKind says how execution continues after a command.
type FlowKind int

const (
	FlowNormal FlowKind = iota
	FlowBreak
	FlowContinue
	FlowReturn
	FlowExit
	FlowCancelled
)

func (k FlowKind) String() string {
	switch k {
	case FlowNormal:
		return "normal"
	case FlowBreak:
		return "break"
	case FlowContinue:
		return "continue"
	case FlowReturn:
		return "return"
	case FlowExit:
		return "exit"
	case FlowCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("FlowKind(%d)", int(k))
	}
}

// CancelReason says why evaluation was cancelled.
type CancelReason int

const (
	ReasonCancelled CancelReason = iota
	ReasonTimeout
)

// ControlFlow is the result of executing a node. Every kind carries the
// output produced before the flow was signalled in Result.
type ControlFlow struct {
	Kind   FlowKind
	Result RunResult
	// Levels is the number of enclosing loops left to unwind for Break and
	// Continue.
	Levels int
	// Code is the status of Return and Exit.
	Code   int
	Reason CancelReason
}

// Normal is ordinary completion with the given result.
func Normal(r RunResult) ControlFlow {
	return ControlFlow{Kind: FlowNormal, Result: r}
}

func BreakFlow(levels int) ControlFlow {
	return ControlFlow{Kind: FlowBreak, Levels: levels}
}

func ContinueFlow(levels int) ControlFlow {
	return ControlFlow{Kind: FlowContinue, Levels: levels}
}

func ReturnFlow(code int) ControlFlow {
	return ControlFlow{Kind: FlowReturn, Code: code, Result: RunResult{ExitCode: code}}
}

func ExitFlow(code int, stdout, stderr string) ControlFlow {
	return ControlFlow{
		Kind:   FlowExit,
		Code:   code,
		Result: RunResult{ExitCode: code, Stdout: stdout, Stderr: stderr},
	}
}

func CancelledFlow(reason CancelReason) ControlFlow {
	return ControlFlow{Kind: FlowCancelled, Reason: reason, Result: RunResult{ExitCode: reason.exitCode()}}
}

// ExitCode is the status the flow leaves in $?.
func (f ControlFlow) ExitCode() int {
	switch f.Kind {
	case FlowReturn, FlowExit:
		return f.Code
	case FlowCancelled:
		return f.Reason.exitCode()
	default:
		return f.Result.ExitCode
	}
}

// after returns f with the output of prev placed in front of its own.
func (f ControlFlow) after(prev RunResult) ControlFlow {
	code := f.Result.ExitCode
	f.Result = prev.append(f.Result)
	f.Result.ExitCode = code
	return f
}

func (c CancelReason) exitCode() int {
	if c == ReasonTimeout {
		return 124
	}
	return 130
}

func (c CancelReason) String() string {
	if c == ReasonTimeout {
		return "timed out"
	}
	return "cancelled"
}
