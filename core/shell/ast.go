package shell

import (
	"fmt"
	"strings"
)

// PartKind identifies the kind of a WordPart.
type PartKind int

const (
	Literal PartKind = iota
	Variable
	CommandSub
)

func (k PartKind) String() string {
	switch k {
	case Literal:
		return "Literal"
	case Variable:
		return "Variable"
	case CommandSub:
		return "CommandSub"
	default:
		return fmt.Sprintf("PartKind(%d)", int(k))
	}
}

// WordPart is one piece of a Word.
//
// For Variable parts Value holds everything between "${" and "}" (or the bare
// name for "$NAME"); operators such as ":-" are decoded at expansion time.
// For CommandSub parts Value holds the unparsed body.
type WordPart struct {
	Kind   PartKind
	Value  string
	Quoted bool
}

// Word is a single shell argument before expansion.
type Word struct {
	Parts []WordPart `json:"parts"`
}

// Lit creates a Word holding a single unquoted literal.
func Lit(s string) Word {
	return Word{Parts: []WordPart{{Kind: Literal, Value: s}}}
}

// LiteralValue returns the text of the word if it consists only of literal
// parts.
func (w Word) LiteralValue() (string, bool) {
	var sb strings.Builder
	for _, p := range w.Parts {
		if p.Kind != Literal {
			return "", false
		}
		sb.WriteString(p.Value)
	}
	return sb.String(), true
}

// IsQuoted reports whether every part of the word came from quotes.
func (w Word) IsQuoted() bool {
	if len(w.Parts) == 0 {
		return false
	}
	for _, p := range w.Parts {
		if !p.Quoted {
			return false
		}
	}
	return true
}

// String renders the word back into approximate source form.
func (w Word) String() string {
	var sb strings.Builder
	for _, p := range w.Parts {
		switch p.Kind {
		case Literal:
			sb.WriteString(p.Value)
		case Variable:
			sb.WriteString("${" + p.Value + "}")
		case CommandSub:
			sb.WriteString("$(" + p.Value + ")")
		}
	}
	return sb.String()
}

// RedirectKind identifies what a Redirect does.
type RedirectKind int

const (
	StdoutOverwrite RedirectKind = iota
	StdoutAppend
	StdinFrom
	StderrOverwrite
	StderrAppend
	StderrToStdout
	StdoutToStderr
	BothOverwrite
	BothAppend
	Heredoc
	HeredocStrip
	HereString
)

var redirectNames = []string{
	StdoutOverwrite: "StdoutOverwrite",
	StdoutAppend:    "StdoutAppend",
	StdinFrom:       "StdinFrom",
	StderrOverwrite: "StderrOverwrite",
	StderrAppend:    "StderrAppend",
	StderrToStdout:  "StderrToStdout",
	StdoutToStderr:  "StdoutToStderr",
	BothOverwrite:   "BothOverwrite",
	BothAppend:      "BothAppend",
	Heredoc:         "Heredoc",
	HeredocStrip:    "HeredocStrip",
	HereString:      "HereString",
}

func (k RedirectKind) String() string {
	if int(k) >= 0 && int(k) < len(redirectNames) {
		return redirectNames[k]
	}
	return fmt.Sprintf("RedirectKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k RedirectKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RedirectKind) UnmarshalText(text []byte) error {
	for i, name := range redirectNames {
		if name == string(text) {
			*k = RedirectKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown redirect kind %q", text)
}

// Redirect is a single redirection attached to a command.
//
// Target is set for redirections that name a file (or the word of a
// here-string); Body is set for heredocs.
type Redirect struct {
	Kind   RedirectKind `json:"kind"`
	Target *Word        `json:"target,omitempty"`
	Body   *Word        `json:"body,omitempty"`
}

// Assignment is a NAME=value pair. Value is raw source text expanded at
// execution time; a value wrapped in parentheses assigns an indexed array.
type Assignment struct {
	Name   string `json:"name"`
	Index  string `json:"index,omitempty"`
	Value  string `json:"value"`
	Append bool   `json:"append,omitempty"`
}

// IsArray reports whether the assignment has the form NAME=(...).
func (a Assignment) IsArray() bool {
	return a.Index == "" && strings.HasPrefix(a.Value, "(") && strings.HasSuffix(a.Value, ")")
}

// ListOp joins the two sides of a List.
type ListOp int

const (
	And ListOp = iota
	Or
	Seq
)

func (op ListOp) String() string {
	switch op {
	case And:
		return "And"
	case Or:
		return "Or"
	case Seq:
		return "Seq"
	default:
		return fmt.Sprintf("ListOp(%d)", int(op))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (op ListOp) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *ListOp) UnmarshalText(text []byte) error {
	switch string(text) {
	case "And":
		*op = And
	case "Or":
		*op = Or
	case "Seq":
		*op = Seq
	default:
		return fmt.Errorf("unknown list operator %q", text)
	}
	return nil
}

// Command is a node in the syntax tree.
type Command interface {
	commandNode()
}

// Simple is a plain command invocation with optional prefix assignments and
// redirections.
type Simple struct {
	Words       []Word       `json:"words"`
	Redirects   []Redirect   `json:"redirects"`
	Assignments []Assignment `json:"assignments"`
}

// Pipeline connects the stdout of each command to the stdin of the next.
type Pipeline struct {
	Commands []Command `json:"commands"`
}

// List joins two commands with &&, || or a sequence separator.
type List struct {
	Left  Command `json:"left"`
	Op    ListOp  `json:"op"`
	Right Command `json:"right"`
}

// If is an if/then/else clause; elif chains are nested Ifs in Else.
type If struct {
	Cond Command `json:"cond"`
	Then Command `json:"then"`
	Else Command `json:"else"`
}

// For loops Var over the expanded Words.
type For struct {
	Var   string  `json:"var"`
	Words []Word  `json:"words"`
	Body  Command `json:"body"`
}

// While loops while Cond succeeds, or until it succeeds when Until is set.
type While struct {
	Cond  Command `json:"cond"`
	Body  Command `json:"body"`
	Until bool    `json:"until,omitempty"`
}

// Subshell runs Body against a copy of the shell state.
type Subshell struct {
	Body Command `json:"body"`
}

// Group runs Body in the current shell state.
type Group struct {
	Body Command `json:"body"`
}

// CaseItem is a single "pattern | pattern) body ;;" arm.
type CaseItem struct {
	Patterns []Word  `json:"patterns"`
	Body     Command `json:"body"`
}

// Case runs the body of the first item with a pattern matching Word.
type Case struct {
	Word  Word       `json:"word"`
	Items []CaseItem `json:"items"`
}

// Function defines a shell function.
type Function struct {
	Name string  `json:"name"`
	Body Command `json:"body"`
}

// Negate inverts the exit status of Body.
type Negate struct {
	Body Command `json:"body"`
}

// Break exits Levels enclosing loops.
type Break struct {
	Levels int `json:"levels"`
}

// Continue resumes the Levels-th enclosing loop.
type Continue struct {
	Levels int `json:"levels"`
}

// Redirected applies redirections to a compound command.
type Redirected struct {
	Body      Command    `json:"body"`
	Redirects []Redirect `json:"redirects"`
}

func (*Simple) commandNode()     {}
func (*Pipeline) commandNode()   {}
func (*List) commandNode()       {}
func (*If) commandNode()         {}
func (*For) commandNode()        {}
func (*While) commandNode()      {}
func (*Subshell) commandNode()   {}
func (*Group) commandNode()      {}
func (*Case) commandNode()       {}
func (*Function) commandNode()   {}
func (*Negate) commandNode()     {}
func (*Break) commandNode()      {}
func (*Continue) commandNode()   {}
func (*Redirected) commandNode() {}

// IsEmpty reports whether the command does nothing at all.
func (s *Simple) IsEmpty() bool {
	return len(s.Words) == 0 && len(s.Redirects) == 0 && len(s.Assignments) == 0
}
