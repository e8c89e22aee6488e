package interp

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/sandsh/sandsh/core/shell"
)

const (
	// MaxFunctionDepth is the deepest allowed nesting of function calls.
	MaxFunctionDepth = 100
	// MaxSubstitutionDepth is the deepest allowed nesting of command
	// substitutions.
	MaxSubstitutionDepth = 50

	// DefaultRandSeed seeds $RANDOM.
	DefaultRandSeed uint64 = 12345
	// ShellName is reported as $0 and prefixes diagnostics.
	ShellName = "sandsh"
)

// Options holds the shell options toggled by set.
type Options struct {
	Errexit  bool
	Nounset  bool
	Pipefail bool
}

// ParamError is a pending parameter expansion failure such as an unbound
// variable under nounset or ${var:?message}.
type ParamError struct {
	Name    string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// State is everything a shell session remembers between command lines.
type State struct {
	Env       map[string]string
	Arrays    map[string][]string
	Assoc     map[string]map[string]string
	Functions map[string]shell.Command
	Readonly  map[string]bool
	Traps     map[string]string

	Options    Options
	Positional []string
	ScriptName string

	LastExitCode      int
	FunctionDepth     int
	SubstitutionDepth int

	// Locals is the stack of function scopes. Each scope maps a variable to
	// the binding it had before the function shadowed it.
	Locals []map[string]SavedVar

	History []string
	Cwd     string

	RandSeed    uint64
	StartTimeMs uint64

	ParamError *ParamError

	sourceDepth int

	// optInd is the OPTIND getopts last stored and optPos the offset of the
	// next option letter within that argument.
	optInd, optPos int
}

// NewState returns a State holding the default environment.
func NewState() *State {
	return &State{
		Env: map[string]string{
			"HOME":  "/home/user",
			"PWD":   "/home/user",
			"USER":  "user",
			"PATH":  "/bin:/usr/bin",
			"SHELL": "/bin/sh",
		},
		Arrays:     make(map[string][]string),
		Assoc:      make(map[string]map[string]string),
		Functions:  make(map[string]shell.Command),
		Readonly:   make(map[string]bool),
		Traps:      make(map[string]string),
		ScriptName: ShellName,
		Cwd:        "/home/user",
		RandSeed:   DefaultRandSeed,
	}
}

// Clone returns a deep copy of the state for subshells.
func (s *State) Clone() *State {
	out := *s

	out.Env = copyStrings(s.Env)
	out.Readonly = make(map[string]bool, len(s.Readonly))
	for k, v := range s.Readonly {
		out.Readonly[k] = v
	}
	out.Traps = copyStrings(s.Traps)

	out.Arrays = make(map[string][]string, len(s.Arrays))
	for k, v := range s.Arrays {
		out.Arrays[k] = append([]string(nil), v...)
	}
	out.Assoc = make(map[string]map[string]string, len(s.Assoc))
	for k, v := range s.Assoc {
		out.Assoc[k] = copyStrings(v)
	}

	// Function bodies are never mutated after parsing so they can be shared.
	out.Functions = make(map[string]shell.Command, len(s.Functions))
	for k, v := range s.Functions {
		out.Functions[k] = v
	}

	out.Positional = append([]string(nil), s.Positional...)
	out.History = append([]string(nil), s.History...)

	out.Locals = make([]map[string]SavedVar, len(s.Locals))
	for i, scope := range s.Locals {
		cp := make(map[string]SavedVar, len(scope))
		for k, v := range scope {
			cp[k] = v.clone()
		}
		out.Locals[i] = cp
	}

	if s.ParamError != nil {
		perr := *s.ParamError
		out.ParamError = &perr
	}
	return &out
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Environ returns the variables as sorted "key=value" pairs for spawned
// programs.
func (s *State) Environ() []string {
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// VarKind is the kind of binding a name has.
type VarKind int

const (
	VarUnset VarKind = iota
	VarScalar
	VarArray
	VarAssoc
)

// SavedVar is a binding as it was before a function shadowed it.
type SavedVar struct {
	Kind  VarKind
	Value string
	Array []string
	Assoc map[string]string

	Readonly bool
}

func (v SavedVar) clone() SavedVar {
	v.Array = append([]string(nil), v.Array...)
	if v.Assoc != nil {
		v.Assoc = copyStrings(v.Assoc)
	}
	return v
}

// snapshot captures the binding of name, of whatever kind.
func (s *State) snapshot(name string) SavedVar {
	v := SavedVar{Kind: VarUnset, Readonly: s.Readonly[name]}
	if val, ok := s.Env[name]; ok {
		v.Kind, v.Value = VarScalar, val
	} else if arr, ok := s.Arrays[name]; ok {
		v.Kind, v.Array = VarArray, append([]string(nil), arr...)
	} else if m, ok := s.Assoc[name]; ok {
		v.Kind, v.Assoc = VarAssoc, copyStrings(m)
	}
	return v
}

// restore rebinds name exactly as saved, ignoring readonly.
func (s *State) restore(name string, v SavedVar) {
	s.dropVar(name)
	switch v.Kind {
	case VarScalar:
		s.Env[name] = v.Value
	case VarArray:
		s.Arrays[name] = v.Array
	case VarAssoc:
		s.Assoc[name] = v.Assoc
	}
	if v.Readonly {
		s.Readonly[name] = true
	} else {
		delete(s.Readonly, name)
	}
}

// dropVar removes every kind of binding for name, ignoring readonly.
func (s *State) dropVar(name string) {
	delete(s.Env, name)
	delete(s.Arrays, name)
	delete(s.Assoc, name)
}

// Getenv returns a scalar variable, the first element of an array variable,
// or "" if unset.
func (s *State) Getenv(name string) string {
	v, _ := s.Lookup(name)
	return v
}

// Lookup returns a scalar variable and whether it is set.
func (s *State) Lookup(name string) (string, bool) {
	if v, ok := s.Env[name]; ok {
		return v, true
	}
	if arr, ok := s.Arrays[name]; ok {
		if len(arr) == 0 {
			return "", true
		}
		return arr[0], true
	}
	if m, ok := s.Assoc[name]; ok {
		return m["0"], true
	}
	return "", false
}

// Setenv assigns a scalar variable. Assigning to an indexed array sets its
// first element.
func (s *State) Setenv(name, value string) error {
	if s.Readonly[name] {
		return fmt.Errorf("%s: readonly variable", name)
	}
	if name == "RANDOM" {
		// Assigning to RANDOM reseeds the generator.
		if seed, err := strconv.ParseUint(value, 10, 64); err == nil {
			s.RandSeed = seed
		}
		return nil
	}
	if arr, ok := s.Arrays[name]; ok {
		if len(arr) == 0 {
			arr = []string{""}
		}
		arr[0] = value
		s.Arrays[name] = arr
		return nil
	}
	s.Env[name] = value
	return nil
}

// Unsetenv removes a variable of any kind.
func (s *State) Unsetenv(name string) error {
	if s.Readonly[name] {
		return fmt.Errorf("%s: cannot unset: readonly variable", name)
	}
	s.dropVar(name)
	return nil
}

// SetArray replaces an indexed array.
func (s *State) SetArray(name string, values []string) error {
	if s.Readonly[name] {
		return fmt.Errorf("%s: readonly variable", name)
	}
	delete(s.Env, name)
	delete(s.Assoc, name)
	s.Arrays[name] = values
	return nil
}

// SetIndex assigns one element of an indexed or associative array. Indexed
// arrays grow with empty elements as needed.
func (s *State) SetIndex(name, index, value string) error {
	if s.Readonly[name] {
		return fmt.Errorf("%s: readonly variable", name)
	}
	if m, ok := s.Assoc[name]; ok {
		m[index] = value
		return nil
	}

	i, err := parseIndex(index)
	if err != nil {
		return fmt.Errorf("%s[%s]: bad array subscript", name, index)
	}
	arr, ok := s.Arrays[name]
	if !ok {
		if v, isScalar := s.Env[name]; isScalar {
			arr = []string{v}
			delete(s.Env, name)
		}
	}
	if i < 0 {
		i += len(arr)
		if i < 0 {
			return fmt.Errorf("%s[%s]: bad array subscript", name, index)
		}
	}
	for len(arr) <= i {
		arr = append(arr, "")
	}
	arr[i] = value
	s.Arrays[name] = arr
	return nil
}

// declareLocal saves the current binding of name in the innermost function
// scope so it is restored when the function returns. It reports whether the
// name became local by this call: false if it already was, or outside of a
// function.
func (s *State) declareLocal(name string) bool {
	if len(s.Locals) == 0 {
		return false
	}
	scope := s.Locals[len(s.Locals)-1]
	if _, saved := scope[name]; saved {
		return false
	}
	scope[name] = s.snapshot(name)
	return true
}

func (s *State) pushScope() {
	s.Locals = append(s.Locals, make(map[string]SavedVar))
}

func (s *State) popScope() {
	n := len(s.Locals)
	if n == 0 {
		return
	}
	for name, prev := range s.Locals[n-1] {
		s.restore(name, prev)
	}
	s.Locals = s.Locals[:n-1]
}

// nextRandom advances the xorshift64 generator behind $RANDOM.
func (s *State) nextRandom() uint64 {
	x := s.RandSeed
	if x == 0 {
		x = DefaultRandSeed
	}
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	s.RandSeed = x
	return x % 32768
}
