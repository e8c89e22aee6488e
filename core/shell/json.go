package shell

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Commands serialize as single-key objects naming the node type, for example
// {"Simple":{"words":[{"parts":[{"Literal":"echo"}]}],...}}.

func envelope(kind string, v interface{}) ([]byte, error) {
	return json.Marshal(map[string]interface{}{kind: v})
}

func (c *Simple) MarshalJSON() ([]byte, error) {
	type plain Simple
	return envelope("Simple", (*plain)(c))
}

func (c *Pipeline) MarshalJSON() ([]byte, error) {
	type plain Pipeline
	return envelope("Pipeline", (*plain)(c))
}

func (c *List) MarshalJSON() ([]byte, error) {
	type plain List
	return envelope("List", (*plain)(c))
}

func (c *If) MarshalJSON() ([]byte, error) {
	type plain If
	return envelope("If", (*plain)(c))
}

func (c *For) MarshalJSON() ([]byte, error) {
	type plain For
	return envelope("For", (*plain)(c))
}

func (c *While) MarshalJSON() ([]byte, error) {
	type plain While
	return envelope("While", (*plain)(c))
}

func (c *Subshell) MarshalJSON() ([]byte, error) {
	type plain Subshell
	return envelope("Subshell", (*plain)(c))
}

func (c *Group) MarshalJSON() ([]byte, error) {
	type plain Group
	return envelope("Group", (*plain)(c))
}

func (c *Case) MarshalJSON() ([]byte, error) {
	type plain Case
	return envelope("Case", (*plain)(c))
}

func (c *Function) MarshalJSON() ([]byte, error) {
	type plain Function
	return envelope("Function", (*plain)(c))
}

func (c *Negate) MarshalJSON() ([]byte, error) {
	type plain Negate
	return envelope("Negate", (*plain)(c))
}

func (c *Break) MarshalJSON() ([]byte, error) {
	type plain Break
	return envelope("Break", (*plain)(c))
}

func (c *Continue) MarshalJSON() ([]byte, error) {
	type plain Continue
	return envelope("Continue", (*plain)(c))
}

func (c *Redirected) MarshalJSON() ([]byte, error) {
	type plain Redirected
	return envelope("Redirected", (*plain)(c))
}

// MarshalJSON encodes the part as {"<Kind>": value}, with "quoted" added for
// quoted parts.
func (p WordPart) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{p.Kind.String(): p.Value}
	if p.Quoted {
		out["quoted"] = true
	}
	return json.Marshal(out)
}

func (p *WordPart) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = WordPart{}
	found := false
	for key, value := range raw {
		switch key {
		case "quoted":
			if err := json.Unmarshal(value, &p.Quoted); err != nil {
				return err
			}
		case "Literal", "Variable", "CommandSub":
			if found {
				return fmt.Errorf("word part has multiple kinds")
			}
			found = true
			p.Kind = map[string]PartKind{"Literal": Literal, "Variable": Variable, "CommandSub": CommandSub}[key]
			if err := json.Unmarshal(value, &p.Value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown word part field %q", key)
		}
	}
	if !found {
		return fmt.Errorf("word part missing kind")
	}
	return nil
}

// Marshal serializes a command tree to JSON.
func Marshal(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// Unmarshal decodes a command tree produced by Marshal.
func Unmarshal(data []byte) (Command, error) {
	return decodeCommand(data)
}

// DumpAST parses text and returns its JSON syntax tree, or "null" if the text
// is empty.
func DumpAST(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "null", nil
	}
	cmd, err := Parse(text)
	if err != nil {
		return "", err
	}
	out, err := Marshal(cmd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func decodeCommands(raws []json.RawMessage) ([]Command, error) {
	var out []Command
	for _, raw := range raws {
		cmd, err := decodeCommand(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

func decodeCommand(data json.RawMessage) (Command, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if len(env) != 1 {
		return nil, fmt.Errorf("command must have exactly one type key, got %d", len(env))
	}

	for kind, body := range env {
		cmd, err := decodeNode(kind, body)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", kind, err)
		}
		return cmd, nil
	}
	panic("unreachable")
}

func decodeNode(kind string, body json.RawMessage) (Command, error) {
	switch kind {
	case "Simple":
		type plain Simple
		var out Simple
		err := json.Unmarshal(body, (*plain)(&out))
		return &out, err

	case "Break":
		type plain Break
		var out Break
		err := json.Unmarshal(body, (*plain)(&out))
		return &out, err

	case "Continue":
		type plain Continue
		var out Continue
		err := json.Unmarshal(body, (*plain)(&out))
		return &out, err

	case "Pipeline":
		var v struct {
			Commands []json.RawMessage `json:"commands"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		cmds, err := decodeCommands(v.Commands)
		return &Pipeline{Commands: cmds}, err

	case "List":
		var v struct {
			Left  json.RawMessage `json:"left"`
			Op    ListOp          `json:"op"`
			Right json.RawMessage `json:"right"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		out := &List{Op: v.Op}
		var err error
		if out.Left, err = decodeCommand(v.Left); err != nil {
			return nil, err
		}
		out.Right, err = decodeCommand(v.Right)
		return out, err

	case "If":
		var v struct {
			Cond json.RawMessage `json:"cond"`
			Then json.RawMessage `json:"then"`
			Else json.RawMessage `json:"else"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		out := &If{}
		var err error
		if out.Cond, err = decodeCommand(v.Cond); err != nil {
			return nil, err
		}
		if out.Then, err = decodeCommand(v.Then); err != nil {
			return nil, err
		}
		out.Else, err = decodeCommand(v.Else)
		return out, err

	case "For":
		var v struct {
			Var   string          `json:"var"`
			Words []Word          `json:"words"`
			Body  json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		cmd, err := decodeCommand(v.Body)
		return &For{Var: v.Var, Words: v.Words, Body: cmd}, err

	case "While":
		var v struct {
			Cond  json.RawMessage `json:"cond"`
			Body  json.RawMessage `json:"body"`
			Until bool            `json:"until"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		out := &While{Until: v.Until}
		var err error
		if out.Cond, err = decodeCommand(v.Cond); err != nil {
			return nil, err
		}
		out.Body, err = decodeCommand(v.Body)
		return out, err

	case "Case":
		var v struct {
			Word  Word `json:"word"`
			Items []struct {
				Patterns []Word          `json:"patterns"`
				Body     json.RawMessage `json:"body"`
			} `json:"items"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		out := &Case{Word: v.Word}
		for _, item := range v.Items {
			cmd, err := decodeCommand(item.Body)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, CaseItem{Patterns: item.Patterns, Body: cmd})
		}
		return out, nil

	case "Function":
		var v struct {
			Name string          `json:"name"`
			Body json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		cmd, err := decodeCommand(v.Body)
		return &Function{Name: v.Name, Body: cmd}, err

	case "Redirected":
		var v struct {
			Body      json.RawMessage `json:"body"`
			Redirects []Redirect      `json:"redirects"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		cmd, err := decodeCommand(v.Body)
		return &Redirected{Body: cmd, Redirects: v.Redirects}, err

	case "Subshell", "Group", "Negate":
		var v struct {
			Body json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		cmd, err := decodeCommand(v.Body)
		switch kind {
		case "Subshell":
			return &Subshell{Body: cmd}, err
		case "Group":
			return &Group{Body: cmd}, err
		default:
			return &Negate{Body: cmd}, err
		}
	}

	return nil, fmt.Errorf("unknown command type %q", kind)
}
