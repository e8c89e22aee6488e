package logger

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var rawEntry json.RawMessage
		if err := decoder.Decode(&rawEntry); err != nil {
			return err
		}

		var s structpb.Struct
		if err := protojson.Unmarshal(rawEntry, &s); err != nil {
			return err
		}

		handler(entryFromStruct(&s))
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	Command    CommandReport    `json:"command_report"`
	ShellError ShellErrorReport `json:"shell_error_report"`

	sessions map[string]bool
}

// Sessions returns the number of distinct sessions seen.
func (r *Report) Sessions() int {
	return len(r.sessions)
}

// Update adds a single entry to the report.
func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	if le.SessionID != "" {
		if r.sessions == nil {
			r.sessions = make(map[string]bool)
		}
		r.sessions[le.SessionID] = true
	}

	switch event := le.Event.(type) {
	case *Command:
		r.Command.update(event)
	case *ShellError:
		r.ShellError.update(event)
	default:
		r.InvalidEntries.Increment(le.Type)
	}
}

// CommandReport summarizes evaluated command lines.
type CommandReport struct {
	Count int `json:"count"`
	// Names of the first program on each line.
	CommandNames StrCounter `json:"command_names"`
	ExitCodes    StrCounter `json:"exit_codes"`
	Flows        StrCounter `json:"flows"`
	// TotalMs is the summed execution time.
	TotalMs uint64 `json:"total_ms"`
}

func (r *CommandReport) update(c *Command) {
	r.Count++
	if fields := strings.Fields(c.Line); len(fields) > 0 {
		r.CommandNames.Increment(fields[0])
	}
	r.ExitCodes.Increment(strconv.Itoa(c.ExitCode))
	r.Flows.Increment(c.Flow)
	r.TotalMs += c.DurationMs
}

// ShellErrorReport groups lines that couldn't be evaluated.
type ShellErrorReport struct {
	Errors *PathCounter `json:"errors"`
}

func (r *ShellErrorReport) update(e *ShellError) {
	if r.Errors == nil {
		r.Errors = NewPathCounter("line", "error")
	}
	r.Errors.Increment(e.Line, e.Error)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts tuples of strings.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// Get returns the count for the given tuple.
func (ctr *PathCounter) Get(vals ...string) int {
	return ctr.internal[toKey(vals...)]
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	var out []Count
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
