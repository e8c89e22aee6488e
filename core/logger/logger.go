package logger

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/sandsh/sandsh/core/interp"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event types.
const (
	TypeCommand    = "command"
	TypeShellError = "shell_error"
)

// Keys every entry carries next to its event fields.
const (
	keyTimestamp = "timestamp_micros"
	keySession   = "session_id"
	keyType      = "type"
)

// Event is a single thing that happened in a session.
type Event interface {
	// EventType names the event in the log.
	EventType() string
	fields() map[string]interface{}
}

// Command is logged after every evaluated command line.
type Command struct {
	Line       string `json:"line"`
	ExitCode   int    `json:"exit_code"`
	DurationMs uint64 `json:"duration_ms"`
	Flow       string `json:"flow"`
}

func (*Command) EventType() string { return TypeCommand }

func (c *Command) fields() map[string]interface{} {
	return map[string]interface{}{
		"line":        c.Line,
		"exit_code":   c.ExitCode,
		"duration_ms": float64(c.DurationMs),
		"flow":        c.Flow,
	}
}

// ShellError is logged when a command line fails to parse or exceeds a
// recursion limit.
type ShellError struct {
	Line  string `json:"line"`
	Error string `json:"error"`
}

func (*ShellError) EventType() string { return TypeShellError }

func (e *ShellError) fields() map[string]interface{} {
	return map[string]interface{}{
		"line":  e.Line,
		"error": e.Error,
	}
}

// LogEntry is one decoded line of the log.
type LogEntry struct {
	TimestampMicros int64
	SessionID       string
	// Event is nil if the type wasn't recognized.
	Event Event
	// Type is kept even for unknown events.
	Type string
}

func (le *LogEntry) toStruct() (*structpb.Struct, error) {
	values := le.Event.fields()
	values[keyTimestamp] = float64(le.TimestampMicros)
	values[keySession] = le.SessionID
	values[keyType] = le.Event.EventType()
	return structpb.NewStruct(values)
}

func entryFromStruct(s *structpb.Struct) *LogEntry {
	fields := s.GetFields()
	str := func(key string) string { return fields[key].GetStringValue() }
	num := func(key string) float64 { return fields[key].GetNumberValue() }

	le := &LogEntry{
		TimestampMicros: int64(num(keyTimestamp)),
		SessionID:       str(keySession),
		Type:            str(keyType),
	}
	switch le.Type {
	case TypeCommand:
		le.Event = &Command{
			Line:       str("line"),
			ExitCode:   int(num("exit_code")),
			DurationMs: uint64(num("duration_ms")),
			Flow:       str("flow"),
		}
	case TypeShellError:
		le.Event = &ShellError{Line: str("line"), Error: str("error")}
	}
	return le
}

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures interaction event logs.
type Logger struct {
	Record LogRecorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	return &Logger{
		Record: func(le *LogEntry) error {
			s, err := le.toStruct()
			if err != nil {
				return err
			}
			entry, err := protojson.Marshal(s)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

func (l *Logger) record(sessionID string, event Event) error {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	return l.Record(&LogEntry{
		TimestampMicros: now().UnixMicro(),
		SessionID:       sessionID,
		Event:           event,
		Type:            event.EventType(),
	})
}

// NewSession creates a logger with a random session ID attached.
func (l *Logger) NewSession() *SessionLogger {
	return l.Session(fmt.Sprintf("%d", rand.Uint64()))
}

// Session creates a logger with the given session ID attached.
func (l *Logger) Session(id string) *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: id}
}

// SessionLogger logs events with a shared session ID. It implements
// interp.EventRecorder; failures to record are written to the standard
// logger.
type SessionLogger struct {
	*Logger
	sessionID string
}

var _ interp.EventRecorder = (*SessionLogger)(nil)

// ID returns the session ID.
func (l *SessionLogger) ID() string {
	return l.sessionID
}

// Record logs a single event.
func (l *SessionLogger) Record(event Event) error {
	return l.record(l.sessionID, event)
}

// RecordCommand implements interp.EventRecorder.
func (l *SessionLogger) RecordCommand(event interp.CommandEvent) {
	l.logFailure(l.Record(&Command{
		Line:       event.Line,
		ExitCode:   event.ExitCode,
		DurationMs: event.DurationMs,
		Flow:       event.Flow,
	}))
}

// RecordShellError implements interp.EventRecorder.
func (l *SessionLogger) RecordShellError(line string, err error) {
	l.logFailure(l.Record(&ShellError{Line: line, Error: err.Error()}))
}

func (l *SessionLogger) logFailure(err error) {
	if err != nil {
		log.Printf("recording event for session %s: %v", l.sessionID, err)
	}
}
