package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sandsh/sandsh/core/interp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Unix(1600000000, 0)
}

func TestJsonLinesLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	l := NewJsonLinesLogRecorder(&buf)
	l.Now = fixedNow
	session := l.Session("abc")

	session.RecordCommand(interp.CommandEvent{Line: "echo hi", ExitCode: 0, DurationMs: 3, Flow: "normal"})
	session.RecordShellError("if", errors.New("syntax error"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
	}

	var entries []*LogEntry
	require.NoError(t, ReadJSONLinesLog(&buf, func(le *LogEntry) {
		entries = append(entries, le)
	}))
	require.Len(t, entries, 2)

	assert.Equal(t, "abc", entries[0].SessionID)
	assert.Equal(t, fixedNow().UnixMicro(), entries[0].TimestampMicros)
	assert.Equal(t, &Command{Line: "echo hi", DurationMs: 3, Flow: "normal"}, entries[0].Event)
	assert.Equal(t, &ShellError{Line: "if", Error: "syntax error"}, entries[1].Event)
}

func TestReadJSONLinesLog_invalid(t *testing.T) {
	err := ReadJSONLinesLog(strings.NewReader("{not json"), func(*LogEntry) {})
	assert.Error(t, err)
}

func TestNewSession(t *testing.T) {
	l := NewJsonLinesLogRecorder(&bytes.Buffer{})
	assert.NotEmpty(t, l.NewSession().ID())
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	l := NewJsonLinesLogRecorder(&buf)
	a, b := l.Session("a"), l.Session("b")

	a.RecordCommand(interp.CommandEvent{Line: "ls -l", ExitCode: 0, DurationMs: 2, Flow: "normal"})
	a.RecordCommand(interp.CommandEvent{Line: "ls /missing", ExitCode: 2, DurationMs: 1, Flow: "normal"})
	b.RecordCommand(interp.CommandEvent{Line: "exit 3", ExitCode: 3, Flow: "exit"})
	b.RecordShellError("fi", errors.New("unexpected fi"))
	buf.WriteString(`{"type":"mystery","session_id":"b"}` + "\n")

	var report Report
	require.NoError(t, ReadJSONLinesLog(&buf, report.Update))

	assert.Equal(t, 5, report.LogEntries)
	assert.Equal(t, 2, report.Sessions())
	assert.Equal(t, 3, report.Command.Count)
	assert.Equal(t, 2, report.Command.CommandNames.Get("ls"))
	assert.Equal(t, 1, report.Command.ExitCodes.Get("3"))
	assert.Equal(t, 1, report.Command.Flows.Get("exit"))
	assert.Equal(t, uint64(3), report.Command.TotalMs)
	assert.Equal(t, 1, report.ShellError.Errors.Get("fi", "unexpected fi"))
	assert.Equal(t, 1, report.InvalidEntries.Get("mystery"))

	_, err := json.Marshal(&report)
	assert.NoError(t, err)
}
