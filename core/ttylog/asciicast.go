package ttylog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// AsciicastFileExt holds the suggested file extension for asciicast files.
const AsciicastFileExt = "cast"

// asciicast v2 only has one output stream. Stderr is written to it in red and
// recognized by the same escapes when read back.
const (
	stderrStart = "\x1b[31m"
	stderrEnd   = "\x1b[0m"

	// closeMarker is the label of the marker event written for KindClose.
	closeMarker = "closed"
)

// AsciicastHeader is the first line of an asciicast v2 file.
type AsciicastHeader struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// DefaultAsciicastHeader gives generic settings that should work to display
// most outputs.
func DefaultAsciicastHeader() AsciicastHeader {
	return AsciicastHeader{
		Version: 2,
		Width:   80,
		Height:  24,
		Title:   "sandsh session",
		Env: map[string]string{
			"TERM":  "xterm-256color",
			"SHELL": "/bin/sh",
		},
	}
}

// asciicastEvent is one [time, code, data] line.
type asciicastEvent struct {
	Seconds float64
	Code    string
	Data    string
}

func (e asciicastEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Seconds, e.Code, e.Data})
}

func (e *asciicastEvent) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("malformed line, expected 3 entries got %d", len(raw))
	}
	for i, dst := range []interface{}{&e.Seconds, &e.Code, &e.Data} {
		if err := json.Unmarshal(raw[i], dst); err != nil {
			return fmt.Errorf("malformed entry %d: %w", i, err)
		}
	}
	return nil
}

type asciicastSink struct {
	enc     *json.Encoder
	header  AsciicastHeader
	started bool
	startUs int64
}

func (s *asciicastSink) write(entry *Entry) error {
	if !s.started {
		s.started = true
		s.startUs = entry.TimestampMicros
		s.header.Timestamp = time.UnixMicro(entry.TimestampMicros).Unix()
		if err := s.enc.Encode(s.header); err != nil {
			return err
		}
	}

	ev := asciicastEvent{Seconds: microsecondsToSeconds(entry.TimestampMicros - s.startUs)}
	switch {
	case entry.Kind == KindClose:
		ev.Code, ev.Data = "m", closeMarker
	case entry.Kind != KindIO:
		return fmt.Errorf("unknown event kind: %d", entry.Kind)
	case entry.Fd == FDStdin:
		ev.Code, ev.Data = "i", string(entry.Data)
	case entry.Fd == FDStderr:
		ev.Code, ev.Data = "o", stderrStart+string(entry.Data)+stderrEnd
	default:
		ev.Code, ev.Data = "o", string(entry.Data)
	}
	return s.enc.Encode(ev)
}

// NewAsciicastLogSink creates a LogSink compatible with the asciicast v2
// format. The header timestamp is taken from the first entry.
//
// See: https://github.com/asciinema/asciinema/blob/develop/doc/asciicast-v2.md
func NewAsciicastLogSink(w io.Writer, header AsciicastHeader) LogSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	sink := &asciicastSink{enc: enc, header: header}
	return sink.write
}

// AsciicastLogSource reads entries back from an asciicast v2 file.
type AsciicastLogSource struct {
	dec        *json.Decoder
	header     AsciicastHeader
	headerRead bool
	headerErr  error
}

var _ LogSource = (*AsciicastLogSource)(nil)

func NewAsciicastLogSource(r io.Reader) *AsciicastLogSource {
	return &AsciicastLogSource{dec: json.NewDecoder(r)}
}

// Header returns the file's header line.
func (src *AsciicastLogSource) Header() (AsciicastHeader, error) {
	if !src.headerRead {
		src.headerRead = true
		if err := src.dec.Decode(&src.header); err != nil {
			src.headerErr = fmt.Errorf("malformed header: %w", err)
		}
	}
	return src.header, src.headerErr
}

// Next returns the next entry with its time relative to the start of the
// recording, or io.EOF. Event codes other than input, output and the close
// marker are skipped.
func (src *AsciicastLogSource) Next() (*Entry, error) {
	if _, err := src.Header(); err != nil {
		return nil, err
	}

	for {
		var ev asciicastEvent
		if err := src.dec.Decode(&ev); err != nil {
			return nil, err
		}

		entry := &Entry{
			TimestampMicros: secondsToMicroseconds(ev.Seconds),
			Kind:            KindIO,
			Fd:              FDStdout,
			Data:            []byte(ev.Data),
		}
		switch ev.Code {
		case "i":
			entry.Fd = FDStdin
		case "o":
			if inner, ok := stripStderr(entry.Data); ok {
				entry.Fd, entry.Data = FDStderr, inner
			}
		case "m":
			if ev.Data != closeMarker {
				continue
			}
			entry.Kind, entry.Data = KindClose, nil
		default:
			continue
		}
		return entry, nil
	}
}

func stripStderr(data []byte) ([]byte, bool) {
	if !bytes.HasPrefix(data, []byte(stderrStart)) || !bytes.HasSuffix(data, []byte(stderrEnd)) {
		return data, false
	}
	inner := data[len(stderrStart) : len(data)-len(stderrEnd)]
	// Output that switches colors itself isn't ours.
	if bytes.Contains(inner, []byte("\x1b[")) {
		return data, false
	}
	return inner, true
}

func microsecondsToSeconds(microseconds int64) (seconds float64) {
	return (float64(microseconds) * float64(time.Microsecond)) / float64(time.Second)
}

func secondsToMicroseconds(seconds float64) (microseconds int64) {
	return int64(float64(seconds)*float64(time.Second)) / int64(time.Microsecond)
}
