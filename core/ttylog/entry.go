// Package ttylog records and replays the terminal side of shell sessions.
package ttylog

import "fmt"

// FD identifies the stream an entry was read from or written to.
type FD int32

const (
	FDStdin  FD = 0
	FDStdout FD = 1
	FDStderr FD = 2
)

func (fd FD) String() string {
	switch fd {
	case FDStdin:
		return "stdin"
	case FDStdout:
		return "stdout"
	case FDStderr:
		return "stderr"
	default:
		return fmt.Sprintf("FD(%d)", int32(fd))
	}
}

// EntryKind is the type of a log entry.
type EntryKind int

const (
	// KindIO holds data that crossed the terminal.
	KindIO EntryKind = iota
	// KindClose marks the stream as closed.
	KindClose
)

// Entry is a single recorded terminal event.
type Entry struct {
	TimestampMicros int64
	Kind            EntryKind
	Fd              FD
	Data            []byte
}

// IsIO reports whether the entry carries data.
func (e *Entry) IsIO() bool {
	return e.Kind == KindIO
}
