package ttylog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// UMLFileExt is the extension conventionally used for UML recordings.
const UMLFileExt = "log"

type umlOp int32

const (
	opOpen  umlOp = 1
	opClose umlOp = 2
	opWrite umlOp = 3
	opExec  umlOp = 4
)

type umlDir int32

const (
	dirRead  umlDir = 1
	dirWrite umlDir = 2
)

// umlEvent is the fixed size header before each chunk of data.
type umlEvent struct {
	Operation    int32  // Operation, maps into umlOp.
	Tty          uint32 // Should always be 0.
	Size         int32  // Number of bytes following this event that represent the data.
	Direction    int32  // Data direction, maps into umlDir.
	Seconds      uint32 // UNIX timestamp of the event.
	Microseconds uint32 // Microseconds after the timestamp of the event.
}

// The format matches User Mode Linux TTY recordings.
func writeUMLEvent(out io.Writer, timestampMicros int64, fd FD, op umlOp, data []byte) error {
	direction := dirWrite
	if fd == FDStdin {
		direction = dirRead
	}

	ev := umlEvent{
		Operation:    int32(op),
		Size:         int32(len(data)),
		Direction:    int32(direction),
		Seconds:      uint32(timestampMicros / int64(time.Second/time.Microsecond)),
		Microseconds: uint32(timestampMicros % int64(time.Second/time.Microsecond)),
	}
	if err := binary.Write(out, binary.LittleEndian, &ev); err != nil {
		return err
	}

	if len(data) > 0 {
		if _, err := out.Write(data); err != nil {
			return err
		}
	}

	return nil
}

// NewUMLLogSink creates a LogSink compatible with the user-mode-linux TTY.
func NewUMLLogSink(w io.Writer) LogSink {
	return func(entry *Entry) error {
		switch entry.Kind {
		case KindIO:
			return writeUMLEvent(w, entry.TimestampMicros, entry.Fd, opWrite, entry.Data)
		case KindClose:
			return writeUMLEvent(w, entry.TimestampMicros, entry.Fd, opClose, nil)
		default:
			return fmt.Errorf("unknown event kind: %d", entry.Kind)
		}
	}
}

// UMLLogSource parses log events from a user-mode-linux formatted file.
type UMLLogSource struct {
	r io.Reader
}

var _ LogSource = (*UMLLogSource)(nil)

// NewUMLLogSource reads log events from a user-mode-linux formatted file.
func NewUMLLogSource(r io.Reader) *UMLLogSource {
	return &UMLLogSource{r: r}
}

// Next gets the next log entry, it returns io.EOF if there are no more.
func (log *UMLLogSource) Next() (*Entry, error) {
	var ev umlEvent
	buf := &bytes.Buffer{}

	for {
		if err := binary.Read(log.r, binary.LittleEndian, &ev); err != nil {
			return nil, io.EOF
		}
		if ev.Size < 0 {
			return nil, fmt.Errorf("malformed event, negative size %d", ev.Size)
		}
		buf.Reset()
		if _, err := io.CopyN(buf, log.r, int64(ev.Size)); err != nil {
			return nil, err
		}

		logTime := int64(ev.Seconds) * int64(time.Second/time.Microsecond)
		logTime += int64(ev.Microseconds)

		// UML doesn't distinguish between stdout and stderr so we'll report it all
		// as stdout.
		fd := FDStdout
		if umlDir(ev.Direction) == dirRead {
			fd = FDStdin
		}

		switch umlOp(ev.Operation) {
		case opClose:
			return &Entry{TimestampMicros: logTime, Kind: KindClose, Fd: fd}, nil
		case opWrite:
			return &Entry{TimestampMicros: logTime, Kind: KindIO, Fd: fd, Data: buf.Bytes()}, nil
		case opOpen, opExec:
			fallthrough
		default:
			// Skip unknown or non-I/O operations
			continue
		}
	}
}
