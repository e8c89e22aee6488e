package ttylog

import (
	"io"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	crlf = regexp.MustCompile(`\r?\n`)
)

// LogSink receives log events.
type LogSink func(e *Entry) error

// LogSource adapts log readers.
type LogSource interface {
	// Next fetches the next available log entry. It returns io.EOF if the
	// source has no more log entries.
	Next() (*Entry, error)
}

// NewLogSink picks the recording format from the file name, asciicast for
// .cast files and UML otherwise.
func NewLogSink(name string, w io.Writer) LogSink {
	if isAsciicast(name) {
		return NewAsciicastLogSink(w, DefaultAsciicastHeader())
	}
	return NewUMLLogSink(w)
}

// NewLogSource reads a recording in the format NewLogSink wrote for name.
func NewLogSource(name string, r io.Reader) LogSource {
	if isAsciicast(name) {
		return NewAsciicastLogSource(r)
	}
	return NewUMLLogSource(r)
}

func isAsciicast(name string) bool {
	return strings.TrimPrefix(filepath.Ext(name), ".") == AsciicastFileExt
}

// NewRealTimePlayback plays back the results in real-time.
// If maxSleep > 0, it's used as the maximum duration to pause.
func NewRealTimePlayback(maxSleep time.Duration, next LogSink) LogSink {
	var once sync.Once
	var prevTimeMicros int64

	return func(e *Entry) error {
		once.Do(func() {
			prevTimeMicros = e.TimestampMicros
		})

		delta := e.TimestampMicros - prevTimeMicros
		prevTimeMicros = e.TimestampMicros

		if maxSleep > 0 {
			sleepDuration := time.Duration(delta) * time.Microsecond
			if sleepDuration > maxSleep {
				sleepDuration = maxSleep
			}
			time.Sleep(sleepDuration)
		}

		return next(e)
	}
}

// NewCRLFAdapter rewrites bare newlines as CRLF so output recorded from a
// non-tty plays back without the cursor creeping across the screen.
func NewCRLFAdapter(next LogSink) LogSink {
	return func(e *Entry) error {
		if e.IsIO() {
			e.Data = crlf.ReplaceAll(e.Data, []byte("\r\n"))
		}

		return next(e)
	}
}

// NewClientOutput writes stdout and stderr to the given writer
func NewClientOutput(w io.Writer) LogSink {
	return func(e *Entry) error {
		if e.IsIO() && e.Fd != FDStdin {
			if _, err := w.Write(e.Data); err != nil {
				return err
			}
		}
		return nil
	}
}

// Replay reads a stream of events to a callback.
func Replay(recording LogSource, callback LogSink) (err error) {
	for {
		e, err := recording.Next()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		if err := callback(e); err != nil {
			return err
		}
	}
}

// Recorder timestamps terminal traffic and forwards it to a sink. It's safe
// for concurrent use.
type Recorder struct {
	mutex  sync.Mutex
	now    func() time.Time
	output LogSink
}

// NewRecorder creates a recorder that forwards all events to output, now
// defaults to time.Now.
func NewRecorder(now func() time.Time, output LogSink) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now, output: output}
}

func (r *Recorder) record(e *Entry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	e.TimestampMicros = r.now().UnixMicro()
	return r.output(e)
}

// Record logs data on the given stream. Empty writes aren't recorded.
func (r *Recorder) Record(fd FD, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	// The sink may hold on to the slice.
	return r.record(&Entry{Kind: KindIO, Fd: fd, Data: append([]byte(nil), data...)})
}

// Close records the end of the session.
func (r *Recorder) Close() error {
	return r.record(&Entry{Kind: KindClose, Fd: FDStdout})
}

// Writer returns a writer that records everything written to w on fd.
// Failures to record are logged, they never fail the write.
func (r *Recorder) Writer(fd FD, w io.Writer) io.Writer {
	return &recordingWriter{r: r, fd: fd, wrapped: w}
}

type recordingWriter struct {
	r       *Recorder
	fd      FD
	wrapped io.Writer
}

var _ io.Writer = (*recordingWriter)(nil)

func (rw *recordingWriter) Write(p []byte) (int, error) {
	n, err := rw.wrapped.Write(p)
	if n > 0 {
		if e2 := rw.r.Record(rw.fd, p[:n]); e2 != nil {
			log.Print(e2)
		}
	}
	return n, err
}
