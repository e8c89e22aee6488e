package vos

import (
	"bytes"
	"io"
	"os"
	"strings"
)

// VIO holds the standard streams of a process.
type VIO interface {
	Stdin() io.ReadCloser
	Stdout() io.WriteCloser
	Stderr() io.WriteCloser
}

// Capture holds the output of a process that ran against in-memory streams.
type Capture struct {
	Stdout bytes.Buffer
	Stderr bytes.Buffer
}

type captureIO struct {
	stdin  io.ReadCloser
	stdout nopWriteCloser
	stderr nopWriteCloser
}

func (c *captureIO) Stdin() io.ReadCloser   { return c.stdin }
func (c *captureIO) Stdout() io.WriteCloser { return c.stdout }
func (c *captureIO) Stderr() io.WriteCloser { return c.stderr }

// NewCaptureIO creates streams that read stdin from a string and collect
// output into the returned Capture.
func NewCaptureIO(stdin string) (VIO, *Capture) {
	capture := &Capture{}
	return &captureIO{
		stdin:  io.NopCloser(strings.NewReader(stdin)),
		stdout: nopWriteCloser{&capture.Stdout},
		stderr: nopWriteCloser{&capture.Stderr},
	}, capture
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// IsDevNull reports whether the path names the null device.
func IsDevNull(path string) bool {
	return path == os.DevNull
}
