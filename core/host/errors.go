package host

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrorKind classifies host failures.
type ErrorKind int

const (
	Other ErrorKind = iota
	NotFound
	PermissionDenied
	IOError
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case IOError:
		return "I/O error"
	default:
		return "error"
	}
}

// Error is returned by every Host operation that fails.
type Error struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, fs.ErrNotExist) and friends to match on Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e.Kind == NotFound
	case fs.ErrPermission:
		return e.Kind == PermissionDenied
	}
	return false
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the kind of err, or Other if it is not a host error.
func KindOf(err error) ErrorKind {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Kind
	}
	return Other
}

// FromError converts a filesystem error into an *Error, classifying it by the
// io/fs sentinel it wraps. A nil error stays nil.
func FromError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var herr *Error
	if errors.As(err, &herr) {
		return herr
	}

	// Strip the *PathError wrapper, the path is carried separately.
	cause := err
	var perr *fs.PathError
	if errors.As(err, &perr) {
		cause = perr.Err
	}

	kind := IOError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = NotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, os.ErrPermission):
		kind = PermissionDenied
	}
	return NewError(kind, op, path, cause)
}
