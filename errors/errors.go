// Package errors provides error construction helpers that record the call
// site, plus a small classification scheme for failures that cross the
// engine boundary.
package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Kind classifies recoverable failures reported at the chat loop boundary.
type Kind int

const (
	// KindUnknown covers errors with no explicit classification.
	KindUnknown Kind = iota
	// KindInvoke marks failures raised while starting an engine invocation.
	KindInvoke
	// KindStream marks failures raised mid-stream, after invocation began.
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindInvoke:
		return "invoke"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// WithKind tags err with a boundary classification. A nil err stays nil.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf reports the classification of err, walking the wrap chain.
func KindOf(err error) Kind {
	var ke *kindError
	if stderrors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
