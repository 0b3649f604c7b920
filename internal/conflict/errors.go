package conflict

import (
	"errors"
	"strings"
)

// Kind classifies engine errors.
type Kind string

const (
	KindDetection           Kind = "detection_failure"
	KindResolution          Kind = "resolution_failure"
	KindUnsupportedStrategy Kind = "unsupported_strategy"
	KindInvariant           Kind = "invariant_violation"
	KindNotFound            Kind = "not_found"
	KindTooLarge            Kind = "too_large"
	KindContentUnavailable  Kind = "content_unavailable"
)

var (
	ErrUnsupportedStrategy = errors.New("strategy not supported")
	ErrNotFound            = errors.New("file not in active conflict set")
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrNoOriginalContent   = errors.New("original generated content unavailable")
	ErrTooLarge            = errors.New("file too large to diff")
	ErrContentUnavailable  = errors.New("content not retained")
)

// Error is the engine's error type. Err is one of the sentinels above or the
// underlying collaborator error.
type Error struct {
	Kind Kind
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
