package segeval

import (
	"errors"
	"fmt"
)

// Kind classifies every error the evaluator reports. The set is closed.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindIncompatibleGrids
	KindUnknownMetric
	KindMalformedParameter
	KindNotApplicable
	KindInputLoad
)

func (k Kind) String() string {
	switch k {
	case KindIncompatibleGrids:
		return "IncompatibleGrids"
	case KindUnknownMetric:
		return "UnknownMetric"
	case KindMalformedParameter:
		return "MalformedParameter"
	case KindNotApplicable:
		return "NotApplicable"
	case KindInputLoad:
		return "InputLoad"
	}

	return "Unknown"
}

// Sentinels for use with errors.Is. They carry only a Kind.
var (
	ErrIncompatibleGrids  = &Error{Kind: KindIncompatibleGrids}
	ErrUnknownMetric      = &Error{Kind: KindUnknownMetric}
	ErrMalformedParameter = &Error{Kind: KindMalformedParameter}
	ErrNotApplicable      = &Error{Kind: KindNotApplicable}
	ErrInputLoad          = &Error{Kind: KindInputLoad}
)

// Error is the single error type returned across package boundaries. Op names
// the operation that failed (e.g., "resolve", "prepare", "HDRFDST").
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	out := e.Kind.String()
	if e.Op != "" {
		out = e.Op + ": " + out
	}
	if e.Msg != "" {
		out += ": " + e.Msg
	}
	if e.Err != nil {
		out += ": " + e.Err.Error()
	}

	return out
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against any *Error of the same Kind, so that
// errors.Is(err, ErrNotApplicable) works regardless of Op or Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// IsFatal is true for every error except a per-metric NotApplicable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return KindOf(err) != KindNotApplicable
}
