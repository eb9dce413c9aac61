package detector

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers on the other side of the C ABI,
// which only ever see a message string.
type Kind int

const (
	KindUnknown Kind = iota
	KindModelLoad
	KindInvalidHandle
	KindInvalidInput
	KindInference
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindModelLoad:
		return "ModelLoadError"
	case KindInvalidHandle:
		return "InvalidHandleError"
	case KindInvalidInput:
		return "InvalidInputError"
	case KindInference:
		return "InferenceError"
	case KindBusy:
		return "BusyError"
	default:
		return "Error"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrModelLoad     = errors.New("model load failed")
	ErrInvalidHandle = errors.New("invalid detector handle")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInference     = errors.New("inference failed")
	ErrBusy          = errors.New("detector busy")
)

func (k Kind) sentinel() error {
	switch k {
	case KindModelLoad:
		return ErrModelLoad
	case KindInvalidHandle:
		return ErrInvalidHandle
	case KindInvalidInput:
		return ErrInvalidInput
	case KindInference:
		return ErrInference
	case KindBusy:
		return ErrBusy
	default:
		return nil
	}
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	var msg string
	if e.Err != nil {
		msg = e.Err.Error()
	} else {
		msg = e.Kind.sentinel().Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. An err that is already an *Error keeps its kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
