package chatstream

import (
	"errors"
	"fmt"
)

// Fixed user-facing texts. Raw error detail never reaches the transcript.
const (
	DefaultApology    = "I apologize, but I encountered an error. Please try again."
	PermissionApology = "I couldn't access your microphone. Please allow microphone access in your browser settings and try again."
	DefaultGreeting   = "Hello! I'm your PCOS assessment assistant. I can help evaluate your symptoms and provide personalized insights. To get started, could you tell me what symptoms you've been experiencing?"
)

var (
	ErrBusy           = errors.New("a submission is already in flight")
	ErrClosed         = errors.New("controller closed")
	ErrEmptyUtterance = errors.New("utterance is empty")
	ErrIdleTimeout    = errors.New("chat stream idle timeout")
	ErrCanceled       = errors.New("submission canceled")

	errReset = errors.New("conversation reset")
)

// ErrorKind classifies a failed submission.
type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1
	KindParse
	KindPermission
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindParse:
		return "parse"
	case KindPermission:
		return "permission"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the typed failure of one stage of a submission.
type Error struct {
	Kind   ErrorKind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Kind, e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
