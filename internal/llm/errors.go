package llm

import (
	"errors"
	"fmt"
)

// Failure kinds. Every *Error matches exactly one of them with errors.Is.
var (
	ErrInvalidRequest = errors.New("invalid request to model")
	ErrAccessDenied   = errors.New("access denied to model")
	ErrProvider       = errors.New("model provider error")
)

// Error is a classified inference failure.
type Error struct {
	Kind     error
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

func newError(provider string, kind, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf returns the failure kind of err, or nil if err is not an inference failure.
func KindOf(err error) error {
	for _, k := range []error{ErrInvalidRequest, ErrAccessDenied, ErrProvider} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
