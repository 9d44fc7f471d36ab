package container

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSpecifier  = errors.New("invalid specifier")
	ErrNotFound          = errors.New("specifier not found")
	ErrConstructorFailed = errors.New("constructor failed")
	ErrNilResolver       = errors.New("resolver is nil")
	ErrWrongType         = errors.New("resolved value has unexpected type")
	ErrSharedValue       = errors.New("non-singleton registered as a shared value")
)

// NotFoundError is returned when neither the registry, a resolver nor a
// fallback produced a value.
type NotFoundError struct {
	Specifier Specifier
	// Tried lists every specifier attempted, the requested one first and
	// then each fallback in the order it was followed.
	Tried []Specifier
}

func (e *NotFoundError) Error() string {
	if len(e.Tried) <= 1 {
		return fmt.Sprintf("%s: %s", ErrNotFound, e.Specifier)
	}
	names := make([]string, len(e.Tried))
	for i, s := range e.Tried {
		names[i] = s.String()
	}
	return fmt.Sprintf("%s: %s (tried %s)", ErrNotFound, e.Specifier, strings.Join(names, " -> "))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
