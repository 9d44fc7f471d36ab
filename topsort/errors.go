package topsort

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCycle           = errors.New("circular ordering constraint detected")
	ErrDuplicateVertex = errors.New("duplicate vertex name")
)

// CycleError names the vertices forming a contradictory ordering.
type CycleError struct {
	// Cycle is a closed path, the first name repeated at the end.
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }
