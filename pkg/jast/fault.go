package jast

import "fmt"

// InvariantError is raised (as a panic value) when the pass meets a tree
// that violates one of its preconditions. It signals a defect upstream or in
// the pass itself, never a user error.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Msg
}

// Faultf panics with an *InvariantError.
func Faultf(format string, args ...any) {
	panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
}
