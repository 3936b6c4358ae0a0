// Package cmaperr holds the error taxonomy shared by every tree variant
// in this module: one exported struct type per failure mode, no central
// error code enum, each type just knows how to describe itself.
package cmaperr

import "fmt"

// NilKeyError is returned when a nil key is passed to Get, PutIfAbsent,
// or Remove.
type NilKeyError struct{}

func (e *NilKeyError) Error() string {
	return "cmap: nil key"
}

// ComparatorPanicError wraps a panic recovered from a user-supplied
// Comparator.Compare call.
type ComparatorPanicError struct {
	Recovered any
}

func (e *ComparatorPanicError) Error() string {
	return fmt.Sprintf("cmap: comparator panicked: %v", e.Recovered)
}

// InvalidConfigError reports a Config field outside its documented range.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("cmap: invalid config field %q: %s", e.Field, e.Reason)
}

// InvariantViolationError marks a broken structural invariant, such as
// parent/child disagreement observed under locks where it must not
// occur. pkg/splaytree panics with one of these wrapped via fmt.Errorf
// rather than returning it; these are fatal, not recoverable.
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("cmap: invariant violated: %s", e.Detail)
}
