package chat

import (
	"errors"
	"fmt"
)

// FaultKind classifies a pipeline failure so its recovery policy is an
// explicit, testable decision instead of a catch-all.
type FaultKind string

const (
	// FaultValidation: malformed input, rejected before any collaborator
	// call. Fatal to the request.
	FaultValidation FaultKind = "validation"
	// FaultMemory: memory search or append failed. Recovered locally,
	// degrades context quality, never surfaced to the caller.
	FaultMemory FaultKind = "memory_unavailable"
	// FaultPersistence: conversation log append failed. Recovered locally,
	// never surfaced to the caller.
	FaultPersistence FaultKind = "persistence_unavailable"
	// FaultGeneration: the responder failed or timed out. Terminal for the
	// turn; the caller receives a fixed apology string.
	FaultGeneration FaultKind = "generation_failure"
)

// Fault wraps a collaborator error with its kind and the operation that
// produced it.
type Fault struct {
	Kind FaultKind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Kind, f.Op)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

func newFault(kind FaultKind, op string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the fault kind from an error chain; empty when err is not
// a pipeline fault.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// IsValidation reports whether err is an input validation fault.
func IsValidation(err error) bool {
	return KindOf(err) == FaultValidation
}
