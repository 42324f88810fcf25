// Package verror replaces the bare try/except-and-log pattern of the
// original Python services with an explicit, typed error taxonomy. Every
// boundary that used to catch Exception now returns one of these Kinds, so
// a caller can decide whether to retry, drop the record, or escalate
// without string-matching an error message.
package verror

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	// Transient is a network/timeout failure worth retrying on the next
	// poll tick: a dropped HTTP connection, a Redis timeout.
	Transient Kind = "transient"

	// VenueRejection is a definitive rejection by a venue's API: bad
	// request, insufficient balance, market closed. Retrying with the
	// same parameters will not help.
	VenueRejection Kind = "venue_rejection"

	// SchemaDecode is a malformed payload: a venue changed its response
	// shape, or a stream record failed to unmarshal.
	SchemaDecode Kind = "schema_decode"

	// JudgeFailure is a similarity judge (LLM call) that errored or
	// returned a non-boolean verdict. Callers must treat this the same
	// as a conservative "not similar" rather than propagate the error.
	JudgeFailure Kind = "judge_failure"

	// PersistenceConflict is a store-layer unique-constraint violation:
	// the row already exists, which is the expected outcome of
	// concurrent upserts, not a failure.
	PersistenceConflict Kind = "persistence_conflict"

	// Unexpected is anything not classified above.
	Unexpected Kind = "unexpected"
)

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify returns the Kind of err, or Unexpected if err was not
// constructed via New.
func Classify(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return Unexpected
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return Classify(err) == kind
}

// Retryable reports whether the stage's poll loop should retry this record
// on its next tick rather than drop it. Only Transient failures qualify;
// everything else needs either a code fix (SchemaDecode), a different
// venue response (VenueRejection), or is already a success in disguise
// (PersistenceConflict).
func Retryable(err error) bool {
	return Classify(err) == Transient
}
