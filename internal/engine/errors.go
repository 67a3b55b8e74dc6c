package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownRecord is returned when an acknowledgment names a record that
// is not (or no longer) held.
var ErrUnknownRecord = errors.New("unknown record")

// Failure is a condition the engine detected, logged and absorbed.
//
// Nothing the engine does in response to a row, a delivery result or a
// persistence error is fatal: every failure becomes a no-op plus a
// diagnostic record. Failure carries enough structure for the status line
// and for tests to tell the categories apart.
type Failure struct {
	// Kind identifies the failure category.
	Kind FailureKind

	// Message is a human-readable description.
	Message string

	// RecordKey identifies the affected record, if any.
	RecordKey string

	// Err is the underlying cause.
	Err error
}

// FailureKind categorizes failures.
type FailureKind string

const (
	// ParseFailure means a row could not be classified. The row is dropped
	// and counted.
	ParseFailure FailureKind = "PARSE_FAILURE"

	// TransientDeliveryFailure means the sink rejected or timed out a
	// delivery. It is logged and not retried.
	TransientDeliveryFailure FailureKind = "TRANSIENT_DELIVERY_FAILURE"

	// StateCorruption means persisted state was unreadable and replaced
	// with empty state.
	StateCorruption FailureKind = "STATE_CORRUPTION"

	// ResourceExhaustion means a state write failed or a container grew
	// past its cap. An eviction pass runs in response.
	ResourceExhaustion FailureKind = "RESOURCE_EXHAUSTION"
)

// Error implements the error interface.
func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: %s", f.Kind, f.Message)
	if f.RecordKey != "" {
		msg += fmt.Sprintf(" (record=%s)", f.RecordKey)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

func isKind(err error, kind FailureKind) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}

// IsParseFailure returns true if err is a ParseFailure.
func IsParseFailure(err error) bool {
	return isKind(err, ParseFailure)
}

// IsTransientDeliveryFailure returns true if err is a TransientDeliveryFailure.
func IsTransientDeliveryFailure(err error) bool {
	return isKind(err, TransientDeliveryFailure)
}

// IsStateCorruption returns true if err is a StateCorruption failure.
func IsStateCorruption(err error) bool {
	return isKind(err, StateCorruption)
}

// IsResourceExhaustion returns true if err is a ResourceExhaustion failure.
func IsResourceExhaustion(err error) bool {
	return isKind(err, ResourceExhaustion)
}

// logFailure emits the diagnostic record for f. Delivery and parse failures
// are warnings; state problems are errors.
func logFailure(f *Failure) {
	level := slog.LevelWarn
	if f.Kind == StateCorruption || f.Kind == ResourceExhaustion {
		level = slog.LevelError
	}
	attrs := []any{"failure", string(f.Kind)}
	if f.RecordKey != "" {
		attrs = append(attrs, "record_key", f.RecordKey)
	}
	if f.Err != nil {
		attrs = append(attrs, "error", f.Err)
	}
	slog.Log(context.Background(), level, f.Message, attrs...)
}
