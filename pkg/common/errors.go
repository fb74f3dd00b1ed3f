package common

import (
	"errors"
	"fmt"
)

// Kind is a coarse error taxonomy string, in the spirit of the
// teacher's pkg/common/err.go Err enum, kept around for logging and for
// callers that want to switch on a stable string rather than an error
// value.
type Kind string

const (
	KindTooFewStates       Kind = "TooFewStates"
	KindNoGroups           Kind = "NoGroups"
	KindNotFound           Kind = "NotFound"
	KindWriteRejected      Kind = "WriteRejected"
	KindBulkWriteRejected  Kind = "BulkWriteRejected"
	KindCorrupt            Kind = "Corrupt"
	KindMetabaseUnavailable Kind = "MetabaseUnavailable"
	KindTransport          Kind = "Transport"
)

// Sentinel errors for the taxonomy in spec.md §7. Compare with
// errors.Is; the engines wrap one of these for every failure in this
// taxonomy. Path-derivation errors (internal/locate) and construction
// errors are returned without a sentinel.
var (
	ErrTooFewStates        = errors.New(string(KindTooFewStates))
	ErrNoGroups            = errors.New(string(KindNoGroups))
	ErrNotFound            = errors.New(string(KindNotFound))
	ErrWriteRejected       = errors.New(string(KindWriteRejected))
	ErrBulkWriteRejected   = errors.New(string(KindBulkWriteRejected))
	ErrCorrupt             = errors.New(string(KindCorrupt))
	ErrMetabaseUnavailable = errors.New(string(KindMetabaseUnavailable))
	ErrTransport           = errors.New(string(KindTransport))
)

// WithKey wraps err with the key's string form, per spec.md §7
// "errors surface to the caller with the key's string form in the
// message".
func WithKey(err error, key fmt.Stringer) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key.String(), err)
}

// Transport wraps a session/RPC error, preserving the original message
// (spec.md §7 "Transport").
func Transport(cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransport, cause)
}
