// Package auditerr defines the error taxonomy shared across the audit
// chain: validation, configuration, integrity, storage, and provider
// failures (spec §7), in increasing severity order.
package auditerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the §7 taxonomy.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindConfig     Kind = "config_error"
	KindIntegrity  Kind = "integrity_violation"
	KindStorage    Kind = "storage_error"
	KindProvider   Kind = "provider_error"
)

// Error wraps an underlying cause with a §7 kind and optional event ID,
// so callers can branch on Kind while errors.Is/errors.As still reach
// the wrapped cause.
type Error struct {
	Kind    Kind
	EventID string
	Err     error
}

func (e *Error) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s: event %s: %v", e.Kind, e.EventID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, eventID string, err error) *Error {
	return &Error{Kind: kind, EventID: eventID, Err: err}
}

func Validation(eventID string, err error) *Error { return New(KindValidation, eventID, err) }
func Config(err error) *Error                     { return New(KindConfig, "", err) }
func Integrity(eventID string, err error) *Error  { return New(KindIntegrity, eventID, err) }
func Storage(eventID string, err error) *Error    { return New(KindStorage, eventID, err) }
func Provider(err error) *Error                    { return New(KindProvider, "", err) }

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
