package crmledger

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ledger matches exactly one of
// these through errors.Is.
var (
	ErrNotFound            = errors.New("crmledger: not found")
	ErrInvalidReference    = errors.New("crmledger: invalid reference")
	ErrValidation          = errors.New("crmledger: validation failed")
	ErrStateConflict       = errors.New("crmledger: state conflict")
	ErrConcurrencyConflict = errors.New("crmledger: concurrency conflict")
)

// kindError is a sentinel that also matches its kind.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func newKind(kind error, msg string) error {
	return &kindError{msg: "crmledger: " + msg, kind: kind}
}

// Sentinel errors for specific failures.
var (
	// Not found
	ErrCustomerNotFound       = newKind(ErrNotFound, "customer not found")
	ErrPlanNotFound           = newKind(ErrNotFound, "plan not found")
	ErrSubscriptionNotFound   = newKind(ErrNotFound, "subscription not found")
	ErrInvoiceNotFound        = newKind(ErrNotFound, "invoice not found")
	ErrPaymentMethodNotFound  = newKind(ErrNotFound, "payment method not found")
	ErrNoDefaultPaymentMethod = newKind(ErrNotFound, "customer has no default payment method")
	ErrTicketNotFound         = newKind(ErrNotFound, "ticket not found")
	ErrSettingsNotFound       = newKind(ErrNotFound, "settings not found")

	// Lifecycle
	ErrInvalidTransition        = newKind(ErrStateConflict, "invalid subscription transition")
	ErrSubscriptionNotExpirable = newKind(ErrStateConflict, "subscription is not due for expiry")
	ErrPlanNotEnrollable        = newKind(ErrStateConflict, "plan does not accept enrollments")
	ErrCustomerNotActive        = newKind(ErrStateConflict, "customer account is not active")
	ErrInvoiceNotPayable        = newKind(ErrStateConflict, "invoice is not unpaid or overdue")
	ErrInvoiceAlreadyPaid       = newKind(ErrStateConflict, "invoice already paid")
	ErrInvoiceAlreadyCanceled   = newKind(ErrStateConflict, "invoice already canceled")
	ErrAlreadyExists            = newKind(ErrStateConflict, "already exists")

	// Store
	ErrStoreClosed = errors.New("crmledger: store is closed")
)

// ValidationError is a violated input constraint.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("crmledger: validation failed for %s: %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// ReferenceError is a malformed or dangling foreign id.
type ReferenceError struct {
	Entity string
	ID     string
	Reason string
}

func (e ReferenceError) Error() string {
	return fmt.Sprintf("crmledger: invalid %s reference %q: %s", e.Entity, e.ID, e.Reason)
}

// Is matches ErrInvalidReference.
func (e ReferenceError) Is(target error) bool { return target == ErrInvalidReference }

func danglingRef(entity, refID string) error {
	return ReferenceError{Entity: entity, ID: refID, Reason: "does not exist"}
}

// MultiError collects several errors.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "crmledger: no errors"
	case 1:
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("crmledger: %d errors occurred: %s", len(e.Errors), e.Errors[0].Error())
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add appends err if it is non-nil.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors reports whether any error was added.
func (e MultiError) HasErrors() bool { return len(e.Errors) > 0 }

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidReference reports whether err is a dangling or malformed id.
func IsInvalidReference(err error) bool { return errors.Is(err, ErrInvalidReference) }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsStateConflict reports whether err rejects an operation for the
// current lifecycle state.
func IsStateConflict(err error) bool { return errors.Is(err, ErrStateConflict) }

// IsRetryable reports whether err is a lost race worth retrying.
func IsRetryable(err error) bool { return errors.Is(err, ErrConcurrencyConflict) }
