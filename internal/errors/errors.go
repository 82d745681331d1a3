// Package errors defines the reconciliation error taxonomy.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrInvalidFieldSpec    = errors.New("invalid field spec")
	ErrNoMatchingRule      = errors.New("no matching settlement rule")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidInput        = errors.New("invalid input")
)

// ValidationError describes a malformed trade or confirmation record.
type ValidationError struct {
	Record  string
	ID      string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s: %s: %s", e.Record, e.ID, e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(record, id, field, message string) *ValidationError {
	return &ValidationError{
		Record:  record,
		ID:      id,
		Field:   field,
		Message: message,
	}
}

// NoMatchingRuleError is returned when no active settlement rule applies.
// It matches ErrNoMatchingRule under errors.Is.
type NoMatchingRuleError struct {
	TenantID     string
	Counterparty string
	Product      string
	Direction    string
	Currency     string
}

func (e *NoMatchingRuleError) Error() string {
	return fmt.Sprintf("no matching settlement rule for tenant %s (counterparty=%q product=%s direction=%s currency=%s)",
		e.TenantID, e.Counterparty, e.Product, e.Direction, e.Currency)
}

func (e *NoMatchingRuleError) Is(target error) bool {
	return target == ErrNoMatchingRule
}

// TransitionError reports a status change the machine does not allow.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %q -> %q", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
