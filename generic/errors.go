/*
errors.go - Centralized error types for the accounting engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is against the sentinels, or
  errors.As against the structured types when they need details.

ERROR CATEGORIES:
  1. Validation - rejected before any side effect (bad amounts, missing ids)
  2. Readings - meter/amount sanity failures
  3. Not found - terminal for deletion, skip-and-continue for cleanup steps
  4. Integrity - allocation total does not reconcile with the transaction
  5. Compensation - deletion cleanup failed (and maybe its rollback too)
  6. Best effort - logged, never surfaced as the primary failure

SEE ALSO:
  - compensation.go: Produces CompensationError and FatalReconciliationError
  - allocation.go: Produces IntegrityViolationError
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a request is malformed (negative or zero
	// payment, missing identifiers). Nothing has been written.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidInput is returned by the calculators for negative or
	// unparseable inputs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInconsistentReading is returned when a meter reading cannot be
	// explained even after rollover adjustment.
	ErrInconsistentReading = errors.New("inconsistent meter reading")

	// ErrNotFound is the parent of every missing-document error.
	ErrNotFound = errors.New("not found")

	ErrBillNotFound        = fmt.Errorf("bill %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrCreditNotFound      = fmt.Errorf("credit balance %w", ErrNotFound)
	ErrDuesNotFound        = fmt.Errorf("dues record %w", ErrNotFound)
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)

	// ErrIntegrityViolation is returned when allocations do not reconcile
	// with the transaction amount. The transaction is not created.
	ErrIntegrityViolation = errors.New("allocation integrity violation")

	// ErrCompensationFailed is returned when deletion cleanup (Phase B)
	// failed. The credit reversal has been rolled back unless the error also
	// matches ErrFatalReconciliation.
	ErrCompensationFailed = errors.New("compensation failed")

	// ErrFatalReconciliation marks a failed rollback. Manual reconciliation
	// of the credit balance is required.
	ErrFatalReconciliation = errors.New("fatal: manual reconciliation required")

	// ErrBestEffort marks failures of auxiliary work (account adjustments,
	// aggregate refresh) that never block the primary operation.
	ErrBestEffort = errors.New("best-effort operation failed")

	// ErrConcurrentModification is returned when a store detects a conflicting
	// write inside an atomic unit.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateID is returned when a document id already exists.
	ErrDuplicateID = errors.New("duplicate id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InconsistentReadingError carries the readings that could not be explained.
type InconsistentReadingError struct {
	Current     int64
	Previous    int64
	Consumption int64
	Reason      string
}

func (e *InconsistentReadingError) Error() string {
	return fmt.Sprintf("inconsistent meter reading: current %d, previous %d, consumption %d: %s",
		e.Current, e.Previous, e.Consumption, e.Reason)
}

func (e *InconsistentReadingError) Unwrap() error { return ErrInconsistentReading }

// NotFoundError identifies which document is missing.
type NotFoundError struct {
	Kind string // "bill", "transaction", "dues", ...
	ID   string
	base error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	if e.base != nil {
		return e.base
	}
	return ErrNotFound
}

// NewNotFound builds a NotFoundError matching both ErrNotFound and the
// kind-specific sentinel (e.g. ErrBillNotFound).
func NewNotFound(kind, id string) *NotFoundError {
	var base error
	switch kind {
	case "bill":
		base = ErrBillNotFound
	case "transaction":
		base = ErrTransactionNotFound
	case "credit":
		base = ErrCreditNotFound
	case "dues":
		base = ErrDuesNotFound
	case "account":
		base = ErrAccountNotFound
	}
	return &NotFoundError{Kind: kind, ID: id, base: base}
}

// IntegrityViolationError describes an allocation total that does not match
// the transaction amount within IntegrityTolerance.
type IntegrityViolationError struct {
	Expected  Cents
	Actual    Cents
	Tolerance Cents
}

func (e *IntegrityViolationError) Error() string {
	return fmt.Sprintf("allocation integrity violation: expected %s, allocated %s (tolerance %s)",
		e.Expected, e.Actual, e.Tolerance)
}

func (e *IntegrityViolationError) Unwrap() error { return ErrIntegrityViolation }

// CompensationError is returned when deleting a transaction failed during
// the bill cleanup phase. Cause is the original failure; RollbackErr is set
// when restoring the credit balance also failed.
type CompensationError struct {
	TransactionID TransactionID
	Cause         error
	RollbackErr   error
}

func (e *CompensationError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("compensation for transaction %s failed: %v (credit rollback failed: %v)",
			e.TransactionID, e.Cause, e.RollbackErr)
	}
	return fmt.Sprintf("compensation for transaction %s failed: %v (credit reversal rolled back)",
		e.TransactionID, e.Cause)
}

func (e *CompensationError) Unwrap() []error {
	errs := []error{ErrCompensationFailed, e.Cause}
	if e.RollbackErr != nil {
		errs = append(errs, ErrFatalReconciliation, e.RollbackErr)
	}
	return errs
}

// FatalReconciliationError carries what an operator needs to repair a
// credit balance by hand.
type FatalReconciliationError struct {
	UnitID          UnitID
	FiscalYear      int
	TransactionID   TransactionID
	ExpectedBalance Cents // Balance before the deletion attempt
	ActualBalance   Cents // Balance left behind by the failed rollback
	Err             error
}

func (e *FatalReconciliationError) Error() string {
	return fmt.Sprintf("manual reconciliation required: unit %s fiscal year %d transaction %s: expected credit %s, actual %s: %v",
		e.UnitID, e.FiscalYear, e.TransactionID, e.ExpectedBalance, e.ActualBalance, e.Err)
}

func (e *FatalReconciliationError) Unwrap() []error {
	return []error{ErrFatalReconciliation, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInconsistentReading)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
