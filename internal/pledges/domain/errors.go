package pledges

import "errors"

var (
	// ErrPledgeNotFound is returned when a pledge does not exist.
	ErrPledgeNotFound = errors.New("pledges: not found")
	// ErrEmptyPledgeID is returned when a pledge id is empty.
	ErrEmptyPledgeID = errors.New("pledges: empty pledge id")
	// ErrNilPledge is returned when saving a nil pledge.
	ErrNilPledge = errors.New("pledges: nil pledge")
	// ErrConcurrencyConflict is returned when a write lost a compare-and-swap race.
	// Callers re-read the pledge and retry the whole operation.
	ErrConcurrencyConflict = errors.New("pledges: concurrency conflict")
	// ErrDuplicateExecution is returned when an idempotency key was already recorded.
	ErrDuplicateExecution = errors.New("pledges: duplicate execution")
	// ErrEmptyIdempotencyKey is returned when an execution has no idempotency key.
	ErrEmptyIdempotencyKey = errors.New("pledges: empty idempotency key")
)

// ValidationError reports a malformed recurrence policy or pledge input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "pledges: invalid " + e.Field + ": " + e.Reason
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
