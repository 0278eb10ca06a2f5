package receipts

import "errors"

var (
	// ErrDonationNotFound is returned when a donation does not exist.
	ErrDonationNotFound = errors.New("receipts: donation not found")
	// ErrSequenceExhausted is returned when a month already used every receipt number.
	ErrSequenceExhausted = errors.New("receipts: monthly receipt sequence exhausted")
	// ErrInvalidReceiptNumber is returned for strings that are not DON-YYYYMM-NNNN.
	ErrInvalidReceiptNumber = errors.New("receipts: invalid receipt number")
	// ErrConcurrencyConflict is returned when an allocation lost a race.
	// Callers retry the whole creation.
	ErrConcurrencyConflict = errors.New("receipts: concurrency conflict")
	// ErrNilDonation is returned when saving a nil donation.
	ErrNilDonation = errors.New("receipts: nil donation")
)

// ValidationError reports malformed donation input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "receipts: invalid " + e.Field + ": " + e.Reason
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
