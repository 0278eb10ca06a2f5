package receipts

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Donation is a recorded financial contribution. Its receipt number is
// assigned once, when the record is created, and never changes.
type Donation struct {
	ID                  string          `json:"id"`
	DonorID             string          `json:"donor_id"`
	PledgeID            string          `json:"pledge_id,omitempty"`
	OccurrenceReference string          `json:"occurrence_reference,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Category            string          `json:"category,omitempty"`
	Description         string          `json:"description,omitempty"`
	ReceiptNumber       string          `json:"receipt_number"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Validate checks caller supplied fields.
func (d *Donation) Validate() error {
	if d == nil {
		return ErrNilDonation
	}
	if strings.TrimSpace(d.DonorID) == "" {
		return &ValidationError{Field: "donor_id", Reason: "required"}
	}
	if !d.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if len(d.Currency) != 3 {
		return &ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
	}
	return nil
}

// Repository persists donations.
//
// CreateWithReceipt allocates the next receipt number of the donation's
// creation month and inserts the donation as one atomic step, setting
// ReceiptNumber on success. Concurrent creations in a month never share a
// number; when the month is exhausted it fails with ErrSequenceExhausted and
// nothing is written.
type Repository interface {
	CreateWithReceipt(ctx context.Context, donation *Donation) error
	Get(ctx context.Context, id string) (*Donation, error)
}
