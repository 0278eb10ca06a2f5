package memory

import (
	"context"
	"sync"

	receipts "recurring-donations/internal/receipts/domain"
)

// DonationRepository keeps donations and per-month receipt counters in memory.
// One mutex serializes allocation and insert.
type DonationRepository struct {
	mu        sync.RWMutex
	donations map[string]receipts.Donation
	counters  map[string]int
}

// NewDonationRepository constructs a repository.
func NewDonationRepository() *DonationRepository {
	return &DonationRepository{
		donations: make(map[string]receipts.Donation),
		counters:  make(map[string]int),
	}
}

// CreateWithReceipt allocates the month's next receipt number and stores the donation.
func (r *DonationRepository) CreateWithReceipt(ctx context.Context, donation *receipts.Donation) error {
	_ = ctx
	if donation == nil {
		return receipts.ErrNilDonation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.donations[donation.ID]; exists {
		return receipts.ErrConcurrencyConflict
	}
	period := receipts.Period(donation.CreatedAt)
	number, err := receipts.Allocate(donation.CreatedAt, r.counters[period])
	if err != nil {
		return err
	}
	r.counters[period] = number.Sequence
	donation.ReceiptNumber = number.String()
	r.donations[donation.ID] = *donation
	return nil
}

// Get returns a donation or nil.
func (r *DonationRepository) Get(ctx context.Context, id string) (*receipts.Donation, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	donation, ok := r.donations[id]
	if !ok {
		return nil, nil
	}
	return &donation, nil
}
