package pledges

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pledge is a donor's recurring donation commitment. It owns its RecurrencePolicy.
type Pledge struct {
	ID          string           `json:"id"`
	DonorID     string           `json:"donor_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Policy      RecurrencePolicy `json:"policy"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Validate checks the pledge fields that are not part of the policy.
func (p *Pledge) Validate() error {
	if p == nil {
		return ErrNilPledge
	}
	if strings.TrimSpace(p.DonorID) == "" {
		return invalid("donor_id", "required")
	}
	if !p.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if len(p.Currency) != 3 {
		return invalid("currency", "must be a 3-letter code")
	}
	return nil
}

// Clone returns a deep copy.
func (p *Pledge) Clone() *Pledge {
	if p == nil {
		return nil
	}
	out := *p
	out.Policy = p.Policy.Clone()
	return &out
}

// Execution is the persisted record of one confirmed charge against a pledge.
type Execution struct {
	PledgeID        string     `json:"pledge_id"`
	IdempotencyKey  string     `json:"idempotency_key"`
	Sequence        int        `json:"sequence"`
	ExecutedAt      time.Time  `json:"executed_at"`
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
	Terminated      bool       `json:"terminated"`
}

// Filter narrows pledge listings.
type Filter struct {
	DonorID    string
	ActiveOnly bool
	Limit      int
}

// Repository persists pledges.
//
// Update and SaveExecution are compare-and-swap writes on Version: when the
// stored version differs from expectedVersion they fail with
// ErrConcurrencyConflict, so two racing executions can never both succeed.
// SaveExecution stores the execution record in the same atomic write and fails
// with ErrDuplicateExecution when the idempotency key was already used.
type Repository interface {
	Create(ctx context.Context, pledge *Pledge) error
	Get(ctx context.Context, id string) (*Pledge, error)
	List(ctx context.Context, filter Filter) ([]Pledge, error)
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]Pledge, error)
	Update(ctx context.Context, pledge *Pledge, expectedVersion int) error
	SaveExecution(ctx context.Context, pledge *Pledge, expectedVersion int, execution Execution) error
	FindExecution(ctx context.Context, pledgeID, idempotencyKey string) (*Execution, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }
