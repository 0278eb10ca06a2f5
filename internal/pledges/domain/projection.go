package pledges

import (
	"time"

	"github.com/shopspring/decimal"
)

// OccurrenceStatus describes a projected occurrence relative to the projection time.
type OccurrenceStatus string

const (
	OccurrencePending OccurrenceStatus = "pending"
	OccurrenceDue     OccurrenceStatus = "due"
)

// projectionPrealloc bounds the initial slice; an end date may stop the
// projection long before Count.
const projectionPrealloc = 64

// Occurrence is one projected, not yet executed instance of a schedule.
// It is a derived view and is never persisted.
type Occurrence struct {
	Reference   string           `json:"reference"`
	Sequence    int              `json:"sequence"`
	DueDate     time.Time        `json:"due_date"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Status      OccurrenceStatus `json:"status"`
}

// ProjectionRequest carries the display fields and horizon of a projection.
type ProjectionRequest struct {
	PledgeID    string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	Count       int
	// CapByRemaining additionally limits the projection to
	// MaxOccurrences - TotalExecutions when the policy has a cap.
	CapByRemaining bool
}

// Project lists up to req.Count future occurrences starting at the policy's
// next payment date (or start date). It reads p only, ignores IsActive and,
// unless CapByRemaining is set, ignores the execution counters.
func Project(p RecurrencePolicy, req ProjectionRequest, now time.Time) []Occurrence {
	limit := req.Count
	if req.CapByRemaining {
		if remaining, ok := p.RemainingOccurrences(); ok && remaining < limit {
			limit = remaining
		}
	}
	if limit <= 0 {
		return []Occurrence{}
	}

	cursor := DateOf(p.StartDate)
	if p.NextPaymentDate != nil {
		cursor = DateOf(*p.NextPaymentDate)
	}
	today := DateOf(now)

	result := make([]Occurrence, 0, min(limit, projectionPrealloc))
	for i := 0; i < limit; i++ {
		if p.EndDate != nil && cursor.After(DateOf(*p.EndDate)) {
			break
		}
		status := OccurrencePending
		if cursor.Before(today) {
			status = OccurrenceDue
		}
		result = append(result, Occurrence{
			Reference:   OccurrenceReference(req.PledgeID, cursor),
			Sequence:    i + 1,
			DueDate:     cursor,
			Amount:      req.Amount,
			Currency:    req.Currency,
			Category:    req.Category,
			Description: req.Description,
			Status:      status,
		})
		cursor = Next(p, cursor, cursor)
	}
	return result
}

// OccurrenceReference builds the synthetic reference <pledgeID>_<YYYY-MM-DD>.
func OccurrenceReference(pledgeID string, dueDate time.Time) string {
	return pledgeID + "_" + DateOf(dueDate).Format("2006-01-02")
}
