package pledges

import "time"

// End reasons recorded when a policy leaves the Active state.
const (
	EndReasonEndDate        = "end_date_reached"
	EndReasonMaxOccurrences = "max_occurrences_reached"
)

// RecurrencePolicy describes how a pledge repeats and where it is in its lifecycle.
//
// Invariant: IsActive implies NextPaymentDate is set, NextPaymentDate <= EndDate
// when EndDate is set, and TotalExecutions < MaxOccurrences when MaxOccurrences is set.
type RecurrencePolicy struct {
	Frequency      Frequency  `json:"frequency"`
	Interval       int        `json:"interval"`
	DayOfWeek      *int       `json:"day_of_week,omitempty"`
	DayOfMonth     *int       `json:"day_of_month,omitempty"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	MaxOccurrences *int       `json:"max_occurrences,omitempty"`

	IsActive        bool       `json:"is_active"`
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
	TotalExecutions int        `json:"total_executions"`
	EndReason       string     `json:"end_reason,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// Validate rejects malformed policies. Nothing is corrected silently.
func (p RecurrencePolicy) Validate() error {
	if !p.Frequency.Known() {
		return invalid("frequency", "unknown frequency "+string(p.Frequency))
	}
	if p.Interval < 1 {
		return invalid("interval", "must be a positive integer")
	}
	if p.DayOfWeek != nil {
		if p.Frequency != FrequencyWeekly {
			return invalid("day_of_week", "only allowed for weekly frequency")
		}
		if *p.DayOfWeek < 0 || *p.DayOfWeek > 6 {
			return invalid("day_of_week", "must be between 0 and 6")
		}
	}
	if p.DayOfMonth != nil {
		if !p.Frequency.usesDayOfMonth() {
			return invalid("day_of_month", "only allowed for monthly, quarterly or yearly frequency")
		}
		if *p.DayOfMonth < 1 || *p.DayOfMonth > 31 {
			return invalid("day_of_month", "must be between 1 and 31")
		}
	}
	if p.StartDate.IsZero() {
		return invalid("start_date", "required")
	}
	if p.EndDate != nil && !DateOf(*p.EndDate).After(DateOf(p.StartDate)) {
		return invalid("end_date", "must be after start_date")
	}
	if p.MaxOccurrences != nil && *p.MaxOccurrences < 1 {
		return invalid("max_occurrences", "must be a positive integer")
	}
	return nil
}

// Anchored reports whether the policy pins a weekday or a day of month.
func (p RecurrencePolicy) Anchored() bool {
	if p.Frequency == FrequencyWeekly {
		return p.DayOfWeek != nil
	}
	return p.Frequency.usesDayOfMonth() && p.DayOfMonth != nil
}

// RemainingOccurrences returns executions left under MaxOccurrences.
// ok is false when the policy has no cap.
func (p RecurrencePolicy) RemainingOccurrences() (remaining int, ok bool) {
	if p.MaxOccurrences == nil {
		return 0, false
	}
	remaining = *p.MaxOccurrences - p.TotalExecutions
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Clone returns a deep copy so pointer fields are not shared.
func (p RecurrencePolicy) Clone() RecurrencePolicy {
	out := p
	out.DayOfWeek = cloneInt(p.DayOfWeek)
	out.DayOfMonth = cloneInt(p.DayOfMonth)
	out.MaxOccurrences = cloneInt(p.MaxOccurrences)
	out.EndDate = cloneTime(p.EndDate)
	out.NextPaymentDate = cloneTime(p.NextPaymentDate)
	out.EndedAt = cloneTime(p.EndedAt)
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
