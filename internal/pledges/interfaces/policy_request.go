package interfaces

import (
	"strings"
	"time"

	pledges "recurring-donations/internal/pledges/domain"
)

const dateLayout = "2006-01-02"

// PolicyRequest is the wire form of a recurrence policy. Dates are YYYY-MM-DD.
type PolicyRequest struct {
	Frequency      string `json:"frequency" yaml:"frequency"`
	Interval       *int   `json:"interval,omitempty" yaml:"interval"`
	DayOfWeek      *int   `json:"day_of_week,omitempty" yaml:"day_of_week"`
	DayOfMonth     *int   `json:"day_of_month,omitempty" yaml:"day_of_month"`
	StartDate      string `json:"start_date" yaml:"start_date"`
	EndDate        string `json:"end_date,omitempty" yaml:"end_date"`
	MaxOccurrences *int   `json:"max_occurrences,omitempty" yaml:"max_occurrences"`
}

// ToPolicy converts the request. A missing interval means 1; an empty
// frequency means monthly. Range checks are left to RecurrencePolicy.Validate.
func (r PolicyRequest) ToPolicy() (pledges.RecurrencePolicy, error) {
	frequency, ok := pledges.ParseFrequency(r.Frequency)
	if !ok {
		frequency = pledges.Frequency(strings.ToLower(strings.TrimSpace(r.Frequency)))
	}
	interval := 1
	if r.Interval != nil {
		interval = *r.Interval
	}
	policy := pledges.RecurrencePolicy{
		Frequency:      frequency,
		Interval:       interval,
		DayOfWeek:      r.DayOfWeek,
		DayOfMonth:     r.DayOfMonth,
		MaxOccurrences: r.MaxOccurrences,
	}
	if strings.TrimSpace(r.StartDate) != "" {
		start, err := time.Parse(dateLayout, strings.TrimSpace(r.StartDate))
		if err != nil {
			return policy, &pledges.ValidationError{Field: "start_date", Reason: "must be YYYY-MM-DD"}
		}
		policy.StartDate = start
	}
	if strings.TrimSpace(r.EndDate) != "" {
		end, err := time.Parse(dateLayout, strings.TrimSpace(r.EndDate))
		if err != nil {
			return policy, &pledges.ValidationError{Field: "end_date", Reason: "must be YYYY-MM-DD"}
		}
		policy.EndDate = &end
	}
	return policy, nil
}
