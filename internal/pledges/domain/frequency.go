package pledges

import "strings"

// Frequency is the base unit a pledge repeats on.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// ParseFrequency normalizes a frequency string. Empty input maps to monthly.
func ParseFrequency(value string) (Frequency, bool) {
	switch Frequency(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return FrequencyMonthly, true
	case FrequencyDaily:
		return FrequencyDaily, true
	case FrequencyWeekly:
		return FrequencyWeekly, true
	case FrequencyMonthly:
		return FrequencyMonthly, true
	case FrequencyQuarterly:
		return FrequencyQuarterly, true
	case FrequencyYearly:
		return FrequencyYearly, true
	default:
		return "", false
	}
}

// Known reports whether f is one of the defined frequencies.
func (f Frequency) Known() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	default:
		return false
	}
}

// monthUnit returns the month count of one step for month-based frequencies.
// Anything that is not daily, weekly, quarterly or yearly steps as monthly.
func (f Frequency) monthUnit() int {
	switch f {
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	default:
		return 1
	}
}

func (f Frequency) usesDayOfMonth() bool {
	return f != FrequencyDaily && f != FrequencyWeekly
}
