package pledges

import (
	"reflect"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestNext_MonthlyDay31ClampsToEndOfFebruary(t *testing.T) {
	policy := RecurrencePolicy{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: intPtr(31), StartDate: date(2024, 1, 1)}

	cases := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{name: "leap year from february", from: date(2024, 2, 1), want: date(2024, 2, 29)},
		{name: "leap year from january 31", from: date(2024, 1, 31), want: date(2024, 2, 29)},
		{name: "common year from january 31", from: date(2023, 1, 31), want: date(2023, 2, 28)},
		{name: "back to 31 after february", from: date(2024, 2, 29), want: date(2024, 3, 31)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Next(policy, tc.from, tc.from)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want.Format("2006-01-02"), got.Format("2006-01-02"))
			}
		})
	}
}

func TestNext_WeeklyAnchorSameDayJumpsInterval(t *testing.T) {
	policy := RecurrencePolicy{Frequency: FrequencyWeekly, Interval: 2, DayOfWeek: intPtr(int(time.Monday)), StartDate: date(2024, 1, 1)}
	now := date(2024, 1, 8)

	got := Next(policy, now, now)
	if want := date(2024, 1, 22); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want.Format("2006-01-02"), got.Format("2006-01-02"))
	}
}

func TestNext_WeeklyAnchorEarlierInWeek(t *testing.T) {
	policy := RecurrencePolicy{Frequency: FrequencyWeekly, Interval: 1, DayOfWeek: intPtr(int(time.Monday)), StartDate: date(2024, 1, 1)}
	from := date(2024, 1, 10) // Wednesday

	got := Next(policy, from, from)
	if want := date(2024, 1, 15); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want.Format("2006-01-02"), got.Format("2006-01-02"))
	}
}

func TestNext_Unanchored(t *testing.T) {
	cases := []struct {
		name   string
		policy RecurrencePolicy
		from   time.Time
		want   time.Time
	}{
		{"daily interval 3", RecurrencePolicy{Frequency: FrequencyDaily, Interval: 3}, date(2024, 1, 30), date(2024, 2, 2)},
		{"weekly interval 2", RecurrencePolicy{Frequency: FrequencyWeekly, Interval: 2}, date(2024, 1, 3), date(2024, 1, 17)},
		{"monthly keeps day clamped", RecurrencePolicy{Frequency: FrequencyMonthly, Interval: 1}, date(2024, 1, 31), date(2024, 2, 29)},
		{"quarterly", RecurrencePolicy{Frequency: FrequencyQuarterly, Interval: 1}, date(2024, 11, 30), date(2025, 2, 28)},
		{"yearly from leap day", RecurrencePolicy{Frequency: FrequencyYearly, Interval: 1}, date(2024, 2, 29), date(2025, 2, 28)},
		{"unknown frequency steps monthly", RecurrencePolicy{Frequency: Frequency("fortnightly"), Interval: 1}, date(2024, 1, 10), date(2024, 2, 10)},
		{"zero interval treated as one", RecurrencePolicy{Frequency: FrequencyDaily}, date(2024, 1, 1), date(2024, 1, 2)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Next(tc.policy, tc.from, tc.from)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want.Format("2006-01-02"), got.Format("2006-01-02"))
			}
		})
	}
}

func TestNext_AnchoredMonthBasedUnits(t *testing.T) {
	cases := []struct {
		name   string
		policy RecurrencePolicy
		from   time.Time
		want   time.Time
	}{
		{"monthly interval 2", RecurrencePolicy{Frequency: FrequencyMonthly, Interval: 2, DayOfMonth: intPtr(5)}, date(2024, 1, 5), date(2024, 3, 5)},
		{"quarterly", RecurrencePolicy{Frequency: FrequencyQuarterly, Interval: 1, DayOfMonth: intPtr(15)}, date(2024, 1, 15), date(2024, 4, 15)},
		{"yearly clamps leap day", RecurrencePolicy{Frequency: FrequencyYearly, Interval: 1, DayOfMonth: intPtr(29)}, date(2024, 2, 29), date(2025, 2, 28)},
		{"pin later in same month", RecurrencePolicy{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: intPtr(20)}, date(2024, 1, 5), date(2024, 1, 20)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Next(tc.policy, tc.from, tc.from)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want.Format("2006-01-02"), got.Format("2006-01-02"))
			}
		})
	}
}

func TestNext_AnchoredResultStrictlyAfterNow(t *testing.T) {
	policies := []RecurrencePolicy{
		{Frequency: FrequencyWeekly, Interval: 1, DayOfWeek: intPtr(3)},
		{Frequency: FrequencyWeekly, Interval: 3, DayOfWeek: intPtr(0)},
		{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: intPtr(10)},
		{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: intPtr(31)},
		{Frequency: FrequencyQuarterly, Interval: 1, DayOfMonth: intPtr(1)},
		{Frequency: FrequencyYearly, Interval: 1, DayOfMonth: intPtr(28)},
	}
	from := date(2024, 1, 10)
	nows := []time.Time{date(2024, 1, 10), date(2024, 1, 31), date(2024, 5, 20), date(2026, 2, 28)}
	for _, policy := range policies {
		for _, now := range nows {
			got := Next(policy, from, now)
			if !got.After(now) {
				t.Fatalf("policy %+v now %s: result %s is not after now", policy, now.Format("2006-01-02"), got.Format("2006-01-02"))
			}
		}
	}
}

func TestNext_DoesNotMutatePolicy(t *testing.T) {
	policy := RecurrencePolicy{
		Frequency:       FrequencyMonthly,
		Interval:        1,
		DayOfMonth:      intPtr(15),
		StartDate:       date(2024, 1, 1),
		EndDate:         timePtr(date(2024, 12, 31)),
		NextPaymentDate: timePtr(date(2024, 1, 15)),
		IsActive:        true,
	}
	before := policy.Clone()

	_ = Next(policy, *policy.NextPaymentDate, date(2024, 1, 15))

	if !reflect.DeepEqual(before, policy) {
		t.Fatalf("policy mutated: before=%+v after=%+v", before, policy)
	}
}

func TestFirstDueDate(t *testing.T) {
	cases := []struct {
		name   string
		policy RecurrencePolicy
		want   time.Time
	}{
		{"unanchored uses start", RecurrencePolicy{Frequency: FrequencyMonthly, Interval: 1, StartDate: date(2024, 1, 17)}, date(2024, 1, 17)},
		{"weekday later in week", RecurrencePolicy{Frequency: FrequencyWeekly, Interval: 1, DayOfWeek: intPtr(3), StartDate: date(2024, 1, 1)}, date(2024, 1, 3)},
		{"weekday earlier in week", RecurrencePolicy{Frequency: FrequencyWeekly, Interval: 1, DayOfWeek: intPtr(0), StartDate: date(2024, 1, 1)}, date(2024, 1, 7)},
		{"day of month on start", RecurrencePolicy{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: intPtr(1), StartDate: date(2024, 1, 1)}, date(2024, 1, 1)},
		{"day of month already passed", RecurrencePolicy{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: intPtr(10), StartDate: date(2024, 1, 15)}, date(2024, 2, 10)},
		{"day of month crosses year", RecurrencePolicy{Frequency: FrequencyYearly, Interval: 1, DayOfMonth: intPtr(5), StartDate: date(2024, 12, 20)}, date(2025, 1, 5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FirstDueDate(tc.policy)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want.Format("2006-01-02"), got.Format("2006-01-02"))
			}
		})
	}
}
