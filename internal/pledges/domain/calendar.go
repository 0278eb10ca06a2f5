package pledges

import "time"

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Next returns the next scheduled date after from.
//
// The reference instant is the later of from and now. Anchored policies always
// return a date strictly after the reference, stepping by the frequency unit as
// often as needed. Unanchored policies add one unit to from.
//
// A day of month that does not exist in the target month is clamped to the
// month's last day (31 in February yields the 28th or 29th). Unknown
// frequencies step as monthly. Next never mutates p.
func Next(p RecurrencePolicy, from, now time.Time) time.Time {
	from = DateOf(from)
	ref := from
	if today := DateOf(now); today.After(ref) {
		ref = today
	}
	interval := p.Interval
	if interval < 1 {
		interval = 1
	}

	switch p.Frequency {
	case FrequencyDaily:
		return from.AddDate(0, 0, interval)
	case FrequencyWeekly:
		step := 7 * interval
		if !p.Anchored() {
			return from.AddDate(0, 0, step)
		}
		candidate := pinWeekday(from, *p.DayOfWeek)
		for !candidate.After(ref) {
			candidate = candidate.AddDate(0, 0, step)
		}
		return candidate
	default:
		months := p.Frequency.monthUnit() * interval
		if !p.Anchored() {
			return pinDay(from.Year(), from.Month()+time.Month(months), from.Day())
		}
		day := *p.DayOfMonth
		candidate := pinDay(from.Year(), from.Month(), day)
		for steps := 1; !candidate.After(ref); steps++ {
			candidate = pinDay(from.Year(), from.Month()+time.Month(months*steps), day)
		}
		return candidate
	}
}

// FirstDueDate returns the first scheduled date on or after the start date.
func FirstDueDate(p RecurrencePolicy) time.Time {
	start := DateOf(p.StartDate)
	if !p.Anchored() {
		return start
	}
	switch {
	case p.Frequency == FrequencyWeekly:
		candidate := pinWeekday(start, *p.DayOfWeek)
		if candidate.Before(start) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate
	case p.Frequency.usesDayOfMonth():
		candidate := pinDay(start.Year(), start.Month(), *p.DayOfMonth)
		if candidate.Before(start) {
			candidate = pinDay(start.Year(), start.Month()+1, *p.DayOfMonth)
		}
		return candidate
	default:
		return start
	}
}

// pinWeekday moves date to the given weekday of its Sunday-started week.
func pinWeekday(date time.Time, weekday int) time.Time {
	weekday = ((weekday % 7) + 7) % 7
	return date.AddDate(0, 0, weekday-int(date.Weekday()))
}

// pinDay builds year/month/day with the day clamped into the month.
// month may overflow; it is normalized first.
func pinDay(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := daysIn(first.Year(), first.Month())
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
