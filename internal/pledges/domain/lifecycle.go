package pledges

import "time"

// State is the lifecycle state of a recurrence policy.
type State string

const (
	StateActive     State = "active"
	StateTerminated State = "terminated"
)

// State derives the lifecycle state from the activity flag.
func (p RecurrencePolicy) State() State {
	if p.IsActive {
		return StateActive
	}
	return StateTerminated
}

// Establish validates p and sets up its first due date. A policy whose first
// due date already falls after its end date starts terminated.
func Establish(p RecurrencePolicy, now time.Time) (RecurrencePolicy, error) {
	if err := p.Validate(); err != nil {
		return p, err
	}
	out := p.Clone()
	out.StartDate = DateOf(p.StartDate)
	if out.EndDate != nil {
		end := DateOf(*out.EndDate)
		out.EndDate = &end
	}
	out.TotalExecutions = 0
	out.EndReason = ""
	out.EndedAt = nil

	first := FirstDueDate(out)
	if out.EndDate != nil && first.After(*out.EndDate) {
		return terminate(out, EndReasonEndDate, now), nil
	}
	out.IsActive = true
	out.NextPaymentDate = &first
	return out, nil
}

// Advance moves the policy to its next due date or terminates it when an end
// condition is met. Terminated is absorbing: a terminated policy comes back
// unchanged with terminated=true.
func Advance(p RecurrencePolicy, now time.Time) (RecurrencePolicy, bool) {
	if !p.IsActive {
		return p, true
	}
	from := p.StartDate
	if p.NextPaymentDate != nil {
		from = *p.NextPaymentDate
	}
	candidate := Next(p, from, now)

	if p.EndDate != nil && candidate.After(DateOf(*p.EndDate)) {
		return terminate(p, EndReasonEndDate, now), true
	}
	if p.MaxOccurrences != nil && p.TotalExecutions >= *p.MaxOccurrences {
		return terminate(p, EndReasonMaxOccurrences, now), true
	}
	out := p.Clone()
	out.NextPaymentDate = &candidate
	return out, false
}

// RecordExecution counts one confirmed charge and advances the schedule.
//
// It must run exactly once per real payment event; a second call for the same
// event silently skips a cycle. On an inactive policy it is a no-op that
// returns the unchanged state with terminated=true.
func RecordExecution(p RecurrencePolicy, now time.Time) (RecurrencePolicy, bool) {
	if !p.IsActive {
		return p, true
	}
	out := p.Clone()
	out.TotalExecutions++
	return Advance(out, now)
}

// Stop deactivates the policy and records why. Stopping an inactive policy is a no-op.
func Stop(p RecurrencePolicy, reason string, at time.Time) RecurrencePolicy {
	if !p.IsActive {
		return p
	}
	out := p.Clone()
	out.IsActive = false
	out.EndReason = reason
	endedAt := at.UTC()
	out.EndedAt = &endedAt
	return out
}

func terminate(p RecurrencePolicy, reason string, at time.Time) RecurrencePolicy {
	out := p.Clone()
	out.IsActive = false
	out.NextPaymentDate = nil
	out.EndReason = reason
	endedAt := at.UTC()
	out.EndedAt = &endedAt
	return out
}
