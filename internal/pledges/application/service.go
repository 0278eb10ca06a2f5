package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"recurring-donations/internal/audit"
	"recurring-donations/internal/auth"
	"recurring-donations/internal/observability/metrics"
	pledges "recurring-donations/internal/pledges/domain"
)

const (
	ResourcePledge = "pledge"

	ActionPledgeCreated    = "pledge.created"
	ActionPledgeExecuted   = "pledge.executed"
	ActionPledgeTerminated = "pledge.terminated"
	ActionPledgeStopped    = "pledge.stopped"
)

// PledgeDue is published for every active pledge whose next payment date has arrived.
type PledgeDue struct {
	PledgeID  string          `json:"pledge_id"`
	DonorID   string          `json:"donor_id"`
	Reference string          `json:"reference"`
	DueDate   time.Time       `json:"due_date"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Category  string          `json:"category"`
}

// DuePublisher hands due pledges to the payment and notification layers.
type DuePublisher interface {
	PublishDue(ctx context.Context, event PledgeDue) error
}

// Options tune the service.
type Options struct {
	CapByRemaining bool
	MaxCount       int
	DueSweepLimit  int
}

// CreatePledgeInput carries a new pledge and its recurrence rules.
type CreatePledgeInput struct {
	DonorID     string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	Policy      pledges.RecurrencePolicy
}

// ExecutionResult is the outcome of recording one charge.
type ExecutionResult struct {
	Pledge    *pledges.Pledge    `json:"pledge"`
	Execution *pledges.Execution `json:"execution,omitempty"`
	// Replayed is set when the idempotency key had already been recorded.
	Replayed bool `json:"replayed"`
	// Recorded is false when the pledge was already terminated.
	Recorded bool `json:"recorded"`
}

// PledgeService runs pledge use cases.
type PledgeService struct {
	repo      pledges.Repository
	audit     audit.Store
	publisher DuePublisher
	clock     pledges.Clock
	logger    logrus.FieldLogger
	opts      Options
}

// NewPledgeService constructs a service.
func NewPledgeService(repo pledges.Repository, auditStore audit.Store, publisher DuePublisher, clock pledges.Clock, logger logrus.FieldLogger, opts Options) (*PledgeService, error) {
	if repo == nil {
		return nil, errors.New("pledge service: nil repo")
	}
	if auditStore == nil {
		return nil, errors.New("pledge service: nil audit store")
	}
	if publisher == nil {
		return nil, errors.New("pledge service: nil due publisher")
	}
	if clock == nil {
		clock = pledges.SystemClock{}
	}
	if logger == nil {
		return nil, errors.New("pledge service: nil logger")
	}
	if opts.MaxCount <= 0 {
		opts.MaxCount = 120
	}
	if opts.DueSweepLimit <= 0 {
		opts.DueSweepLimit = 1000
	}
	return &PledgeService{
		repo:      repo,
		audit:     auditStore,
		publisher: publisher,
		clock:     clock,
		logger:    logger.WithField("component", "pledge_service"),
		opts:      opts,
	}, nil
}

// Create validates and stores a new pledge with an established schedule.
func (s *PledgeService) Create(ctx context.Context, input CreatePledgeInput) (*pledges.Pledge, error) {
	if err := auth.EnsureDonorAccess(ctx, input.DonorID); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	pledge := &pledges.Pledge{
		ID:          uuid.NewString(),
		DonorID:     strings.TrimSpace(input.DonorID),
		Amount:      input.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(input.Currency)),
		Category:    input.Category,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := pledge.Validate(); err != nil {
		return nil, err
	}
	policy, err := pledges.Establish(input.Policy, now)
	if err != nil {
		return nil, err
	}
	pledge.Policy = policy

	if err := s.repo.Create(ctx, pledge); err != nil {
		return nil, err
	}
	s.record(ctx, ActionPledgeCreated, pledge.ID, "pledge created", map[string]any{
		"donor_id":          pledge.DonorID,
		"amount":            pledge.Amount.String(),
		"currency":          pledge.Currency,
		"frequency":         policy.Frequency,
		"next_payment_date": policy.NextPaymentDate,
		"state":             policy.State(),
	})
	if !policy.IsActive {
		s.record(ctx, ActionPledgeTerminated, pledge.ID, "pledge ended before its first payment", map[string]any{
			"reason": policy.EndReason,
		})
		metrics.IncTermination(policy.EndReason)
	}
	return pledge, nil
}

// Get loads a pledge the caller may see.
func (s *PledgeService) Get(ctx context.Context, id string) (*pledges.Pledge, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pledges.ErrEmptyPledgeID
	}
	pledge, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if pledge == nil {
		return nil, pledges.ErrPledgeNotFound
	}
	if err := auth.EnsureDonorAccess(ctx, pledge.DonorID); err != nil {
		return nil, err
	}
	return pledge, nil
}

// List returns pledges. Viewers only ever see their own.
func (s *PledgeService) List(ctx context.Context, filter pledges.Filter) ([]pledges.Pledge, error) {
	if auth.RoleFromContext(ctx) == auth.RoleViewer {
		filter.DonorID = auth.DonorIDFromContext(ctx)
	}
	return s.repo.List(ctx, filter)
}

// RecordExecution counts one confirmed charge identified by idempotencyKey.
//
// A key that was already recorded returns the stored outcome with Replayed
// set. A lost compare-and-swap returns ErrConcurrencyConflict; the caller
// re-reads and retries. A terminated pledge is left untouched.
func (s *PledgeService) RecordExecution(ctx context.Context, id, idempotencyKey string, executedAt time.Time) (*ExecutionResult, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExecution(result, time.Since(start))
	}()

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		result = metrics.ResultError
		return nil, pledges.ErrEmptyIdempotencyKey
	}
	pledge, err := s.Get(ctx, id)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	replay, err := s.lookupExecution(ctx, pledge, idempotencyKey)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if replay != nil {
		result = metrics.ResultReplay
		return replay, nil
	}
	if !pledge.Policy.IsActive {
		return &ExecutionResult{Pledge: pledge}, nil
	}

	now := s.clock.Now().UTC()
	if executedAt.IsZero() {
		executedAt = now
	}
	expected := pledge.Version
	next, terminated := pledges.RecordExecution(pledge.Policy, now)
	updated := pledge.Clone()
	updated.Policy = next
	updated.UpdatedAt = now
	execution := pledges.Execution{
		PledgeID:        pledge.ID,
		IdempotencyKey:  idempotencyKey,
		Sequence:        next.TotalExecutions,
		ExecutedAt:      executedAt.UTC(),
		NextPaymentDate: next.NextPaymentDate,
		Terminated:      terminated,
	}

	if err := s.repo.SaveExecution(ctx, updated, expected, execution); err != nil {
		switch {
		case errors.Is(err, pledges.ErrDuplicateExecution):
			result = metrics.ResultReplay
			return s.replayAfterRace(ctx, pledge.ID, idempotencyKey)
		case errors.Is(err, pledges.ErrConcurrencyConflict):
			result = metrics.ResultConflict
		default:
			result = metrics.ResultError
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"pledge_id":  updated.ID,
		"sequence":   execution.Sequence,
		"terminated": terminated,
	}).Info("pledge execution recorded")
	s.record(ctx, ActionPledgeExecuted, updated.ID, fmt.Sprintf("execution %d recorded", execution.Sequence), map[string]any{
		"idempotency_key":   idempotencyKey,
		"sequence":          execution.Sequence,
		"executed_at":       execution.ExecutedAt,
		"next_payment_date": execution.NextPaymentDate,
	})
	if terminated {
		s.record(ctx, ActionPledgeTerminated, updated.ID, "pledge schedule ended", map[string]any{
			"reason":           next.EndReason,
			"total_executions": next.TotalExecutions,
		})
		metrics.IncTermination(next.EndReason)
	}
	return &ExecutionResult{Pledge: updated, Execution: &execution, Recorded: true}, nil
}

// lookupExecution returns the stored outcome for key, or nil when the key is new.
func (s *PledgeService) lookupExecution(ctx context.Context, pledge *pledges.Pledge, key string) (*ExecutionResult, error) {
	existing, err := s.repo.FindExecution(ctx, pledge.ID, key)
	if err != nil || existing == nil {
		return nil, err
	}
	return &ExecutionResult{Pledge: pledge, Execution: existing, Replayed: true, Recorded: true}, nil
}

// replayAfterRace answers a request whose key was recorded by a concurrent call.
func (s *PledgeService) replayAfterRace(ctx context.Context, pledgeID, key string) (*ExecutionResult, error) {
	pledge, err := s.repo.Get(ctx, pledgeID)
	if err != nil {
		return nil, err
	}
	if pledge == nil {
		return nil, pledges.ErrPledgeNotFound
	}
	replay, err := s.lookupExecution(ctx, pledge, key)
	if err != nil {
		return nil, err
	}
	if replay == nil {
		return nil, pledges.ErrDuplicateExecution
	}
	return replay, nil
}

// Stop ends a pledge on request. Stopping a stopped or terminated pledge returns it unchanged.
func (s *PledgeService) Stop(ctx context.Context, id, reason string) (*pledges.Pledge, error) {
	pledge, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pledge.Policy.IsActive {
		return pledge, nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "stopped_by_request"
	}
	now := s.clock.Now().UTC()
	expected := pledge.Version
	updated := pledge.Clone()
	updated.Policy = pledges.Stop(pledge.Policy, reason, now)
	updated.UpdatedAt = now
	if err := s.repo.Update(ctx, updated, expected); err != nil {
		return nil, err
	}
	s.record(ctx, ActionPledgeStopped, updated.ID, "pledge stopped", map[string]any{
		"reason": reason,
	})
	metrics.IncTermination("stopped")
	return updated, nil
}

// Schedule projects the next count occurrences of a pledge.
func (s *PledgeService) Schedule(ctx context.Context, id string, count int) (*pledges.Pledge, []pledges.Occurrence, error) {
	pledge, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if count > s.opts.MaxCount {
		count = s.opts.MaxCount
	}
	occurrences := pledges.Project(pledge.Policy, pledges.ProjectionRequest{
		PledgeID:       pledge.ID,
		Amount:         pledge.Amount,
		Currency:       pledge.Currency,
		Category:       pledge.Category,
		Description:    pledge.Description,
		Count:          count,
		CapByRemaining: s.opts.CapByRemaining,
	}, s.clock.Now())
	metrics.ObserveProjection(len(occurrences))
	return pledge, occurrences, nil
}

// History returns the audit trail of a pledge, oldest first.
func (s *PledgeService) History(ctx context.Context, id string) ([]audit.Entry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.ListByResource(ctx, ResourcePledge, id, 0)
}

// DueSweep publishes a PledgeDue event for every active pledge due today or
// earlier. It returns the number of events published.
func (s *PledgeService) DueSweep(ctx context.Context) (int, error) {
	start := time.Now()
	now := s.clock.Now()
	due, err := s.repo.ListDue(ctx, now, s.opts.DueSweepLimit)
	if err != nil {
		metrics.ObserveDueSweep(metrics.ResultError, 0, time.Since(start))
		return 0, err
	}

	published := 0
	var errs []error
	for _, pledge := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		dueDate := *pledge.Policy.NextPaymentDate
		event := PledgeDue{
			PledgeID:  pledge.ID,
			DonorID:   pledge.DonorID,
			Reference: pledges.OccurrenceReference(pledge.ID, dueDate),
			DueDate:   dueDate,
			Amount:    pledge.Amount,
			Currency:  pledge.Currency,
			Category:  pledge.Category,
		}
		if err := s.publisher.PublishDue(ctx, event); err != nil {
			s.logger.WithError(err).WithField("pledge_id", pledge.ID).Warn("publish due pledge failed")
			errs = append(errs, fmt.Errorf("pledge %s: %w", pledge.ID, err))
			continue
		}
		published++
	}

	result := metrics.ResultSuccess
	if len(errs) > 0 {
		result = metrics.ResultError
	}
	metrics.ObserveDueSweep(result, len(due), time.Since(start))
	s.logger.WithFields(logrus.Fields{
		"due":       len(due),
		"published": published,
	}).Info("due sweep finished")
	return published, errors.Join(errs...)
}

func (s *PledgeService) record(ctx context.Context, action, pledgeID, description string, metadata map[string]any) {
	var raw json.RawMessage
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			raw = data
		}
	}
	ip, userAgent := audit.RequestInfo(ctx)
	entry := audit.Entry{
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       action,
		ResourceType: ResourcePledge,
		ResourceID:   pledgeID,
		Description:  description,
		Metadata:     raw,
		IP:           ip,
		UserAgent:    userAgent,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"pledge_id": pledgeID,
			"action":    action,
		}).Warn("audit log failed")
	}
}
