package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"recurring-donations/internal/audit"
	"recurring-donations/internal/auth"
	"recurring-donations/internal/observability/logging"
	pledges "recurring-donations/internal/pledges/domain"
	"recurring-donations/internal/pledges/infrastructure/memory"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []PledgeDue
	err    error
}

func (p *stubPublisher) PublishDue(ctx context.Context, event PledgeDue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	service   *PledgeService
	repo      *memory.PledgeRepository
	audit     *audit.MemoryStore
	publisher *stubPublisher
}

func newFixture(t *testing.T, now time.Time, opts Options) fixture {
	t.Helper()
	repo := memory.NewPledgeRepository()
	store := audit.NewMemoryStore()
	publisher := &stubPublisher{}
	service, err := NewPledgeService(repo, store, publisher, pledges.FixedClock(now), logging.Discard(), opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return fixture{service: service, repo: repo, audit: store, publisher: publisher}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func monthlyInput(donorID string, start time.Time) CreatePledgeInput {
	return CreatePledgeInput{
		DonorID:  donorID,
		Amount:   decimal.RequireFromString("25.00"),
		Currency: "usd",
		Category: "general",
		Policy: pledges.RecurrencePolicy{
			Frequency:  pledges.FrequencyMonthly,
			Interval:   1,
			DayOfMonth: intPtr(15),
			StartDate:  start,
		},
	}
}

func TestCreate_EstablishesSchedule(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10), Options{})
	ctx := context.Background()

	pledge, err := f.service.Create(ctx, monthlyInput("donor-1", date(2024, 1, 10)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if pledge.ID == "" || pledge.Currency != "USD" {
		t.Fatalf("unexpected pledge: %+v", pledge)
	}
	if !pledge.Policy.IsActive || !pledge.Policy.NextPaymentDate.Equal(date(2024, 1, 15)) {
		t.Fatalf("unexpected policy: %+v", pledge.Policy)
	}
	history, err := f.service.History(ctx, pledge.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Action != ActionPledgeCreated {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10), Options{})
	input := monthlyInput("donor-1", date(2024, 1, 10))
	input.Policy.Interval = 0
	if _, err := f.service.Create(context.Background(), input); !pledges.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	input = monthlyInput("donor-1", date(2024, 1, 10))
	input.Amount = decimal.Zero
	if _, err := f.service.Create(context.Background(), input); !pledges.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreate_ViewerCannotCreateForAnotherDonor(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10), Options{})
	ctx := auth.WithIdentity(context.Background(), "donor-1", auth.RoleViewer, "u-1")
	if _, err := f.service.Create(ctx, monthlyInput("donor-2", date(2024, 1, 10))); !errors.Is(err, auth.ErrOwnerMismatch) {
		t.Fatalf("expected owner mismatch, got %v", err)
	}
}

func TestGet_NotFoundAndOwnership(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10), Options{})
	if _, err := f.service.Get(context.Background(), "missing"); !errors.Is(err, pledges.ErrPledgeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	pledge, err := f.service.Create(context.Background(), monthlyInput("donor-1", date(2024, 1, 10)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other := auth.WithIdentity(context.Background(), "donor-2", auth.RoleViewer, "u-2")
	if _, err := f.service.Get(other, pledge.ID); !errors.Is(err, auth.ErrOwnerMismatch) {
		t.Fatalf("expected owner mismatch, got %v", err)
	}
}

func TestList_ViewerSeesOwnPledges(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10), Options{})
	for _, donor := range []string{"donor-1", "donor-1", "donor-2"} {
		if _, err := f.service.Create(context.Background(), monthlyInput(donor, date(2024, 1, 10))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	ctx := auth.WithIdentity(context.Background(), "donor-1", auth.RoleViewer, "u-1")
	list, err := f.service.List(ctx, pledges.Filter{DonorID: "donor-2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 pledges, got %d", len(list))
	}
	for _, p := range list {
		if p.DonorID != "donor-1" {
			t.Fatalf("viewer saw pledge of %s", p.DonorID)
		}
	}
}

func TestRecordExecution_AdvancesAndAudits(t *testing.T) {
	f := newFixture(t, date(2024, 1, 15), Options{})
	ctx := context.Background()
	pledge, err := f.service.Create(ctx, monthlyInput("donor-1", date(2024, 1, 10)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := f.service.RecordExecution(ctx, pledge.ID, "charge-1", time.Time{})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !result.Recorded || result.Replayed {
		t.Fatalf("unexpected flags: %+v", result)
	}
	if result.Pledge.Policy.TotalExecutions != 1 || !result.Pledge.Policy.NextPaymentDate.Equal(date(2024, 2, 15)) {
		t.Fatalf("unexpected policy: %+v", result.Pledge.Policy)
	}
	if result.Execution.Sequence != 1 {
		t.Fatalf("unexpected sequence %d", result.Execution.Sequence)
	}

	history, _ := f.service.History(ctx, pledge.ID)
	if len(history) != 2 || history[1].Action != ActionPledgeExecuted {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestRecordExecution_ReplaySameKey(t *testing.T) {
	f := newFixture(t, date(2024, 1, 15), Options{})
	ctx := context.Background()
	pledge, _ := f.service.Create(ctx, monthlyInput("donor-1", date(2024, 1, 10)))

	if _, err := f.service.RecordExecution(ctx, pledge.ID, "charge-1", time.Time{}); err != nil {
		t.Fatalf("first: %v", err)
	}
	replay, err := f.service.RecordExecution(ctx, pledge.ID, "charge-1", time.Time{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed || replay.Execution.Sequence != 1 {
		t.Fatalf("expected replay of sequence 1, got %+v", replay)
	}
	stored, _ := f.repo.Get(ctx, pledge.ID)
	if stored.Policy.TotalExecutions != 1 {
		t.Fatalf("replay must not count twice, got %d", stored.Policy.TotalExecutions)
	}
}

func TestRecordExecution_RequiresKey(t *testing.T) {
	f := newFixture(t, date(2024, 1, 15), Options{})
	if _, err := f.service.RecordExecution(context.Background(), "p-1", " ", time.Time{}); !errors.Is(err, pledges.ErrEmptyIdempotencyKey) {
		t.Fatalf("expected empty key error, got %v", err)
	}
}

func TestRecordExecution_TerminatesAtMaxOccurrences(t *testing.T) {
	f := newFixture(t, date(2024, 1, 15), Options{})
	ctx := context.Background()
	input := monthlyInput("donor-1", date(2024, 1, 10))
	input.Policy.MaxOccurrences = intPtr(2)
	pledge, _ := f.service.Create(ctx, input)

	for i := 1; i <= 2; i++ {
		if _, err := f.service.RecordExecution(ctx, pledge.ID, fmt.Sprintf("charge-%d", i), time.Time{}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	stored, _ := f.repo.Get(ctx, pledge.ID)
	if stored.Policy.IsActive || stored.Policy.NextPaymentDate != nil {
		t.Fatalf("expected terminated pledge, got %+v", stored.Policy)
	}
	if stored.Policy.EndReason != pledges.EndReasonMaxOccurrences {
		t.Fatalf("unexpected end reason %s", stored.Policy.EndReason)
	}

	result, err := f.service.RecordExecution(ctx, pledge.ID, "charge-3", time.Time{})
	if err != nil {
		t.Fatalf("record after termination: %v", err)
	}
	if result.Recorded || result.Pledge.Policy.TotalExecutions != 2 {
		t.Fatalf("terminated pledge must be untouched: %+v", result)
	}

	history, _ := f.service.History(ctx, pledge.ID)
	last := history[len(history)-1]
	if last.Action != ActionPledgeTerminated {
		t.Fatalf("expected termination entry last, got %s", last.Action)
	}
}

type conflictingRepo struct {
	*memory.PledgeRepository
}

func (r conflictingRepo) SaveExecution(ctx context.Context, pledge *pledges.Pledge, expectedVersion int, execution pledges.Execution) error {
	return pledges.ErrConcurrencyConflict
}

func TestRecordExecution_ConflictIsNotRetried(t *testing.T) {
	repo := conflictingRepo{memory.NewPledgeRepository()}
	service, err := NewPledgeService(repo, audit.NewMemoryStore(), &stubPublisher{}, pledges.FixedClock(date(2024, 1, 15)), logging.Discard(), Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	pledge, err := service.Create(context.Background(), monthlyInput("donor-1", date(2024, 1, 10)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.RecordExecution(context.Background(), pledge.ID, "charge-1", time.Time{}); !errors.Is(err, pledges.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRecordExecution_ConcurrentCallersCountEveryCharge(t *testing.T) {
	f := newFixture(t, date(2024, 1, 15), Options{})
	ctx := context.Background()
	pledge, _ := f.service.Create(ctx, monthlyInput("donor-1", date(2024, 1, 10)))

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		key := fmt.Sprintf("charge-%d", i)
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					_, err := f.service.RecordExecution(ctx, pledge.ID, key, time.Time{})
					if errors.Is(err, pledges.ErrConcurrencyConflict) {
						continue
					}
					errs <- err
					return
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	stored, _ := f.repo.Get(ctx, pledge.ID)
	if stored.Policy.TotalExecutions != workers {
		t.Fatalf("expected %d executions, got %d", workers, stored.Policy.TotalExecutions)
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	f := newFixture(t, date(2024, 1, 20), Options{})
	ctx := context.Background()
	pledge, _ := f.service.Create(ctx, monthlyInput("donor-1", date(2024, 1, 10)))

	stopped, err := f.service.Stop(ctx, pledge.ID, "donor request")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Policy.IsActive || stopped.Policy.EndReason != "donor request" {
		t.Fatalf("unexpected policy: %+v", stopped.Policy)
	}
	again, err := f.service.Stop(ctx, pledge.ID, "other")
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if again.Policy.EndReason != "donor request" || again.Version != stopped.Version {
		t.Fatalf("second stop must be a no-op: %+v", again)
	}
	history, _ := f.service.History(ctx, pledge.ID)
	if len(history) != 2 || history[1].Action != ActionPledgeStopped {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestSchedule_BoundedByMaxCount(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10), Options{MaxCount: 5})
	pledge, _ := f.service.Create(context.Background(), monthlyInput("donor-1", date(2024, 1, 10)))

	_, occurrences, err := f.service.Schedule(context.Background(), pledge.ID, 50)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(occurrences) != 5 {
		t.Fatalf("expected 5 occurrences, got %d", len(occurrences))
	}
	if !occurrences[0].DueDate.Equal(date(2024, 1, 15)) || !occurrences[4].DueDate.Equal(date(2024, 5, 15)) {
		t.Fatalf("unexpected dates %v .. %v", occurrences[0].DueDate, occurrences[4].DueDate)
	}
}

func TestSchedule_CapByRemaining(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10), Options{CapByRemaining: true})
	input := monthlyInput("donor-1", date(2024, 1, 10))
	input.Policy.MaxOccurrences = intPtr(3)
	pledge, _ := f.service.Create(context.Background(), input)

	_, occurrences, err := f.service.Schedule(context.Background(), pledge.ID, 12)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(occurrences) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(occurrences))
	}
}

func TestDueSweep_PublishesDuePledges(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10), Options{})
	ctx := context.Background()
	due, _ := f.service.Create(ctx, monthlyInput("donor-1", date(2024, 1, 10)))
	late := monthlyInput("donor-2", date(2024, 1, 10))
	late.Policy.DayOfMonth = intPtr(28)
	if _, err := f.service.Create(ctx, late); err != nil {
		t.Fatalf("create: %v", err)
	}

	sweeper, err := NewPledgeService(f.repo, f.audit, f.publisher, pledges.FixedClock(date(2024, 1, 15).Add(6*time.Hour)), logging.Discard(), Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	published, err := sweeper.DueSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if published != 1 || len(f.publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", published)
	}
	event := f.publisher.events[0]
	if event.PledgeID != due.ID || event.Reference != due.ID+"_2024-01-15" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestDueSweep_ReportsPublishErrors(t *testing.T) {
	f := newFixture(t, date(2024, 1, 15), Options{})
	if _, err := f.service.Create(context.Background(), monthlyInput("donor-1", date(2024, 1, 10))); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.publisher.err = errors.New("queue down")
	published, err := f.service.DueSweep(context.Background())
	if err == nil || published != 0 {
		t.Fatalf("expected publish error, got published=%d err=%v", published, err)
	}
}
