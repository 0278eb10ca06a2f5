package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	pledges "recurring-donations/internal/pledges/domain"
)

// PledgeRepository is an in-memory pledge store with the same compare-and-swap
// semantics as the postgres repository.
type PledgeRepository struct {
	mu         sync.RWMutex
	data       map[string]*pledges.Pledge
	executions map[string]pledges.Execution
}

// NewPledgeRepository constructs a repository.
func NewPledgeRepository() *PledgeRepository {
	return &PledgeRepository{
		data:       make(map[string]*pledges.Pledge),
		executions: make(map[string]pledges.Execution),
	}
}

// Create stores a new pledge.
func (r *PledgeRepository) Create(ctx context.Context, pledge *pledges.Pledge) error {
	_ = ctx
	if pledge == nil {
		return pledges.ErrNilPledge
	}
	if pledge.ID == "" {
		return pledges.ErrEmptyPledgeID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[pledge.ID]; exists {
		return pledges.ErrConcurrencyConflict
	}
	r.data[pledge.ID] = pledge.Clone()
	return nil
}

// Get loads a pledge. It returns nil when missing.
func (r *PledgeRepository) Get(ctx context.Context, id string) (*pledges.Pledge, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data[id].Clone(), nil
}

// List returns pledges ordered by creation time.
func (r *PledgeRepository) List(ctx context.Context, filter pledges.Filter) ([]pledges.Pledge, error) {
	_ = ctx
	r.mu.RLock()
	var result []pledges.Pledge
	for _, p := range r.data {
		if filter.DonorID != "" && p.DonorID != filter.DonorID {
			continue
		}
		if filter.ActiveOnly && !p.Policy.IsActive {
			continue
		}
		result = append(result, *p.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// ListDue returns active pledges due on or before asOf, earliest first.
func (r *PledgeRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]pledges.Pledge, error) {
	_ = ctx
	cutoff := pledges.DateOf(asOf)
	r.mu.RLock()
	var result []pledges.Pledge
	for _, p := range r.data {
		next := p.Policy.NextPaymentDate
		if !p.Policy.IsActive || next == nil || next.After(cutoff) {
			continue
		}
		result = append(result, *p.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		a, b := *result[i].Policy.NextPaymentDate, *result[j].Policy.NextPaymentDate
		if a.Equal(b) {
			return result[i].ID < result[j].ID
		}
		return a.Before(b)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Update overwrites a pledge when its stored version matches expectedVersion.
func (r *PledgeRepository) Update(ctx context.Context, pledge *pledges.Pledge, expectedVersion int) error {
	_ = ctx
	if pledge == nil {
		return pledges.ErrNilPledge
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swapLocked(pledge, expectedVersion)
}

// SaveExecution swaps the pledge and records the execution atomically.
func (r *PledgeRepository) SaveExecution(ctx context.Context, pledge *pledges.Pledge, expectedVersion int, execution pledges.Execution) error {
	_ = ctx
	if pledge == nil {
		return pledges.ErrNilPledge
	}
	if execution.IdempotencyKey == "" {
		return pledges.ErrEmptyIdempotencyKey
	}
	key := executionKey(pledge.ID, execution.IdempotencyKey)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executions[key]; exists {
		return pledges.ErrDuplicateExecution
	}
	if err := r.swapLocked(pledge, expectedVersion); err != nil {
		return err
	}
	execution.PledgeID = pledge.ID
	r.executions[key] = cloneExecution(execution)
	return nil
}

// FindExecution returns a recorded execution or nil.
func (r *PledgeRepository) FindExecution(ctx context.Context, pledgeID, idempotencyKey string) (*pledges.Execution, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	execution, ok := r.executions[executionKey(pledgeID, idempotencyKey)]
	if !ok {
		return nil, nil
	}
	copy := cloneExecution(execution)
	return &copy, nil
}

func (r *PledgeRepository) swapLocked(pledge *pledges.Pledge, expectedVersion int) error {
	current, ok := r.data[pledge.ID]
	if !ok {
		return pledges.ErrPledgeNotFound
	}
	if current.Version != expectedVersion {
		return pledges.ErrConcurrencyConflict
	}
	stored := pledge.Clone()
	stored.Version = expectedVersion + 1
	r.data[pledge.ID] = stored
	pledge.Version = stored.Version
	return nil
}

func executionKey(pledgeID, idempotencyKey string) string {
	return pledgeID + "|" + idempotencyKey
}

func cloneExecution(execution pledges.Execution) pledges.Execution {
	if execution.NextPaymentDate != nil {
		next := *execution.NextPaymentDate
		execution.NextPaymentDate = &next
	}
	return execution
}
