package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	pledges "recurring-donations/internal/pledges/domain"
)

const uniqueViolation = "23505"

// Schema creates the pledge tables.
const Schema = `
CREATE TABLE IF NOT EXISTS pledges (
	id                TEXT PRIMARY KEY,
	donor_id          TEXT NOT NULL,
	amount            NUMERIC(14,2) NOT NULL,
	currency          TEXT NOT NULL,
	category          TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	frequency         TEXT NOT NULL,
	interval_count    INTEGER NOT NULL CHECK (interval_count > 0),
	day_of_week       SMALLINT,
	day_of_month      SMALLINT,
	start_date        DATE NOT NULL,
	end_date          DATE,
	max_occurrences   INTEGER,
	is_active         BOOLEAN NOT NULL,
	next_payment_date DATE,
	total_executions  INTEGER NOT NULL DEFAULT 0,
	end_reason        TEXT NOT NULL DEFAULT '',
	ended_at          TIMESTAMPTZ,
	version           INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	CHECK (end_date IS NULL OR end_date > start_date)
);

CREATE INDEX IF NOT EXISTS idx_pledges_donor ON pledges(donor_id, created_at);
CREATE INDEX IF NOT EXISTS idx_pledges_due ON pledges(next_payment_date) WHERE is_active;

CREATE TABLE IF NOT EXISTS pledge_executions (
	pledge_id         TEXT NOT NULL REFERENCES pledges(id),
	idempotency_key   TEXT NOT NULL,
	sequence          INTEGER NOT NULL,
	executed_at       TIMESTAMPTZ NOT NULL,
	next_payment_date DATE,
	terminated        BOOLEAN NOT NULL,
	PRIMARY KEY (pledge_id, idempotency_key)
);
`

const pledgeColumns = `id, donor_id, amount, currency, category, description,
	frequency, interval_count, day_of_week, day_of_month, start_date, end_date, max_occurrences,
	is_active, next_payment_date, total_executions, end_reason, ended_at,
	version, created_at, updated_at`

// PledgeRepository persists pledges in postgres.
type PledgeRepository struct {
	db *sql.DB
}

// NewPledgeRepository constructs a repository.
func NewPledgeRepository(db *sql.DB) *PledgeRepository {
	return &PledgeRepository{db: db}
}

// Create inserts a new pledge.
func (r *PledgeRepository) Create(ctx context.Context, pledge *pledges.Pledge) error {
	if r == nil || r.db == nil {
		return errors.New("pledge repo: nil db")
	}
	if pledge == nil {
		return pledges.ErrNilPledge
	}
	p := pledge.Policy
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pledges (`+pledgeColumns+`) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
)`,
		pledge.ID, pledge.DonorID, pledge.Amount, pledge.Currency, pledge.Category, pledge.Description,
		string(p.Frequency), p.Interval, nullInt(p.DayOfWeek), nullInt(p.DayOfMonth), p.StartDate, nullTime(p.EndDate), nullInt(p.MaxOccurrences),
		p.IsActive, nullTime(p.NextPaymentDate), p.TotalExecutions, p.EndReason, nullTime(p.EndedAt),
		pledge.Version, pledge.CreatedAt, pledge.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return pledges.ErrConcurrencyConflict
	}
	return err
}

// Get loads a pledge by id. It returns nil when missing.
func (r *PledgeRepository) Get(ctx context.Context, id string) (*pledges.Pledge, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("pledge repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = $1`, id)
	return scanPledge(row)
}

// List returns pledges filtered by donor and activity.
func (r *PledgeRepository) List(ctx context.Context, filter pledges.Filter) ([]pledges.Pledge, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("pledge repo: nil db")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+pledgeColumns+`
FROM pledges
WHERE ($1 = '' OR donor_id = $1) AND (NOT $2 OR is_active)
ORDER BY created_at ASC, id ASC
LIMIT $3`, filter.DonorID, filter.ActiveOnly, limit)
	if err != nil {
		return nil, err
	}
	return collectPledges(rows)
}

// ListDue returns active pledges due on or before asOf.
func (r *PledgeRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]pledges.Pledge, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("pledge repo: nil db")
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+pledgeColumns+`
FROM pledges
WHERE is_active AND next_payment_date <= $1
ORDER BY next_payment_date ASC, id ASC
LIMIT $2`, pledges.DateOf(asOf), limit)
	if err != nil {
		return nil, err
	}
	return collectPledges(rows)
}

// Update writes lifecycle fields when the stored version matches.
func (r *PledgeRepository) Update(ctx context.Context, pledge *pledges.Pledge, expectedVersion int) error {
	if r == nil || r.db == nil {
		return errors.New("pledge repo: nil db")
	}
	if pledge == nil {
		return pledges.ErrNilPledge
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := swapPledge(ctx, tx, pledge, expectedVersion); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	pledge.Version = expectedVersion + 1
	return nil
}

// SaveExecution swaps the pledge and inserts the execution in one transaction.
func (r *PledgeRepository) SaveExecution(ctx context.Context, pledge *pledges.Pledge, expectedVersion int, execution pledges.Execution) error {
	if r == nil || r.db == nil {
		return errors.New("pledge repo: nil db")
	}
	if pledge == nil {
		return pledges.ErrNilPledge
	}
	if execution.IdempotencyKey == "" {
		return pledges.ErrEmptyIdempotencyKey
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO pledge_executions (pledge_id, idempotency_key, sequence, executed_at, next_payment_date, terminated)
VALUES ($1,$2,$3,$4,$5,$6)`,
		pledge.ID, execution.IdempotencyKey, execution.Sequence, execution.ExecutedAt, nullTime(execution.NextPaymentDate), execution.Terminated)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return pledges.ErrDuplicateExecution
		}
		return err
	}
	if err := swapPledge(ctx, tx, pledge, expectedVersion); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return pledges.ErrDuplicateExecution
		}
		return err
	}
	pledge.Version = expectedVersion + 1
	return nil
}

// FindExecution returns a recorded execution or nil.
func (r *PledgeRepository) FindExecution(ctx context.Context, pledgeID, idempotencyKey string) (*pledges.Execution, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("pledge repo: nil db")
	}
	var execution pledges.Execution
	var next sql.NullTime
	err := r.db.QueryRowContext(ctx, `
SELECT pledge_id, idempotency_key, sequence, executed_at, next_payment_date, terminated
FROM pledge_executions
WHERE pledge_id = $1 AND idempotency_key = $2`, pledgeID, idempotencyKey).Scan(
		&execution.PledgeID, &execution.IdempotencyKey, &execution.Sequence, &execution.ExecutedAt, &next, &execution.Terminated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	execution.ExecutedAt = execution.ExecutedAt.UTC()
	if next.Valid {
		d := pledges.DateOf(next.Time)
		execution.NextPaymentDate = &d
	}
	return &execution, nil
}

func swapPledge(ctx context.Context, tx *sql.Tx, pledge *pledges.Pledge, expectedVersion int) error {
	p := pledge.Policy
	res, err := tx.ExecContext(ctx, `
UPDATE pledges
SET is_active = $1, next_payment_date = $2, total_executions = $3, end_reason = $4, ended_at = $5,
	updated_at = $6, version = version + 1
WHERE id = $7 AND version = $8`,
		p.IsActive, nullTime(p.NextPaymentDate), p.TotalExecutions, p.EndReason, nullTime(p.EndedAt),
		pledge.UpdatedAt, pledge.ID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pledges WHERE id = $1)`, pledge.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pledges.ErrPledgeNotFound
	}
	return pledges.ErrConcurrencyConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPledge(row rowScanner) (*pledges.Pledge, error) {
	var pledge pledges.Pledge
	var frequency string
	var dayOfWeek, dayOfMonth, maxOccurrences sql.NullInt64
	var endDate, nextPayment, endedAt sql.NullTime
	p := &pledge.Policy
	err := row.Scan(
		&pledge.ID,
		&pledge.DonorID,
		&pledge.Amount,
		&pledge.Currency,
		&pledge.Category,
		&pledge.Description,
		&frequency,
		&p.Interval,
		&dayOfWeek,
		&dayOfMonth,
		&p.StartDate,
		&endDate,
		&maxOccurrences,
		&p.IsActive,
		&nextPayment,
		&p.TotalExecutions,
		&p.EndReason,
		&endedAt,
		&pledge.Version,
		&pledge.CreatedAt,
		&pledge.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Frequency = pledges.Frequency(frequency)
	p.DayOfWeek = intFromNull(dayOfWeek)
	p.DayOfMonth = intFromNull(dayOfMonth)
	p.MaxOccurrences = intFromNull(maxOccurrences)
	p.StartDate = pledges.DateOf(p.StartDate)
	p.EndDate = dateFromNull(endDate)
	p.NextPaymentDate = dateFromNull(nextPayment)
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		p.EndedAt = &t
	}
	pledge.CreatedAt = pledge.CreatedAt.UTC()
	pledge.UpdatedAt = pledge.UpdatedAt.UTC()
	return &pledge, nil
}

func collectPledges(rows *sql.Rows) ([]pledges.Pledge, error) {
	defer rows.Close()
	var result []pledges.Pledge
	for rows.Next() {
		pledge, err := scanPledge(rows)
		if err != nil {
			return nil, err
		}
		if pledge != nil {
			result = append(result, *pledge)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func dateFromNull(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	d := pledges.DateOf(v.Time)
	return &d
}
