package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	receipts "recurring-donations/internal/receipts/domain"
)

// Schema creates the donation and receipt counter tables.
const Schema = `
CREATE TABLE IF NOT EXISTS receipt_sequences (
	period     TEXT PRIMARY KEY,
	last_value INTEGER NOT NULL CHECK (last_value >= 0)
);

CREATE TABLE IF NOT EXISTS donations (
	id                   TEXT PRIMARY KEY,
	donor_id             TEXT NOT NULL,
	pledge_id            TEXT NOT NULL DEFAULT '',
	occurrence_reference TEXT NOT NULL DEFAULT '',
	amount               NUMERIC(18,2) NOT NULL CHECK (amount > 0),
	currency             CHAR(3) NOT NULL,
	category             TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	receipt_number       TEXT NOT NULL UNIQUE,
	created_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_donations_donor ON donations(donor_id, created_at);
`

// DonationRepository persists donations in Postgres.
type DonationRepository struct {
	db *sql.DB
}

// NewDonationRepository constructs a repository.
func NewDonationRepository(db *sql.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// CreateWithReceipt increments the month counter and inserts the donation in
// one transaction. The counter row lock serializes concurrent creations of a
// month; a failed insert rolls the counter back.
func (r *DonationRepository) CreateWithReceipt(ctx context.Context, donation *receipts.Donation) error {
	if r == nil || r.db == nil {
		return errors.New("donation repo: nil db")
	}
	if donation == nil {
		return receipts.ErrNilDonation
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	period := receipts.Period(donation.CreatedAt)
	var lastValue int
	if err := tx.QueryRowContext(ctx, `
INSERT INTO receipt_sequences (period, last_value)
VALUES ($1, 1)
ON CONFLICT (period) DO UPDATE SET last_value = receipt_sequences.last_value + 1
RETURNING last_value`, period).Scan(&lastValue); err != nil {
		return err
	}
	number, err := receipts.Allocate(donation.CreatedAt, lastValue-1)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO donations (
	id, donor_id, pledge_id, occurrence_reference, amount, currency,
	category, description, receipt_number, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		donation.ID, donation.DonorID, donation.PledgeID, donation.OccurrenceReference,
		donation.Amount, donation.Currency, donation.Category, donation.Description,
		number.String(), donation.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return receipts.ErrConcurrencyConflict
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	donation.ReceiptNumber = number.String()
	return nil
}

// Get loads a donation. It returns nil when missing.
func (r *DonationRepository) Get(ctx context.Context, id string) (*receipts.Donation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("donation repo: nil db")
	}
	var d receipts.Donation
	err := r.db.QueryRowContext(ctx, `
SELECT id, donor_id, pledge_id, occurrence_reference, amount, currency,
	category, description, receipt_number, created_at
FROM donations
WHERE id = $1`, id).Scan(&d.ID, &d.DonorID, &d.PledgeID, &d.OccurrenceReference, &d.Amount, &d.Currency,
		&d.Category, &d.Description, &d.ReceiptNumber, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Currency = strings.TrimSpace(d.Currency)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
