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
	receipts "recurring-donations/internal/receipts/domain"
)

const (
	ResourceDonation      = "donation"
	ActionDonationCreated = "donation.created"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// CreateDonationInput carries a new donation.
type CreateDonationInput struct {
	DonorID             string
	PledgeID            string
	OccurrenceReference string
	Amount              decimal.Decimal
	Currency            string
	Category            string
	Description         string
}

// DonationService records donations and assigns their receipt numbers.
type DonationService struct {
	repo   receipts.Repository
	audit  audit.Logger
	clock  Clock
	logger logrus.FieldLogger
}

// NewDonationService constructs a service.
func NewDonationService(repo receipts.Repository, auditLogger audit.Logger, clock Clock, logger logrus.FieldLogger) (*DonationService, error) {
	if repo == nil {
		return nil, errors.New("donation service: nil repo")
	}
	if auditLogger == nil {
		return nil, errors.New("donation service: nil audit logger")
	}
	if logger == nil {
		return nil, errors.New("donation service: nil logger")
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &DonationService{
		repo:   repo,
		audit:  auditLogger,
		clock:  clock,
		logger: logger.WithField("component", "donation_service"),
	}, nil
}

// Create stores a donation with the next receipt number of the current month.
// ErrConcurrencyConflict means the allocation lost a race; callers retry Create.
func (s *DonationService) Create(ctx context.Context, input CreateDonationInput) (*receipts.Donation, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReceiptAllocation(result, time.Since(start))
	}()

	donation := &receipts.Donation{
		ID:                  uuid.NewString(),
		DonorID:             strings.TrimSpace(input.DonorID),
		PledgeID:            strings.TrimSpace(input.PledgeID),
		OccurrenceReference: strings.TrimSpace(input.OccurrenceReference),
		Amount:              input.Amount,
		Currency:            strings.ToUpper(strings.TrimSpace(input.Currency)),
		Category:            input.Category,
		Description:         input.Description,
		CreatedAt:           s.clock.Now().UTC(),
	}
	if err := donation.Validate(); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.CreateWithReceipt(ctx, donation); err != nil {
		result = metrics.ResultError
		if errors.Is(err, receipts.ErrConcurrencyConflict) {
			result = metrics.ResultConflict
		}
		if errors.Is(err, receipts.ErrSequenceExhausted) {
			s.logger.WithField("period", receipts.Period(donation.CreatedAt)).Error("receipt sequence exhausted")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"donation_id":    donation.ID,
		"receipt_number": donation.ReceiptNumber,
	}).Info("donation recorded")
	s.record(ctx, donation)
	return donation, nil
}

// Get loads a donation the caller may see.
func (s *DonationService) Get(ctx context.Context, id string) (*receipts.Donation, error) {
	donation, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if donation == nil {
		return nil, receipts.ErrDonationNotFound
	}
	if err := auth.EnsureDonorAccess(ctx, donation.DonorID); err != nil {
		return nil, err
	}
	if _, err := receipts.ParseReceiptNumber(donation.ReceiptNumber); err != nil {
		s.logger.WithFields(logrus.Fields{
			"donation_id":    donation.ID,
			"receipt_number": donation.ReceiptNumber,
		}).Error("stored receipt number is malformed")
		return nil, fmt.Errorf("donation %s: %w", donation.ID, err)
	}
	return donation, nil
}

func (s *DonationService) record(ctx context.Context, donation *receipts.Donation) {
	payload, _ := json.Marshal(map[string]any{
		"receipt_number": donation.ReceiptNumber,
		"amount":         donation.Amount.String(),
		"currency":       donation.Currency,
		"pledge_id":      donation.PledgeID,
	})
	ip, userAgent := audit.RequestInfo(ctx)
	err := s.audit.Log(ctx, audit.Entry{
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       ActionDonationCreated,
		ResourceType: ResourceDonation,
		ResourceID:   donation.ID,
		Description:  "receipt " + donation.ReceiptNumber,
		Metadata:     payload,
		IP:           ip,
		UserAgent:    userAgent,
		CreatedAt:    donation.CreatedAt,
	})
	if err != nil {
		s.logger.WithError(err).WithField("donation_id", donation.ID).Warn("audit log failed")
	}
	if donation.PledgeID == "" {
		return
	}
	// Mirror onto the pledge history so it lists the receipts issued for it.
	err = s.audit.Log(ctx, audit.Entry{
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       ActionDonationCreated,
		ResourceType: "pledge",
		ResourceID:   donation.PledgeID,
		Description:  "receipt " + donation.ReceiptNumber,
		Metadata:     payload,
		IP:           ip,
		UserAgent:    userAgent,
		CreatedAt:    donation.CreatedAt,
	})
	if err != nil {
		s.logger.WithError(err).WithField("pledge_id", donation.PledgeID).Warn("audit log failed")
	}
}
