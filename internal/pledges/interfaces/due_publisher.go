package interfaces

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"recurring-donations/internal/pledges/application"
)

// LoggingDuePublisher logs due pledge events.
type LoggingDuePublisher struct {
	logger logrus.FieldLogger
}

// NewLoggingDuePublisher constructs a logging publisher.
func NewLoggingDuePublisher(logger logrus.FieldLogger) *LoggingDuePublisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LoggingDuePublisher{logger: logger}
}

// PublishDue logs the event.
func (p *LoggingDuePublisher) PublishDue(ctx context.Context, event application.PledgeDue) error {
	_ = ctx
	if p == nil {
		return errors.New("due publisher: nil publisher")
	}
	p.logger.WithFields(logrus.Fields{
		"pledge_id": event.PledgeID,
		"donor_id":  event.DonorID,
		"reference": event.Reference,
		"due_date":  event.DueDate.Format("2006-01-02"),
		"amount":    event.Amount.StringFixed(2),
		"currency":  event.Currency,
	}).Info("pledge due")
	return nil
}
