package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	fields := logrus.Fields{
		"event_id":   e.ID,
		"event_type": e.Type,
		"user_id":    e.UserID,
	}
	if e.OrderID != 0 {
		fields["order_id"] = e.OrderID
		fields["order_number"] = e.OrderNumber
	}
	if e.QuoteID != 0 {
		fields["quote_id"] = e.QuoteID
		fields["quote_number"] = e.QuoteNumber
	}
	if e.Status != "" {
		fields["status"] = e.Status
	}
	if e.Total != nil {
		fields["total"] = e.Total.StringFixed(2)
	}

	p.log.WithFields(fields).Info("Event published")
	return nil
}

var _ Publisher = (*LogPublisher)(nil)
