// Package events announces order and quote lifecycle changes to other systems.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	OrderCreated        Type = "order.created"
	OrderCancelled      Type = "order.cancelled"
	OrderStatusChanged  Type = "order.status_changed"
	OrderPaymentChanged Type = "order.payment_changed"
	QuoteCreated        Type = "quote.created"
	QuoteQuoted         Type = "quote.quoted"
	QuoteAccepted       Type = "quote.accepted"
	QuoteRejected       Type = "quote.rejected"
)

type Event struct {
	ID          string           `json:"id"`
	Type        Type             `json:"type"`
	UserID      int64            `json:"user_id"`
	OrderID     int64            `json:"order_id,omitempty"`
	OrderNumber string           `json:"order_number,omitempty"`
	QuoteID     int64            `json:"quote_id,omitempty"`
	QuoteNumber string           `json:"quote_number,omitempty"`
	Status      string           `json:"status,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

func New(t Type, userID int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events after the change they describe has been committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
