package models

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return contains(orderTransitions[s], next)
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusFailed:  {PaymentStatusPaid},
	PaymentStatusPaid:    {PaymentStatusRefunded},
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return contains(paymentTransitions[s], next)
}

type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodOnlinePayment  PaymentMethod = "online_payment"
	PaymentMethodCredit         PaymentMethod = "credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCashOnDelivery, PaymentMethodBankTransfer, PaymentMethodOnlinePayment, PaymentMethodCredit:
		return true
	}
	return false
}

type QuoteStatus string

const (
	QuoteStatusPending    QuoteStatus = "pending"
	QuoteStatusProcessing QuoteStatus = "processing"
	QuoteStatusQuoted     QuoteStatus = "quoted"
	QuoteStatusAccepted   QuoteStatus = "accepted"
	QuoteStatusRejected   QuoteStatus = "rejected"
	QuoteStatusExpired    QuoteStatus = "expired"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusPending:    {QuoteStatusProcessing, QuoteStatusRejected},
	QuoteStatusProcessing: {QuoteStatusQuoted},
	QuoteStatusQuoted:     {QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusExpired},
}

func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteStatusPending, QuoteStatusProcessing, QuoteStatusQuoted,
		QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusExpired:
		return true
	}
	return false
}

func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	return contains(quoteTransitions[s], next)
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyUrgent:
		return true
	}
	return false
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
