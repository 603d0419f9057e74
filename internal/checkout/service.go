// Package checkout turns a user's cart into an order and drives the order through its
// lifecycle afterwards.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/events"
	"github.com/safar/arun-store/internal/models"
	"github.com/safar/arun-store/internal/pricing"
	"github.com/safar/arun-store/internal/store"
)

var (
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrBillingAddressRequired = errors.New("billing address required")
)

// AddressError reports which request field named an address checkout could not use.
type AddressError struct {
	Field string
	ID    int64
	Err   error
}

func (e *AddressError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s %d: %v", e.Field, e.ID, e.Err)
}

func (e *AddressError) Unwrap() error { return e.Err }

func resolveAddress(ctx context.Context, tx *sql.Tx, userID int64, field string, id int64) (*models.Address, error) {
	addr, err := store.GetActiveAddress(ctx, tx, userID, id)
	if errors.Is(err, database.ErrAddressNotFound) {
		return nil, &AddressError{Field: field, ID: id, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("%s %d: %w", field, id, err)
	}
	return addr, nil
}

type Options struct {
	NumberPrefix string
	// MaxRetries bounds how often a checkout is re-run after an order number
	// collision or a transient database failure.
	MaxRetries       int
	DeliveryLeadTime time.Duration
	// LockTimeout bounds each wait for a cart, product or order row lock.
	LockTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		NumberPrefix:     "ARN",
		MaxRetries:       3,
		DeliveryLeadTime: 7 * 24 * time.Hour,
	}
}

type Request struct {
	UserID               int64
	ShippingAddressID    int64
	BillingAddressID     *int64
	UseShippingAsBilling bool
	PaymentMethod        models.PaymentMethod
	DeliveryInstructions string
	CustomerNotes        string
}

type TransitionInput struct {
	Note           string
	TrackingNumber string
	Courier        string
	AdminNotes     string
}

// Summary is the pricing preview of a cart before checkout.
type Summary struct {
	ItemsCount int               `json:"items_count"`
	Lines      int               `json:"lines"`
	Pricing    pricing.Breakdown `json:"pricing"`
}

type Service struct {
	db        *sql.DB
	pricing   pricing.Config
	opts      Options
	publisher events.Publisher
	log       logrus.FieldLogger
	numbers   NumberGenerator
	now       func() time.Time
}

func New(db *sql.DB, cfg pricing.Config, opts Options, publisher events.Publisher, log logrus.FieldLogger) *Service {
	if opts.NumberPrefix == "" {
		opts.NumberPrefix = DefaultOptions().NumberPrefix
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &Service{
		db:        db,
		pricing:   cfg,
		opts:      opts,
		publisher: publisher,
		log:       log.WithField("component", "checkout"),
		numbers:   DateNumbers(opts.NumberPrefix),
		now:       time.Now,
	}
}

// SetNumberGenerator replaces the order number source.
func (s *Service) SetNumberGenerator(gen NumberGenerator) {
	s.numbers = gen
}

func (s *Service) txOptions(log logrus.FieldLogger) database.TxOptions {
	opts := database.DefaultTxOptions()
	opts.MaxRetries = s.opts.MaxRetries
	opts.LockTimeout = s.opts.LockTimeout
	opts.OnRetry = func(attempt int, err error) {
		checkoutRetries.WithLabelValues(failureReason(err)).Inc()
		log.WithError(err).WithField("attempt", attempt).Warn("Retrying checkout")
	}
	return opts
}

// Checkout converts the user's cart into a pending order in one transaction: the order,
// its items, the stock decrements, the first history row and the emptied cart either
// all persist or none do.
func (s *Service) Checkout(ctx context.Context, req Request) (*models.Order, error) {
	start := time.Now()
	log := s.log.WithField("user_id", req.UserID)

	order, err := s.checkout(ctx, req, log)
	checkoutDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := failureReason(err)
		checkoutFailures.WithLabelValues(reason).Inc()
		if reason == "internal" {
			log.WithError(err).Error("Checkout failed")
		} else {
			log.WithError(err).WithField("reason", reason).Info("Checkout rejected")
		}
		return nil, err
	}

	ordersPlaced.Inc()
	log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount.StringFixed(2),
	}).Info("Order placed")

	ev := events.New(events.OrderCreated, order.UserID)
	ev.OrderID = order.ID
	ev.OrderNumber = order.OrderNumber
	ev.Status = string(order.Status)
	total := order.TotalAmount
	ev.Total = &total
	s.publish(ctx, ev)

	return order, nil
}

func (s *Service) checkout(ctx context.Context, req Request, log logrus.FieldLogger) (*models.Order, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodCashOnDelivery
	}
	if !req.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	if !req.UseShippingAsBilling && req.BillingAddressID == nil {
		return nil, &AddressError{Field: "billing_address_id", Err: ErrBillingAddressRequired}
	}

	var orderID int64
	err := database.WithRetry(ctx, s.db, s.txOptions(log), func(tx *sql.Tx) error {
		id, err := s.placeOrder(ctx, tx, req)
		if err != nil {
			return err
		}
		orderID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	return store.GetOrder(ctx, s.db, orderID)
}

func (s *Service) placeOrder(ctx context.Context, tx *sql.Tx, req Request) (int64, error) {
	cart, err := store.LockCart(ctx, tx, req.UserID)
	if err != nil {
		return 0, err
	}
	if len(cart.Items) == 0 {
		return 0, database.ErrEmptyCart
	}

	shipping, err := resolveAddress(ctx, tx, req.UserID, "shipping_address_id", req.ShippingAddressID)
	if err != nil {
		return 0, err
	}

	// A supplied billing address must belong to the user even when shipping is billed.
	billing := shipping
	if req.BillingAddressID != nil && *req.BillingAddressID != shipping.ID {
		supplied, err := resolveAddress(ctx, tx, req.UserID, "billing_address_id", *req.BillingAddressID)
		if err != nil {
			return 0, err
		}
		if !req.UseShippingAsBilling {
			billing = supplied
		}
	}

	user, err := store.GetUser(ctx, tx, req.UserID)
	if err != nil {
		return 0, err
	}
	tier := pricing.TierFor(user)
	breakdown := pricing.Calculate(s.pricing, pricing.LinesFromCart(cart.Items), tier).Snapshot()

	items := append([]models.CartItem(nil), cart.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := store.LockProducts(ctx, tx, ids)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok || !p.IsAvailable {
			return 0, fmt.Errorf("product %d: %w", item.ProductID, database.ErrProductUnavailable)
		}
	}

	now := s.now()
	estimated := now.UTC().Add(s.opts.DeliveryLeadTime).Truncate(24 * time.Hour)

	order := &models.Order{
		UserID:                   req.UserID,
		OrderNumber:              s.numbers(now),
		Status:                   models.OrderStatusPending,
		PaymentStatus:            models.PaymentStatusPending,
		PaymentMethod:            req.PaymentMethod,
		Subtotal:                 breakdown.Subtotal,
		DiscountAmount:           breakdown.Discount,
		TaxAmount:                breakdown.Tax,
		ShippingCost:             breakdown.Shipping,
		TotalAmount:              breakdown.Total,
		IsWholesaleOrder:         breakdown.Wholesale,
		WholesaleDiscountPercent: breakdown.DiscountPercent,
		ShippingAddressID:        shipping.ID,
		BillingAddressID:         billing.ID,
		EstimatedDelivery:        &estimated,
		DeliveryInstructions:     req.DeliveryInstructions,
		CustomerNotes:            req.CustomerNotes,
	}
	if !order.BalancedTotal() {
		return 0, fmt.Errorf("price order for user %d: %w", req.UserID, database.ErrUnbalancedOrder)
	}
	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return 0, err
	}

	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		productID := item.ProductID
		price := item.UnitPrice
		if tier.Wholesale {
			price = item.WholesalePrice
		}
		orderItems = append(orderItems, models.OrderItem{
			ProductID:           &productID,
			ProductName:         item.ProductName,
			ProductSKU:          item.ProductSKU,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			WholesalePrice:      item.WholesalePrice,
			LineTotal:           price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			PreferredColors:     item.PreferredColors,
			SpecialInstructions: item.SpecialInstructions,
		})
	}
	if err := store.InsertOrderItems(ctx, tx, order.ID, orderItems); err != nil {
		return 0, err
	}

	for _, item := range items {
		if err := store.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return 0, err
		}
	}

	actor := req.UserID
	if err := store.AppendStatusHistory(ctx, tx, order.ID, models.OrderStatusPending, "Order placed", &actor); err != nil {
		return 0, err
	}

	if err := store.ClearCart(ctx, tx, cart.ID); err != nil {
		return 0, err
	}

	return order.ID, nil
}

// Summary prices the user's current cart without reserving anything.
func (s *Service) Summary(ctx context.Context, userID int64) (*Summary, error) {
	cart, err := store.GetCart(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	user, err := store.GetUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	breakdown := pricing.Calculate(s.pricing, pricing.LinesFromCart(cart.Items), pricing.TierFor(user))

	return &Summary{
		ItemsCount: cart.TotalItems(),
		Lines:      len(cart.Items),
		Pricing:    breakdown.Snapshot(),
	}, nil
}

// Cancel moves a pending or confirmed order to cancelled and puts its stock back.
// Items whose product has since been deleted are skipped and named in the history note.
func (s *Service) Cancel(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error) {
	var skipped []string

	err := database.WithTransaction(ctx, s.db, s.txOptions(s.log), func(tx *sql.Tx) error {
		order, err := s.lockOwnedOrder(ctx, tx, orderID, actor)
		if err != nil {
			return err
		}

		if !order.CanCancel() {
			return fmt.Errorf("cancel order %s in status %s: %w",
				order.OrderNumber, order.Status, database.ErrInvalidStateTransition)
		}

		items, err := store.ListOrderItems(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		sort.Slice(items, func(i, j int) bool {
			return productKey(items[i]) < productKey(items[j])
		})

		skipped = skipped[:0]
		for _, item := range items {
			if item.ProductID == nil {
				skipped = append(skipped, item.ProductSKU)
				continue
			}
			restored, err := store.RestoreStock(ctx, tx, *item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if !restored {
				skipped = append(skipped, item.ProductSKU)
			}
		}

		order.Status = models.OrderStatusCancelled
		if err := store.UpdateOrderState(ctx, tx, order); err != nil {
			return err
		}

		note := "Cancelled by customer"
		if actor.Staff && actor.UserID != order.UserID {
			note = "Cancelled by staff"
		}
		if len(skipped) > 0 {
			note += "; stock not restored for deleted products: " + strings.Join(skipped, ", ")
		}

		return store.AppendStatusHistory(ctx, tx, order.ID, models.OrderStatusCancelled, note, &actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	orderCancellations.Inc()
	log := s.log.WithFields(logrus.Fields{"order_id": order.ID, "order_number": order.OrderNumber, "actor": actor.UserID})
	if len(skipped) > 0 {
		log = log.WithField("skipped_skus", skipped)
	}
	log.Info("Order cancelled")

	ev := events.New(events.OrderCancelled, order.UserID)
	ev.OrderID = order.ID
	ev.OrderNumber = order.OrderNumber
	ev.Status = string(order.Status)
	s.publish(ctx, ev)

	return order, nil
}

func productKey(item models.OrderItem) int64 {
	if item.ProductID == nil {
		return 0
	}
	return *item.ProductID
}

// Transition moves an order forward along its lifecycle on behalf of staff. A move to
// cancelled goes through Cancel so that stock is restored.
func (s *Service) Transition(ctx context.Context, orderID int64, to models.OrderStatus, actor models.Actor, in TransitionInput) (*models.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", to, database.ErrInvalidStateTransition)
	}
	if to == models.OrderStatusCancelled {
		return s.Cancel(ctx, orderID, actor)
	}

	err := database.WithTransaction(ctx, s.db, s.txOptions(s.log), func(tx *sql.Tx) error {
		order, err := s.lockOwnedOrder(ctx, tx, orderID, actor)
		if err != nil {
			return err
		}

		if !order.Status.CanTransitionTo(to) {
			return fmt.Errorf("order %s from %s to %s: %w",
				order.OrderNumber, order.Status, to, database.ErrInvalidStateTransition)
		}

		now := s.now().UTC()
		switch to {
		case models.OrderStatusConfirmed:
			order.ConfirmedAt = &now
		case models.OrderStatusShipped:
			order.ShippedAt = &now
			if in.TrackingNumber != "" {
				order.TrackingNumber = in.TrackingNumber
			}
			if in.Courier != "" {
				order.Courier = in.Courier
			}
		case models.OrderStatusDelivered:
			order.DeliveredAt = &now
			day := now.Truncate(24 * time.Hour)
			order.ActualDelivery = &day
		case models.OrderStatusRefunded:
			if order.PaymentStatus == models.PaymentStatusPaid {
				order.PaymentStatus = models.PaymentStatusRefunded
			}
		}
		if in.AdminNotes != "" {
			order.AdminNotes = in.AdminNotes
		}
		order.Status = to

		if err := store.UpdateOrderState(ctx, tx, order); err != nil {
			return err
		}

		return store.AppendStatusHistory(ctx, tx, order.ID, to, in.Note, &actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"actor":    actor.UserID,
	}).Info("Order status changed")

	ev := events.New(events.OrderStatusChanged, order.UserID)
	ev.OrderID = order.ID
	ev.OrderNumber = order.OrderNumber
	ev.Status = string(order.Status)
	s.publish(ctx, ev)

	return order, nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID int64, to models.PaymentStatus, actor models.Actor) (*models.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("unknown payment status %q: %w", to, database.ErrInvalidStateTransition)
	}

	err := database.WithTransaction(ctx, s.db, s.txOptions(s.log), func(tx *sql.Tx) error {
		order, err := s.lockOwnedOrder(ctx, tx, orderID, actor)
		if err != nil {
			return err
		}

		if !order.PaymentStatus.CanTransitionTo(to) {
			return fmt.Errorf("payment of order %s from %s to %s: %w",
				order.OrderNumber, order.PaymentStatus, to, database.ErrInvalidStateTransition)
		}

		order.PaymentStatus = to
		return store.UpdateOrderState(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"payment_status": order.PaymentStatus,
		"actor":          actor.UserID,
	}).Info("Payment status changed")

	ev := events.New(events.OrderPaymentChanged, order.UserID)
	ev.OrderID = order.ID
	ev.OrderNumber = order.OrderNumber
	ev.Status = string(order.PaymentStatus)
	s.publish(ctx, ev)

	return order, nil
}

// Order returns an order the actor owns, or any order for staff.
func (s *Service) Order(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && order.UserID != actor.UserID {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) History(ctx context.Context, orderID int64, actor models.Actor) ([]models.OrderStatusHistory, error) {
	if _, err := s.Order(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return store.ListStatusHistory(ctx, s.db, orderID)
}

// lockOwnedOrder hides other users' orders from non-staff actors.
func (s *Service) lockOwnedOrder(ctx context.Context, tx *sql.Tx, orderID int64, actor models.Actor) (*models.Order, error) {
	order, err := store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && order.UserID != actor.UserID {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

// publish runs after commit. A broker failure is logged and does not undo the change.
func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event_type", ev.Type).Warn("Failed to publish event")
	}
}
