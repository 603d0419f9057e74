// Package quotes handles custom fabric quote requests: customers ask, staff price them,
// and customers accept or reject before the quote expires.
package quotes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/events"
	"github.com/safar/arun-store/internal/models"
	"github.com/safar/arun-store/internal/store"
)

var ErrInvalidQuote = errors.New("invalid quote request")

const DefaultValidity = 7 * 24 * time.Hour

const numberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type NumberGenerator func(now time.Time) string

// DateNumbers builds numbers of the form <prefix><YYYYMMDD><4 of A-Z0-9>.
func DateNumbers(prefix string) NumberGenerator {
	return func(now time.Time) string {
		var b strings.Builder
		b.WriteString(prefix)
		b.WriteString(now.Format("20060102"))
		for i := 0; i < 4; i++ {
			b.WriteByte(numberAlphabet[rand.Intn(len(numberAlphabet))])
		}
		return b.String()
	}
}

type CreateInput struct {
	Urgency              models.Urgency
	FabricType           string
	MaterialPreference   string
	QuantityNeeded       int
	PreferredColors      string
	UsageDescription     string
	QualityRequirements  string
	DeliveryLocation     string
	RequiredDeliveryDate *time.Time
	BudgetRange          string
	CustomerMessage      string
	ContactViaWhatsApp   bool
	ContactViaEmail      bool
	ContactViaPhone      bool
}

type QuoteInput struct {
	Price    decimal.Decimal
	Total    decimal.Decimal
	Response string
	// ValidFor defaults to DefaultValidity.
	ValidFor time.Duration
}

type Service struct {
	db         *sql.DB
	maxRetries int
	publisher  events.Publisher
	log        logrus.FieldLogger
	numbers    NumberGenerator
	now        func() time.Time
}

func New(db *sql.DB, numberPrefix string, maxRetries int, publisher events.Publisher, log logrus.FieldLogger) *Service {
	if numberPrefix == "" {
		numberPrefix = "QT"
	}
	return &Service{
		db:         db,
		maxRetries: maxRetries,
		publisher:  publisher,
		log:        log.WithField("component", "quotes"),
		numbers:    DateNumbers(numberPrefix),
		now:        time.Now,
	}
}

func (s *Service) SetNumberGenerator(gen NumberGenerator) {
	s.numbers = gen
}

// SetClock replaces the time source used for quoting and expiry.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*models.QuoteRequest, error) {
	if in.Urgency == "" {
		in.Urgency = models.UrgencyMedium
	}
	if !in.Urgency.Valid() {
		return nil, fmt.Errorf("%w: unknown urgency %q", ErrInvalidQuote, in.Urgency)
	}
	if strings.TrimSpace(in.FabricType) == "" {
		return nil, fmt.Errorf("%w: fabric type is required", ErrInvalidQuote)
	}
	if in.QuantityNeeded < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidQuote)
	}

	qr := &models.QuoteRequest{
		UserID:               userID,
		Status:               models.QuoteStatusPending,
		Urgency:              in.Urgency,
		FabricType:           in.FabricType,
		MaterialPreference:   in.MaterialPreference,
		QuantityNeeded:       in.QuantityNeeded,
		PreferredColors:      in.PreferredColors,
		UsageDescription:     in.UsageDescription,
		QualityRequirements:  in.QualityRequirements,
		DeliveryLocation:     in.DeliveryLocation,
		RequiredDeliveryDate: in.RequiredDeliveryDate,
		BudgetRange:          in.BudgetRange,
		CustomerMessage:      in.CustomerMessage,
		ContactViaWhatsApp:   in.ContactViaWhatsApp,
		ContactViaEmail:      in.ContactViaEmail,
		ContactViaPhone:      in.ContactViaPhone,
	}

	opts := database.DefaultTxOptions()
	opts.MaxRetries = s.maxRetries
	opts.OnRetry = func(attempt int, err error) {
		s.log.WithError(err).WithField("attempt", attempt).Warn("Retrying quote number")
	}

	err := database.WithRetry(ctx, s.db, opts, func(tx *sql.Tx) error {
		qr.QuoteNumber = s.numbers(s.now())
		return store.InsertQuote(ctx, tx, qr)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"quote_id":     qr.ID,
		"quote_number": qr.QuoteNumber,
		"user_id":      userID,
	}).Info("Quote requested")
	s.publish(ctx, events.QuoteCreated, qr)

	return qr, nil
}

// Get returns the quote if actor owns it or is staff.
func (s *Service) Get(ctx context.Context, id int64, actor models.Actor) (*models.QuoteRequest, error) {
	qr, err := store.GetQuote(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && qr.UserID != actor.UserID {
		return nil, database.ErrQuoteNotFound
	}
	return qr, nil
}

// List pages the actor's own quotes. Staff see every user's quotes.
func (s *Service) List(ctx context.Context, actor models.Actor, status models.QuoteStatus, page, pageSize int) (*store.OffsetPage[models.QuoteRequest], error) {
	filter := store.QuoteFilter{UserID: actor.UserID, Status: status}
	if actor.Staff {
		filter.UserID = 0
	}
	return store.ListQuotes(ctx, s.db, filter, page, pageSize)
}

func (s *Service) StartProcessing(ctx context.Context, id int64, actor models.Actor) (*models.QuoteRequest, error) {
	return s.update(ctx, id, actor, func(qr *models.QuoteRequest, _ time.Time) error {
		return move(qr, models.QuoteStatusProcessing)
	})
}

// Quote prices a request that staff are processing and starts its validity window.
func (s *Service) Quote(ctx context.Context, id int64, actor models.Actor, in QuoteInput) (*models.QuoteRequest, error) {
	if !in.Price.IsPositive() || !in.Total.IsPositive() {
		return nil, fmt.Errorf("%w: quoted price and total must be positive", ErrInvalidQuote)
	}
	if in.ValidFor <= 0 {
		in.ValidFor = DefaultValidity
	}

	qr, err := s.update(ctx, id, actor, func(qr *models.QuoteRequest, now time.Time) error {
		if err := move(qr, models.QuoteStatusQuoted); err != nil {
			return err
		}
		price, total := in.Price.Round(2), in.Total.Round(2)
		expires := now.Add(in.ValidFor)
		qr.QuotedPrice = &price
		qr.QuotedTotal = &total
		qr.AdminResponse = in.Response
		qr.QuotedAt = &now
		qr.ExpiresAt = &expires
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.QuoteQuoted, qr)
	return qr, nil
}

// Accept requires a quoted, unexpired request. A request found past its expiry is
// marked expired and ErrQuoteExpired is returned. Accepting does not create an order.
func (s *Service) Accept(ctx context.Context, id int64, actor models.Actor) (*models.QuoteRequest, error) {
	expired := false

	qr, err := s.update(ctx, id, actor, func(qr *models.QuoteRequest, now time.Time) error {
		if qr.Status != models.QuoteStatusQuoted {
			return fmt.Errorf("accept quote %s in status %s: %w", qr.QuoteNumber, qr.Status, database.ErrInvalidStateTransition)
		}
		if qr.IsExpired(now) {
			expired = true
			return move(qr, models.QuoteStatusExpired)
		}
		return move(qr, models.QuoteStatusAccepted)
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, fmt.Errorf("accept quote %s: %w", qr.QuoteNumber, database.ErrQuoteExpired)
	}

	s.publish(ctx, events.QuoteAccepted, qr)
	return qr, nil
}

func (s *Service) Reject(ctx context.Context, id int64, actor models.Actor) (*models.QuoteRequest, error) {
	qr, err := s.update(ctx, id, actor, func(qr *models.QuoteRequest, _ time.Time) error {
		return move(qr, models.QuoteStatusRejected)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.QuoteRejected, qr)
	return qr, nil
}

// ExpireStale marks every quoted request whose validity ended before now as expired.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := store.ExpireQuotes(ctx, s.db, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("count", n).Info("Expired stale quotes")
	}
	return n, nil
}

// ConvertToOrder is not supported: there is no mapping from a quote's free-text
// requirements to catalog order lines.
func (s *Service) ConvertToOrder(ctx context.Context, id int64, actor models.Actor) (*models.Order, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return nil, database.ErrQuoteConversionUnsupported
}

func move(qr *models.QuoteRequest, to models.QuoteStatus) error {
	if !qr.Status.CanTransitionTo(to) {
		return fmt.Errorf("quote %s from %s to %s: %w", qr.QuoteNumber, qr.Status, to, database.ErrInvalidStateTransition)
	}
	qr.Status = to
	return nil
}

func (s *Service) update(ctx context.Context, id int64, actor models.Actor, fn func(qr *models.QuoteRequest, now time.Time) error) (*models.QuoteRequest, error) {
	var qr *models.QuoteRequest
	var from models.QuoteStatus

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		qr, err = store.GetQuoteForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !actor.Staff && qr.UserID != actor.UserID {
			return database.ErrQuoteNotFound
		}

		from = qr.Status
		if err := fn(qr, s.now().UTC()); err != nil {
			return err
		}

		return store.UpdateQuoteState(ctx, tx, qr)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"quote_id": qr.ID,
		"from":     from,
		"to":       qr.Status,
		"actor":    actor.UserID,
	}).Info("Quote status changed")

	return qr, nil
}

func (s *Service) publish(ctx context.Context, t events.Type, qr *models.QuoteRequest) {
	if s.publisher == nil {
		return
	}

	ev := events.New(t, qr.UserID)
	ev.QuoteID = qr.ID
	ev.QuoteNumber = qr.QuoteNumber
	ev.Status = string(qr.Status)
	ev.Total = qr.QuotedTotal

	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event_type", t).Warn("Failed to publish event")
	}
}
