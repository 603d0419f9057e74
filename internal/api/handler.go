// Package api exposes the store over HTTP with gin.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/safar/arun-store/internal/checkout"
	"github.com/safar/arun-store/internal/models"
	"github.com/safar/arun-store/internal/quotes"
	"github.com/safar/arun-store/internal/store"
)

type OrderService interface {
	Checkout(ctx context.Context, req checkout.Request) (*models.Order, error)
	Summary(ctx context.Context, userID int64) (*checkout.Summary, error)
	Order(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error)
	History(ctx context.Context, orderID int64, actor models.Actor) ([]models.OrderStatusHistory, error)
	Cancel(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error)
	Transition(ctx context.Context, orderID int64, to models.OrderStatus, actor models.Actor, in checkout.TransitionInput) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, to models.PaymentStatus, actor models.Actor) (*models.Order, error)
}

type QuoteService interface {
	Create(ctx context.Context, userID int64, in quotes.CreateInput) (*models.QuoteRequest, error)
	Get(ctx context.Context, id int64, actor models.Actor) (*models.QuoteRequest, error)
	List(ctx context.Context, actor models.Actor, status models.QuoteStatus, page, pageSize int) (*store.OffsetPage[models.QuoteRequest], error)
	StartProcessing(ctx context.Context, id int64, actor models.Actor) (*models.QuoteRequest, error)
	Quote(ctx context.Context, id int64, actor models.Actor, in quotes.QuoteInput) (*models.QuoteRequest, error)
	Accept(ctx context.Context, id int64, actor models.Actor) (*models.QuoteRequest, error)
	Reject(ctx context.Context, id int64, actor models.Actor) (*models.QuoteRequest, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencyStore is satisfied by cache.RedisIdempotencyStore.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

type Handler struct {
	db          *sql.DB
	orders      OrderService
	quotes      QuoteService
	idempotency IdempotencyStore
	log         logrus.FieldLogger
}

// NewHandler wires the handlers. idempotency may be nil, in which case checkout
// requests are not deduplicated.
func NewHandler(db *sql.DB, orders OrderService, quotes QuoteService, idempotency IdempotencyStore, log logrus.FieldLogger) *Handler {
	return &Handler{
		db:          db,
		orders:      orders,
		quotes:      quotes,
		idempotency: idempotency,
		log:         log,
	}
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		abortWithCode(c, http.StatusBadRequest, "invalid_id")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}
