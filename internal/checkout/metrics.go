package checkout

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/safar/arun-store/internal/database"
)

var (
	ordersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_orders_total",
		Help: "Orders created by checkout",
	})

	checkoutFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_failures_total",
			Help: "Checkouts that did not produce an order, by reason",
		},
		[]string{"reason"},
	)

	checkoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Wall time of checkout including retries",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	checkoutRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_retries_total",
			Help: "Checkout transactions re-run after a retryable failure, by reason",
		},
		[]string{"reason"},
	)

	orderCancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_cancellations_total",
		Help: "Orders moved to cancelled",
	})
)

func failureReason(err error) string {
	switch {
	case errors.Is(err, database.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrBillingAddressRequired):
		return "billing_address_required"
	case errors.Is(err, database.ErrAddressNotFound):
		return "address_not_found"
	case errors.Is(err, database.ErrStockExceeded):
		return "stock_exceeded"
	case errors.Is(err, database.ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, database.ErrOrderNumberCollision):
		return "order_number_collision"
	case errors.Is(err, ErrInvalidPaymentMethod):
		return "invalid_payment_method"
	case errors.Is(err, database.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, database.ErrUnbalancedOrder):
		return "unbalanced_order"
	case database.IsRetryable(err):
		return "contention"
	default:
		return "internal"
	}
}
