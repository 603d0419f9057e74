package checkout_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/arun-store/internal/checkout"
	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/events"
	"github.com/safar/arun-store/internal/logging"
	"github.com/safar/arun-store/internal/models"
	"github.com/safar/arun-store/internal/pricing"
	"github.com/safar/arun-store/internal/store"
	"github.com/safar/arun-store/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newService(t *testing.T, db *sql.DB) (*checkout.Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	return checkout.New(db, pricing.DefaultConfig(), checkout.DefaultOptions(), rec, logging.Discard()), rec
}

func request(userID, addrID int64) checkout.Request {
	return checkout.Request{
		UserID:               userID,
		ShippingAddressID:    addrID,
		UseShippingAsBilling: true,
		PaymentMethod:        models.PaymentMethodCashOnDelivery,
	}
}

func stockOf(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), db, productID)
	require.NoError(t, err)
	return p.StockQuantity
}

func TestCheckoutRoundTrip(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, rec := newService(t, db)

	user := testutil.Retail(t, db)
	addr := testutil.Address(t, db, user.ID)
	p1 := testutil.Product(t, db, "1000", "800", 10)
	p2 := testutil.Product(t, db, "500", "400", 10)
	testutil.AddToCart(t, db, user.ID, p1.ID, 2)
	testutil.AddToCart(t, db, user.ID, p2.ID, 2)

	req := request(user.ID, addr.ID)
	req.CustomerNotes = "Call before delivery"
	order, err := svc.Checkout(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Regexp(t, `^ARN\d{8}\d{4}$`, order.OrderNumber)
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(3000)))
	assert.True(t, order.TaxAmount.Equal(decimal.NewFromInt(390)))
	assert.True(t, order.ShippingCost.Equal(decimal.NewFromInt(100)))
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(3490)))
	assert.True(t, order.BalancedTotal())
	assert.Equal(t, addr.ID, order.BillingAddressID)
	require.NotNil(t, order.ShippingAddress)
	assert.Equal(t, "Kathmandu", order.ShippingAddress.City)
	require.NotNil(t, order.EstimatedDelivery)
	assert.Equal(t, "Call before delivery", order.CustomerNotes)

	type line struct {
		product  int64
		quantity int
		price    string
	}
	var got []line
	for _, item := range order.Items {
		require.NotNil(t, item.ProductID)
		got = append(got, line{*item.ProductID, item.Quantity, item.UnitPrice.StringFixed(2)})
	}
	assert.ElementsMatch(t, []line{
		{p1.ID, 2, "1000.00"},
		{p2.ID, 2, "500.00"},
	}, got)

	cart, err := store.GetCart(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	assert.Equal(t, 8, stockOf(t, db, p1.ID))
	assert.Equal(t, 8, stockOf(t, db, p2.ID))

	history, err := store.ListStatusHistory(ctx, db, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.OrderStatusPending, history[0].Status)
	require.NotNil(t, history[0].CreatedBy)
	assert.Equal(t, user.ID, *history[0].CreatedBy)

	assert.Equal(t, []events.Type{events.OrderCreated}, rec.types())
}

func TestCheckoutWholesalePricing(t *testing.T) {
	db := testutil.NewPostgres(t)
	svc, _ := newService(t, db)

	user := testutil.Wholesale(t, db, "10")
	addr := testutil.Address(t, db, user.ID)
	p := testutil.Product(t, db, "1200", "1000", 20)
	testutil.AddToCart(t, db, user.ID, p.ID, 10)

	order, err := svc.Checkout(context.Background(), request(user.ID, addr.ID))
	require.NoError(t, err)

	assert.True(t, order.IsWholesaleOrder)
	assert.True(t, order.WholesaleDiscountPercent.Equal(decimal.NewFromInt(10)))
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(10000)))
	assert.True(t, order.DiscountAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, order.TaxAmount.Equal(decimal.NewFromInt(1170)))
	assert.True(t, order.ShippingCost.IsZero())
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(10170)))
	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].LineTotal.Equal(decimal.NewFromInt(10000)))
}

func TestCheckoutKeepsTotalBalancedForOddAmounts(t *testing.T) {
	db := testutil.NewPostgres(t)
	svc, _ := newService(t, db)

	user := testutil.Wholesale(t, db, "7.5")
	addr := testutil.Address(t, db, user.ID)
	p := testutil.Product(t, db, "150", "33.33", 50)
	testutil.AddToCart(t, db, user.ID, p.ID, 7)

	order, err := svc.Checkout(context.Background(), request(user.ID, addr.ID))
	require.NoError(t, err)
	assert.True(t, order.BalancedTotal(), "total %s subtotal %s discount %s tax %s shipping %s",
		order.TotalAmount, order.Subtotal, order.DiscountAmount, order.TaxAmount, order.ShippingCost)
}

func TestCheckoutEmptyCart(t *testing.T) {
	db := testutil.NewPostgres(t)
	svc, rec := newService(t, db)

	user := testutil.Retail(t, db)
	addr := testutil.Address(t, db, user.ID)

	_, err := svc.Checkout(context.Background(), request(user.ID, addr.ID))
	assert.ErrorIs(t, err, database.ErrEmptyCart)
	assert.Empty(t, rec.types())
}

func TestCheckoutAddressValidation(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, _ := newService(t, db)

	user := testutil.Retail(t, db)
	own := testutil.Address(t, db, user.ID)
	other := testutil.Address(t, db, testutil.Retail(t, db).ID)
	p := testutil.Product(t, db, "100", "80", 10)
	testutil.AddToCart(t, db, user.ID, p.ID, 1)

	_, err := svc.Checkout(ctx, request(user.ID, other.ID))
	assert.ErrorIs(t, err, database.ErrAddressNotFound)
	var addrErr *checkout.AddressError
	require.ErrorAs(t, err, &addrErr)
	assert.Equal(t, "shipping_address_id", addrErr.Field)
	assert.Equal(t, other.ID, addrErr.ID)

	req := request(user.ID, own.ID)
	req.UseShippingAsBilling = false
	req.BillingAddressID = &other.ID
	_, err = svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, database.ErrAddressNotFound)
	require.ErrorAs(t, err, &addrErr)
	assert.Equal(t, "billing_address_id", addrErr.Field)

	// Someone else's billing address is rejected even when shipping is billed.
	req.UseShippingAsBilling = true
	_, err = svc.Checkout(ctx, req)
	require.ErrorAs(t, err, &addrErr)
	assert.Equal(t, "billing_address_id", addrErr.Field)

	req = request(user.ID, own.ID)
	req.UseShippingAsBilling = false
	_, err = svc.Checkout(ctx, req)
	assert.ErrorIs(t, err, checkout.ErrBillingAddressRequired)
	require.ErrorAs(t, err, &addrErr)
	assert.Equal(t, "billing_address_id", addrErr.Field)

	inactive := testutil.Address(t, db, user.ID)
	require.NoError(t, store.DeactivateAddress(ctx, db, user.ID, inactive.ID))
	_, err = svc.Checkout(ctx, request(user.ID, inactive.ID))
	assert.ErrorIs(t, err, database.ErrAddressNotFound)

	assert.Equal(t, 10, stockOf(t, db, p.ID))

	billing := testutil.Address(t, db, user.ID)
	req = request(user.ID, own.ID)
	req.UseShippingAsBilling = false
	req.BillingAddressID = &billing.ID
	order, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, own.ID, order.ShippingAddressID)
	assert.Equal(t, billing.ID, order.BillingAddressID)
}

func TestCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	db := testutil.NewPostgres(t)
	svc, _ := newService(t, db)

	user := testutil.Retail(t, db)
	addr := testutil.Address(t, db, user.ID)

	req := request(user.ID, addr.ID)
	req.PaymentMethod = "barter"
	_, err := svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, checkout.ErrInvalidPaymentMethod)
}

func TestCheckoutIsAtomicWhenStockRunsOut(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, _ := newService(t, db)

	user := testutil.Retail(t, db)
	addr := testutil.Address(t, db, user.ID)
	plenty := testutil.Product(t, db, "100", "80", 10)
	scarce := testutil.Product(t, db, "200", "150", 5)
	testutil.AddToCart(t, db, user.ID, plenty.ID, 3)
	testutil.AddToCart(t, db, user.ID, scarce.ID, 5)

	// Stock drops after the item was added to the cart.
	_, err := store.RestockProduct(ctx, db, scarce.ID, 2, scarce.Version)
	require.NoError(t, err)

	_, err = svc.Checkout(ctx, request(user.ID, addr.ID))
	assert.ErrorIs(t, err, database.ErrStockExceeded)

	assert.Equal(t, 10, stockOf(t, db, plenty.ID))
	assert.Equal(t, 2, stockOf(t, db, scarce.ID))

	stats, err := store.OrderStats(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalOrders)

	cart, err := store.GetCart(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestCheckoutRejectsUnavailableProduct(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, _ := newService(t, db)

	user := testutil.Retail(t, db)
	addr := testutil.Address(t, db, user.ID)
	p := testutil.Product(t, db, "100", "80", 10)
	testutil.AddToCart(t, db, user.ID, p.ID, 1)
	require.NoError(t, store.SetProductAvailability(ctx, db, p.ID, false))

	_, err := svc.Checkout(ctx, request(user.ID, addr.ID))
	assert.ErrorIs(t, err, database.ErrProductUnavailable)
	assert.Equal(t, 10, stockOf(t, db, p.ID))
}

func TestConcurrentCheckoutsDoNotOversell(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, _ := newService(t, db)

	const buyers = 10
	p := testutil.Product(t, db, "100", "80", 5)

	reqs := make([]checkout.Request, buyers)
	for i := range reqs {
		user := testutil.Retail(t, db)
		addr := testutil.Address(t, db, user.ID)
		testutil.AddToCart(t, db, user.ID, p.ID, 1)
		reqs[i] = request(user.ID, addr.ID)
	}

	var wg sync.WaitGroup
	var placed, rejected atomic.Int64
	for _, req := range reqs {
		wg.Add(1)
		go func(req checkout.Request) {
			defer wg.Done()
			_, err := svc.Checkout(ctx, req)
			switch {
			case err == nil:
				placed.Add(1)
			case errors.Is(err, database.ErrStockExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}(req)
	}
	wg.Wait()

	assert.Equal(t, int64(5), placed.Load())
	assert.Equal(t, int64(5), rejected.Load())
	assert.Equal(t, 0, stockOf(t, db, p.ID))
}

func TestCheckoutRetriesOrderNumberCollision(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, _ := newService(t, db)

	p := testutil.Product(t, db, "100", "80", 10)

	first := testutil.Retail(t, db)
	firstAddr := testutil.Address(t, db, first.ID)
	testutil.AddToCart(t, db, first.ID, p.ID, 1)

	svc.SetNumberGenerator(func(time.Time) string { return "ARN202601010001" })
	_, err := svc.Checkout(ctx, request(first.ID, firstAddr.ID))
	require.NoError(t, err)

	var calls atomic.Int64
	svc.SetNumberGenerator(func(time.Time) string {
		if calls.Add(1) == 1 {
			return "ARN202601010001"
		}
		return "ARN202601010002"
	})

	second := testutil.Retail(t, db)
	secondAddr := testutil.Address(t, db, second.ID)
	testutil.AddToCart(t, db, second.ID, p.ID, 1)

	order, err := svc.Checkout(ctx, request(second.ID, secondAddr.ID))
	require.NoError(t, err)
	assert.Equal(t, "ARN202601010002", order.OrderNumber)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, 8, stockOf(t, db, p.ID))
}

func TestCheckoutGivesUpAfterRepeatedCollisions(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	opts := checkout.DefaultOptions()
	opts.MaxRetries = 1
	svc := checkout.New(db, pricing.DefaultConfig(), opts, nil, logging.Discard())
	svc.SetNumberGenerator(func(time.Time) string { return "ARN202601019999" })

	p := testutil.Product(t, db, "100", "80", 10)
	for i := 0; i < 2; i++ {
		user := testutil.Retail(t, db)
		addr := testutil.Address(t, db, user.ID)
		testutil.AddToCart(t, db, user.ID, p.ID, 1)

		_, err := svc.Checkout(ctx, request(user.ID, addr.ID))
		if i == 0 {
			require.NoError(t, err)
			continue
		}
		assert.ErrorIs(t, err, database.ErrOrderNumberCollision)

		cart, err := store.GetCart(ctx, db, user.ID)
		require.NoError(t, err)
		assert.Len(t, cart.Items, 1)
	}
	assert.Equal(t, 9, stockOf(t, db, p.ID))
}

func placeOrder(t *testing.T, db *sql.DB, svc *checkout.Service, quantity int) (*models.User, *models.Product, *models.Order) {
	t.Helper()

	user := testutil.Retail(t, db)
	addr := testutil.Address(t, db, user.ID)
	p := testutil.Product(t, db, "100", "80", 10)
	testutil.AddToCart(t, db, user.ID, p.ID, quantity)

	order, err := svc.Checkout(context.Background(), request(user.ID, addr.ID))
	require.NoError(t, err)
	return user, p, order
}

func TestCancelRestoresStockOnce(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, rec := newService(t, db)

	user, p, order := placeOrder(t, db, svc, 4)
	require.Equal(t, 6, stockOf(t, db, p.ID))

	actor := models.Actor{UserID: user.ID}
	cancelled, err := svc.Cancel(ctx, order.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, stockOf(t, db, p.ID))

	for i := 0; i < 2; i++ {
		_, err = svc.Cancel(ctx, order.ID, actor)
		assert.ErrorIs(t, err, database.ErrInvalidStateTransition)
	}
	assert.Equal(t, 10, stockOf(t, db, p.ID))

	history, err := store.ListStatusHistory(ctx, db, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.OrderStatusCancelled, history[1].Status)
	assert.Equal(t, "Cancelled by customer", history[1].Note)

	assert.Equal(t, []events.Type{events.OrderCreated, events.OrderCancelled}, rec.types())
}

func TestCancelHidesOtherUsersOrders(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, _ := newService(t, db)

	_, _, order := placeOrder(t, db, svc, 1)
	stranger := testutil.Retail(t, db)

	_, err := svc.Cancel(ctx, order.ID, models.Actor{UserID: stranger.ID})
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	staff := testutil.Staff(t, db)
	cancelled, err := svc.Cancel(ctx, order.ID, models.Actor{UserID: staff.ID, Staff: true})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
}

func TestCancelSkipsDeletedProducts(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, _ := newService(t, db)

	user, p, order := placeOrder(t, db, svc, 2)
	require.NoError(t, store.DeleteProduct(ctx, db, p.ID))

	cancelled, err := svc.Cancel(ctx, order.ID, models.Actor{UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	require.Len(t, cancelled.Items, 1)
	assert.Nil(t, cancelled.Items[0].ProductID)
	assert.Equal(t, p.SKU, cancelled.Items[0].ProductSKU)

	history, err := store.ListStatusHistory(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Contains(t, history[len(history)-1].Note, p.SKU)
}

func TestCancelNotAllowedAfterShipping(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, _ := newService(t, db)

	user, p, order := placeOrder(t, db, svc, 3)
	staff := models.Actor{UserID: testutil.Staff(t, db).ID, Staff: true}

	for _, to := range []models.OrderStatus{models.OrderStatusConfirmed, models.OrderStatusProcessing} {
		_, err := svc.Transition(ctx, order.ID, to, staff, checkout.TransitionInput{})
		require.NoError(t, err)
	}
	shipped, err := svc.Transition(ctx, order.ID, models.OrderStatusShipped, staff, checkout.TransitionInput{
		Note:           "Handed to courier",
		TrackingNumber: "TRK-1",
		Courier:        "Nepal Can Move",
	})
	require.NoError(t, err)
	assert.Equal(t, "TRK-1", shipped.TrackingNumber)
	assert.NotNil(t, shipped.ConfirmedAt)
	assert.NotNil(t, shipped.ShippedAt)

	_, err = svc.Cancel(ctx, order.ID, models.Actor{UserID: user.ID})
	assert.ErrorIs(t, err, database.ErrInvalidStateTransition)
	assert.Equal(t, 7, stockOf(t, db, p.ID))
}

func TestTransitionsAndPayment(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, rec := newService(t, db)

	_, _, order := placeOrder(t, db, svc, 1)
	staff := models.Actor{UserID: testutil.Staff(t, db).ID, Staff: true}

	_, err := svc.Transition(ctx, order.ID, models.OrderStatusShipped, staff, checkout.TransitionInput{})
	assert.ErrorIs(t, err, database.ErrInvalidStateTransition)

	paid, err := svc.UpdatePaymentStatus(ctx, order.ID, models.PaymentStatusPaid, staff)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)

	_, err = svc.UpdatePaymentStatus(ctx, order.ID, models.PaymentStatusFailed, staff)
	assert.ErrorIs(t, err, database.ErrInvalidStateTransition)

	for _, to := range []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	} {
		_, err := svc.Transition(ctx, order.ID, to, staff, checkout.TransitionInput{Note: fmt.Sprintf("moved to %s", to)})
		require.NoError(t, err)
	}

	refunded, err := svc.Transition(ctx, order.ID, models.OrderStatusRefunded, staff, checkout.TransitionInput{AdminNotes: "Damaged roll"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, refunded.Status)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.PaymentStatus)
	assert.Equal(t, "Damaged roll", refunded.AdminNotes)
	assert.NotNil(t, refunded.DeliveredAt)
	assert.NotNil(t, refunded.ActualDelivery)

	history, err := store.ListStatusHistory(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 6)

	assert.Contains(t, rec.types(), events.OrderPaymentChanged)
	assert.Contains(t, rec.types(), events.OrderStatusChanged)
}

func TestSummary(t *testing.T) {
	db := testutil.NewPostgres(t)
	svc, _ := newService(t, db)

	user := testutil.Retail(t, db)
	p := testutil.Product(t, db, "3000", "2500", 10)
	testutil.AddToCart(t, db, user.ID, p.ID, 2)

	summary, err := svc.Summary(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsCount)
	assert.Equal(t, 1, summary.Lines)
	assert.True(t, summary.Pricing.Subtotal.Equal(decimal.NewFromInt(6000)))
	assert.True(t, summary.Pricing.Shipping.IsZero())
	assert.True(t, summary.Pricing.Total.Equal(decimal.NewFromInt(6780)))

	cart, err := store.GetCart(context.Background(), db, user.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestOrderAndHistoryOwnership(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	svc, _ := newService(t, db)

	user, _, order := placeOrder(t, db, svc, 1)
	stranger := models.Actor{UserID: testutil.Retail(t, db).ID}

	got, err := svc.Order(ctx, order.ID, models.Actor{UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)

	_, err = svc.Order(ctx, order.ID, stranger)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	_, err = svc.History(ctx, order.ID, stranger)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	history, err := svc.History(ctx, order.ID, models.Actor{UserID: 0, Staff: true})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
