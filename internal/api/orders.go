package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/safar/arun-store/internal/checkout"
	"github.com/safar/arun-store/internal/models"
	"github.com/safar/arun-store/internal/store"
)

const idempotencyHeader = "X-Idempotency-Key"

type checkoutReq struct {
	ShippingAddressID    int64  `json:"shipping_address_id" binding:"required,min=1"`
	BillingAddressID     *int64 `json:"billing_address_id" binding:"omitempty,min=1"`
	UseShippingAsBilling *bool  `json:"use_shipping_as_billing"`
	PaymentMethod        string `json:"payment_method" binding:"required,oneof=cash_on_delivery bank_transfer online_payment credit"`
	DeliveryInstructions string `json:"delivery_instructions" binding:"max=1000"`
	CustomerNotes        string `json:"customer_notes" binding:"max=1000"`
}

// Checkout places an order from the caller's cart. With an X-Idempotency-Key header a
// retried request replays the order created by the first one.
func (h *Handler) Checkout(c *gin.Context) {
	var req checkoutReq
	if !bindJSON(c, &req) {
		return
	}

	useShipping := true
	if req.UseShippingAsBilling != nil {
		useShipping = *req.UseShippingAsBilling
	}
	if !useShipping && req.BillingAddressID == nil {
		respondFieldErrors(c, map[string]string{"billing_address_id": message(c, "billing_address_required")})
		return
	}

	ctx := c.Request.Context()
	actor := mustActor(c)
	key := c.GetHeader(idempotencyHeader)
	scope := "checkout:" + strconv.FormatInt(actor.UserID, 10)
	dedupe := h.idempotency != nil && key != ""

	if dedupe {
		if id, ok, _ := h.idempotency.Recall(ctx, scope, key); ok {
			h.replayOrder(c, id, actor)
			return
		}

		ok, err := h.idempotency.TryLock(ctx, scope, key)
		if err != nil {
			respondError(c, err)
			return
		}
		if !ok {
			// The holder may have finished since the first lookup.
			if id, done, _ := h.idempotency.Recall(ctx, scope, key); done {
				h.replayOrder(c, id, actor)
				return
			}
			abortWithCode(c, http.StatusConflict, "request_in_progress")
			return
		}
	}

	order, err := h.orders.Checkout(ctx, checkout.Request{
		UserID:               actor.UserID,
		ShippingAddressID:    req.ShippingAddressID,
		BillingAddressID:     req.BillingAddressID,
		UseShippingAsBilling: useShipping,
		PaymentMethod:        models.PaymentMethod(req.PaymentMethod),
		DeliveryInstructions: req.DeliveryInstructions,
		CustomerNotes:        req.CustomerNotes,
	})
	if err != nil {
		if dedupe {
			if relErr := h.idempotency.Release(ctx, scope, key); relErr != nil {
				loggerFrom(c).WithError(relErr).Warn("Failed to release idempotency key")
			}
		}
		respondCheckoutError(c, err)
		return
	}

	if dedupe {
		if err := h.idempotency.Remember(ctx, scope, key, strconv.FormatInt(order.ID, 10)); err != nil {
			loggerFrom(c).WithError(err).Warn("Failed to remember idempotency key")
		}
	}

	c.JSON(http.StatusCreated, orderFor(actor, order))
}

// respondCheckoutError answers address problems as field errors keyed by the request field.
func respondCheckoutError(c *gin.Context, err error) {
	var addrErr *checkout.AddressError
	if !errors.As(err, &addrErr) {
		respondError(c, err)
		return
	}

	code := "address_unusable"
	if errors.Is(addrErr, checkout.ErrBillingAddressRequired) {
		code = "billing_address_required"
	}
	_ = c.Error(err)
	respondFieldErrors(c, map[string]string{addrErr.Field: message(c, code)})
}

func (h *Handler) replayOrder(c *gin.Context, rawID string, actor models.Actor) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		respondError(c, errors.New("corrupt idempotency record"))
		return
	}

	order, err := h.orders.Order(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, orderFor(actor, order))
}

func (h *Handler) ListOrders(c *gin.Context) {
	actor := mustActor(c)
	status := models.OrderStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		respondFieldErrors(c, map[string]string{"status": message(c, "field_oneof")})
		return
	}

	page, err := store.ListOrdersCursor(c.Request.Context(), h.db,
		store.OrderFilter{UserID: actor.UserID, Status: status},
		c.Query("cursor"), queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]any, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, orderFor(actor, &page.Items[i]))
	}

	c.JSON(http.StatusOK, store.CursorPage[any]{
		Items:      items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	actor := mustActor(c)

	order, err := h.orders.Order(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderFor(actor, order))
}

func (h *Handler) OrderHistory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	history, err := h.orders.History(c.Request.Context(), id, mustActor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": history})
}

func (h *Handler) OrderStats(c *gin.Context) {
	stats, err := store.OrderStats(c.Request.Context(), h.db, mustActor(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CancelOrder serves both the customer and the staff cancel routes. Ownership is
// checked by the order service.
func (h *Handler) CancelOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	actor := mustActor(c)

	order, err := h.orders.Cancel(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderFor(actor, order))
}

type transitionReq struct {
	Status         string `json:"status" binding:"required,oneof=confirmed processing shipped delivered cancelled refunded"`
	Note           string `json:"note" binding:"max=500"`
	TrackingNumber string `json:"tracking_number" binding:"max=100"`
	Courier        string `json:"courier" binding:"max=100"`
	AdminNotes     string `json:"admin_notes" binding:"max=2000"`
}

func (h *Handler) TransitionOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req transitionReq
	if !bindJSON(c, &req) {
		return
	}
	actor := mustActor(c)

	order, err := h.orders.Transition(c.Request.Context(), id, models.OrderStatus(req.Status), actor, checkout.TransitionInput{
		Note:           req.Note,
		TrackingNumber: req.TrackingNumber,
		Courier:        req.Courier,
		AdminNotes:     req.AdminNotes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderFor(actor, order))
}

type paymentReq struct {
	PaymentStatus string `json:"payment_status" binding:"required,oneof=pending paid failed refunded"`
}

func (h *Handler) UpdatePayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req paymentReq
	if !bindJSON(c, &req) {
		return
	}
	actor := mustActor(c)

	order, err := h.orders.UpdatePaymentStatus(c.Request.Context(), id, models.PaymentStatus(req.PaymentStatus), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderFor(actor, order))
}
