package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/safar/arun-store/internal/checkout"
	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/quotes"
	"github.com/safar/arun-store/internal/store"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type mapping struct {
	target error
	status int
	code   string
}

var errorMappings = []mapping{
	{database.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{database.ErrAddressNotFound, http.StatusBadRequest, "address_not_found"},
	{database.ErrBelowMinimumOrder, http.StatusBadRequest, "below_minimum_order"},
	{database.ErrProductUnavailable, http.StatusBadRequest, "product_unavailable"},
	{checkout.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
	{quotes.ErrInvalidQuote, http.StatusBadRequest, "invalid_quote"},
	{store.ErrInvalidCursor, http.StatusBadRequest, "invalid_cursor"},
	{database.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{database.ErrStockExceeded, http.StatusConflict, "stock_exceeded"},
	{database.ErrOrderNumberCollision, http.StatusConflict, "order_number_collision"},
	{database.ErrOptimisticLockFailed, http.StatusConflict, "version_conflict"},
	{database.ErrQuoteExpired, http.StatusConflict, "quote_expired"},
	{database.ErrLockTimeout, http.StatusServiceUnavailable, "busy"},
	{database.ErrQuoteConversionUnsupported, http.StatusNotImplemented, "quote_conversion_unsupported"},
	{database.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{database.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{database.ErrCartItemNotFound, http.StatusNotFound, "cart_item_not_found"},
	{database.ErrSavedItemNotFound, http.StatusNotFound, "saved_item_not_found"},
	{database.ErrQuoteNotFound, http.StatusNotFound, "quote_not_found"},
	{database.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
}

func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func abortWithCode(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Code: code, Message: message(c, code)}})
}

// respondError maps a service error to its HTTP status and localized body. Internal
// errors are logged and their text is not exposed.
func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		loggerFrom(c).WithError(err).Error("Request failed")
	} else {
		_ = c.Error(err)
	}
	abortWithCode(c, status, code)
}

type fieldErrorsBody struct {
	Errors map[string]string `json:"errors"`
}

func respondFieldErrors(c *gin.Context, fields map[string]string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, fieldErrorsBody{Errors: fields})
}

// respondBindError turns a binding failure into a field-error map keyed by JSON name.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		_ = c.Error(err)
		abortWithCode(c, http.StatusBadRequest, "invalid_request")
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = message(c, fieldCode(fe.Tag()))
	}
	respondFieldErrors(c, fields)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldCode(tag string) string {
	switch tag {
	case "required":
		return "field_required"
	case "min", "gte", "gt":
		return "field_min"
	case "max", "lte", "lt":
		return "field_max"
	case "oneof":
		return "field_oneof"
	default:
		return "field_invalid"
	}
}
