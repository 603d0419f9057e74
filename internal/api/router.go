package api

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/safar/arun-store/internal/auth"
)

// NewRouter mounts every route. Customer routes sit behind Authenticate and the
// /v1/admin group additionally requires a staff token.
func NewRouter(h *Handler, tokens *auth.TokenManager, log logrus.FieldLogger) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery(), Metrics(), RequestLogger(log))

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	products := v1.Group("/products", OptionalAuth(tokens))
	{
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProduct)
	}

	authed := v1.Group("", Authenticate(tokens))
	{
		authed.GET("/addresses", h.ListAddresses)
		authed.POST("/addresses", h.CreateAddress)
		authed.DELETE("/addresses/:id", h.DeleteAddress)

		authed.GET("/cart", h.GetCart)
		authed.GET("/cart/summary", h.CartSummary)
		authed.POST("/cart/items", h.AddCartItem)
		authed.PUT("/cart/items/:id", h.UpdateCartItem)
		authed.DELETE("/cart/items/:id", h.RemoveCartItem)
		authed.POST("/cart/items/:id/save-for-later", h.SaveForLater)
		authed.POST("/cart/clear", h.ClearCart)

		authed.GET("/saved-items", h.ListSavedItems)
		authed.POST("/saved-items", h.CreateSavedItem)
		authed.DELETE("/saved-items/:id", h.DeleteSavedItem)
		authed.POST("/saved-items/:id/move-to-cart", h.MoveSavedItemToCart)

		authed.POST("/orders/checkout", h.Checkout)
		authed.GET("/orders", h.ListOrders)
		authed.GET("/orders/stats", h.OrderStats)
		authed.GET("/orders/:id", h.GetOrder)
		authed.GET("/orders/:id/history", h.OrderHistory)
		authed.POST("/orders/:id/cancel", h.CancelOrder)

		authed.POST("/quotes", h.CreateQuote)
		authed.GET("/quotes", h.ListQuotes)
		authed.GET("/quotes/:id", h.GetQuote)
		authed.POST("/quotes/:id/accept", h.AcceptQuote)
		authed.POST("/quotes/:id/reject", h.RejectQuote)
	}

	admin := v1.Group("/admin", Authenticate(tokens), RequireStaff())
	{
		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.CreateUser)
		admin.GET("/users/:id", h.GetUser)

		admin.POST("/products", h.CreateProduct)
		admin.PUT("/products/:id/stock", h.RestockProduct)
		admin.PUT("/products/:id/availability", h.SetProductAvailability)
		admin.DELETE("/products/:id", h.DeleteProduct)

		admin.POST("/orders/:id/status", h.TransitionOrder)
		admin.POST("/orders/:id/payment", h.UpdatePayment)
		admin.POST("/orders/:id/cancel", h.CancelOrder)

		admin.GET("/quotes", h.ListQuotes)
		admin.POST("/quotes/expire", h.ExpireQuotes)
		admin.POST("/quotes/:id/processing", h.StartQuoteProcessing)
		admin.POST("/quotes/:id/quote", h.QuotePrice)
	}

	r.NoRoute(func(c *gin.Context) {
		abortWithCode(c, http.StatusNotFound, "not_found")
	})

	return r
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		loggerFrom(c).WithError(err).Error("Database ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// useJSONFieldNames makes validation errors report the json name of a field.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
