package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/safar/arun-store/internal/models"
	"github.com/safar/arun-store/internal/quotes"
)

const dateLayout = "2006-01-02"

type createQuoteReq struct {
	Urgency              string `json:"urgency" binding:"omitempty,oneof=low medium high urgent"`
	FabricType           string `json:"fabric_type" binding:"required,max=100"`
	MaterialPreference   string `json:"material_preference" binding:"max=200"`
	QuantityNeeded       int    `json:"quantity_needed" binding:"required,min=1"`
	PreferredColors      string `json:"preferred_colors" binding:"max=200"`
	UsageDescription     string `json:"usage_description" binding:"max=2000"`
	QualityRequirements  string `json:"quality_requirements" binding:"max=2000"`
	DeliveryLocation     string `json:"delivery_location" binding:"max=200"`
	RequiredDeliveryDate string `json:"required_delivery_date" binding:"omitempty,datetime=2006-01-02"`
	BudgetRange          string `json:"budget_range" binding:"max=100"`
	CustomerMessage      string `json:"customer_message" binding:"max=2000"`
	ContactViaWhatsApp   bool   `json:"contact_via_whatsapp"`
	ContactViaEmail      bool   `json:"contact_via_email"`
	ContactViaPhone      bool   `json:"contact_via_phone"`
}

func (h *Handler) CreateQuote(c *gin.Context) {
	var req createQuoteReq
	if !bindJSON(c, &req) {
		return
	}

	in := quotes.CreateInput{
		Urgency:             models.Urgency(req.Urgency),
		FabricType:          req.FabricType,
		MaterialPreference:  req.MaterialPreference,
		QuantityNeeded:      req.QuantityNeeded,
		PreferredColors:     req.PreferredColors,
		UsageDescription:    req.UsageDescription,
		QualityRequirements: req.QualityRequirements,
		DeliveryLocation:    req.DeliveryLocation,
		BudgetRange:         req.BudgetRange,
		CustomerMessage:     req.CustomerMessage,
		ContactViaWhatsApp:  req.ContactViaWhatsApp,
		ContactViaEmail:     req.ContactViaEmail,
		ContactViaPhone:     req.ContactViaPhone,
	}
	if req.RequiredDeliveryDate != "" {
		// Already validated by the datetime tag.
		d, _ := time.Parse(dateLayout, req.RequiredDeliveryDate)
		in.RequiredDeliveryDate = &d
	}

	qr, err := h.quotes.Create(c.Request.Context(), mustActor(c).UserID, in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, qr)
}

// ListQuotes lists the caller's quotes, or every quote for staff.
func (h *Handler) ListQuotes(c *gin.Context) {
	status := models.QuoteStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		respondFieldErrors(c, map[string]string{"status": message(c, "field_oneof")})
		return
	}

	page, err := h.quotes.List(c.Request.Context(), mustActor(c), status,
		queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetQuote(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	qr, err := h.quotes.Get(c.Request.Context(), id, mustActor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, qr)
}

func (h *Handler) AcceptQuote(c *gin.Context) {
	h.quoteAction(c, h.quotes.Accept)
}

func (h *Handler) RejectQuote(c *gin.Context) {
	h.quoteAction(c, h.quotes.Reject)
}

func (h *Handler) StartQuoteProcessing(c *gin.Context) {
	h.quoteAction(c, h.quotes.StartProcessing)
}

func (h *Handler) quoteAction(c *gin.Context, fn func(ctx context.Context, id int64, actor models.Actor) (*models.QuoteRequest, error)) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	qr, err := fn(c.Request.Context(), id, mustActor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, qr)
}

type quoteReq struct {
	Price         decimal.Decimal `json:"price"`
	Total         decimal.Decimal `json:"total"`
	Response      string          `json:"response" binding:"max=2000"`
	ValidForHours int             `json:"valid_for_hours" binding:"omitempty,min=1,max=2160"`
}

func (h *Handler) QuotePrice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req quoteReq
	if !bindJSON(c, &req) {
		return
	}

	fields := map[string]string{}
	if !req.Price.IsPositive() {
		fields["price"] = message(c, "field_min")
	}
	if !req.Total.IsPositive() {
		fields["total"] = message(c, "field_min")
	}
	if len(fields) > 0 {
		respondFieldErrors(c, fields)
		return
	}

	qr, err := h.quotes.Quote(c.Request.Context(), id, mustActor(c), quotes.QuoteInput{
		Price:    req.Price,
		Total:    req.Total,
		Response: req.Response,
		ValidFor: time.Duration(req.ValidForHours) * time.Hour,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, qr)
}

func (h *Handler) ExpireQuotes(c *gin.Context) {
	n, err := h.quotes.ExpireStale(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	loggerFrom(c).WithField("expired", n).Info("Expired stale quotes")
	c.JSON(http.StatusOK, gin.H{"expired": n})
}
