package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/store"
)

func (h *Handler) ListProducts(c *gin.Context) {
	actor, _ := actorFrom(c)
	includeUnavailable := actor.Staff && c.Query("include_unavailable") == "true"

	page, err := store.ListProducts(c.Request.Context(), h.db,
		queryInt(c, "page", 1), queryInt(c, "page_size", 20), includeUnavailable)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, productPageFor(actor, page))
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	actor, _ := actorFrom(c)

	p, err := store.GetProduct(c.Request.Context(), h.db, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !p.IsAvailable && !actor.Staff {
		respondError(c, database.ErrProductNotFound)
		return
	}

	c.JSON(http.StatusOK, productFor(actor, p))
}

type createProductReq struct {
	SKU                  string          `json:"sku" binding:"required,max=50"`
	Name                 string          `json:"name" binding:"required,max=200"`
	Description          string          `json:"description"`
	Price                decimal.Decimal `json:"price"`
	WholesalePrice       decimal.Decimal `json:"wholesale_price"`
	MinimumOrderQuantity int             `json:"minimum_order_quantity" binding:"omitempty,min=1"`
	StockQuantity        int             `json:"stock_quantity" binding:"min=0"`
	IsAvailable          *bool           `json:"is_available"`
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductReq
	if !bindJSON(c, &req) {
		return
	}

	fields := map[string]string{}
	if !req.Price.IsPositive() {
		fields["price"] = message(c, "field_min")
	}
	if req.WholesalePrice.IsNegative() {
		fields["wholesale_price"] = message(c, "field_min")
	}
	if len(fields) > 0 {
		respondFieldErrors(c, fields)
		return
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	wholesale := req.WholesalePrice
	if wholesale.IsZero() {
		wholesale = req.Price
	}

	p, err := store.CreateProduct(c.Request.Context(), h.db, store.NewProduct{
		SKU:                  req.SKU,
		Name:                 req.Name,
		Description:          req.Description,
		Price:                req.Price,
		WholesalePrice:       wholesale,
		MinimumOrderQuantity: req.MinimumOrderQuantity,
		StockQuantity:        req.StockQuantity,
		IsAvailable:          available,
	})
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			abortWithCode(c, http.StatusConflict, "already_exists")
			return
		}
		respondError(c, err)
		return
	}

	loggerFrom(c).WithField("product_id", p.ID).Info("Product created")
	c.JSON(http.StatusCreated, productFor(mustActor(c), p))
}

type restockReq struct {
	StockQuantity *int `json:"stock_quantity" binding:"required,min=0"`
	Version       int  `json:"version" binding:"required,min=1"`
}

func (h *Handler) RestockProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req restockReq
	if !bindJSON(c, &req) {
		return
	}

	p, err := store.RestockProduct(c.Request.Context(), h.db, id, *req.StockQuantity, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}

	loggerFrom(c).WithFields(logrus.Fields{"product_id": p.ID, "stock": p.StockQuantity}).Info("Product restocked")
	c.JSON(http.StatusOK, productFor(mustActor(c), p))
}

type availabilityReq struct {
	IsAvailable *bool `json:"is_available" binding:"required"`
}

// SetProductAvailability hides a product from customers or puts it back on sale.
func (h *Handler) SetProductAvailability(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req availabilityReq
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := store.SetProductAvailability(ctx, h.db, id, *req.IsAvailable); err != nil {
		respondError(c, err)
		return
	}
	p, err := store.GetProduct(ctx, h.db, id)
	if err != nil {
		respondError(c, err)
		return
	}

	loggerFrom(c).WithFields(logrus.Fields{"product_id": p.ID, "available": p.IsAvailable}).Info("Product availability changed")
	c.JSON(http.StatusOK, productFor(mustActor(c), p))
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := store.DeleteProduct(c.Request.Context(), h.db, id); err != nil {
		respondError(c, err)
		return
	}

	loggerFrom(c).WithField("product_id", id).Info("Product deleted")
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListAddresses(c *gin.Context) {
	addrs, err := store.ListAddresses(c.Request.Context(), h.db, mustActor(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": addrs})
}

type createAddressReq struct {
	Label       string `json:"label" binding:"max=50"`
	FullName    string `json:"full_name" binding:"required,max=100"`
	Phone       string `json:"phone" binding:"max=20"`
	AddressLine string `json:"address_line" binding:"required,max=255"`
	City        string `json:"city" binding:"required,max=100"`
	District    string `json:"district" binding:"max=100"`
	Province    string `json:"province" binding:"max=100"`
	PostalCode  string `json:"postal_code" binding:"max=10"`
	IsDefault   bool   `json:"is_default"`
}

func (h *Handler) CreateAddress(c *gin.Context) {
	var req createAddressReq
	if !bindJSON(c, &req) {
		return
	}

	addr, err := store.CreateAddress(c.Request.Context(), h.db, mustActor(c).UserID, store.NewAddress{
		Label:       req.Label,
		FullName:    req.FullName,
		Phone:       req.Phone,
		AddressLine: req.AddressLine,
		City:        req.City,
		District:    req.District,
		Province:    req.Province,
		PostalCode:  req.PostalCode,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, addr)
}

func (h *Handler) DeleteAddress(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := store.DeactivateAddress(c.Request.Context(), h.db, mustActor(c).UserID, id); err != nil {
		if errors.Is(err, database.ErrAddressNotFound) {
			abortWithCode(c, http.StatusNotFound, "address_not_found")
			return
		}
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
