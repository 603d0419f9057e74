package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/safar/arun-store/internal/store"
)

func (h *Handler) GetCart(c *gin.Context) {
	cart, err := store.GetCart(c.Request.Context(), h.db, mustActor(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartView(cart))
}

func (h *Handler) CartSummary(c *gin.Context) {
	summary, err := h.orders.Summary(c.Request.Context(), mustActor(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type addCartItemReq struct {
	ProductID           int64  `json:"product_id" binding:"required,min=1"`
	Quantity            int    `json:"quantity" binding:"required,min=1"`
	PreferredColors     string `json:"preferred_colors" binding:"max=200"`
	SpecialInstructions string `json:"special_instructions" binding:"max=1000"`
}

func (h *Handler) AddCartItem(c *gin.Context) {
	var req addCartItemReq
	if !bindJSON(c, &req) {
		return
	}

	item, err := store.AddCartItem(c.Request.Context(), h.db, mustActor(c).UserID, store.AddItem{
		ProductID:           req.ProductID,
		Quantity:            req.Quantity,
		PreferredColors:     req.PreferredColors,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

type updateCartItemReq struct {
	Quantity            int     `json:"quantity" binding:"required,min=1"`
	PreferredColors     *string `json:"preferred_colors" binding:"omitempty,max=200"`
	SpecialInstructions *string `json:"special_instructions" binding:"omitempty,max=1000"`
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req updateCartItemReq
	if !bindJSON(c, &req) {
		return
	}

	item, err := store.UpdateCartItem(c.Request.Context(), h.db, mustActor(c).UserID, id, store.UpdateItem{
		Quantity:            req.Quantity,
		PreferredColors:     req.PreferredColors,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := store.RemoveCartItem(c.Request.Context(), h.db, mustActor(c).UserID, id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearCart(c *gin.Context) {
	if err := store.ClearUserCart(c.Request.Context(), h.db, mustActor(c).UserID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) SaveForLater(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	saved, err := store.SaveForLater(c.Request.Context(), h.db, mustActor(c).UserID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, saved)
}

func (h *Handler) ListSavedItems(c *gin.Context) {
	items, err := store.ListSavedItems(c.Request.Context(), h.db, mustActor(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type saveItemReq struct {
	ProductID int64  `json:"product_id" binding:"required,min=1"`
	Quantity  int    `json:"quantity" binding:"omitempty,min=1"`
	Notes     string `json:"notes" binding:"max=1000"`
}

func (h *Handler) CreateSavedItem(c *gin.Context) {
	var req saveItemReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	saved, err := store.SaveItem(c.Request.Context(), h.db, mustActor(c).UserID, req.ProductID, req.Quantity, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, saved)
}

func (h *Handler) DeleteSavedItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := store.DeleteSavedItem(c.Request.Context(), h.db, mustActor(c).UserID, id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) MoveSavedItemToCart(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	item, err := store.MoveSavedItemToCart(c.Request.Context(), h.db, mustActor(c).UserID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}
