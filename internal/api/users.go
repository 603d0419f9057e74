package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/store"
)

type createUserReq struct {
	Email             string          `json:"email" binding:"required,email,max=255"`
	Name              string          `json:"name" binding:"required,max=100"`
	Phone             string          `json:"phone" binding:"max=20"`
	IsWholesale       bool            `json:"is_wholesale"`
	WholesaleDiscount decimal.Decimal `json:"wholesale_discount"`
	IsStaff           bool            `json:"is_staff"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if !bindJSON(c, &req) {
		return
	}

	if req.WholesaleDiscount.IsNegative() || req.WholesaleDiscount.GreaterThan(decimal.NewFromInt(100)) {
		respondFieldErrors(c, map[string]string{"wholesale_discount": message(c, "field_invalid")})
		return
	}

	user, err := store.CreateUser(c.Request.Context(), h.db, store.NewUser{
		Email:             req.Email,
		Name:              req.Name,
		Phone:             req.Phone,
		IsWholesale:       req.IsWholesale,
		WholesaleDiscount: req.WholesaleDiscount,
		IsStaff:           req.IsStaff,
	})
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			abortWithCode(c, http.StatusConflict, "already_exists")
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *Handler) ListUsers(c *gin.Context) {
	page, err := store.ListUsers(c.Request.Context(), h.db, queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	user, err := store.GetUser(c.Request.Context(), h.db, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
