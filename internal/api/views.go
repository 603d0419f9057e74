package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/arun-store/internal/models"
	"github.com/safar/arun-store/internal/store"
)

// Product prices and stock levels are shown to staff only; customers see the
// catalog entry and whether it can be ordered.
type productView struct {
	ID                   int64  `json:"id"`
	SKU                  string `json:"sku"`
	Slug                 string `json:"slug"`
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	MinimumOrderQuantity int    `json:"minimum_order_quantity"`
	InStock              bool   `json:"in_stock"`
	IsAvailable          bool   `json:"is_available"`
}

type staffProductView struct {
	productView
	Price          decimal.Decimal `json:"price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	StockQuantity  int             `json:"stock_quantity"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newProductView(p *models.Product) productView {
	return productView{
		ID:                   p.ID,
		SKU:                  p.SKU,
		Slug:                 p.Slug,
		Name:                 p.Name,
		Description:          p.Description,
		MinimumOrderQuantity: p.MinimumOrderQuantity,
		InStock:              p.InStock(),
		IsAvailable:          p.IsAvailable,
	}
}

func productFor(actor models.Actor, p *models.Product) any {
	if !actor.Staff {
		return newProductView(p)
	}
	return staffProductView{
		productView:    newProductView(p),
		Price:          p.Price,
		WholesalePrice: p.WholesalePrice,
		StockQuantity:  p.StockQuantity,
		Version:        p.Version,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func productPageFor(actor models.Actor, page *store.OffsetPage[models.Product]) store.OffsetPage[any] {
	items := make([]any, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, productFor(actor, &page.Items[i]))
	}
	return store.OffsetPage[any]{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
}

type cartView struct {
	ID                   int64             `json:"id"`
	Items                []models.CartItem `json:"items"`
	TotalItems           int               `json:"total_items"`
	TotalAmount          decimal.Decimal   `json:"total_amount"`
	TotalWholesaleAmount decimal.Decimal   `json:"total_wholesale_amount"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func newCartView(c *models.Cart) cartView {
	return cartView{
		ID:                   c.ID,
		Items:                c.Items,
		TotalItems:           c.TotalItems(),
		TotalAmount:          c.TotalAmount(),
		TotalWholesaleAmount: c.TotalWholesaleAmount(),
		UpdatedAt:            c.UpdatedAt,
	}
}

// orderView is the customer's projection of an order. Admin notes and the row
// version belong to staffOrderView.
type orderView struct {
	ID                       int64                `json:"id"`
	UserID                   int64                `json:"user_id"`
	OrderNumber              string               `json:"order_number"`
	Status                   models.OrderStatus   `json:"status"`
	PaymentStatus            models.PaymentStatus `json:"payment_status"`
	PaymentMethod            models.PaymentMethod `json:"payment_method"`
	Subtotal                 decimal.Decimal      `json:"subtotal"`
	DiscountAmount           decimal.Decimal      `json:"discount_amount"`
	TaxAmount                decimal.Decimal      `json:"tax_amount"`
	ShippingCost             decimal.Decimal      `json:"shipping_cost"`
	TotalAmount              decimal.Decimal      `json:"total_amount"`
	IsWholesaleOrder         bool                 `json:"is_wholesale_order"`
	WholesaleDiscountPercent decimal.Decimal      `json:"wholesale_discount_percent"`
	ShippingAddress          *models.Address      `json:"shipping_address,omitempty"`
	BillingAddress           *models.Address      `json:"billing_address,omitempty"`
	EstimatedDelivery        *string              `json:"estimated_delivery,omitempty"`
	ActualDelivery           *string              `json:"actual_delivery,omitempty"`
	DeliveryInstructions     string               `json:"delivery_instructions,omitempty"`
	CustomerNotes            string               `json:"customer_notes,omitempty"`
	TrackingNumber           string               `json:"tracking_number,omitempty"`
	Courier                  string               `json:"courier,omitempty"`
	ConfirmedAt              *time.Time           `json:"confirmed_at,omitempty"`
	ShippedAt                *time.Time           `json:"shipped_at,omitempty"`
	DeliveredAt              *time.Time           `json:"delivered_at,omitempty"`
	CreatedAt                time.Time            `json:"created_at"`
	UpdatedAt                time.Time            `json:"updated_at"`
	TotalItems               int                  `json:"total_items"`
	CanCancel                bool                 `json:"can_cancel"`
	Items                    []models.OrderItem   `json:"items"`
}

type staffOrderView struct {
	orderView
	AdminNotes string `json:"admin_notes"`
	Version    int    `json:"version"`
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func newOrderView(o *models.Order) orderView {
	items := o.Items
	if items == nil {
		items = []models.OrderItem{}
	}
	return orderView{
		ID:                       o.ID,
		UserID:                   o.UserID,
		OrderNumber:              o.OrderNumber,
		Status:                   o.Status,
		PaymentStatus:            o.PaymentStatus,
		PaymentMethod:            o.PaymentMethod,
		Subtotal:                 o.Subtotal,
		DiscountAmount:           o.DiscountAmount,
		TaxAmount:                o.TaxAmount,
		ShippingCost:             o.ShippingCost,
		TotalAmount:              o.TotalAmount,
		IsWholesaleOrder:         o.IsWholesaleOrder,
		WholesaleDiscountPercent: o.WholesaleDiscountPercent,
		ShippingAddress:          o.ShippingAddress,
		BillingAddress:           o.BillingAddress,
		EstimatedDelivery:        dateString(o.EstimatedDelivery),
		ActualDelivery:           dateString(o.ActualDelivery),
		DeliveryInstructions:     o.DeliveryInstructions,
		CustomerNotes:            o.CustomerNotes,
		TrackingNumber:           o.TrackingNumber,
		Courier:                  o.Courier,
		ConfirmedAt:              o.ConfirmedAt,
		ShippedAt:                o.ShippedAt,
		DeliveredAt:              o.DeliveredAt,
		CreatedAt:                o.CreatedAt,
		UpdatedAt:                o.UpdatedAt,
		TotalItems:               o.TotalItems(),
		CanCancel:                o.CanCancel(),
		Items:                    items,
	}
}

func orderFor(actor models.Actor, o *models.Order) any {
	if !actor.Staff {
		return newOrderView(o)
	}
	return staffOrderView{
		orderView:  newOrderView(o),
		AdminNotes: o.AdminNotes,
		Version:    o.Version,
	}
}
