package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                int64           `json:"id"`
	Email             string          `json:"email"`
	Name              string          `json:"name"`
	Phone             string          `json:"phone,omitempty"`
	IsWholesale       bool            `json:"is_wholesale"`
	WholesaleDiscount decimal.Decimal `json:"wholesale_discount"`
	IsStaff           bool            `json:"is_staff"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
}

type Address struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Label       string    `json:"label,omitempty"`
	FullName    string    `json:"full_name"`
	Phone       string    `json:"phone,omitempty"`
	AddressLine string    `json:"address_line"`
	City        string    `json:"city"`
	District    string    `json:"district,omitempty"`
	Province    string    `json:"province,omitempty"`
	PostalCode  string    `json:"postal_code,omitempty"`
	IsDefault   bool      `json:"is_default"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Product struct {
	ID                   int64           `json:"id"`
	SKU                  string          `json:"sku"`
	Slug                 string          `json:"slug"`
	Name                 string          `json:"name"`
	Description          string          `json:"description,omitempty"`
	Price                decimal.Decimal `json:"price"`
	WholesalePrice       decimal.Decimal `json:"wholesale_price"`
	MinimumOrderQuantity int             `json:"minimum_order_quantity"`
	StockQuantity        int             `json:"stock_quantity"`
	IsAvailable          bool            `json:"is_available"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Version              int             `json:"version"`
}

func (p *Product) InStock() bool {
	return p.StockQuantity > 0
}

type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Items     []CartItem `json:"items"`
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

func (c *Cart) TotalWholesaleAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.WholesaleTotalPrice())
	}
	return total
}

// CartItem prices are captured when the product is first added and are not repriced.
type CartItem struct {
	ID                  int64           `json:"id"`
	CartID              int64           `json:"cart_id"`
	ProductID           int64           `json:"product_id"`
	ProductName         string          `json:"product_name"`
	ProductSKU          string          `json:"product_sku"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	WholesalePrice      decimal.Decimal `json:"wholesale_price"`
	PreferredColors     string          `json:"preferred_colors,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (i CartItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i CartItem) WholesaleTotalPrice() decimal.Decimal {
	return i.WholesalePrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type SavedItem struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Order struct {
	ID                       int64           `json:"id"`
	UserID                   int64           `json:"user_id"`
	OrderNumber              string          `json:"order_number"`
	Status                   OrderStatus     `json:"status"`
	PaymentStatus            PaymentStatus   `json:"payment_status"`
	PaymentMethod            PaymentMethod   `json:"payment_method"`
	Subtotal                 decimal.Decimal `json:"subtotal"`
	DiscountAmount           decimal.Decimal `json:"discount_amount"`
	TaxAmount                decimal.Decimal `json:"tax_amount"`
	ShippingCost             decimal.Decimal `json:"shipping_cost"`
	TotalAmount              decimal.Decimal `json:"total_amount"`
	IsWholesaleOrder         bool            `json:"is_wholesale_order"`
	WholesaleDiscountPercent decimal.Decimal `json:"wholesale_discount_percent"`
	ShippingAddressID        int64           `json:"shipping_address_id"`
	BillingAddressID         int64           `json:"billing_address_id"`
	ShippingAddress          *Address        `json:"shipping_address,omitempty"`
	BillingAddress           *Address        `json:"billing_address,omitempty"`
	EstimatedDelivery        *time.Time      `json:"estimated_delivery,omitempty"`
	ActualDelivery           *time.Time      `json:"actual_delivery,omitempty"`
	DeliveryInstructions     string          `json:"delivery_instructions,omitempty"`
	CustomerNotes            string          `json:"customer_notes,omitempty"`
	AdminNotes               string          `json:"admin_notes,omitempty"`
	TrackingNumber           string          `json:"tracking_number,omitempty"`
	Courier                  string          `json:"courier,omitempty"`
	ConfirmedAt              *time.Time      `json:"confirmed_at,omitempty"`
	ShippedAt                *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt              *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
	Version                  int             `json:"version"`
	Items                    []OrderItem     `json:"items,omitempty"`
}

func (o *Order) CanCancel() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

func (o *Order) TotalItems() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// BalancedTotal reports whether total = subtotal - discount + tax + shipping holds exactly.
func (o *Order) BalancedTotal() bool {
	return o.Subtotal.Sub(o.DiscountAmount).Add(o.TaxAmount).Add(o.ShippingCost).Equal(o.TotalAmount)
}

// OrderItem is a copy of the cart line at checkout. ProductID is nil once the
// product has been deleted.
type OrderItem struct {
	ID                  int64           `json:"id"`
	OrderID             int64           `json:"order_id"`
	ProductID           *int64          `json:"product_id"`
	ProductName         string          `json:"product_name"`
	ProductSKU          string          `json:"product_sku"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	WholesalePrice      decimal.Decimal `json:"wholesale_price"`
	LineTotal           decimal.Decimal `json:"line_total"`
	PreferredColors     string          `json:"preferred_colors,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

type OrderStatusHistory struct {
	ID        int64       `json:"id"`
	OrderID   int64       `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
	CreatedBy *int64      `json:"created_by,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type QuoteRequest struct {
	ID                   int64            `json:"id"`
	QuoteNumber          string           `json:"quote_number"`
	UserID               int64            `json:"user_id"`
	Status               QuoteStatus      `json:"status"`
	Urgency              Urgency          `json:"urgency"`
	FabricType           string           `json:"fabric_type"`
	MaterialPreference   string           `json:"material_preference,omitempty"`
	QuantityNeeded       int              `json:"quantity_needed"`
	PreferredColors      string           `json:"preferred_colors,omitempty"`
	UsageDescription     string           `json:"usage_description,omitempty"`
	QualityRequirements  string           `json:"quality_requirements,omitempty"`
	DeliveryLocation     string           `json:"delivery_location,omitempty"`
	RequiredDeliveryDate *time.Time       `json:"required_delivery_date,omitempty"`
	BudgetRange          string           `json:"budget_range,omitempty"`
	QuotedPrice          *decimal.Decimal `json:"quoted_price,omitempty"`
	QuotedTotal          *decimal.Decimal `json:"quoted_total,omitempty"`
	CustomerMessage      string           `json:"customer_message,omitempty"`
	AdminResponse        string           `json:"admin_response,omitempty"`
	ContactViaWhatsApp   bool             `json:"contact_via_whatsapp"`
	ContactViaEmail      bool             `json:"contact_via_email"`
	ContactViaPhone      bool             `json:"contact_via_phone"`
	QuotedAt             *time.Time       `json:"quoted_at,omitempty"`
	ExpiresAt            *time.Time       `json:"expires_at,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func (q *QuoteRequest) IsExpired(now time.Time) bool {
	return q.ExpiresAt != nil && now.After(*q.ExpiresAt)
}

type OrderStats struct {
	TotalOrders     int64           `json:"total_orders"`
	PendingOrders   int64           `json:"pending_orders"`
	ConfirmedOrders int64           `json:"confirmed_orders"`
	ShippedOrders   int64           `json:"shipped_orders"`
	CompletedOrders int64           `json:"completed_orders"`
	CancelledOrders int64           `json:"cancelled_orders"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	PendingQuotes   int64           `json:"pending_quotes"`
	CartItems       int64           `json:"cart_items"`
	SavedItems      int64           `json:"saved_items"`
}
