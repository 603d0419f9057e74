// Package pricing turns a cart snapshot and a customer tier into an order's money
// breakdown. Everything here is pure: no I/O, no clock, no shared state.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/safar/arun-store/internal/models"
)

var hundred = decimal.NewFromInt(100)

type Config struct {
	TaxRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		TaxRate:               decimal.RequireFromString("0.13"),
		ShippingFee:           decimal.NewFromInt(100),
		FreeShippingThreshold: decimal.NewFromInt(5000),
	}
}

func (c Config) Validate() error {
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("tax rate must be in [0, 1)")
	}
	if c.ShippingFee.IsNegative() {
		return errors.New("shipping fee must not be negative")
	}
	if c.FreeShippingThreshold.IsNegative() {
		return errors.New("free shipping threshold must not be negative")
	}
	return nil
}

type Tier struct {
	Wholesale       bool
	DiscountPercent decimal.Decimal
}

func Retail() Tier {
	return Tier{}
}

func TierFor(user *models.User) Tier {
	if user == nil || !user.IsWholesale {
		return Retail()
	}
	return Tier{Wholesale: true, DiscountPercent: user.WholesaleDiscount}
}

type Line struct {
	ProductID      int64
	Quantity       int
	UnitPrice      decimal.Decimal
	WholesalePrice decimal.Decimal
}

func LinesFromCart(items []models.CartItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			WholesalePrice: item.WholesalePrice,
		})
	}
	return lines
}

func (l Line) price(tier Tier) decimal.Decimal {
	if tier.Wholesale {
		return l.WholesalePrice
	}
	return l.UnitPrice
}

// Breakdown holds full-precision intermediates. Only Total is rounded.
type Breakdown struct {
	Wholesale       bool            `json:"is_wholesale"`
	DiscountPercent decimal.Decimal `json:"wholesale_discount_percent"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount_amount"`
	Taxable         decimal.Decimal `json:"taxable_amount"`
	Tax             decimal.Decimal `json:"tax_amount"`
	Shipping        decimal.Decimal `json:"shipping_cost"`
	Total           decimal.Decimal `json:"total_amount"`
}

func Calculate(cfg Config, lines []Line, tier Tier) Breakdown {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.price(tier).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	discount := decimal.Zero
	percent := decimal.Zero
	if tier.Wholesale && tier.DiscountPercent.IsPositive() {
		percent = tier.DiscountPercent
		discount = subtotal.Mul(percent).Div(hundred)
	}

	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(cfg.TaxRate)

	shipping := cfg.ShippingFee
	if tier.Wholesale || subtotal.GreaterThan(cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Breakdown{
		Wholesale:       tier.Wholesale,
		DiscountPercent: percent,
		Subtotal:        subtotal,
		Discount:        discount,
		Taxable:         taxable,
		Tax:             tax,
		Shipping:        shipping,
		Total:           taxable.Add(tax).Add(shipping).Round(2),
	}
}

// Snapshot rounds every component to cents for storage. Tax absorbs the rounding
// residual so that Total == Subtotal - Discount + Tax + Shipping exactly.
func (b Breakdown) Snapshot() Breakdown {
	s := b
	s.Subtotal = b.Subtotal.Round(2)
	s.Discount = b.Discount.Round(2)
	s.Shipping = b.Shipping.Round(2)
	s.Taxable = s.Subtotal.Sub(s.Discount)
	s.Tax = b.Total.Sub(s.Taxable).Sub(s.Shipping)
	return s
}
