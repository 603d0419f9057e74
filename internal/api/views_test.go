package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/arun-store/internal/models"
)

func asMap(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestProductForHidesPricesFromCustomers(t *testing.T) {
	p := &models.Product{
		ID:                   1,
		SKU:                  "SILK-001",
		Name:                 "Dhaka Silk",
		Price:                decimal.NewFromInt(1000),
		WholesalePrice:       decimal.NewFromInt(800),
		MinimumOrderQuantity: 1,
		StockQuantity:        12,
		IsAvailable:          true,
	}

	customer := asMap(t, productFor(models.Actor{UserID: 5}, p))
	assert.NotContains(t, customer, "price")
	assert.NotContains(t, customer, "wholesale_price")
	assert.NotContains(t, customer, "stock_quantity")
	assert.Equal(t, true, customer["in_stock"])

	staff := asMap(t, productFor(models.Actor{UserID: 1, Staff: true}, p))
	assert.Equal(t, "1000", staff["price"])
	assert.Equal(t, "800", staff["wholesale_price"])
	assert.EqualValues(t, 12, staff["stock_quantity"])
	assert.Equal(t, "SILK-001", staff["sku"])
}

func TestOrderViewDates(t *testing.T) {
	eta := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	o := &models.Order{ID: 1, Status: models.OrderStatusShipped, EstimatedDelivery: &eta}

	view := asMap(t, orderFor(models.Actor{UserID: 5}, o))
	assert.Equal(t, "2026-03-14", view["estimated_delivery"])
	assert.NotContains(t, view, "actual_delivery")
	assert.Equal(t, false, view["can_cancel"])
	assert.Equal(t, []any{}, view["items"])
}
