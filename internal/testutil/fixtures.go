package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/safar/arun-store/internal/models"
	"github.com/safar/arun-store/internal/store"
)

var seq atomic.Int64

func next() int64 {
	return seq.Add(1)
}

func Retail(t *testing.T, db *sql.DB) *models.User {
	t.Helper()
	return User(t, db, store.NewUser{})
}

func Wholesale(t *testing.T, db *sql.DB, discountPercent string) *models.User {
	t.Helper()
	return User(t, db, store.NewUser{IsWholesale: true, WholesaleDiscount: decimal.RequireFromString(discountPercent)})
}

func Staff(t *testing.T, db *sql.DB) *models.User {
	t.Helper()
	return User(t, db, store.NewUser{IsStaff: true})
}

// User creates a user; empty Email and Name are filled in.
func User(t *testing.T, db *sql.DB, in store.NewUser) *models.User {
	t.Helper()

	n := next()
	if in.Email == "" {
		in.Email = fmt.Sprintf("user%d@example.com", n)
	}
	if in.Name == "" {
		in.Name = fmt.Sprintf("User %d", n)
	}

	user, err := store.CreateUser(context.Background(), db, in)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return user
}

func Address(t *testing.T, db *sql.DB, userID int64) *models.Address {
	t.Helper()

	addr, err := store.CreateAddress(context.Background(), db, userID, store.NewAddress{
		FullName:    "Ram Bahadur",
		AddressLine: "New Road",
		City:        "Kathmandu",
		Province:    "Bagmati",
		IsDefault:   true,
	})
	if err != nil {
		t.Fatalf("Create address: %v", err)
	}
	return addr
}

// Product creates an available product with minimum order quantity 1.
func Product(t *testing.T, db *sql.DB, price, wholesale string, stock int) *models.Product {
	t.Helper()

	n := next()
	p, err := store.CreateProduct(context.Background(), db, store.NewProduct{
		SKU:                  fmt.Sprintf("SKU-%04d", n),
		Name:                 fmt.Sprintf("Dhaka Fabric %d", n),
		Price:                decimal.RequireFromString(price),
		WholesalePrice:       decimal.RequireFromString(wholesale),
		MinimumOrderQuantity: 1,
		StockQuantity:        stock,
		IsAvailable:          true,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return p
}

func AddToCart(t *testing.T, db *sql.DB, userID, productID int64, quantity int) *models.CartItem {
	t.Helper()

	item, err := store.AddCartItem(context.Background(), db, userID, store.AddItem{
		ProductID: productID,
		Quantity:  quantity,
	})
	if err != nil {
		t.Fatalf("Add to cart: %v", err)
	}
	return item
}
