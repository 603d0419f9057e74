package store_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/store"
	"github.com/safar/arun-store/internal/testutil"
)

func TestCreateProductSlug(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	p, err := store.CreateProduct(ctx, db, store.NewProduct{
		SKU:            "SILK-01",
		Name:           "Banarasi Silk",
		Price:          decimal.NewFromInt(1500),
		WholesalePrice: decimal.NewFromInt(1200),
		StockQuantity:  10,
		IsAvailable:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "banarasi-silk-silk-01", p.Slug)
	assert.Equal(t, 1, p.MinimumOrderQuantity)
	assert.Equal(t, 1, p.Version)
}

func TestGetProductNotFound(t *testing.T) {
	db := testutil.NewPostgres(t)

	_, err := store.GetProduct(context.Background(), db, 999999)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestRestockProductOptimistic(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	p := testutil.Product(t, db, "100", "80", 5)

	updated, err := store.RestockProduct(ctx, db, p.ID, 50, p.Version)
	require.NoError(t, err)
	assert.Equal(t, 50, updated.StockQuantity)
	assert.Equal(t, p.Version+1, updated.Version)

	_, err = store.RestockProduct(ctx, db, p.ID, 60, p.Version)
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	_, err = store.RestockProduct(ctx, db, 999999, 60, 1)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestDecrementStockConditional(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	p := testutil.Product(t, db, "100", "80", 5)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.DecrementStock(ctx, tx, p.ID, 6)
	})
	assert.ErrorIs(t, err, database.ErrStockExceeded)

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.DecrementStock(ctx, tx, p.ID, 5)
	})
	require.NoError(t, err)

	after, err := store.GetProduct(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.StockQuantity)
}

func TestConcurrentDecrementNeverOversells(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	p := testutil.Product(t, db, "100", "80", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
				return store.DecrementStock(ctx, tx, p.ID, 1)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	after, err := store.GetProduct(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 0, after.StockQuantity)
}

func TestRestoreStockMissingProduct(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	p := testutil.Product(t, db, "100", "80", 3)

	var restored, missing bool
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		restored, err = store.RestoreStock(ctx, tx, p.ID, 2)
		if err != nil {
			return err
		}
		missing, err = store.RestoreStock(ctx, tx, 999999, 2)
		return err
	})
	require.NoError(t, err)
	assert.True(t, restored)
	assert.False(t, missing)

	after, err := store.GetProduct(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.StockQuantity)
}

func TestListProductsHidesUnavailable(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	visible := testutil.Product(t, db, "100", "80", 3)
	hidden := testutil.Product(t, db, "100", "80", 3)
	require.NoError(t, store.SetProductAvailability(ctx, db, hidden.ID, false))

	page, err := store.ListProducts(ctx, db, 1, 10, false)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, visible.ID, page.Items[0].ID)
	assert.Equal(t, int64(1), page.Total)

	page, err = store.ListProducts(ctx, db, 1, 10, true)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.TotalPages)
}
