package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/store"
	"github.com/safar/arun-store/internal/testutil"
)

func TestGetActiveAddress(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	owner := testutil.Retail(t, db)
	stranger := testutil.Retail(t, db)
	addr := testutil.Address(t, db, owner.ID)

	got, err := store.GetActiveAddress(ctx, db, owner.ID, addr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kathmandu", got.City)

	_, err = store.GetActiveAddress(ctx, db, stranger.ID, addr.ID)
	assert.ErrorIs(t, err, database.ErrAddressNotFound)

	require.NoError(t, store.DeactivateAddress(ctx, db, owner.ID, addr.ID))
	_, err = store.GetActiveAddress(ctx, db, owner.ID, addr.ID)
	assert.ErrorIs(t, err, database.ErrAddressNotFound)
}

func TestCreateAddressMovesDefault(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()
	user := testutil.Retail(t, db)

	first := testutil.Address(t, db, user.ID)
	second := testutil.Address(t, db, user.ID)

	addrs, err := store.ListAddresses(ctx, db, user.ID)
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, second.ID, addrs[0].ID)
	assert.True(t, addrs[0].IsDefault)
	assert.Equal(t, first.ID, addrs[1].ID)
	assert.False(t, addrs[1].IsDefault)
}

func TestUsers(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := testutil.Wholesale(t, db, "12.5")
	got, err := store.GetUser(ctx, db, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsWholesale)
	assert.Equal(t, "12.5", got.WholesaleDiscount.String())

	_, err = store.GetUser(ctx, db, 999999)
	assert.ErrorIs(t, err, database.ErrUserNotFound)

	page, err := store.ListUsers(ctx, db, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}
