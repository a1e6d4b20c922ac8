package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (*MongoRepository, func()) {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func TestGetCart_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	cart, err := repo.GetCart(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestUpsertCart_RoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	validated := time.Now().UTC().Truncate(time.Millisecond)
	state := domain.CartState{
		Items: []domain.CartLineItem{
			{ProductID: 1, Name: "Pasta", UnitPrice: decimal.RequireFromString("300"), Quantity: 2},
			{ProductID: 5, VariantID: 2, Name: "Pizza L", UnitPrice: decimal.RequireFromString("10.05"), Quantity: 1},
		},
		Discount: &domain.DiscountDescriptor{
			Code:  "SAVE15",
			Kind:  domain.DiscountPercent,
			Value: decimal.RequireFromString("15"),
		},
		LastValidatedAt: &validated,
	}
	require.NoError(t, repo.UpsertCart(ctx, "sess1", state))

	got, err := repo.GetCart(ctx, "sess1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.True(t, decimal.RequireFromString("10.05").Equal(got.Items[1].UnitPrice))
	assert.Equal(t, int64(2), got.Items[1].VariantID)
	require.NotNil(t, got.Discount)
	assert.Equal(t, "SAVE15", got.Discount.Code)
	require.NotNil(t, got.LastValidatedAt)
	assert.True(t, validated.Equal(*got.LastValidatedAt))
}

func TestUpsertCart_LastWriteWins(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	first := domain.CartState{Items: []domain.CartLineItem{{ProductID: 1, Name: "A", UnitPrice: decimal.NewFromInt(1), Quantity: 1}}}
	second := domain.CartState{Items: []domain.CartLineItem{{ProductID: 2, Name: "B", UnitPrice: decimal.NewFromInt(2), Quantity: 3}}}

	require.NoError(t, repo.UpsertCart(ctx, "sess1", first))
	require.NoError(t, repo.UpsertCart(ctx, "sess1", second))

	got, err := repo.GetCart(ctx, "sess1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(2), got.Items[0].ProductID)
	assert.Nil(t, got.Discount)
	assert.Nil(t, got.LastValidatedAt)
}

func TestDeleteCart(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.UpsertCart(ctx, "sess1", domain.CartState{}))

	require.NoError(t, repo.DeleteCart(ctx, "sess1"))

	_, err := repo.GetCart(ctx, "sess1")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.ErrorIs(t, repo.DeleteCart(ctx, "sess1"), ErrCartNotFound)
}

func TestContextCancellation(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	time.Sleep(10 * time.Millisecond) // Ensure context is cancelled

	_, err := repo.GetCart(ctx, "sess1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}
