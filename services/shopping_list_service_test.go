package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appprecos/scan-gateway/database"
	"github.com/appprecos/scan-gateway/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.Connect(path))
	require.NoError(t, database.Migrate())
	t.Cleanup(database.Close)
	return database.DB
}

func TestShoppingListAddAndList(t *testing.T) {
	service := NewShoppingListService(newTestDB(t))
	ctx := context.Background()

	item, created, err := service.Add(ctx, models.AddListItemRequest{
		ProductName:      "Arroz Integral 1kg",
		EAN:              "7891234567890",
		NCM:              "1006.30",
		UnidadeComercial: "UN",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Arroz Integral 1kg", item.ProductName)
	assert.NotZero(t, item.ID)

	items, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "7891234567890", items[0].EAN)
}

func TestShoppingListDeduplicatesOnEANAndName(t *testing.T) {
	service := NewShoppingListService(newTestDB(t))
	ctx := context.Background()

	request := models.AddListItemRequest{
		ProductName: "Arroz Integral 1kg",
		EAN:         "7891234567890",
		NCM:         "1006.30",
	}
	first, created, err := service.Add(ctx, request)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := service.Add(ctx, request)
	require.NoError(t, err)
	assert.False(t, created, "re-adding the same (ean, name) pair must not create a row")
	assert.Equal(t, first.ID, second.ID)

	// Same name under a different EAN is a distinct product.
	_, created, err = service.Add(ctx, models.AddListItemRequest{
		ProductName: "Arroz Integral 1kg",
		EAN:         "7899999999999",
	})
	require.NoError(t, err)
	assert.True(t, created)

	items, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestShoppingListRejectsEmptyName(t *testing.T) {
	service := NewShoppingListService(newTestDB(t))

	_, _, err := service.Add(context.Background(), models.AddListItemRequest{ProductName: "   "})
	assert.Error(t, err)
}

func TestShoppingListRemove(t *testing.T) {
	service := NewShoppingListService(newTestDB(t))
	ctx := context.Background()

	item, _, err := service.Add(ctx, models.AddListItemRequest{ProductName: "Feijao Preto"})
	require.NoError(t, err)

	removed, err := service.Remove(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = service.Remove(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, removed, "removing an absent id is a no-op")
}

func TestShoppingListClear(t *testing.T) {
	service := NewShoppingListService(newTestDB(t))
	ctx := context.Background()

	for _, name := range []string{"Arroz", "Feijao", "Cafe"} {
		_, _, err := service.Add(ctx, models.AddListItemRequest{ProductName: name})
		require.NoError(t, err)
	}

	removed, err := service.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	items, err := service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
