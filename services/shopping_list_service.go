package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/appprecos/scan-gateway/database"
	"github.com/appprecos/scan-gateway/models"
	"github.com/appprecos/scan-gateway/shared"
)

// ShoppingListService persists the user's shopping list locally. Items
// are unique on (ean, product_name); re-adding an existing item is a
// no-op that returns the stored row.
type ShoppingListService struct {
	db      *sql.DB
	metrics *shared.DatabaseMetrics
}

// NewShoppingListService creates a service over the connected database.
func NewShoppingListService(db *sql.DB) *ShoppingListService {
	return &ShoppingListService{
		db:      db,
		metrics: database.Metrics,
	}
}

// Add inserts a product into the shopping list. Returns the stored item
// and whether a new row was created.
func (s *ShoppingListService) Add(ctx context.Context, request models.AddListItemRequest) (*models.ShoppingListItem, bool, error) {
	name := strings.TrimSpace(request.ProductName)
	if name == "" {
		return nil, false, shared.NewServiceError(shared.ErrorCategoryValidation, "LIST_ITEM_NAME",
			"product_name must not be empty", "shopping-list", "add", false, nil)
	}

	started := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO shopping_list (product_name, ean, ncm, unidade_comercial, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ean, product_name) DO NOTHING`,
		name, request.EAN, request.NCM, request.UnidadeComercial, time.Now().UTC())
	s.metrics.RecordQuery(err == nil, time.Since(started), false)
	if err != nil {
		return nil, false, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_INSERT", "shopping-list", "add", true)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_INSERT", "shopping-list", "add", false)
	}

	item, err := s.find(ctx, request.EAN, name)
	if err != nil {
		return nil, false, err
	}

	if inserted > 0 {
		logrus.WithFields(logrus.Fields{
			"component":    "ShoppingListService",
			"product_name": name,
			"ean":          request.EAN,
		}).Debug("Added item to shopping list")
	}
	return item, inserted > 0, nil
}

// List returns all items in the order they were added.
func (s *ShoppingListService) List(ctx context.Context) ([]models.ShoppingListItem, error) {
	started := time.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_name, ean, ncm, unidade_comercial, added_at
		FROM shopping_list ORDER BY added_at, id`)
	s.metrics.RecordQuery(err == nil, time.Since(started), false)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_QUERY", "shopping-list", "list", true)
	}
	defer rows.Close()

	items := make([]models.ShoppingListItem, 0)
	for rows.Next() {
		var item models.ShoppingListItem
		if err := rows.Scan(&item.ID, &item.ProductName, &item.EAN, &item.NCM, &item.UnidadeComercial, &item.AddedAt); err != nil {
			return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_SCAN", "shopping-list", "list", false)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_SCAN", "shopping-list", "list", false)
	}
	return items, nil
}

// Remove deletes one item by id. Removing an absent id is a no-op.
func (s *ShoppingListService) Remove(ctx context.Context, id int64) (bool, error) {
	started := time.Now()
	result, err := s.db.ExecContext(ctx, `DELETE FROM shopping_list WHERE id = ?`, id)
	s.metrics.RecordQuery(err == nil, time.Since(started), false)
	if err != nil {
		return false, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_DELETE", "shopping-list", "remove", true)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_DELETE", "shopping-list", "remove", false)
	}
	return affected > 0, nil
}

// Clear empties the shopping list and returns how many items were removed.
func (s *ShoppingListService) Clear(ctx context.Context) (int64, error) {
	started := time.Now()
	result, err := s.db.ExecContext(ctx, `DELETE FROM shopping_list`)
	s.metrics.RecordQuery(err == nil, time.Since(started), false)
	if err != nil {
		return 0, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_CLEAR", "shopping-list", "clear", true)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_CLEAR", "shopping-list", "clear", false)
	}

	logrus.WithFields(logrus.Fields{
		"component": "ShoppingListService",
		"removed":   affected,
	}).Info("Cleared shopping list")
	return affected, nil
}

func (s *ShoppingListService) find(ctx context.Context, ean, name string) (*models.ShoppingListItem, error) {
	started := time.Now()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, product_name, ean, ncm, unidade_comercial, added_at
		FROM shopping_list WHERE ean = ? AND product_name = ?`, ean, name)

	var item models.ShoppingListItem
	err := row.Scan(&item.ID, &item.ProductName, &item.EAN, &item.NCM, &item.UnidadeComercial, &item.AddedAt)
	s.metrics.RecordQuery(err == nil, time.Since(started), false)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "LIST_FIND", "shopping-list", "add", false)
	}
	return &item, nil
}
