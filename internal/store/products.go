package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/models"
)

type NewProduct struct {
	SKU                  string
	Name                 string
	Description          string
	Price                decimal.Decimal
	WholesalePrice       decimal.Decimal
	MinimumOrderQuantity int
	StockQuantity        int
	IsAvailable          bool
}

const productColumns = `id, sku, slug, name, description, price, wholesale_price, minimum_order_quantity, stock_quantity, is_available, created_at, updated_at, version`

func scanProduct(row rowScanner, p *models.Product) error {
	return row.Scan(
		&p.ID,
		&p.SKU,
		&p.Slug,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.WholesalePrice,
		&p.MinimumOrderQuantity,
		&p.StockQuantity,
		&p.IsAvailable,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
}

// ProductSlug derives the URL slug. The SKU suffix keeps it unique.
func ProductSlug(name, sku string) string {
	return slug.Make(name + " " + strings.ToLower(sku))
}

func CreateProduct(ctx context.Context, q Querier, in NewProduct) (*models.Product, error) {
	product := &models.Product{}

	moq := in.MinimumOrderQuantity
	if moq < 1 {
		moq = 1
	}

	query := `
		INSERT INTO products (sku, slug, name, description, price, wholesale_price, minimum_order_quantity, stock_quantity, is_available, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query,
		in.SKU, ProductSlug(in.Name, in.SKU), in.Name, in.Description, in.Price, in.WholesalePrice,
		moq, in.StockQuantity, in.IsAvailable), product)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q Querier, id int64) (*models.Product, error) {
	product := &models.Product{}

	err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id), product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// LockProducts takes row locks on ids in ascending id order so that concurrent
// checkouts touching overlapping products cannot deadlock.
func LockProducts(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	rows, err := tx.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]*models.Product, len(ids))
	for rows.Next() {
		p := &models.Product{}
		if err := scanProduct(rows, p); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// RestockProduct sets the stock level if the caller's version is still current.
func RestockProduct(ctx context.Context, q Querier, productID int64, newStock int, version int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET stock_quantity = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query, newStock, productID, version), product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := GetProduct(ctx, q, productID); getErr != nil {
				return nil, getErr
			}
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("restock product: %w", err)
	}

	return product, nil
}

func SetProductAvailability(ctx context.Context, q Querier, productID int64, available bool) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products SET is_available = $1, version = version + 1, updated_at = NOW() WHERE id = $2`,
		available, productID)
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// DecrementStock removes quantity units only if that many are on hand.
func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("product %d: %w", productID, database.ErrStockExceeded)
	}

	return nil
}

// RestoreStock puts quantity units back. It reports false when the product no
// longer exists.
func RestoreStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("restore stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func DeleteProduct(ctx context.Context, q Querier, productID int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// ListProducts pages the catalog newest first. Unavailable products are skipped
// unless includeUnavailable is set.
func ListProducts(ctx context.Context, q Querier, page, pageSize int, includeUnavailable bool) (*OffsetPage[models.Product], error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE is_available OR $1`, includeUnavailable).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE is_available OR $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := q.QueryContext(ctx, query, includeUnavailable, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage[models.Product]{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
