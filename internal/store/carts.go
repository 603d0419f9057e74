package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/models"
)

type AddItem struct {
	ProductID           int64
	Quantity            int
	PreferredColors     string
	SpecialInstructions string
}

type UpdateItem struct {
	Quantity            int
	PreferredColors     *string
	SpecialInstructions *string
}

// ValidateQuantity checks a prospective cart line quantity against the product.
func ValidateQuantity(p *models.Product, quantity int) error {
	if !p.IsAvailable {
		return database.ErrProductUnavailable
	}
	if quantity < 1 || quantity < p.MinimumOrderQuantity {
		return database.ErrBelowMinimumOrder
	}
	if quantity > p.StockQuantity {
		return database.ErrStockExceeded
	}
	return nil
}

func getOrCreateCart(ctx context.Context, q Querier, userID int64, forUpdate bool) (*models.Cart, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO carts (user_id, created_at, updated_at) VALUES ($1, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	query := `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	cart := &models.Cart{}
	err = q.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

func ListCartItems(ctx context.Context, q Querier, cartID int64) ([]models.CartItem, error) {
	query := `
		SELECT ci.id, ci.cart_id, ci.product_id, p.name, p.sku, ci.quantity, ci.unit_price, ci.wholesale_price,
		       ci.preferred_colors, ci.special_instructions, ci.created_at, ci.updated_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at, ci.id`

	rows, err := q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.ProductName,
			&item.ProductSKU,
			&item.Quantity,
			&item.UnitPrice,
			&item.WholesalePrice,
			&item.PreferredColors,
			&item.SpecialInstructions,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetCart returns the user's cart with its items, creating an empty cart on first access.
func GetCart(ctx context.Context, q Querier, userID int64) (*models.Cart, error) {
	cart, err := getOrCreateCart(ctx, q, userID, false)
	if err != nil {
		return nil, err
	}

	cart.Items, err = ListCartItems(ctx, q, cart.ID)
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// LockCart is GetCart with the cart row held FOR UPDATE until tx ends.
func LockCart(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error) {
	cart, err := getOrCreateCart(ctx, tx, userID, true)
	if err != nil {
		return nil, err
	}

	cart.Items, err = ListCartItems(ctx, tx, cart.ID)
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// AddCartItem adds quantity of a product to the user's cart. An existing line for the
// product is merged and keeps its original price snapshot.
func AddCartItem(ctx context.Context, db *sql.DB, userID int64, in AddItem) (*models.CartItem, error) {
	var itemID int64

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := getOrCreateCart(ctx, tx, userID, true)
		if err != nil {
			return err
		}

		itemID, err = addCartItem(ctx, tx, cart.ID, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	return GetCartItem(ctx, db, userID, itemID)
}

func addCartItem(ctx context.Context, tx *sql.Tx, cartID int64, in AddItem) (int64, error) {
	product, err := GetProduct(ctx, tx, in.ProductID)
	if err != nil {
		return 0, err
	}

	var itemID int64
	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT id, quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2 FOR UPDATE`,
		cartID, in.ProductID).Scan(&itemID, &existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("get cart item: %w", err)
	}

	if err := ValidateQuantity(product, existing+in.Quantity); err != nil {
		return 0, err
	}

	if itemID != 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE cart_items
			 SET quantity = quantity + $1,
			     preferred_colors = COALESCE(NULLIF($2, ''), preferred_colors),
			     special_instructions = COALESCE(NULLIF($3, ''), special_instructions),
			     updated_at = NOW()
			 WHERE id = $4`,
			in.Quantity, in.PreferredColors, in.SpecialInstructions, itemID)
		if err != nil {
			return 0, fmt.Errorf("merge cart item: %w", err)
		}
	} else {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO cart_items (cart_id, product_id, quantity, unit_price, wholesale_price, preferred_colors, special_instructions, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			 RETURNING id`,
			cartID, product.ID, in.Quantity, product.Price, product.WholesalePrice,
			in.PreferredColors, in.SpecialInstructions).Scan(&itemID)
		if err != nil {
			return 0, fmt.Errorf("create cart item: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return 0, fmt.Errorf("touch cart: %w", err)
	}

	return itemID, nil
}

func GetCartItem(ctx context.Context, q Querier, userID, itemID int64) (*models.CartItem, error) {
	query := `
		SELECT ci.id, ci.cart_id, ci.product_id, p.name, p.sku, ci.quantity, ci.unit_price, ci.wholesale_price,
		       ci.preferred_colors, ci.special_instructions, ci.created_at, ci.updated_at
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE ci.id = $1 AND c.user_id = $2`

	item := &models.CartItem{}
	err := q.QueryRowContext(ctx, query, itemID, userID).Scan(
		&item.ID,
		&item.CartID,
		&item.ProductID,
		&item.ProductName,
		&item.ProductSKU,
		&item.Quantity,
		&item.UnitPrice,
		&item.WholesalePrice,
		&item.PreferredColors,
		&item.SpecialInstructions,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}

	return item, nil
}

// UpdateCartItem replaces the line's quantity, validated against the live product.
func UpdateCartItem(ctx context.Context, db *sql.DB, userID, itemID int64, in UpdateItem) (*models.CartItem, error) {
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var productID int64
		err := tx.QueryRowContext(ctx,
			`SELECT ci.product_id
			 FROM cart_items ci
			 JOIN carts c ON c.id = ci.cart_id
			 WHERE ci.id = $1 AND c.user_id = $2
			 FOR UPDATE OF ci`,
			itemID, userID).Scan(&productID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrCartItemNotFound
			}
			return fmt.Errorf("lock cart item: %w", err)
		}

		product, err := GetProduct(ctx, tx, productID)
		if err != nil {
			return err
		}

		if err := ValidateQuantity(product, in.Quantity); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE cart_items
			 SET quantity = $1,
			     preferred_colors = COALESCE($2, preferred_colors),
			     special_instructions = COALESCE($3, special_instructions),
			     updated_at = NOW()
			 WHERE id = $4`,
			in.Quantity, in.PreferredColors, in.SpecialInstructions, itemID)
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return GetCartItem(ctx, db, userID, itemID)
}

func RemoveCartItem(ctx context.Context, q Querier, userID, itemID int64) error {
	result, err := q.ExecContext(ctx,
		`DELETE FROM cart_items ci
		 USING carts c
		 WHERE ci.cart_id = c.id AND ci.id = $1 AND c.user_id = $2`,
		itemID, userID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCartItemNotFound
	}

	return nil
}

// ClearCart deletes every line. The cart row itself is kept.
func ClearCart(ctx context.Context, q Querier, cartID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func ClearUserCart(ctx context.Context, q Querier, userID int64) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM cart_items ci USING carts c WHERE ci.cart_id = c.id AND c.user_id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

const savedItemColumns = `s.id, s.user_id, s.product_id, p.name, s.quantity, s.notes, s.created_at`

func scanSavedItem(row rowScanner, s *models.SavedItem) error {
	return row.Scan(&s.ID, &s.UserID, &s.ProductID, &s.ProductName, &s.Quantity, &s.Notes, &s.CreatedAt)
}

func ListSavedItems(ctx context.Context, q Querier, userID int64) ([]models.SavedItem, error) {
	query := `
		SELECT ` + savedItemColumns + `
		FROM saved_items s
		JOIN products p ON p.id = s.product_id
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC, s.id DESC`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list saved items: %w", err)
	}
	defer rows.Close()

	items := []models.SavedItem{}
	for rows.Next() {
		var s models.SavedItem
		if err := scanSavedItem(rows, &s); err != nil {
			return nil, fmt.Errorf("scan saved item: %w", err)
		}
		items = append(items, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func GetSavedItem(ctx context.Context, q Querier, userID, id int64) (*models.SavedItem, error) {
	query := `
		SELECT ` + savedItemColumns + `
		FROM saved_items s
		JOIN products p ON p.id = s.product_id
		WHERE s.id = $1 AND s.user_id = $2`

	s := &models.SavedItem{}
	if err := scanSavedItem(q.QueryRowContext(ctx, query, id, userID), s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSavedItemNotFound
		}
		return nil, fmt.Errorf("get saved item: %w", err)
	}

	return s, nil
}

// SaveItem upserts the (user, product) wishlist entry.
func SaveItem(ctx context.Context, q Querier, userID, productID int64, quantity int, notes string) (*models.SavedItem, error) {
	if _, err := GetProduct(ctx, q, productID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		quantity = 1
	}

	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO saved_items (user_id, product_id, quantity, notes, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (user_id, product_id) DO UPDATE
		 SET quantity = EXCLUDED.quantity, notes = EXCLUDED.notes
		 RETURNING id`,
		userID, productID, quantity, notes).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}

	return GetSavedItem(ctx, q, userID, id)
}

func DeleteSavedItem(ctx context.Context, q Querier, userID, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM saved_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete saved item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrSavedItemNotFound
	}

	return nil
}

// SaveForLater moves a cart line into the wishlist, overwriting any existing entry
// for the same product.
func SaveForLater(ctx context.Context, db *sql.DB, userID, itemID int64) (*models.SavedItem, error) {
	var saved *models.SavedItem

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		item, err := GetCartItem(ctx, tx, userID, itemID)
		if err != nil {
			return err
		}

		saved, err = SaveItem(ctx, tx, userID, item.ProductID, item.Quantity, item.SpecialInstructions)
		if err != nil {
			return err
		}

		return RemoveCartItem(ctx, tx, userID, itemID)
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

// MoveSavedItemToCart merges the saved quantity into the cart and deletes the saved item.
func MoveSavedItemToCart(ctx context.Context, db *sql.DB, userID, id int64) (*models.CartItem, error) {
	var itemID int64

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		saved, err := GetSavedItem(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		cart, err := getOrCreateCart(ctx, tx, userID, true)
		if err != nil {
			return err
		}

		itemID, err = addCartItem(ctx, tx, cart.ID, AddItem{
			ProductID:           saved.ProductID,
			Quantity:            saved.Quantity,
			SpecialInstructions: saved.Notes,
		})
		if err != nil {
			return err
		}

		return DeleteSavedItem(ctx, tx, userID, id)
	})
	if err != nil {
		return nil, err
	}

	return GetCartItem(ctx, db, userID, itemID)
}
