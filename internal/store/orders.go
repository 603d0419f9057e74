package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/models"
)

const (
	orderNumberConstraint = "orders_order_number_key"
	orderTotalConstraint  = "orders_total_check"
)

const orderColumns = `id, user_id, order_number, status, payment_status, payment_method,
	subtotal, discount_amount, tax_amount, shipping_cost, total_amount,
	is_wholesale_order, wholesale_discount_percent, shipping_address_id, billing_address_id,
	estimated_delivery, actual_delivery, delivery_instructions, customer_notes, admin_notes,
	tracking_number, courier, confirmed_at, shipped_at, delivered_at, created_at, updated_at, version`

func scanOrder(row rowScanner, o *models.Order) error {
	var estimated, actual, confirmed, shipped, delivered sql.NullTime

	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.OrderNumber,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentMethod,
		&o.Subtotal,
		&o.DiscountAmount,
		&o.TaxAmount,
		&o.ShippingCost,
		&o.TotalAmount,
		&o.IsWholesaleOrder,
		&o.WholesaleDiscountPercent,
		&o.ShippingAddressID,
		&o.BillingAddressID,
		&estimated,
		&actual,
		&o.DeliveryInstructions,
		&o.CustomerNotes,
		&o.AdminNotes,
		&o.TrackingNumber,
		&o.Courier,
		&confirmed,
		&shipped,
		&delivered,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return err
	}

	o.EstimatedDelivery = timePtr(estimated)
	o.ActualDelivery = timePtr(actual)
	o.ConfirmedAt = timePtr(confirmed)
	o.ShippedAt = timePtr(shipped)
	o.DeliveredAt = timePtr(delivered)
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// InsertOrder writes the order header and fills in the generated columns. A clash on
// the order number is reported as ErrOrderNumberCollision.
func InsertOrder(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	query := `
		INSERT INTO orders (user_id, order_number, status, payment_status, payment_method,
			subtotal, discount_amount, tax_amount, shipping_cost, total_amount,
			is_wholesale_order, wholesale_discount_percent, shipping_address_id, billing_address_id,
			estimated_delivery, delivery_instructions, customer_notes, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW(), 1)
		RETURNING id, created_at, updated_at, version`

	err := tx.QueryRowContext(ctx, query,
		o.UserID, o.OrderNumber, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.ShippingCost, o.TotalAmount,
		o.IsWholesaleOrder, o.WholesaleDiscountPercent, o.ShippingAddressID, o.BillingAddressID,
		o.EstimatedDelivery, o.DeliveryInstructions, o.CustomerNotes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		if database.IsCheckViolation(err, orderTotalConstraint) {
			return fmt.Errorf("create order %s: %w", o.OrderNumber, database.ErrUnbalancedOrder)
		}
		if database.IsUniqueViolation(err, orderNumberConstraint) {
			return fmt.Errorf("create order %s: %w", o.OrderNumber, database.ErrOrderNumberCollision)
		}
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

func InsertOrderItems(ctx context.Context, tx *sql.Tx, orderID int64, items []models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, product_sku, quantity,
			unit_price, wholesale_price, line_total, preferred_colors, special_instructions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id, created_at`

	for i := range items {
		item := &items[i]
		item.OrderID = orderID

		err := tx.QueryRowContext(ctx, query,
			orderID, item.ProductID, item.ProductName, item.ProductSKU, item.Quantity,
			item.UnitPrice, item.WholesalePrice, item.LineTotal, item.PreferredColors, item.SpecialInstructions,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}

	return nil
}

func AppendStatusHistory(ctx context.Context, q Querier, orderID int64, status models.OrderStatus, note string, actor *int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, status, note, created_by, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		orderID, status, note, actor)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func ListStatusHistory(ctx context.Context, q Querier, orderID int64) ([]models.OrderStatusHistory, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, status, note, created_by, created_at
		 FROM order_status_history
		 WHERE order_id = $1
		 ORDER BY created_at, id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	history := []models.OrderStatusHistory{}
	for rows.Next() {
		var h models.OrderStatusHistory
		var actor sql.NullInt64
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Note, &actor, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		if actor.Valid {
			h.CreatedBy = &actor.Int64
		}
		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return history, nil
}

func ListOrderItems(ctx context.Context, q Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, product_sku, quantity, unit_price,
		        wholesale_price, line_total, preferred_colors, special_instructions, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		var productID sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&productID,
			&item.ProductName,
			&item.ProductSKU,
			&item.Quantity,
			&item.UnitPrice,
			&item.WholesalePrice,
			&item.LineTotal,
			&item.PreferredColors,
			&item.SpecialInstructions,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if productID.Valid {
			item.ProductID = &productID.Int64
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetOrder loads the order with its items and both addresses.
func GetOrder(ctx context.Context, q Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.Items, err = ListOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}

	order.ShippingAddress, err = GetAddress(ctx, q, order.ShippingAddressID)
	if err != nil {
		return nil, fmt.Errorf("shipping address: %w", err)
	}

	if order.BillingAddressID == order.ShippingAddressID {
		order.BillingAddress = order.ShippingAddress
	} else {
		order.BillingAddress, err = GetAddress(ctx, q, order.BillingAddressID)
		if err != nil {
			return nil, fmt.Errorf("billing address: %w", err)
		}
	}

	return order, nil
}

// GetOrderForUpdate locks the order header row until tx ends.
func GetOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

// UpdateOrderState persists the mutable lifecycle columns of o, guarded by its version.
func UpdateOrderState(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	err := tx.QueryRowContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     payment_status = $2,
		     admin_notes = $3,
		     tracking_number = $4,
		     courier = $5,
		     actual_delivery = $6,
		     confirmed_at = $7,
		     shipped_at = $8,
		     delivered_at = $9,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $10 AND version = $11
		 RETURNING updated_at, version`,
		o.Status, o.PaymentStatus, o.AdminNotes, o.TrackingNumber, o.Courier,
		o.ActualDelivery, o.ConfirmedAt, o.ShippedAt, o.DeliveredAt, o.ID, o.Version,
	).Scan(&o.UpdatedAt, &o.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrOptimisticLockFailed
		}
		return fmt.Errorf("update order: %w", err)
	}

	return nil
}

type OrderFilter struct {
	UserID int64
	Status models.OrderStatus
}

// ListOrdersCursor pages a user's orders newest first.
func ListOrdersCursor(ctx context.Context, q Querier, filter OrderFilter, cursor string, limit int) (*CursorPage[models.Order], error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND ($2 = '' OR status = $2)
		  AND (created_at, id) < ($3, $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5`

	rows, err := q.QueryContext(ctx, query, filter.UserID, string(filter.Status), cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage[models.Order]{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// OrderStats summarises a user's orders, quotes, cart and wishlist for the dashboard.
// TotalSpent counts paid orders only.
func OrderStats(ctx context.Context, q Querier, userID int64) (*models.OrderStats, error) {
	stats := &models.OrderStats{TotalSpent: decimal.Zero}

	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'pending'),
		        COUNT(*) FILTER (WHERE status = 'confirmed'),
		        COUNT(*) FILTER (WHERE status = 'shipped'),
		        COUNT(*) FILTER (WHERE status = 'delivered'),
		        COUNT(*) FILTER (WHERE status = 'cancelled'),
		        COALESCE(SUM(total_amount) FILTER (WHERE payment_status = 'paid'), 0)
		 FROM orders
		 WHERE user_id = $1`,
		userID).Scan(
		&stats.TotalOrders,
		&stats.PendingOrders,
		&stats.ConfirmedOrders,
		&stats.ShippedOrders,
		&stats.CompletedOrders,
		&stats.CancelledOrders,
		&stats.TotalSpent,
	)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT
		    (SELECT COUNT(*) FROM quote_requests WHERE user_id = $1 AND status IN ('pending', 'processing')),
		    (SELECT COALESCE(SUM(ci.quantity), 0) FROM cart_items ci JOIN carts c ON c.id = ci.cart_id WHERE c.user_id = $1),
		    (SELECT COUNT(*) FROM saved_items WHERE user_id = $1)`,
		userID).Scan(&stats.PendingQuotes, &stats.CartItems, &stats.SavedItems)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}

	return stats, nil
}
