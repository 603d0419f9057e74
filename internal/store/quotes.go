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

const quoteNumberConstraint = "quote_requests_quote_number_key"

const quoteColumns = `id, quote_number, user_id, status, urgency, fabric_type, material_preference,
	quantity_needed, preferred_colors, usage_description, quality_requirements, delivery_location,
	required_delivery_date, budget_range, quoted_price, quoted_total, customer_message, admin_response,
	contact_via_whatsapp, contact_via_email, contact_via_phone, quoted_at, expires_at, created_at, updated_at`

func scanQuote(row rowScanner, q *models.QuoteRequest) error {
	var required, quotedAt, expiresAt sql.NullTime
	var price, total decimal.NullDecimal

	err := row.Scan(
		&q.ID,
		&q.QuoteNumber,
		&q.UserID,
		&q.Status,
		&q.Urgency,
		&q.FabricType,
		&q.MaterialPreference,
		&q.QuantityNeeded,
		&q.PreferredColors,
		&q.UsageDescription,
		&q.QualityRequirements,
		&q.DeliveryLocation,
		&required,
		&q.BudgetRange,
		&price,
		&total,
		&q.CustomerMessage,
		&q.AdminResponse,
		&q.ContactViaWhatsApp,
		&q.ContactViaEmail,
		&q.ContactViaPhone,
		&quotedAt,
		&expiresAt,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return err
	}

	q.RequiredDeliveryDate = timePtr(required)
	q.QuotedAt = timePtr(quotedAt)
	q.ExpiresAt = timePtr(expiresAt)
	if price.Valid {
		q.QuotedPrice = &price.Decimal
	}
	if total.Valid {
		q.QuotedTotal = &total.Decimal
	}
	return nil
}

// InsertQuote writes a new quote request. A clash on the quote number is reported as
// ErrQuoteNumberCollision.
func InsertQuote(ctx context.Context, tx *sql.Tx, qr *models.QuoteRequest) error {
	query := `
		INSERT INTO quote_requests (quote_number, user_id, status, urgency, fabric_type, material_preference,
			quantity_needed, preferred_colors, usage_description, quality_requirements, delivery_location,
			required_delivery_date, budget_range, customer_message,
			contact_via_whatsapp, contact_via_email, contact_via_phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := tx.QueryRowContext(ctx, query,
		qr.QuoteNumber, qr.UserID, qr.Status, qr.Urgency, qr.FabricType, qr.MaterialPreference,
		qr.QuantityNeeded, qr.PreferredColors, qr.UsageDescription, qr.QualityRequirements, qr.DeliveryLocation,
		qr.RequiredDeliveryDate, qr.BudgetRange, qr.CustomerMessage,
		qr.ContactViaWhatsApp, qr.ContactViaEmail, qr.ContactViaPhone,
	).Scan(&qr.ID, &qr.CreatedAt, &qr.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, quoteNumberConstraint) {
			return fmt.Errorf("create quote %s: %w", qr.QuoteNumber, database.ErrQuoteNumberCollision)
		}
		return fmt.Errorf("create quote: %w", err)
	}

	return nil
}

func GetQuote(ctx context.Context, q Querier, id int64) (*models.QuoteRequest, error) {
	qr := &models.QuoteRequest{}

	err := scanQuote(q.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quote_requests WHERE id = $1`, id), qr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrQuoteNotFound
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}

	return qr, nil
}

func GetQuoteForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.QuoteRequest, error) {
	qr := &models.QuoteRequest{}

	err := scanQuote(tx.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quote_requests WHERE id = $1 FOR UPDATE`, id), qr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrQuoteNotFound
		}
		return nil, fmt.Errorf("lock quote: %w", err)
	}

	return qr, nil
}

type QuoteFilter struct {
	// UserID of zero lists every user's quotes.
	UserID int64
	Status models.QuoteStatus
}

func ListQuotes(ctx context.Context, q Querier, filter QuoteFilter, page, pageSize int) (*OffsetPage[models.QuoteRequest], error) {
	page, pageSize = normalizePage(page, pageSize)

	where := `WHERE ($1::BIGINT = 0 OR user_id = $1) AND ($2 = '' OR status = $2)`

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM quote_requests `+where,
		filter.UserID, string(filter.Status)).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count quotes: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + quoteColumns + `
		FROM quote_requests ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	rows, err := q.QueryContext(ctx, query, filter.UserID, string(filter.Status), pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	quotes := []models.QuoteRequest{}
	for rows.Next() {
		var qr models.QuoteRequest
		if err := scanQuote(rows, &qr); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		quotes = append(quotes, qr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage[models.QuoteRequest]{
		Items:      quotes,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// UpdateQuoteState persists the status and pricing columns of qr.
func UpdateQuoteState(ctx context.Context, tx *sql.Tx, qr *models.QuoteRequest) error {
	var price, total decimal.NullDecimal
	if qr.QuotedPrice != nil {
		price = decimal.NewNullDecimal(*qr.QuotedPrice)
	}
	if qr.QuotedTotal != nil {
		total = decimal.NewNullDecimal(*qr.QuotedTotal)
	}

	err := tx.QueryRowContext(ctx,
		`UPDATE quote_requests
		 SET status = $1,
		     quoted_price = $2,
		     quoted_total = $3,
		     admin_response = $4,
		     quoted_at = $5,
		     expires_at = $6,
		     updated_at = NOW()
		 WHERE id = $7
		 RETURNING updated_at`,
		qr.Status, price, total, qr.AdminResponse, qr.QuotedAt, qr.ExpiresAt, qr.ID,
	).Scan(&qr.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrQuoteNotFound
		}
		return fmt.Errorf("update quote: %w", err)
	}

	return nil
}

// ExpireQuotes moves every quoted request whose expires_at has passed to expired.
func ExpireQuotes(ctx context.Context, q Querier, now time.Time) (int64, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE quote_requests
		 SET status = 'expired', updated_at = NOW()
		 WHERE status = 'quoted' AND expires_at IS NOT NULL AND expires_at < $1`,
		now)
	if err != nil {
		return 0, fmt.Errorf("expire quotes: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return n, nil
}
