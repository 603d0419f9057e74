package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/models"
)

type NewUser struct {
	Email             string
	Name              string
	Phone             string
	IsWholesale       bool
	WholesaleDiscount decimal.Decimal
	IsStaff           bool
}

const userColumns = `id, email, name, phone, is_wholesale, wholesale_discount, is_staff, created_at, updated_at, version`

func scanUser(row rowScanner, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Phone,
		&user.IsWholesale,
		&user.WholesaleDiscount,
		&user.IsStaff,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
}

func CreateUser(ctx context.Context, q Querier, in NewUser) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (email, name, phone, is_wholesale, wholesale_discount, is_staff, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		RETURNING ` + userColumns

	err := scanUser(q.QueryRowContext(ctx, query,
		in.Email, in.Name, in.Phone, in.IsWholesale, in.WholesaleDiscount, in.IsStaff), user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q Querier, id int64) (*models.User, error) {
	user := &models.User{}

	err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id), user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func ListUsers(ctx context.Context, q Querier, page, pageSize int) (*OffsetPage[models.User], error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := q.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage[models.User]{
		Items:      users,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

type NewAddress struct {
	Label       string
	FullName    string
	Phone       string
	AddressLine string
	City        string
	District    string
	Province    string
	PostalCode  string
	IsDefault   bool
}

const addressColumns = `id, user_id, label, full_name, phone, address_line, city, district, province, postal_code, is_default, is_active, created_at`

func scanAddress(row rowScanner, a *models.Address) error {
	return row.Scan(
		&a.ID,
		&a.UserID,
		&a.Label,
		&a.FullName,
		&a.Phone,
		&a.AddressLine,
		&a.City,
		&a.District,
		&a.Province,
		&a.PostalCode,
		&a.IsDefault,
		&a.IsActive,
		&a.CreatedAt,
	)
}

// CreateAddress adds an address for userID. A new default address clears the
// previous default.
func CreateAddress(ctx context.Context, db *sql.DB, userID int64, in NewAddress) (*models.Address, error) {
	addr := &models.Address{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if in.IsDefault {
			_, err := tx.ExecContext(ctx,
				`UPDATE user_addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`,
				userID)
			if err != nil {
				return fmt.Errorf("clear default address: %w", err)
			}
		}

		query := `
			INSERT INTO user_addresses (user_id, label, full_name, phone, address_line, city, district, province, postal_code, is_default, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, NOW())
			RETURNING ` + addressColumns

		err := scanAddress(tx.QueryRowContext(ctx, query,
			userID, in.Label, in.FullName, in.Phone, in.AddressLine, in.City,
			in.District, in.Province, in.PostalCode, in.IsDefault), addr)
		if err != nil {
			return fmt.Errorf("create address: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return addr, nil
}

func ListAddresses(ctx context.Context, q Querier, userID int64) ([]models.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM user_addresses
		WHERE user_id = $1 AND is_active
		ORDER BY is_default DESC, created_at DESC`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addrs := []models.Address{}
	for rows.Next() {
		var a models.Address
		if err := scanAddress(rows, &a); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addrs = append(addrs, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return addrs, nil
}

func GetAddress(ctx context.Context, q Querier, id int64) (*models.Address, error) {
	addr := &models.Address{}

	err := scanAddress(q.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM user_addresses WHERE id = $1`, id), addr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return addr, nil
}

// GetActiveAddress returns ErrAddressNotFound unless the address exists, belongs to
// userID and is active.
func GetActiveAddress(ctx context.Context, q Querier, userID, addressID int64) (*models.Address, error) {
	addr := &models.Address{}

	query := `
		SELECT ` + addressColumns + `
		FROM user_addresses
		WHERE id = $1 AND user_id = $2 AND is_active`

	err := scanAddress(q.QueryRowContext(ctx, query, addressID, userID), addr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return addr, nil
}

func DeactivateAddress(ctx context.Context, q Querier, userID, addressID int64) error {
	result, err := q.ExecContext(ctx,
		`UPDATE user_addresses SET is_active = FALSE, is_default = FALSE WHERE id = $1 AND user_id = $2 AND is_active`,
		addressID, userID)
	if err != nil {
		return fmt.Errorf("deactivate address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrAddressNotFound
	}

	return nil
}
