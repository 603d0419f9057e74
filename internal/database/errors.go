package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
	// ErrorClassConflict is a generated identifier that collided with an existing row.
	// Retrying regenerates the identifier.
	ErrorClassConflict
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
	codeLockNotAvailable    = "55P03"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	if errors.Is(err, ErrOrderNumberCollision) || errors.Is(err, ErrQuoteNumberCollision) {
		return ErrorClassConflict
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerialization:
			return ErrorClassSerialization
		case codeDeadlock:
			return ErrorClassDeadlock
		case codeLockNotAvailable:
			return ErrorClassTransient
		case codeUniqueViolation, codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

// IsLockNotAvailable reports whether err is Postgres giving up on a row lock.
func IsLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeLockNotAvailable
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization ||
		class == ErrorClassConflict
}

// IsUniqueViolation reports whether err is a unique violation of the named constraint.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsCheckViolation reports whether err is a CHECK constraint failure on the named constraint.
func IsCheckViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeCheckViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrSavedItemNotFound = errors.New("saved item not found")
	ErrQuoteNotFound     = errors.New("quote request not found")
	ErrAddressNotFound   = errors.New("address not found")

	ErrEmptyCart              = errors.New("cart is empty")
	ErrStockExceeded          = errors.New("quantity exceeds available stock")
	ErrBelowMinimumOrder      = errors.New("quantity is below the minimum order quantity")
	ErrProductUnavailable     = errors.New("product is not available")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOrderNumberCollision   = errors.New("order number collision")
	ErrQuoteNumberCollision   = errors.New("quote number collision")
	ErrQuoteExpired           = errors.New("quote has expired")

	ErrQuoteConversionUnsupported = errors.New("quote to order conversion is not supported")

	ErrUnbalancedOrder = errors.New("order total does not equal its components")

	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
	ErrLockTimeout          = errors.New("lock timeout")
)
