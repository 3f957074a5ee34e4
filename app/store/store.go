// Package store persists users, conversions, and the credit ledger.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chriswakefield87/billtosheet-api/app/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientCredits is returned by DeductCredit when the balance
	// is already zero. The balance is never driven negative.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrDuplicatePayment is returned by GrantCredits when the external
	// payment reference was already applied.
	ErrDuplicatePayment = errors.New("payment already applied")
)

// Store is the persistence boundary. Both the postgres implementation and
// the in-memory one used by tests satisfy it.
type Store interface {
	// UpsertUser creates the user on first sight with the given starting
	// balance and returns the stored row either way. The starting balance
	// is only applied on creation.
	UpsertUser(ctx context.Context, subject, email string, startingCredits int) (models.User, error)
	GetUserBySubject(ctx context.Context, subject string) (models.User, error)
	SetStripeCustomerID(ctx context.Context, subject, customerID string) error

	// DeductCredit atomically decrements the balance by 1 and appends a
	// usage transaction of -1. Both effects commit or neither does.
	DeductCredit(ctx context.Context, subject string) error
	// GrantCredits atomically increments the balance and appends a
	// purchase transaction carrying the payment reference.
	GrantCredits(ctx context.Context, subject string, amount int, paymentRef, description string) error
	ListTransactions(ctx context.Context, subject string) ([]models.CreditTransaction, error)

	CreateConversion(ctx context.Context, conv models.Conversion) (models.Conversion, error)
	GetConversion(ctx context.Context, id string) (models.Conversion, error)
	DeleteConversion(ctx context.Context, id string) error
	CountAnonymousConversions(ctx context.Context, anonymousID string) (int, error)
	// DeleteExpiredConversions removes registered-owned conversions created
	// before registeredBefore and anonymous ones created before
	// anonymousBefore, returning the counts deleted.
	DeleteExpiredConversions(ctx context.Context, registeredBefore, anonymousBefore time.Time) (registered int64, anonymous int64, err error)
}
