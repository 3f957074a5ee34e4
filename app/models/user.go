// Package models defines user and credit ledger records.
package models

import "time"

type User struct {
	ID               string    `db:"id" json:"id"`
	Subject          string    `db:"subject" json:"-"`
	Email            string    `db:"email" json:"email"`
	CreditsBalance   int       `db:"credits_balance" json:"creditsBalance"`
	StripeCustomerID string    `db:"stripe_customer_id" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

const (
	TransactionUsage    = "usage"
	TransactionPurchase = "purchase"
)

// CreditTransaction is an append-only ledger entry. Negative amounts are
// usage, positive amounts are purchases or manual grants.
type CreditTransaction struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"userId"`
	Amount          int       `db:"amount" json:"amount"`
	Type            string    `db:"type" json:"type"`
	StripePaymentID string    `db:"stripe_payment_id" json:"stripePaymentId,omitempty"`
	Description     string    `db:"description" json:"description"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}
