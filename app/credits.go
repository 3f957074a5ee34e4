// Package app implements the invoice conversion API: credit accounting,
// conversion orchestration, file generation, and the HTTP surface.
package app

import (
	"context"
	"fmt"

	"github.com/chriswakefield87/billtosheet-api/app/store"
)

const (
	// AnonymousConversionLimit caps lifetime conversions per anonymous id.
	AnonymousConversionLimit = 1
	// NewUserCredits is granted once, when the user row is first created.
	NewUserCredits = 1
)

// Identity is the caller of a conversion: a registered user (Subject set)
// or an anonymous session (AnonymousID set).
type Identity struct {
	Subject     string
	Email       string
	AnonymousID string
}

func (id Identity) Registered() bool {
	return id.Subject != ""
}

// Eligibility is the answer to "may this identity convert right now".
type Eligibility struct {
	Allowed          bool
	Reason           string
	CreditsRemaining *int
}

// Ledger computes conversion eligibility and mutates credit balances. All
// balance changes go through the store in a single transaction alongside
// their audit row.
type Ledger struct {
	store store.Store
}

func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// CanConvert checks eligibility without mutating anything. Registered users
// need a positive balance; anonymous sessions are gated by counting their
// existing conversions, not by a balance.
func (l *Ledger) CanConvert(ctx context.Context, id Identity) (Eligibility, error) {
	if id.Registered() {
		user, err := l.store.GetUserBySubject(ctx, id.Subject)
		if err != nil {
			if err == store.ErrNotFound {
				return Eligibility{Allowed: false, Reason: "User not found"}, nil
			}
			return Eligibility{}, err
		}
		if user.CreditsBalance <= 0 {
			return Eligibility{Allowed: false, Reason: "Insufficient credits", CreditsRemaining: intPtr(0)}, nil
		}
		return Eligibility{Allowed: true, CreditsRemaining: intPtr(user.CreditsBalance)}, nil
	}

	count := 0
	if id.AnonymousID != "" {
		var err error
		count, err = l.store.CountAnonymousConversions(ctx, id.AnonymousID)
		if err != nil {
			return Eligibility{}, err
		}
	}
	if count >= AnonymousConversionLimit {
		return Eligibility{Allowed: false, Reason: "Free conversion limit reached. Please sign in to continue."}, nil
	}
	return Eligibility{Allowed: true, CreditsRemaining: intPtr(AnonymousConversionLimit - count)}, nil
}

// Deduct burns exactly one credit and appends the matching usage
// transaction. The store guarantees the balance never goes negative; callers
// are expected to have checked CanConvert first.
func (l *Ledger) Deduct(ctx context.Context, subject string) error {
	return l.store.DeductCredit(ctx, subject)
}

// Grant adds purchased credits with the external payment reference for audit
// tie-back. A replayed reference is rejected by the store, so at-least-once
// webhook delivery cannot double-credit.
func (l *Ledger) Grant(ctx context.Context, subject string, amount int, paymentRef string) error {
	return l.store.GrantCredits(ctx, subject, amount, paymentRef, fmt.Sprintf("Purchased %d credits", amount))
}

func intPtr(n int) *int {
	return &n
}
