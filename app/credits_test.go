package app

import (
	"context"
	"errors"
	"testing"

	"github.com/chriswakefield87/billtosheet-api/app/models"
	"github.com/chriswakefield87/billtosheet-api/app/store"
)

func TestCanConvertNewUser(t *testing.T) {
	s := store.NewMemory()
	ledger := NewLedger(s)
	ctx := context.Background()

	if _, err := s.UpsertUser(ctx, "user-1", "user-1@example.com", NewUserCredits); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	elig, err := ledger.CanConvert(ctx, Identity{Subject: "user-1"})
	if err != nil {
		t.Fatalf("CanConvert: %v", err)
	}
	if !elig.Allowed {
		t.Fatalf("expected new user to be eligible, got reason %q", elig.Reason)
	}
	if elig.CreditsRemaining == nil || *elig.CreditsRemaining != NewUserCredits {
		t.Fatalf("expected %d credits remaining", NewUserCredits)
	}
}

func TestCanConvertUnknownUser(t *testing.T) {
	ledger := NewLedger(store.NewMemory())

	elig, err := ledger.CanConvert(context.Background(), Identity{Subject: "ghost"})
	if err != nil {
		t.Fatalf("CanConvert: %v", err)
	}
	if elig.Allowed {
		t.Fatalf("expected unknown user to be ineligible")
	}
	if elig.Reason != "User not found" {
		t.Fatalf("unexpected reason %q", elig.Reason)
	}
}

func TestDeductStopsAtZero(t *testing.T) {
	s := store.NewMemory()
	ledger := NewLedger(s)
	ctx := context.Background()

	if _, err := s.UpsertUser(ctx, "user-1", "user-1@example.com", 1); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := ledger.Deduct(ctx, "user-1"); err != nil {
		t.Fatalf("first deduct: %v", err)
	}

	user, err := s.GetUserBySubject(ctx, "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.CreditsBalance != 0 {
		t.Fatalf("expected balance 0, got %d", user.CreditsBalance)
	}

	if err := ledger.Deduct(ctx, "user-1"); !errors.Is(err, store.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	user, _ = s.GetUserBySubject(ctx, "user-1")
	if user.CreditsBalance != 0 {
		t.Fatalf("balance went negative: %d", user.CreditsBalance)
	}
}

func TestDeductWritesUsageTransaction(t *testing.T) {
	s := store.NewMemory()
	ledger := NewLedger(s)
	ctx := context.Background()

	if _, err := s.UpsertUser(ctx, "user-1", "user-1@example.com", 3); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := ledger.Deduct(ctx, "user-1"); err != nil {
			t.Fatalf("deduct %d: %v", i, err)
		}
	}

	txs, err := s.ListTransactions(ctx, "user-1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 usage rows, got %d", len(txs))
	}
	for _, tx := range txs {
		if tx.Type != models.TransactionUsage || tx.Amount != -1 {
			t.Fatalf("unexpected transaction %+v", tx)
		}
	}

	user, _ := s.GetUserBySubject(ctx, "user-1")
	if user.CreditsBalance != 1 {
		t.Fatalf("expected balance 1, got %d", user.CreditsBalance)
	}
}

func TestGrantIsIdempotentPerPayment(t *testing.T) {
	s := store.NewMemory()
	ledger := NewLedger(s)
	ctx := context.Background()

	if _, err := s.UpsertUser(ctx, "user-1", "user-1@example.com", 0); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := ledger.Grant(ctx, "user-1", 25, "pi_123"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := ledger.Grant(ctx, "user-1", 25, "pi_123"); !errors.Is(err, store.ErrDuplicatePayment) {
		t.Fatalf("expected ErrDuplicatePayment on replay, got %v", err)
	}

	user, _ := s.GetUserBySubject(ctx, "user-1")
	if user.CreditsBalance != 25 {
		t.Fatalf("replay double-credited: balance %d", user.CreditsBalance)
	}

	txs, _ := s.ListTransactions(ctx, "user-1")
	if len(txs) != 1 {
		t.Fatalf("expected 1 purchase row, got %d", len(txs))
	}
	if txs[0].Type != models.TransactionPurchase || txs[0].StripePaymentID != "pi_123" {
		t.Fatalf("unexpected transaction %+v", txs[0])
	}
}

func TestAnonymousConversionCap(t *testing.T) {
	s := store.NewMemory()
	ledger := NewLedger(s)
	ctx := context.Background()

	id := Identity{AnonymousID: "anon-1"}

	elig, err := ledger.CanConvert(ctx, id)
	if err != nil {
		t.Fatalf("CanConvert: %v", err)
	}
	if !elig.Allowed {
		t.Fatalf("expected first anonymous conversion to be allowed")
	}

	if _, err := s.CreateConversion(ctx, models.Conversion{AnonymousID: "anon-1", Status: models.ConversionCompleted}); err != nil {
		t.Fatalf("create conversion: %v", err)
	}

	elig, err = ledger.CanConvert(ctx, id)
	if err != nil {
		t.Fatalf("CanConvert: %v", err)
	}
	if elig.Allowed {
		t.Fatalf("expected anonymous cap after %d conversion", AnonymousConversionLimit)
	}
	if elig.Reason != "Free conversion limit reached. Please sign in to continue." {
		t.Fatalf("unexpected reason %q", elig.Reason)
	}

	// A different anonymous id is unaffected.
	elig, _ = ledger.CanConvert(ctx, Identity{AnonymousID: "anon-2"})
	if !elig.Allowed {
		t.Fatalf("cap leaked across anonymous ids")
	}
}
