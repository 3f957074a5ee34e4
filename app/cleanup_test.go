package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chriswakefield87/billtosheet-api/app/models"
	"github.com/chriswakefield87/billtosheet-api/app/store"
)

func TestSweepExpiredConversions(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	seed := func(id, userID, anonymousID string, age time.Duration) {
		t.Helper()
		_, err := s.CreateConversion(ctx, models.Conversion{
			ID:          id,
			UserID:      userID,
			AnonymousID: anonymousID,
			Status:      models.ConversionCompleted,
			CreatedAt:   now.Add(-age),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	seed("user-old", "u1", "", 31*24*time.Hour)
	seed("user-fresh", "u1", "", 29*24*time.Hour)
	seed("anon-old", "", "anon-1", 25*time.Hour)
	seed("anon-fresh", "", "anon-1", 23*time.Hour)

	result, err := SweepExpiredConversions(ctx, s, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Registered != 1 || result.Anonymous != 1 || result.Total != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := s.GetConversion(ctx, "user-old"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected user-old deleted, got %v", err)
	}
	if _, err := s.GetConversion(ctx, "anon-old"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected anon-old deleted, got %v", err)
	}
	if _, err := s.GetConversion(ctx, "user-fresh"); err != nil {
		t.Fatalf("user-fresh deleted early: %v", err)
	}
	if _, err := s.GetConversion(ctx, "anon-fresh"); err != nil {
		t.Fatalf("anon-fresh deleted early: %v", err)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.CreateConversion(ctx, models.Conversion{
		ID:        "old",
		UserID:    "u1",
		CreatedAt: now.Add(-40 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first, err := SweepExpiredConversions(ctx, s, now)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if first.Total != 1 {
		t.Fatalf("expected 1 deletion, got %+v", first)
	}

	second, err := SweepExpiredConversions(ctx, s, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second.Total != 0 {
		t.Fatalf("second sweep deleted again: %+v", second)
	}
}
