package app

import (
	"context"
	"time"

	"github.com/chriswakefield87/billtosheet-api/app/store"
)

const (
	// RegisteredRetention is how long conversions owned by a registered
	// user are kept before the sweep removes them.
	RegisteredRetention = 30 * 24 * time.Hour
	// AnonymousRetention is the shorter window for anonymous conversions.
	AnonymousRetention = 24 * time.Hour
)

// CleanupResult reports what one retention sweep deleted.
type CleanupResult struct {
	Registered int64 `json:"loggedIn"`
	Anonymous  int64 `json:"anonymous"`
	Total      int64 `json:"total"`
}

// SweepExpiredConversions deletes conversions past their retention window.
// It runs out of band (cron), never on the write path.
func SweepExpiredConversions(ctx context.Context, s store.Store, now time.Time) (CleanupResult, error) {
	registered, anonymous, err := s.DeleteExpiredConversions(
		ctx,
		now.Add(-RegisteredRetention),
		now.Add(-AnonymousRetention),
	)
	if err != nil {
		return CleanupResult{}, err
	}
	return CleanupResult{
		Registered: registered,
		Anonymous:  anonymous,
		Total:      registered + anonymous,
	}, nil
}
