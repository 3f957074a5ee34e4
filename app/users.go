package app

import (
	"context"
	"strings"

	"github.com/chriswakefield87/billtosheet-api/app/models"
	"github.com/chriswakefield87/billtosheet-api/app/store"
	"github.com/chriswakefield87/billtosheet-api/auth"
)

// UpsertUserFromClaims creates a user row if it does not already exist.
// First creation seeds the one free starting credit; later calls leave the
// balance untouched.
func UpsertUserFromClaims(ctx context.Context, s store.Store, claims *auth.Claims) (models.User, error) {
	if claims == nil || claims.Subject == "" {
		return models.User{}, nil
	}
	email := readStringClaim(claims.Raw, "email")
	return s.UpsertUser(ctx, claims.Subject, email, NewUserCredits)
}

func readStringClaim(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	val, ok := raw[key]
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
