package app

import (
	"context"
	"errors"

	"github.com/chriswakefield87/billtosheet-api/app/config"
	"github.com/chriswakefield87/billtosheet-api/app/store"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
)

// InitStripe wires the Stripe API key from the environment.
func InitStripe(cfg *config.Config) {
	stripe.Key = cfg.Stripe.SecretKey
}

// CreditPack is a purchasable bundle of conversion credits. Prices are in
// pence.
type CreditPack struct {
	ID      string
	Name    string
	Credits int
	Price   int64
}

var CreditPacks = []CreditPack{
	{ID: "pack_25", Name: "Starter Pack", Credits: 25, Price: 900},
	{ID: "pack_100", Name: "Pro Pack", Credits: 100, Price: 1900},
	{ID: "pack_500", Name: "Business Pack", Credits: 500, Price: 4900},
}

func findCreditPack(id string) (CreditPack, bool) {
	for _, p := range CreditPacks {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPack{}, false
}

// ensureStripeCustomer finds or creates a Stripe Customer for the given
// user, storing the id on the user row for reuse.
func ensureStripeCustomer(ctx context.Context, s store.Store, subject string) (string, error) {
	if subject == "" {
		return "", errors.New("missing subject")
	}

	user, err := s.GetUserBySubject(ctx, subject)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"subject": subject,
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if err := s.SetStripeCustomerID(ctx, subject, cust.ID); err != nil {
		return "", err
	}
	return cust.ID, nil
}
