package store

import (
	"context"
	"sync"
	"time"

	"github.com/chriswakefield87/billtosheet-api/app/models"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and for running the server
// without a backing database.
type Memory struct {
	mu           sync.Mutex
	users        map[string]*models.User // keyed by subject
	conversions  map[string]models.Conversion
	transactions []models.CreditTransaction
	paymentRefs  map[string]bool
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]*models.User),
		conversions: make(map[string]models.Conversion),
		paymentRefs: make(map[string]bool),
	}
}

func (m *Memory) UpsertUser(_ context.Context, subject, email string, startingCredits int) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[subject]; ok {
		return *u, nil
	}
	u := &models.User{
		ID:             uuid.NewString(),
		Subject:        subject,
		Email:          email,
		CreditsBalance: startingCredits,
		CreatedAt:      time.Now().UTC(),
	}
	m.users[subject] = u
	return *u, nil
}

func (m *Memory) GetUserBySubject(_ context.Context, subject string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[subject]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return *u, nil
}

func (m *Memory) SetStripeCustomerID(_ context.Context, subject, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[subject]
	if !ok {
		return ErrNotFound
	}
	u.StripeCustomerID = customerID
	return nil
}

func (m *Memory) DeductCredit(_ context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[subject]
	if !ok {
		return ErrNotFound
	}
	if u.CreditsBalance <= 0 {
		return ErrInsufficientCredits
	}
	u.CreditsBalance--
	m.transactions = append(m.transactions, models.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		Amount:      -1,
		Type:        models.TransactionUsage,
		Description: "Invoice conversion",
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func (m *Memory) GrantCredits(_ context.Context, subject string, amount int, paymentRef, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[subject]
	if !ok {
		return ErrNotFound
	}
	if paymentRef != "" && m.paymentRefs[paymentRef] {
		return ErrDuplicatePayment
	}
	if paymentRef != "" {
		m.paymentRefs[paymentRef] = true
	}
	u.CreditsBalance += amount
	m.transactions = append(m.transactions, models.CreditTransaction{
		ID:              uuid.NewString(),
		UserID:          u.ID,
		Amount:          amount,
		Type:            models.TransactionPurchase,
		StripePaymentID: paymentRef,
		Description:     description,
		CreatedAt:       time.Now().UTC(),
	})
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, subject string) ([]models.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[subject]
	if !ok {
		return nil, ErrNotFound
	}
	var out []models.CreditTransaction
	for _, t := range m.transactions {
		if t.UserID == u.ID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) CreateConversion(_ context.Context, conv models.Conversion) (models.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	m.conversions[conv.ID] = conv
	return conv, nil
}

func (m *Memory) GetConversion(_ context.Context, id string) (models.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversions[id]
	if !ok {
		return models.Conversion{}, ErrNotFound
	}
	return conv, nil
}

func (m *Memory) DeleteConversion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conversions, id)
	return nil
}

func (m *Memory) CountAnonymousConversions(_ context.Context, anonymousID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, conv := range m.conversions {
		if conv.AnonymousID != "" && conv.AnonymousID == anonymousID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) DeleteExpiredConversions(_ context.Context, registeredBefore, anonymousBefore time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var registered, anonymous int64
	for id, conv := range m.conversions {
		switch {
		case conv.UserID != "" && conv.CreatedAt.Before(registeredBefore):
			delete(m.conversions, id)
			registered++
		case conv.UserID == "" && conv.CreatedAt.Before(anonymousBefore):
			delete(m.conversions, id)
			anonymous++
		}
	}
	return registered, anonymous, nil
}
