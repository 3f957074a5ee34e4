package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chriswakefield87/billtosheet-api/app/config"
	"github.com/chriswakefield87/billtosheet-api/app/models"

	"github.com/lib/pq"
)

// Postgres implements Store on database/sql with the lib/pq driver.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres opens a connection pool, pings it, and applies the schema.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s",
		cfg.Username,
		cfg.Password,
		cfg.URL,
		cfg.Port,
	)

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := d.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	s := &Postgres{db: d}
	if err := s.migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}

	log.Println("Connected to Postgres")
	return s, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	return s.db.Close()
}

func (s *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			subject            TEXT UNIQUE NOT NULL,
			email              TEXT NOT NULL DEFAULT '',
			credits_balance    INT NOT NULL DEFAULT 0,
			stripe_customer_id TEXT,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS conversions (
			id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id        UUID REFERENCES users(id),
			anonymous_id   TEXT,
			vendor         TEXT NOT NULL DEFAULT '',
			invoice_number TEXT NOT NULL DEFAULT '',
			invoice_date   TEXT NOT NULL DEFAULT '',
			currency       TEXT NOT NULL DEFAULT '',
			subtotal       DOUBLE PRECISION NOT NULL DEFAULT 0,
			tax_total      DOUBLE PRECISION NOT NULL DEFAULT 0,
			shipping       DOUBLE PRECISION NOT NULL DEFAULT 0,
			total          DOUBLE PRECISION NOT NULL DEFAULT 0,
			extracted_data TEXT NOT NULL DEFAULT '{}',
			status         TEXT NOT NULL DEFAULT 'completed',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS conversions_anonymous_idx ON conversions (anonymous_id);`,
		`CREATE TABLE IF NOT EXISTS credit_transactions (
			id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id           UUID NOT NULL REFERENCES users(id),
			amount            INT NOT NULL,
			type              TEXT NOT NULL,
			stripe_payment_id TEXT,
			description       TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS credit_transactions_payment_idx
			ON credit_transactions (stripe_payment_id)
			WHERE stripe_payment_id IS NOT NULL;`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

func (s *Postgres) UpsertUser(ctx context.Context, subject, email string, startingCredits int) (models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (subject, email, credits_balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO NOTHING;
	`, subject, email, startingCredits)
	if err != nil {
		return models.User{}, err
	}
	return s.GetUserBySubject(ctx, subject)
}

func (s *Postgres) GetUserBySubject(ctx context.Context, subject string) (models.User, error) {
	var (
		user     models.User
		stripeID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, subject, email, credits_balance, stripe_customer_id, created_at
		FROM users
		WHERE subject = $1;
	`, subject).Scan(&user.ID, &user.Subject, &user.Email, &user.CreditsBalance, &stripeID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	user.StripeCustomerID = stripeID.String
	return user, nil
}

func (s *Postgres) SetStripeCustomerID(ctx context.Context, subject, customerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET stripe_customer_id = $1
		WHERE subject = $2;
	`, customerID, subject)
	return err
}

func (s *Postgres) DeductCredit(ctx context.Context, subject string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The balance guard lives in the UPDATE itself, so concurrent deducts
	// can never drive the balance below zero.
	var userID string
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET credits_balance = credits_balance - 1
		WHERE subject = $1 AND credits_balance > 0
		RETURNING id;
	`, subject).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInsufficientCredits
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (user_id, amount, type, description)
		VALUES ($1, -1, $2, 'Invoice conversion');
	`, userID, models.TransactionUsage)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Postgres) GrantCredits(ctx context.Context, subject string, amount int, paymentRef, description string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM users WHERE subject = $1;
	`, subject).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	// Insert the ledger row first; the partial unique index on
	// stripe_payment_id turns a replayed webhook into a no-op.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (user_id, amount, type, stripe_payment_id, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stripe_payment_id) WHERE stripe_payment_id IS NOT NULL DO NOTHING;
	`, userID, amount, models.TransactionPurchase, nullIfEmpty(paymentRef), description)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicatePayment
		}
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrDuplicatePayment
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET credits_balance = credits_balance + $1
		WHERE id = $2;
	`, amount, userID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Postgres) ListTransactions(ctx context.Context, subject string) ([]models.CreditTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.amount, t.type, t.stripe_payment_id, t.description, t.created_at
		FROM credit_transactions t
		JOIN users u ON u.id = t.user_id
		WHERE u.subject = $1
		ORDER BY t.created_at;
	`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CreditTransaction
	for rows.Next() {
		var (
			t   models.CreditTransaction
			ref sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &ref, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.StripePaymentID = ref.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateConversion(ctx context.Context, conv models.Conversion) (models.Conversion, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversions (
			user_id, anonymous_id, vendor, invoice_number, invoice_date,
			currency, subtotal, tax_total, shipping, total, extracted_data, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at;
	`,
		nullIfEmpty(conv.UserID),
		nullIfEmpty(conv.AnonymousID),
		conv.Vendor,
		conv.InvoiceNumber,
		conv.InvoiceDate,
		conv.Currency,
		conv.Subtotal,
		conv.TaxTotal,
		conv.Shipping,
		conv.Total,
		conv.ExtractedData,
		conv.Status,
	).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return models.Conversion{}, err
	}
	return conv, nil
}

func (s *Postgres) GetConversion(ctx context.Context, id string) (models.Conversion, error) {
	var (
		conv   models.Conversion
		userID sql.NullString
		anonID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, anonymous_id, vendor, invoice_number, invoice_date,
			currency, subtotal, tax_total, shipping, total, extracted_data, status, created_at
		FROM conversions
		WHERE id = $1;
	`, id).Scan(
		&conv.ID, &userID, &anonID, &conv.Vendor, &conv.InvoiceNumber, &conv.InvoiceDate,
		&conv.Currency, &conv.Subtotal, &conv.TaxTotal, &conv.Shipping, &conv.Total,
		&conv.ExtractedData, &conv.Status, &conv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Conversion{}, ErrNotFound
		}
		return models.Conversion{}, err
	}
	conv.UserID = userID.String
	conv.AnonymousID = anonID.String
	return conv, nil
}

func (s *Postgres) DeleteConversion(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversions WHERE id = $1;
	`, id)
	return err
}

func (s *Postgres) CountAnonymousConversions(ctx context.Context, anonymousID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversions WHERE anonymous_id = $1;
	`, anonymousID).Scan(&count)
	return count, err
}

func (s *Postgres) DeleteExpiredConversions(ctx context.Context, registeredBefore, anonymousBefore time.Time) (int64, int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM conversions
		WHERE user_id IS NOT NULL AND created_at < $1;
	`, registeredBefore)
	if err != nil {
		return 0, 0, err
	}
	registered, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM conversions
		WHERE user_id IS NULL AND created_at < $1;
	`, anonymousBefore)
	if err != nil {
		return registered, 0, err
	}
	anonymous, _ := res.RowsAffected()

	return registered, anonymous, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
