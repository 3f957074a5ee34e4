package config

import (
	"os"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	DB      PostgresConfig
	Stripe  StripeConfig
	Extract ExtractConfig
	Cleanup CleanupConfig
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	FrontendURL   string
}

type ExtractConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type CleanupConfig struct {
	CronSecret string
}

func LoadConfig() (*Config, error) {
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4.1-2025-04-14"
	}

	cfg := &Config{
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			FrontendURL:   os.Getenv("FRONTEND_URL"),
		},
		Extract: ExtractConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   model,
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Cleanup: CleanupConfig{
			CronSecret: os.Getenv("CRON_SECRET"),
		},
	}

	return cfg, nil
}
