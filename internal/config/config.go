package config

import (
	"fmt"
	"os"
)

type Config struct {
	Port                string
	MongoDBURI          string
	MongoDBName         string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	AuthJWKSURL         string
	JWTSecret           string
	Environment         string
	LogLevel            string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                getEnvWithDefault("PORT", "8080"),
		MongoDBURI:          os.Getenv("MONGODB_URI"),
		MongoDBName:         getEnvWithDefault("MONGODB_DB", "cleaningdb"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:       getEnvWithDefault("STRIPE_BASE_URL", "https://api.stripe.com"),
		CheckoutSuccessURL:  os.Getenv("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   os.Getenv("CHECKOUT_CANCEL_URL"),
		AuthJWKSURL:         os.Getenv("AUTH_JWKS_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		Environment:         getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:            getEnvWithDefault("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	if cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if cfg.CheckoutSuccessURL == "" {
		return nil, fmt.Errorf("CHECKOUT_SUCCESS_URL is required")
	}
	if cfg.CheckoutCancelURL == "" {
		return nil, fmt.Errorf("CHECKOUT_CANCEL_URL is required")
	}
	if cfg.AuthJWKSURL == "" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("one of AUTH_JWKS_URL or JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
