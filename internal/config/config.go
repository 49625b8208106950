/**
 * @description
 * Configuration management for the backend. Uses viper to load settings from
 * environment variables, with sensible defaults for local development.
 */
package config

import (
	"errors"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	JWTSecret      string `mapstructure:"JWT_SECRET"`
	JWTExpiryHours int    `mapstructure:"JWT_EXPIRY_HOURS"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	PayPalBaseURL      string `mapstructure:"PAYPAL_BASE_URL"`
	PayPalClientID     string `mapstructure:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string `mapstructure:"PAYPAL_CLIENT_SECRET"`
	PayPalWebhookID    string `mapstructure:"PAYPAL_WEBHOOK_ID"`

	FrontendURL string `mapstructure:"FRONTEND_URL"`

	CycleResetSchedule string `mapstructure:"CYCLE_RESET_SCHEDULE"`
	LapseCheckSchedule string `mapstructure:"LAPSE_CHECK_SCHEDULE"`
	SchedulerLockTTL   int    `mapstructure:"SCHEDULER_LOCK_TTL_SECONDS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("JWT_EXPIRY_HOURS", 72)
	viper.SetDefault("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com")
	viper.SetDefault("FRONTEND_URL", "http://localhost:3000")
	viper.SetDefault("CYCLE_RESET_SCHEDULE", "0 2 * * *")
	viper.SetDefault("LAPSE_CHECK_SCHEDULE", "0 * * * *")
	viper.SetDefault("SCHEDULER_LOCK_TTL_SECONDS", 300)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT", "DATABASE_URL", "REDIS_URL", "RABBITMQ_URL",
		"JWT_SECRET", "JWT_EXPIRY_HOURS",
		"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET",
		"PAYPAL_BASE_URL", "PAYPAL_CLIENT_ID", "PAYPAL_CLIENT_SECRET", "PAYPAL_WEBHOOK_ID",
		"FRONTEND_URL", "CYCLE_RESET_SCHEDULE", "LAPSE_CHECK_SCHEDULE", "SCHEDULER_LOCK_TTL_SECONDS",
	} {
		_ = viper.BindEnv(key)
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}
	if config.DatabaseURL == "" {
		err = errors.New("DATABASE_URL is required")
	}
	return
}
