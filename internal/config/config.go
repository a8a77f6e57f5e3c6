/**
 * @description
 * This file handles the configuration management for the billing-portal
 * service. It uses the 'viper' library to load configuration from
 * environment variables (with an optional local .env file via godotenv),
 * assembling a single Config struct at startup that is passed down to every
 * component. No other package reads the environment directly.
 */
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Billing environments recognized by the provider client.
const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	SessionServiceURL   string `mapstructure:"SESSION_SERVICE_URL"`
	SessionJWTSecret    string `mapstructure:"SESSION_JWT_SECRET"`
	SessionCookieDomain string `mapstructure:"SESSION_COOKIE_DOMAIN"`

	BillingAPIKey        string `mapstructure:"BILLING_API_KEY"`
	BillingEnvironment   string `mapstructure:"BILLING_ENVIRONMENT"`
	BillingWebhookSecret string `mapstructure:"BILLING_WEBHOOK_SECRET"`

	AMQPURL           string `mapstructure:"AMQP_URL"`
	ReconcileSchedule string `mapstructure:"RECONCILE_SCHEDULE"`

	// Comma-separated path prefixes the session refresh gate applies to.
	ProtectedPathPrefixes string `mapstructure:"PROTECTED_PATH_PREFIXES"`
}

// ProtectedPrefixes returns the parsed refresh-gate prefix set.
func (c Config) ProtectedPrefixes() []string {
	var prefixes []string
	for _, p := range strings.Split(c.ProtectedPathPrefixes, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

// LoadConfig reads configuration from environment variables. A .env file in
// envDir is loaded first when present so local development matches deployed
// behavior.
func LoadConfig(envDir string) (config Config, err error) {
	// Missing .env is fine; the environment is authoritative.
	_ = godotenv.Load(filepath.Join(envDir, ".env"))

	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("BILLING_ENVIRONMENT", EnvSandbox)
	viper.SetDefault("RECONCILE_SCHEDULE", "*/30 * * * *")
	viper.SetDefault("PROTECTED_PATH_PREFIXES", "/account,/api")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT",
		"DATABASE_URL",
		"SESSION_SERVICE_URL",
		"SESSION_JWT_SECRET",
		"SESSION_COOKIE_DOMAIN",
		"BILLING_API_KEY",
		"BILLING_ENVIRONMENT",
		"BILLING_WEBHOOK_SECRET",
		"AMQP_URL",
		"RECONCILE_SCHEDULE",
		"PROTECTED_PATH_PREFIXES",
	} {
		_ = viper.BindEnv(key)
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if config.BillingEnvironment != EnvSandbox && config.BillingEnvironment != EnvProduction {
		return config, fmt.Errorf("unrecognized BILLING_ENVIRONMENT %q: must be %q or %q",
			config.BillingEnvironment, EnvSandbox, EnvProduction)
	}

	return config, nil
}
