package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Auth providers understood by the session middleware.
const (
	ProviderClerk  = "clerk"
	ProviderAuthJS = "authjs"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Upstreams
	BackendURL  string // chat backend behind /api/*
	FrontendURL string // front-end app for non-API paths (optional)

	// Sessions
	AuthProvider           string
	ClerkJWTKey            string   // PEM public key for networkless verification
	ClerkAuthorizedParties []string // allowed azp claims
	AuthSecret             string   // Auth.js secret
	SignInURL              string
	ProtectedPaths         []string // page prefixes that require a session

	CSRFSecret     string
	AllowedOrigins []string

	// Telemetry
	SentryDSN   string
	PostHogKey  string
	PostHogHost string

	// FEATURE_* variables, keyed by lower-cased suffix
	FeatureFlags map[string]bool

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		Env:                    getEnv("ENV", "development"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		SQLitePath:             getEnv("SQLITE_PATH", "./data/chatdeck.db"),
		RedisURL:               os.Getenv("REDIS_URL"),
		BackendURL:             os.Getenv("BACKEND_URL"),
		FrontendURL:            os.Getenv("FRONTEND_URL"),
		AuthProvider:           strings.ToLower(getEnv("AUTH_PROVIDER", ProviderClerk)),
		ClerkJWTKey:            os.Getenv("CLERK_JWT_KEY"),
		ClerkAuthorizedParties: splitList(os.Getenv("CLERK_AUTHORIZED_PARTIES")),
		AuthSecret:             os.Getenv("AUTH_SECRET"),
		SignInURL:              getEnv("SIGN_IN_URL", "/sign-in"),
		ProtectedPaths:         splitList(getEnv("PROTECTED_PATHS", "/chat,/dashboard,/settings")),
		CSRFSecret:             os.Getenv("CSRF_SECRET"),
		AllowedOrigins:         splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		SentryDSN:              os.Getenv("SENTRY_DSN"),
		PostHogKey:             os.Getenv("POSTHOG_KEY"),
		PostHogHost:            getEnv("POSTHOG_HOST", "https://us.i.posthog.com"),
		FeatureFlags:           featureFlags(os.Environ()),
		RateLimitWhitelist:     splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		AutoBlockEnabled:       getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// AUTH_SECRET is the current Auth.js name, NEXTAUTH_SECRET the legacy one
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = os.Getenv("NEXTAUTH_SECRET")
	}

	if cfg.CSRFSecret == "" && cfg.IsDevelopment() {
		cfg.CSRFSecret = "development-csrf-secret"
	}

	// In production, require upstream, database and secrets
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.BackendURL == "" {
			panic("BACKEND_URL is required in production")
		}
		if cfg.CSRFSecret == "" {
			panic("CSRF_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Feature reports whether a FEATURE_<NAME> flag is enabled.
func (c *Config) Feature(name string) bool {
	return c.FeatureFlags[strings.ToLower(name)]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// featureFlags collects FEATURE_* variables from an environment listing.
func featureFlags(environ []string) map[string]bool {
	flags := make(map[string]bool)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "FEATURE_") {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, "FEATURE_"))
		if name == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "on", "yes":
			flags[name] = true
		default:
			flags[name] = false
		}
	}
	return flags
}
