package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/surveypay/internal/identity"
)

const (
	defaultListenAddr    = ":8001"
	defaultDatabaseURL   = "sqlite://surveypay.db"
	defaultAllowedOrigin = "http://localhost:3000"
	defaultSessionIssuer = "surveypay"
	defaultSessionCookie = "session_token"
	defaultSessionTTL    = 7 * 24 * time.Hour
	defaultLedgerTimeout = 3 * time.Second
	apiName              = "Survey Portal API"
	apiVersion           = "1.0.0"
)

// Config aggregates runtime settings for the HTTP API.
type Config struct {
	ListenAddr        string
	DatabaseURL       string
	AutoMigrate       bool
	LedgerTimeout     time.Duration
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	SessionTTL        time.Duration
	SecureCookies     bool
	PostbackSecret    string
	PasswordHashCost  int
	MinimumWithdrawal int64
	OAuth             identity.OAuthConfig
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = defaultLedgerTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	if cfg.MinimumWithdrawal < 0 {
		return fmt.Errorf("minimum withdrawal must not be negative")
	}
	if cfg.PasswordHashCost < 0 {
		return fmt.Errorf("password hash cost must not be negative")
	}
	if cfg.OAuth.Enabled() && (strings.TrimSpace(cfg.OAuth.ClientSecret) == "" || strings.TrimSpace(cfg.OAuth.RedirectURL) == "") {
		return fmt.Errorf("oauth client secret and redirect url are required with an oauth client id")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
