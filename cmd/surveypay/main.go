package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/surveypay/internal/httpapi"
	"github.com/MarkoPoloResearchLab/surveypay/internal/identity"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagDatabaseURL       = "database-url"
	flagListenAddr        = "listen-addr"
	flagAutoMigrate       = "auto-migrate"
	flagLedgerTimeout     = "ledger-timeout"
	flagAllowedOrigins    = "allowed-origins"
	flagJWTSigningKey     = "jwt-signing-key"
	flagJWTIssuer         = "jwt-issuer"
	flagJWTCookieName     = "jwt-cookie-name"
	flagSessionTTL        = "session-ttl"
	flagSecureCookies     = "secure-cookies"
	flagPostbackSecret    = "postback-secret"
	flagMinimumWithdrawal = "minimum-withdrawal"
	flagOAuthClientID     = "oauth-client-id"
	flagOAuthSecret       = "oauth-client-secret"
	flagOAuthRedirectURL  = "oauth-redirect-url"
	flagOAuthAuthURL      = "oauth-auth-url"
	flagOAuthTokenURL     = "oauth-token-url"
	flagOAuthUserInfoURL  = "oauth-userinfo-url"
	envPrefix             = "SURVEYPAY"
	defaultDatabaseURL    = "sqlite://surveypay.db"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "surveypay: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:           "surveypay",
		Short:         "SurveyPay reward ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "database URL (postgres://... or sqlite://path)")

	cmd.AddCommand(
		newServeCommand(v),
		newMigrateCommand(v),
		newAuditCommand(v),
		newWithdrawalsCommand(v),
		newUsersCommand(v),
	)
	return cmd
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	cfg := httpapi.Config{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadServeConfig(cmd, v, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			return httpapi.Run(ctx, cfg, logger)
		},
	}

	cmd.Flags().String(flagListenAddr, ":8001", "HTTP listen address")
	cmd.Flags().Bool(flagAutoMigrate, true, "create or update tables on startup")
	cmd.Flags().Duration(flagLedgerTimeout, 0, "per-request ledger timeout (e.g. 3s)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "session JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "session JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "session cookie name")
	cmd.Flags().Duration(flagSessionTTL, 0, "session lifetime (e.g. 168h)")
	cmd.Flags().Bool(flagSecureCookies, false, "mark session cookies Secure")
	cmd.Flags().String(flagPostbackSecret, "", "shared secret providers send with postbacks")
	cmd.Flags().Int64(flagMinimumWithdrawal, 0, "minimum withdrawal in points")
	cmd.Flags().String(flagOAuthClientID, "", "OAuth client id; enables federated sign-in")
	cmd.Flags().String(flagOAuthSecret, "", "OAuth client secret")
	cmd.Flags().String(flagOAuthRedirectURL, "", "OAuth redirect URL registered with the provider")
	cmd.Flags().String(flagOAuthAuthURL, "", "OAuth authorization endpoint (defaults to Google)")
	cmd.Flags().String(flagOAuthTokenURL, "", "OAuth token endpoint (defaults to Google)")
	cmd.Flags().String(flagOAuthUserInfoURL, "", "OAuth userinfo endpoint (defaults to Google)")

	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper, flagNames ...string) error {
	for _, flagName := range flagNames {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			flag = cmd.InheritedFlags().Lookup(flagName)
		}
		if flag == nil {
			return fmt.Errorf("unknown flag %s", flagName)
		}
		if err := v.BindPFlag(flagName, flag); err != nil {
			return err
		}
	}
	return nil
}

func loadDatabaseURL(cmd *cobra.Command, v *viper.Viper) (string, error) {
	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return "", err
	}
	if err := bindFlags(cmd, v, flagDatabaseURL); err != nil {
		return "", err
	}
	databaseURL := strings.TrimSpace(v.GetString(flagDatabaseURL))
	if databaseURL == "" {
		return "", fmt.Errorf("%s is required", flagDatabaseURL)
	}
	return databaseURL, nil
}

func loadServeConfig(cmd *cobra.Command, v *viper.Viper, cfg *httpapi.Config) error {
	databaseURL, err := loadDatabaseURL(cmd, v)
	if err != nil {
		return err
	}
	if err := v.BindEnv(flagJWTSigningKey, envPrefix+"_JWT_SIGNING_KEY", "JWT_SECRET"); err != nil {
		return err
	}
	if err := bindFlags(cmd, v,
		flagListenAddr, flagAutoMigrate, flagLedgerTimeout, flagAllowedOrigins,
		flagJWTSigningKey, flagJWTIssuer, flagJWTCookieName, flagSessionTTL,
		flagSecureCookies, flagPostbackSecret, flagMinimumWithdrawal,
		flagOAuthClientID, flagOAuthSecret, flagOAuthRedirectURL,
		flagOAuthAuthURL, flagOAuthTokenURL, flagOAuthUserInfoURL,
	); err != nil {
		return err
	}

	cfg.DatabaseURL = databaseURL
	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.AutoMigrate = v.GetBool(flagAutoMigrate)
	cfg.LedgerTimeout = v.GetDuration(flagLedgerTimeout)
	cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagJWTSigningKey)
	cfg.SessionIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagJWTCookieName))
	cfg.SessionTTL = v.GetDuration(flagSessionTTL)
	cfg.SecureCookies = v.GetBool(flagSecureCookies)
	cfg.PostbackSecret = v.GetString(flagPostbackSecret)
	cfg.MinimumWithdrawal = v.GetInt64(flagMinimumWithdrawal)
	cfg.OAuth = identity.OAuthConfig{
		ClientID:     strings.TrimSpace(v.GetString(flagOAuthClientID)),
		ClientSecret: v.GetString(flagOAuthSecret),
		RedirectURL:  strings.TrimSpace(v.GetString(flagOAuthRedirectURL)),
		AuthURL:      strings.TrimSpace(v.GetString(flagOAuthAuthURL)),
		TokenURL:     strings.TrimSpace(v.GetString(flagOAuthTokenURL)),
		UserInfoURL:  strings.TrimSpace(v.GetString(flagOAuthUserInfoURL)),
	}

	return cfg.Validate()
}
