// Package httpapi exposes the SurveyPay ledger over a gin HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/surveypay/internal/database"
	"github.com/MarkoPoloResearchLab/surveypay/internal/identity"
	"github.com/MarkoPoloResearchLab/surveypay/internal/oplog"
	"github.com/MarkoPoloResearchLab/surveypay/internal/providers"
	"github.com/MarkoPoloResearchLab/surveypay/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/surveypay/internal/surveys"
	"github.com/MarkoPoloResearchLab/surveypay/internal/users"
	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 5 * time.Second

// Models lists every table the API needs, in migration order.
func Models() []interface{} {
	models := append([]interface{}{}, users.Models()...)
	models = append(models, gormstore.Models()...)
	return append(models, surveys.Models()...)
}

// Run boots the HTTP API using the supplied configuration and blocks until ctx is done.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	handle, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = handle.Close() }()
	if cfg.AutoMigrate {
		if err := database.Migrate(handle.DB, Models()...); err != nil {
			return err
		}
	}

	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	handler, err := newHTTPHandler(logger, cfg, handle.DB, func() time.Time { return time.Now().UTC() })
	if err != nil {
		return err
	}

	router := setupRouter(cfg, handler, sessionValidator)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("surveypay api listening", zap.String("addr", cfg.ListenAddr), zap.String("driver", handle.Driver))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"message": apiName, "version": apiVersion})
	})
	api.POST("/auth/register", handler.handleRegister)
	api.POST("/auth/login", handler.handleLogin)
	api.POST("/auth/logout", handler.handleLogout)
	api.GET("/auth/oauth/start", handler.handleOAuthStart)
	api.POST("/auth/session", handler.handleFederatedSession)
	api.GET("/leaderboard", handler.handleLeaderboard)
	api.GET("/postbacks/:provider", handler.handlePostback)
	api.POST("/postbacks/:provider", handler.handlePostback)

	session := api.Group("")
	session.Use(bearerToCookie(cfg.SessionCookieName), validator.GinMiddleware(claimsContextKey), handler.rejectRevoked)
	session.GET("/auth/me", handler.handleMe)
	session.GET("/stats", handler.handleStats)
	session.GET("/wallet", handler.handleWallet)
	session.POST("/withdrawals", handler.handleCreateWithdrawal)
	session.GET("/withdrawals", handler.handleListWithdrawals)
	session.GET("/history", handler.handleHistory)
	session.GET("/entries", handler.handleEntries)
	session.GET("/surveys", handler.handleListSurveys)
	session.POST("/surveys/start", handler.handleStartSurvey)
	session.POST("/surveys/complete", handler.handleCompleteSurvey)
	session.GET("/surveys/history", handler.handleSurveyHistory)

	admin := session.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.POST("/withdrawals/:id/resolve", handler.handleResolveWithdrawal)
	admin.GET("/audit/:user_id", handler.handleAudit)

	return router
}

type httpHandler struct {
	logger    *zap.Logger
	cfg       Config
	ledger    *ledger.Service
	users     *users.Service
	surveys   *surveys.Service
	catalog   *surveys.Catalog
	providers *providers.Registry
	sessions  *sessionIssuer
	identity  identity.Verifier
}

func newHTTPHandler(logger *zap.Logger, cfg Config, db *gorm.DB, now func() time.Time) (*httpHandler, error) {
	ledgerOptions := []ledger.ServiceOption{ledger.WithOperationLogger(oplog.New(logger))}
	if cfg.MinimumWithdrawal > 0 {
		ledgerOptions = append(ledgerOptions, ledger.WithMinimumWithdrawal(ledger.Points(cfg.MinimumWithdrawal)))
	}
	ledgerService, err := ledger.NewService(gormstore.New(db, gormstore.WithParticipants(users.Record{}.TableName())), now, ledgerOptions...)
	if err != nil {
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	userOptions := []users.Option{}
	if cfg.PasswordHashCost > 0 {
		userOptions = append(userOptions, users.WithHashCost(cfg.PasswordHashCost))
	}
	userService, err := users.NewService(db, now, userOptions...)
	if err != nil {
		return nil, fmt.Errorf("users service init: %w", err)
	}
	catalog := surveys.DefaultCatalog()
	surveyService, err := surveys.NewService(db, catalog, ledgerService, now)
	if err != nil {
		return nil, fmt.Errorf("surveys service init: %w", err)
	}
	handler := &httpHandler{
		logger:    logger,
		cfg:       cfg,
		ledger:    ledgerService,
		users:     userService,
		surveys:   surveyService,
		catalog:   catalog,
		providers: providers.NewDefaultRegistry(cfg.PostbackSecret),
		sessions:  newSessionIssuer(cfg, now),
	}
	if cfg.OAuth.Enabled() {
		verifier, err := identity.NewOAuthVerifier(cfg.OAuth)
		if err != nil {
			return nil, fmt.Errorf("identity verifier init: %w", err)
		}
		handler.identity = verifier
	}
	return handler, nil
}

// requestContext bounds a handler's ledger calls by the configured timeout.
func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.LedgerTimeout)
}

// sessionUser resolves the caller's ledger user id, responding 401 when there is no session.
func (handler *httpHandler) sessionUser(ctx *gin.Context) (ledger.UserID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return ledger.UserID{}, false
	}
	userID, err := ledger.NewUserID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "invalid session"))
		return ledger.UserID{}, false
	}
	return userID, true
}

// requireAdmin checks the stored role rather than the token, so demotions apply immediately.
// rejectRevoked stops sessions that were logged out before they expired.
func (handler *httpHandler) rejectRevoked(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil || claims.ID == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "invalid session"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	revoked, err := handler.users.IsSessionRevoked(requestCtx, claims.ID)
	if err != nil {
		handler.respondError(ctx, "session", err)
		ctx.Abort()
		return
	}
	if revoked {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "session revoked"))
		return
	}
	ctx.Next()
}

func (handler *httpHandler) requireAdmin(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		ctx.Abort()
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	user, err := handler.users.Get(requestCtx, userID.String())
	if errors.Is(err, users.ErrUnknownUser) || (err == nil && !user.IsAdmin()) {
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(codeForbidden, "admin role required"))
		return
	}
	if err != nil {
		handler.respondError(ctx, "require_admin", err)
		ctx.Abort()
		return
	}
	ctx.Next()
}
