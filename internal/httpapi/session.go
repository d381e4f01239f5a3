package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/surveypay/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
)

const (
	claimsContextKey    = "auth_claims"
	bearerPrefix        = "Bearer "
	cookiePath          = "/"
	headerAuthorization = "Authorization"
)

// sessionIssuer mints the HS256 session tokens that sessionvalidator accepts.
type sessionIssuer struct {
	signingKey []byte
	issuer     string
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

func newSessionIssuer(cfg Config, now func() time.Time) *sessionIssuer {
	return &sessionIssuer{
		signingKey: []byte(cfg.SessionSigningKey),
		issuer:     cfg.SessionIssuer,
		cookieName: cfg.SessionCookieName,
		ttl:        cfg.SessionTTL,
		secure:     cfg.SecureCookies,
		now:        now,
	}
}

func (issuer *sessionIssuer) mint(user users.User) (string, time.Time, error) {
	issuedAt := issuer.now().UTC()
	expiresAt := issuedAt.Add(issuer.ttl)
	claims := &sessionvalidator.Claims{
		UserID:          user.UserID,
		UserEmail:       user.Email,
		UserDisplayName: user.Name,
		UserAvatarURL:   user.AvatarURL,
		UserRoles:       []string{string(user.Role)},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer.issuer,
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(issuer.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// parse verifies a token minted by this issuer.
func (issuer *sessionIssuer) parse(token string) (*sessionvalidator.Claims, error) {
	claims := &sessionvalidator.Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return issuer.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer.issuer),
		jwt.WithTimeFunc(issuer.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// requestToken returns the session token from the cookie or the bearer header.
func (issuer *sessionIssuer) requestToken(ctx *gin.Context) string {
	if cookie, err := ctx.Request.Cookie(issuer.cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}
	token, found := strings.CutPrefix(ctx.GetHeader(headerAuthorization), bearerPrefix)
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

func (issuer *sessionIssuer) setCookie(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(issuer.cookieName, token, int(issuer.ttl.Seconds()), cookiePath, "", issuer.secure, true)
}

func (issuer *sessionIssuer) clearCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(issuer.cookieName, "", -1, cookiePath, "", issuer.secure, true)
}

// bearerToCookie lets API clients send the session token as a bearer token.
// A session cookie, when present, wins.
func bearerToCookie(cookieName string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if _, err := ctx.Request.Cookie(cookieName); err == nil {
			ctx.Next()
			return
		}
		token, found := strings.CutPrefix(ctx.GetHeader(headerAuthorization), bearerPrefix)
		token = strings.TrimSpace(token)
		if found && token != "" {
			ctx.Request.AddCookie(&http.Cookie{Name: cookieName, Value: token})
		}
		ctx.Next()
	}
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}
