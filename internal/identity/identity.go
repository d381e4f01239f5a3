// Package identity verifies users signed in through an external OAuth provider.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	maxUserInfoBytes   = 1 << 20
)

var (
	ErrUnverified    = errors.New("identity not verified")
	ErrMissingCode   = errors.New("authorization code is required")
	ErrInvalidConfig = errors.New("invalid identity config")
)

var defaultScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Identity is the profile an identity provider vouches for.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Verifier turns an authorization code into a verified identity.
type Verifier interface {
	AuthCodeURL(state string) string
	Verify(ctx context.Context, code string) (Identity, error)
}

// OAuthConfig describes an OAuth 2.0 client. Empty endpoints default to Google.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// Enabled reports whether a client id is configured.
func (cfg OAuthConfig) Enabled() bool {
	return strings.TrimSpace(cfg.ClientID) != ""
}

// OAuthVerifier exchanges codes at the token endpoint and reads the userinfo endpoint.
type OAuthVerifier struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewOAuthVerifier validates cfg and builds a verifier.
func NewOAuthVerifier(cfg OAuthConfig) (*OAuthVerifier, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: client secret is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, fmt.Errorf("%w: redirect url is required", ErrInvalidConfig)
	}
	endpoint := google.Endpoint
	if strings.TrimSpace(cfg.AuthURL) != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) != "" {
		endpoint.TokenURL = cfg.TokenURL
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	userInfoURL := strings.TrimSpace(cfg.UserInfoURL)
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}
	return &OAuthVerifier{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		httpClient:  cfg.HTTPClient,
	}, nil
}

// AuthCodeURL returns the consent page address carrying state.
func (verifier *OAuthVerifier) AuthCodeURL(state string) string {
	return verifier.config.AuthCodeURL(state)
}

type userInfo struct {
	ID            string `json:"id"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	VerifiedEmail bool   `json:"verified_email"`
	EmailVerified bool   `json:"email_verified"`
}

// Verify exchanges code and returns the profile behind it.
// Providers that do not vouch for the email address are rejected.
func (verifier *OAuthVerifier) Verify(ctx context.Context, code string) (Identity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Identity{}, ErrMissingCode
	}
	if verifier.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, verifier.httpClient)
	}
	token, err := verifier.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: exchange: %v", ErrUnverified, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, verifier.userInfoURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("userinfo request: %w", err)
	}
	response, err := verifier.config.Client(ctx, token).Do(request)
	if err != nil {
		return Identity{}, fmt.Errorf("userinfo: %w", err)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: userinfo status %d", ErrUnverified, response.StatusCode)
	}
	var info userInfo
	if err := json.NewDecoder(io.LimitReader(response.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return Identity{}, fmt.Errorf("%w: userinfo payload: %v", ErrUnverified, err)
	}
	email := strings.TrimSpace(info.Email)
	if email == "" || !(info.VerifiedEmail || info.EmailVerified) {
		return Identity{}, fmt.Errorf("%w: email not verified", ErrUnverified)
	}
	subject := info.ID
	if subject == "" {
		subject = info.Subject
	}
	return Identity{
		Subject: subject,
		Email:   email,
		Name:    strings.TrimSpace(info.Name),
		Picture: strings.TrimSpace(info.Picture),
	}, nil
}
