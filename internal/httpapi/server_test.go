package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/surveypay/internal/database"
	"github.com/MarkoPoloResearchLab/surveypay/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testPostbackSecret = "postback-secret"

type testAPI struct {
	server  *httptest.Server
	handler *httpHandler
	db      *gorm.DB
	cfg     Config
}

// monotonicClock follows wall time but never returns the same instant twice.
func monotonicClock() func() time.Time {
	var (
		mutex sync.Mutex
		last  time.Time
	)
	return func() time.Time {
		mutex.Lock()
		defer mutex.Unlock()
		current := time.Now().UTC()
		if !current.After(last) {
			current = last.Add(time.Microsecond)
		}
		last = current
		return current
	}
}

func newTestAPI(t *testing.T, configure ...func(cfg *Config)) *testAPI {
	t.Helper()
	cfg := Config{
		DatabaseURL:       filepath.Join(t.TempDir(), "api.db"),
		LedgerTimeout:     5 * time.Second,
		AllowedOrigins:    []string{"http://localhost:3000"},
		SessionSigningKey: "secret-key",
		SessionIssuer:     "surveypay",
		PostbackSecret:    testPostbackSecret,
		PasswordHashCost:  bcrypt.MinCost,
	}
	for _, apply := range configure {
		apply(&cfg)
	}
	require.NoError(t, cfg.Validate())

	handle, err := database.Open(context.Background(), cfg.DatabaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	require.NoError(t, database.Migrate(handle.DB, Models()...))

	handler, err := newHTTPHandler(zap.NewNop(), cfg, handle.DB, monotonicClock())
	require.NoError(t, err)

	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	require.NoError(t, err)

	server := httptest.NewServer(setupRouter(cfg, handler, validator))
	t.Cleanup(server.Close)
	return &testAPI{server: server, handler: handler, db: handle.DB, cfg: cfg}
}

type requestOption func(request *http.Request)

func withSession(cookieName string, token string) requestOption {
	return func(request *http.Request) {
		request.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	}
}

func withBearer(token string) requestOption {
	return func(request *http.Request) {
		request.Header.Set("Authorization", "Bearer "+token)
	}
}

func withHeader(name string, value string) requestOption {
	return func(request *http.Request) {
		request.Header.Set(name, value)
	}
}

func (api *testAPI) do(t *testing.T, method string, path string, payload any, options ...requestOption) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	request, err := http.NewRequest(method, api.server.URL+path, body)
	require.NoError(t, err)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for _, option := range options {
		option(request)
	}
	response, err := api.server.Client().Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	raw, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	return response, raw
}

func (api *testAPI) session(token string) requestOption {
	return withSession(api.cfg.SessionCookieName, token)
}

func (api *testAPI) register(t *testing.T, email string, name string) authResponse {
	t.Helper()
	response, raw := api.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    email,
		"password": "password123",
		"name":     name,
	})
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	var auth authResponse
	require.NoError(t, json.Unmarshal(raw, &auth))
	require.NotEmpty(t, auth.Token)
	return auth
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(raw, &value), string(raw))
	return value
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	envelope := decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, raw)
	return envelope.Error.Code
}

func TestHealthAndRoot(t *testing.T) {
	api := newTestAPI(t)

	response, raw := api.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))

	response, raw = api.do(t, http.MethodGet, "/api/", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"message":"Survey Portal API","version":"1.0.0"}`, string(raw))
}

func TestAuthLifecycle(t *testing.T) {
	api := newTestAPI(t)

	response, raw := api.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "Alice@Example.com",
		"password": "password123",
		"name":     "Alice",
	})
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	auth := decode[authResponse](t, raw)
	assert.Equal(t, "alice@example.com", auth.User.Email)
	assert.Equal(t, "member", auth.User.Role)
	assert.Zero(t, auth.User.Balance)
	assert.Equal(t, "0.00", auth.User.BalanceUSD)

	var sessionCookie *http.Cookie
	for _, cookie := range response.Cookies() {
		if cookie.Name == api.cfg.SessionCookieName {
			sessionCookie = cookie
		}
	}
	require.NotNil(t, sessionCookie, "expected session cookie")
	assert.Equal(t, auth.Token, sessionCookie.Value)
	assert.True(t, sessionCookie.HttpOnly)

	response, raw = api.do(t, http.MethodGet, "/api/auth/me", nil, api.session(auth.Token))
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	me := decode[userPayload](t, raw)
	assert.Equal(t, auth.User.UserID, me.UserID)
	assert.Equal(t, "Alice", me.Name)

	response, raw = api.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "alice@example.com",
		"password": "another-password",
		"name":     "Alice Again",
	})
	assert.Equal(t, http.StatusConflict, response.StatusCode)
	assert.Equal(t, codeEmailTaken, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "alice@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.Equal(t, codeInvalidCredentials, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "ALICE@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	login := decode[authResponse](t, raw)
	assert.Equal(t, auth.User.UserID, login.User.UserID)

	response, raw = api.do(t, http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"message":"Logged out"}`, string(raw))
	cleared := false
	for _, cookie := range response.Cookies() {
		if cookie.Name == api.cfg.SessionCookieName && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "expected logout to expire the session cookie")
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	response, raw := api.do(t, http.MethodPost, "/api/auth/register", map[string]any{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, codeInvalidPayload, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, "/api/auth/register", map[string]any{"email": "not-an-email", "password": "password123", "name": "X"})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, codeInvalidPayload, errorCode(t, raw))
}

func TestSessionRequired(t *testing.T) {
	api := newTestAPI(t)
	auth := api.register(t, "bearer@example.com", "Bearer")

	response, _ := api.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, _ = api.do(t, http.MethodGet, "/api/stats", nil, withBearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, raw := api.do(t, http.MethodGet, "/api/stats", nil, withBearer(auth.Token))
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	stats := decode[statsResponse](t, raw)
	assert.Zero(t, stats.Balance)
	assert.Empty(t, stats.RecentCompletions)
}

func TestLogoutRevokesSessionToken(t *testing.T) {
	api := newTestAPI(t)
	auth := api.register(t, "leaving@example.com", "Leaving")
	response, raw := api.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "leaving@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	other := decode[authResponse](t, raw)
	require.NotEqual(t, auth.Token, other.Token)

	response, _ = api.do(t, http.MethodGet, "/api/stats", nil, withBearer(auth.Token))
	require.Equal(t, http.StatusOK, response.StatusCode)

	response, raw = api.do(t, http.MethodPost, "/api/auth/logout", nil, withBearer(auth.Token))
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))

	response, raw = api.do(t, http.MethodGet, "/api/stats", nil, withBearer(auth.Token))
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.Equal(t, codeUnauthorized, errorCode(t, raw))
	response, _ = api.do(t, http.MethodGet, "/api/auth/me", nil, api.session(auth.Token))
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, raw = api.do(t, http.MethodGet, "/api/stats", nil, withBearer(other.Token))
	assert.Equal(t, http.StatusOK, response.StatusCode, string(raw))

	response, raw = api.do(t, http.MethodPost, "/api/auth/logout", nil, api.session(other.Token))
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	response, _ = api.do(t, http.MethodGet, "/api/wallet", nil, api.session(other.Token))
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	response, _ = api.do(t, http.MethodPost, "/api/auth/logout", nil, withBearer("garbage"))
	assert.Equal(t, http.StatusOK, response.StatusCode)
}

func TestSurveyAndWithdrawalScenario(t *testing.T) {
	api := newTestAPI(t)
	auth := api.register(t, "scenario@example.com", "Scenario")
	session := api.session(auth.Token)

	response, raw := api.do(t, http.MethodGet, "/api/surveys", nil, session)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	assert.Len(t, decode[[]surveyPayload](t, raw), 10)

	response, raw = api.do(t, http.MethodPost, "/api/surveys/start", map[string]any{"survey_id": "cpx_002"}, session)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	assert.Equal(t, "in_progress", decode[surveyPayload](t, raw).Status)

	response, raw = api.do(t, http.MethodGet, "/api/auth/me", nil, session)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, int64(1), decode[userPayload](t, raw).PendingSurveys)

	response, raw = api.do(t, http.MethodPost, "/api/surveys/complete", map[string]any{"survey_id": "cpx_002"}, session)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	completed := decode[surveyCompletionResponse](t, raw)
	assert.Equal(t, int64(250), completed.PointsEarned)
	assert.Equal(t, int64(250), completed.Balance)
	assert.Equal(t, "Travel Preferences", completed.Title)
	assert.Equal(t, "cpx_research", completed.Provider)
	assert.False(t, completed.Duplicate)

	response, raw = api.do(t, http.MethodPost, "/api/surveys/complete", map[string]any{"survey_id": "cpx_002"}, session)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	repeated := decode[surveyCompletionResponse](t, raw)
	assert.True(t, repeated.Duplicate)
	assert.Equal(t, completed.CompletionID, repeated.CompletionID)
	assert.Equal(t, int64(250), repeated.Balance)

	response, raw = api.do(t, http.MethodPost, "/api/surveys/start", map[string]any{"survey_id": "cpx_002"}, session)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, codeAlreadyCompleted, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, "/api/surveys/complete", map[string]any{"survey_id": "missing"}, session)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Equal(t, codeNotFound, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, "/api/withdrawals", map[string]any{"amount": 250, "method": "paypal", "account_details": "me@example.com"}, session)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, codeBelowMinimum, errorCode(t, raw))

	for _, surveyID := range []string{"inbrain_001", "inbrain_004", "cpx_003", "inbrain_003"} {
		response, raw = api.do(t, http.MethodPost, "/api/surveys/complete", map[string]any{"survey_id": surveyID}, session)
		require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	}

	response, raw = api.do(t, http.MethodGet, "/api/stats", nil, session)
	require.Equal(t, http.StatusOK, response.StatusCode)
	stats := decode[statsResponse](t, raw)
	assert.Equal(t, int64(925), stats.Balance)
	assert.Equal(t, int64(925), stats.TotalEarned)
	assert.Equal(t, int64(5), stats.SurveysCompleted)
	assert.Zero(t, stats.PendingSurveys)
	assert.Len(t, stats.RecentCompletions, 5)
	assert.Equal(t, "inbrain_003", stats.RecentCompletions[0].SurveyID)
	assert.Len(t, stats.RecentCredits, 5)

	response, raw = api.do(t, http.MethodPost, "/api/withdrawals", map[string]any{"amount": 500, "method": "venmo", "account_details": "me"}, session)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, codeInvalidMethod, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, "/api/withdrawals", map[string]any{"amount": 500, "method": "paypal", "account_details": " "}, session)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, codeInvalidDetails, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, "/api/withdrawals", map[string]any{"amount": 500, "method": "PayPal", "account_details": "me@example.com"}, session)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	withdrawal := decode[withdrawalPayload](t, raw)
	assert.Equal(t, "pending", withdrawal.Status)
	assert.Equal(t, "paypal", withdrawal.Method)
	assert.Equal(t, "0.50", withdrawal.AmountUSD)

	response, raw = api.do(t, http.MethodPost, "/api/withdrawals", map[string]any{"amount": 500, "method": "bank", "account_details": "DE00"}, session)
	assert.Equal(t, http.StatusConflict, response.StatusCode)
	assert.Equal(t, codeInsufficientBalance, errorCode(t, raw))

	response, raw = api.do(t, http.MethodGet, "/api/wallet", nil, session)
	require.Equal(t, http.StatusOK, response.StatusCode)
	wallet := decode[walletResponse](t, raw)
	assert.Equal(t, int64(425), wallet.Balance)
	assert.Equal(t, "0.43", wallet.BalanceUSD)
	assert.Equal(t, int64(500), wallet.PendingWithdrawals)
	assert.Equal(t, int64(500), wallet.MinimumWithdrawal)
	assert.Equal(t, int64(1000), wallet.PointsPerDollar)
	require.Len(t, wallet.RecentWithdrawals, 1)
	assert.Equal(t, withdrawal.WithdrawalID, wallet.RecentWithdrawals[0].WithdrawalID)

	response, raw = api.do(t, http.MethodGet, "/api/withdrawals?limit=10", nil, session)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, decode[[]withdrawalPayload](t, raw), 1)

	response, _ = api.do(t, http.MethodGet, "/api/withdrawals?limit=abc", nil, session)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, raw = api.do(t, http.MethodGet, "/api/history", nil, session)
	require.Equal(t, http.StatusOK, response.StatusCode)
	history := decode[[]historyPayload](t, raw)
	require.Len(t, history, 6)
	assert.Equal(t, "withdrawal", history[0].Type)
	require.NotNil(t, history[0].Withdrawal)
	assert.Equal(t, "completion", history[5].Type)
	require.NotNil(t, history[5].Completion)
	assert.Equal(t, "cpx_002", history[5].Completion.SurveyID)

	response, raw = api.do(t, http.MethodGet, "/api/entries?kind=withdrawal_reserve", nil, session)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	entries := decode[[]entryPayload](t, raw)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-500), entries[0].Amount)
	assert.Equal(t, int64(500), entries[0].ReservedDelta)

	response, raw = api.do(t, http.MethodGet, "/api/entries?kind=bogus", nil, session)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, codeInvalidPayload, errorCode(t, raw))

	response, raw = api.do(t, http.MethodGet, "/api/surveys/history", nil, session)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, decode[[]completionPayload](t, raw), 5)

	response, raw = api.do(t, http.MethodGet, "/api/surveys?provider=cpx_research", nil, session)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, decode[[]surveyPayload](t, raw), 3)
}

func TestAdminResolvesWithdrawals(t *testing.T) {
	api := newTestAPI(t)
	member := api.register(t, "member@example.com", "Member")
	admin := api.register(t, "admin@example.com", "Admin")
	_, err := api.handler.users.SetRole(context.Background(), "admin@example.com", users.RoleAdmin)
	require.NoError(t, err)

	for _, surveyID := range []string{"inbrain_005", "cpx_004"} {
		response, raw := api.do(t, http.MethodPost, "/api/surveys/complete", map[string]any{"survey_id": surveyID}, api.session(member.Token))
		require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	}
	response, raw := api.do(t, http.MethodPost, "/api/withdrawals", map[string]any{"amount": 600, "method": "crypto", "account_details": "0xabc"}, api.session(member.Token))
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	withdrawal := decode[withdrawalPayload](t, raw)
	resolvePath := "/api/admin/withdrawals/" + withdrawal.WithdrawalID + "/resolve"

	response, raw = api.do(t, http.MethodPost, resolvePath, map[string]any{"outcome": "completed"}, api.session(member.Token))
	assert.Equal(t, http.StatusForbidden, response.StatusCode)
	assert.Equal(t, codeForbidden, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, resolvePath, map[string]any{"outcome": "pending"}, api.session(admin.Token))
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, codeInvalidOutcome, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, "/api/admin/withdrawals/wd_missing/resolve", map[string]any{"outcome": "rejected"}, api.session(admin.Token))
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Equal(t, codeNotFound, errorCode(t, raw))

	response, raw = api.do(t, http.MethodPost, resolvePath, map[string]any{"outcome": "rejected"}, api.session(admin.Token))
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	resolved := decode[resolveResponse](t, raw)
	assert.True(t, resolved.Changed)
	assert.Equal(t, "rejected", resolved.Withdrawal.Status)
	assert.NotNil(t, resolved.Withdrawal.ResolvedAt)

	response, raw = api.do(t, http.MethodPost, resolvePath, map[string]any{"outcome": "completed"}, api.session(admin.Token))
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	again := decode[resolveResponse](t, raw)
	assert.False(t, again.Changed)
	assert.Equal(t, "rejected", again.Withdrawal.Status)

	response, raw = api.do(t, http.MethodGet, "/api/wallet", nil, api.session(member.Token))
	require.Equal(t, http.StatusOK, response.StatusCode)
	wallet := decode[walletResponse](t, raw)
	assert.Equal(t, int64(750), wallet.Balance)
	assert.Zero(t, wallet.PendingWithdrawals)

	response, raw = api.do(t, http.MethodGet, "/api/admin/audit/"+member.User.UserID, nil, api.session(admin.Token))
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	audit := decode[struct {
		Entries    int  `json:"entries"`
		Consistent bool `json:"consistent"`
	}](t, raw)
	assert.Equal(t, 4, audit.Entries)
	assert.True(t, audit.Consistent)
}

func TestPostbacks(t *testing.T) {
	api := newTestAPI(t)
	member := api.register(t, "panelist@example.com", "Panelist")
	secret := withHeader(headerPostbackSecret, testPostbackSecret)
	inbrainCompletion := map[string]any{
		"PanelistId": member.User.UserID,
		"RewardId":   "rw-100",
		"SurveyId":   "offer-9",
		"Reward":     300,
		"RewardType": "survey_completed",
	}

	response, raw := api.do(t, http.MethodPost, "/api/postbacks/inbrain", inbrainCompletion, withHeader(headerPostbackSecret, "wrong"))
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.Equal(t, codeUnauthorized, errorCode(t, raw))

	response, raw = api.do(t, http.MethodGet, "/api/wallet", nil, api.session(member.Token))
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Zero(t, decode[walletResponse](t, raw).Balance)

	strangerCompletion := map[string]any{
		"PanelistId": "user_doesnotexist",
		"RewardId":   "rw-404",
		"SurveyId":   "offer-9",
		"Reward":     300,
		"RewardType": "survey_completed",
	}
	response, raw = api.do(t, http.MethodPost, "/api/postbacks/inbrain", strangerCompletion, secret)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Equal(t, codeNotFound, errorCode(t, raw))
	response, raw = api.do(t, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	for _, entry := range decode[[]leaderboardPayload](t, raw) {
		assert.NotEqual(t, "user_doesnotexist", entry.UserID)
		assert.Zero(t, entry.TotalEarned)
	}

	response, raw = api.do(t, http.MethodPost, "/api/postbacks/inbrain", inbrainCompletion, secret)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	first := decode[postbackResponse](t, raw)
	assert.Equal(t, "completion", first.Kind)
	assert.False(t, first.Duplicate)
	assert.NotEmpty(t, first.CompletionID)

	response, raw = api.do(t, http.MethodPost, "/api/postbacks/inbrain", inbrainCompletion, secret)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	retried := decode[postbackResponse](t, raw)
	assert.True(t, retried.Duplicate)
	assert.Equal(t, first.CompletionID, retried.CompletionID)

	response, raw = api.do(t, http.MethodPost, "/api/postbacks/inbrain", map[string]any{"PanelistId": member.User.UserID}, secret)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, codeInvalidPayload, errorCode(t, raw))

	response, raw = api.do(t, http.MethodGet, "/api/postbacks/cpx_research?status=1&type=complete&trans_id=tx-1&offer_id=cpx-77&amount_local=200&user_id="+member.User.UserID+"&secret="+testPostbackSecret, nil)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))

	response, raw = api.do(t, http.MethodPost, "/api/withdrawals", map[string]any{"amount": 500, "method": "bank", "account_details": "IBAN"}, api.session(member.Token))
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))

	response, raw = api.do(t, http.MethodGet, "/api/postbacks/cpx_research?status=2&trans_id=tx-1&offer_id=cpx-77&user_id="+member.User.UserID+"&secret="+testPostbackSecret, nil)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	reversal := decode[postbackResponse](t, raw)
	assert.Equal(t, "reversal", reversal.Kind)
	assert.Equal(t, int64(200), reversal.Shortfall)

	response, raw = api.do(t, http.MethodGet, "/api/postbacks/cpx_research?status=2&trans_id=tx-1&offer_id=cpx-77&user_id="+member.User.UserID+"&secret="+testPostbackSecret, nil)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	assert.True(t, decode[postbackResponse](t, raw).Duplicate)

	response, raw = api.do(t, http.MethodGet, "/api/wallet", nil, api.session(member.Token))
	require.Equal(t, http.StatusOK, response.StatusCode)
	wallet := decode[walletResponse](t, raw)
	assert.Zero(t, wallet.Balance)
	assert.Equal(t, int64(500), wallet.PendingWithdrawals)
	assert.Equal(t, int64(200), wallet.Debt)
	assert.Equal(t, int64(500), wallet.TotalEarned)

	response, raw = api.do(t, http.MethodPost, "/api/postbacks/pollfish", map[string]any{}, secret)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Equal(t, codeNotFound, errorCode(t, raw))
}

func TestLeaderboard(t *testing.T) {
	api := newTestAPI(t)
	first := api.register(t, "first@example.com", "First")
	second := api.register(t, "second@example.com", "Second")
	third := api.register(t, "third@example.com", "Third")
	idle := api.register(t, "idle@example.com", "Idle")
	require.NoError(t, api.db.Model(&users.Record{}).Where("user_id = ?", idle.User.UserID).Update("name", "").Error)

	complete := func(token string, surveyID string) {
		response, raw := api.do(t, http.MethodPost, "/api/surveys/complete", map[string]any{"survey_id": surveyID}, api.session(token))
		require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	}
	complete(first.Token, "inbrain_004")
	complete(second.Token, "inbrain_004")
	complete(third.Token, "inbrain_005")

	response, raw := api.do(t, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, response.StatusCode, string(raw))
	rows := decode[[]leaderboardPayload](t, raw)
	require.Len(t, rows, 4)
	assert.Equal(t, "Third", rows[0].Name)
	assert.Equal(t, int64(400), rows[0].TotalEarned)
	assert.Equal(t, "First", rows[1].Name)
	assert.Equal(t, "Second", rows[2].Name)
	assert.Equal(t, []int{1, 2, 3}, []int{rows[0].Rank, rows[1].Rank, rows[2].Rank})
	assert.Equal(t, int64(1), rows[1].SurveysCompleted)
	assert.Equal(t, idle.User.UserID, rows[3].UserID)
	assert.Equal(t, "Anonymous", rows[3].Name)
	assert.Zero(t, rows[3].TotalEarned)
	assert.Zero(t, rows[3].SurveysCompleted)
	assert.Equal(t, 4, rows[3].Rank)

	response, raw = api.do(t, http.MethodGet, "/api/leaderboard?limit=1", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, decode[[]leaderboardPayload](t, raw), 1)
}
