package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamescore-backend/internal/auth"
	"github.com/gamescore-backend/internal/domain"
	"github.com/gamescore-backend/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAuth struct {
	registerFn func(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResult, error)
	loginFn    func(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error)
}

func (s *stubAuth) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResult, error) {
	return s.registerFn(ctx, req)
}

func (s *stubAuth) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	return s.loginFn(ctx, req)
}

type stubScores struct {
	submitFn func(ctx context.Context, identity domain.Identity, sub domain.ScoreSubmission) (*domain.ScoreResult, error)
	bestFn   func(ctx context.Context, userID string, levelID int) (*domain.BestScore, error)
	statsFn  func(ctx context.Context, userID string) (*domain.UserStats, error)
}

func (s *stubScores) Submit(ctx context.Context, identity domain.Identity, sub domain.ScoreSubmission) (*domain.ScoreResult, error) {
	return s.submitFn(ctx, identity, sub)
}

func (s *stubScores) BestScore(ctx context.Context, userID string, levelID int) (*domain.BestScore, error) {
	return s.bestFn(ctx, userID, levelID)
}

func (s *stubScores) UserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	return s.statsFn(ctx, userID)
}

type stubLeaderboard struct {
	fetchFn func(ctx context.Context, q domain.LeaderboardQuery) (*domain.LeaderboardPage, error)
}

func (s *stubLeaderboard) Fetch(ctx context.Context, q domain.LeaderboardQuery) (*domain.LeaderboardPage, error) {
	return s.fetchFn(ctx, q)
}

type stubAnalytics struct {
	recordFn func(ctx context.Context, userID string, req domain.AnalyticsRequest) (*domain.AnalyticsResult, error)
}

func (s *stubAnalytics) Record(ctx context.Context, userID string, req domain.AnalyticsRequest) (*domain.AnalyticsResult, error) {
	return s.recordFn(ctx, userID, req)
}

type testEnv struct {
	handler     *Handler
	router      http.Handler
	tokens      *auth.TokenManager
	auth        *stubAuth
	scores      *stubScores
	leaderboard *stubLeaderboard
	analytics   *stubAnalytics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		tokens:      auth.NewTokenManager("test-secret", time.Hour),
		auth:        &stubAuth{},
		scores:      &stubScores{},
		leaderboard: &stubLeaderboard{},
		analytics:   &stubAnalytics{},
	}
	env.handler = NewHandler(
		env.auth,
		env.scores,
		env.leaderboard,
		env.analytics,
		env.tokens,
		ratelimit.NewMemoryLimiter(15*time.Minute, 100),
		nil,
		testLogger(),
	)
	env.router = env.handler.Router()
	return env
}

func (e *testEnv) bearerFor(t *testing.T, user *domain.User) string {
	t.Helper()
	token, err := e.tokens.Generate(user)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRegisterCreated(t *testing.T) {
	env := newTestEnv(t)
	env.auth.registerFn = func(_ context.Context, req domain.RegisterRequest) (*domain.AuthResult, error) {
		assert.Equal(t, "alice", req.Username)
		return &domain.AuthResult{ID: "u1", Username: "alice", Email: "a@x.com", Token: "tok"}, nil
	}

	rec := env.do("POST", "/auth/register", "", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "password123",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "u1", body["id"])
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "a@x.com", body["email"])
	assert.Equal(t, "tok", body["token"])
}

func TestRegisterConflict(t *testing.T) {
	env := newTestEnv(t)
	env.auth.registerFn = func(context.Context, domain.RegisterRequest) (*domain.AuthResult, error) {
		return nil, domain.ErrUserExists
	}

	rec := env.do("POST", "/auth/register", "", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "password123",
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User already exists", decodeBody(t, rec)["error"])
}

func TestRegisterValidationDetails(t *testing.T) {
	env := newTestEnv(t)
	env.auth.registerFn = func(context.Context, domain.RegisterRequest) (*domain.AuthResult, error) {
		return nil, domain.NewValidationError("username must be alphanumeric, 3-50 characters")
	}

	rec := env.do("POST", "/auth/register", "", map[string]string{"username": "x"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Validation failed", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestRegisterRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	env.auth.registerFn = func(context.Context, domain.RegisterRequest) (*domain.AuthResult, error) {
		t.Fatal("service must not be reached with a malformed body")
		return nil, nil
	}

	req := httptest.NewRequest("POST", "/auth/register", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request", decodeBody(t, rec)["error"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.auth.loginFn = func(context.Context, domain.LoginRequest) (*domain.AuthResult, error) {
		return nil, domain.ErrInvalidCredentials
	}

	rec := env.do("POST", "/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "wrong-password",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decodeBody(t, rec)["error"])
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t)
	// Rebuild with a tight budget
	env.handler = NewHandler(
		env.auth, env.scores, env.leaderboard, env.analytics,
		env.tokens, ratelimit.NewMemoryLimiter(15*time.Minute, 2), nil, testLogger(),
	)
	env.router = env.handler.Router()
	env.auth.loginFn = func(context.Context, domain.LoginRequest) (*domain.AuthResult, error) {
		return nil, domain.ErrInvalidCredentials
	}

	payload := map[string]string{"email": "a@x.com", "password": "wrong-password"}
	for i := 0; i < 2; i++ {
		rec := env.do("POST", "/auth/login", "", payload)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := env.do("POST", "/auth/login", "", payload)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests", decodeBody(t, rec)["error"])
}

func TestSubmitScoreRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	called := false
	env.scores.submitFn = func(context.Context, domain.Identity, domain.ScoreSubmission) (*domain.ScoreResult, error) {
		called = true
		return nil, nil
	}

	rec := env.do("POST", "/score", "", map[string]int{"score": 500})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Unauthorized", body["error"])
	assert.Equal(t, "No token provided", body["message"])

	rec = env.do("POST", "/score", "Bearer not-a-token", map[string]int{"score": 500})
	require.Equal(t, http.StatusForbidden, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "Forbidden", body["error"])
	assert.Equal(t, "Invalid or expired token", body["message"])

	assert.False(t, called, "service must not be reached without a valid token")
}

func TestSubmitScoreCreated(t *testing.T) {
	env := newTestEnv(t)
	user := &domain.User{ID: "u1", Username: "alice", Email: "a@x.com"}
	now := time.Now()

	env.scores.submitFn = func(_ context.Context, identity domain.Identity, sub domain.ScoreSubmission) (*domain.ScoreResult, error) {
		assert.Equal(t, "u1", identity.UserID)
		require.NotNil(t, sub.Score)
		return &domain.ScoreResult{
			ID: "s1", UserID: identity.UserID, Score: *sub.Score, LevelID: 1, Rank: 1, CreatedAt: now,
		}, nil
	}

	rec := env.do("POST", "/score", env.bearerFor(t, user), map[string]int{"score": 500})

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "u1", body["userId"])
	assert.Equal(t, float64(500), body["score"])
	assert.Equal(t, float64(1), body["rank"])
}

func TestSubmitScoreValidationError(t *testing.T) {
	env := newTestEnv(t)
	user := &domain.User{ID: "u1", Username: "alice"}
	env.scores.submitFn = func(context.Context, domain.Identity, domain.ScoreSubmission) (*domain.ScoreResult, error) {
		return nil, domain.NewValidationError("score must be between 0 and 999999")
	}

	rec := env.do("POST", "/score", env.bearerFor(t, user), map[string]int{"score": 1000000})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBestScoreNotFound(t *testing.T) {
	env := newTestEnv(t)
	user := &domain.User{ID: "u1", Username: "alice"}
	env.scores.bestFn = func(_ context.Context, userID string, levelID int) (*domain.BestScore, error) {
		assert.Equal(t, "u1", userID)
		assert.Equal(t, 2, levelID)
		return nil, domain.ErrNoScore
	}

	rec := env.do("GET", "/score/best?levelId=2", env.bearerFor(t, user), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No score found", decodeBody(t, rec)["error"])
}

func TestUserStatsForbiddenForOtherUser(t *testing.T) {
	env := newTestEnv(t)
	user := &domain.User{ID: "u1", Username: "alice"}
	env.scores.statsFn = func(context.Context, string) (*domain.UserStats, error) {
		t.Fatal("stats must not be fetched for another user")
		return nil, nil
	}

	rec := env.do("GET", "/stats/user/u2", env.bearerFor(t, user), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLeaderboardParsesQuery(t *testing.T) {
	env := newTestEnv(t)
	env.leaderboard.fetchFn = func(_ context.Context, q domain.LeaderboardQuery) (*domain.LeaderboardPage, error) {
		assert.Equal(t, 10, q.Limit)
		assert.Equal(t, 20, q.Offset)
		require.NotNil(t, q.LevelID)
		assert.Equal(t, 3, *q.LevelID)
		return &domain.LeaderboardPage{
			Leaderboard: []domain.LeaderboardEntry{
				{Rank: 21, Username: "bob", Score: 700, LevelID: 3},
				{Rank: 22, Username: "alice", Score: 500, LevelID: 3},
			},
			Total:  42,
			Limit:  q.Limit,
			Offset: q.Offset,
		}, nil
	}

	rec := env.do("GET", "/leaderboard?limit=10&offset=20&levelId=3", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(42), body["total"])
	entries := body["leaderboard"].([]interface{})
	require.Len(t, entries, 2)
	first := entries[0].(map[string]interface{})
	assert.Equal(t, float64(21), first["rank"])
	assert.Equal(t, "bob", first["username"])
}

func TestLeaderboardRejectsMalformedQuery(t *testing.T) {
	env := newTestEnv(t)
	env.leaderboard.fetchFn = func(context.Context, domain.LeaderboardQuery) (*domain.LeaderboardPage, error) {
		t.Fatal("service must not be reached with a malformed query")
		return nil, nil
	}

	rec := env.do("GET", "/leaderboard?limit=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordEventCreated(t *testing.T) {
	env := newTestEnv(t)
	user := &domain.User{ID: "u1", Username: "alice"}
	now := time.Now()
	env.analytics.recordFn = func(_ context.Context, userID string, req domain.AnalyticsRequest) (*domain.AnalyticsResult, error) {
		assert.Equal(t, "u1", userID)
		assert.Equal(t, "level_complete", req.EventType)
		return &domain.AnalyticsResult{ID: "e1", EventType: req.EventType, CreatedAt: now}, nil
	}

	rec := env.do("POST", "/analytics", env.bearerFor(t, user), map[string]interface{}{
		"eventType": "level_complete",
		"metadata":  map[string]interface{}{"levelId": 1},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "e1", body["id"])
	assert.Equal(t, "level_complete", body["eventType"])
}

func TestRecordEventRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	env.analytics.recordFn = func(context.Context, string, domain.AnalyticsRequest) (*domain.AnalyticsResult, error) {
		t.Fatal("service must not be reached without a token")
		return nil, nil
	}

	rec := env.do("POST", "/analytics", "", map[string]string{"eventType": "level_complete"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceUnavailableIsOpaque(t *testing.T) {
	env := newTestEnv(t)
	env.leaderboard.fetchFn = func(context.Context, domain.LeaderboardQuery) (*domain.LeaderboardPage, error) {
		return nil, domain.ErrUnavailable
	}

	rec := env.do("GET", "/leaderboard", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Service unavailable", body["error"])
	assert.NotContains(t, rec.Body.String(), "sql")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do("GET", "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
