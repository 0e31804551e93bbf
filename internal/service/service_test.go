package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamescore-backend/internal/auth"
	"github.com/gamescore-backend/internal/config"
	"github.com/gamescore-backend/internal/domain"
)

// Validation happens before any repository call, so a nil repository is
// safe for these paths.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuthServiceRejectsInvalidRegistration(t *testing.T) {
	svc := NewAuthService(nil, auth.NewTokenManager("secret", time.Hour), &config.AuthConfig{}, testLogger())

	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		Username: "x",
		Email:    "not-an-email",
		Password: "short",
	})

	require.Error(t, err)
	ve, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Details, 3)
}

func TestAuthServiceRejectsInvalidLogin(t *testing.T) {
	svc := NewAuthService(nil, auth.NewTokenManager("secret", time.Hour), &config.AuthConfig{}, testLogger())

	_, err := svc.Login(context.Background(), domain.LoginRequest{Email: "a@x.com"})

	require.Error(t, err)
	_, ok := domain.AsValidationError(err)
	assert.True(t, ok)
}

func TestScoreServiceRejectsInvalidSubmission(t *testing.T) {
	svc := NewScoreService(nil, testLogger())
	identity := domain.Identity{UserID: "u1", Username: "alice"}

	_, err := svc.Submit(context.Background(), identity, domain.ScoreSubmission{})
	require.Error(t, err)
	_, ok := domain.AsValidationError(err)
	assert.True(t, ok)

	over := domain.MaxScore + 1
	_, err = svc.Submit(context.Background(), identity, domain.ScoreSubmission{Score: &over})
	require.Error(t, err)
}

func TestScoreServiceRejectsNegativeLevel(t *testing.T) {
	svc := NewScoreService(nil, testLogger())

	_, err := svc.BestScore(context.Background(), "u1", -3)

	require.Error(t, err)
	_, ok := domain.AsValidationError(err)
	assert.True(t, ok)
}

func TestLeaderboardServiceRejectsBadQuery(t *testing.T) {
	svc := NewLeaderboardService(nil, &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100}, testLogger())

	badLevel := 0
	cases := []domain.LeaderboardQuery{
		{Limit: -1},
		{Offset: -5},
		{LevelID: &badLevel},
	}
	for _, q := range cases {
		_, err := svc.Fetch(context.Background(), q)
		require.Error(t, err)
		_, ok := domain.AsValidationError(err)
		assert.True(t, ok)
	}
}

func TestAnalyticsServiceRejectsInvalidEvent(t *testing.T) {
	svc := NewAnalyticsService(nil, testLogger())

	_, err := svc.Record(context.Background(), "u1", domain.AnalyticsRequest{})
	require.Error(t, err)
	_, ok := domain.AsValidationError(err)
	assert.True(t, ok)
}

func TestAnalyticsServiceSkipsEmptyBatch(t *testing.T) {
	svc := NewAnalyticsService(nil, testLogger())

	// All events lack a user or a type, so nothing reaches the store.
	err := svc.RecordBatch(context.Background(), []domain.AnalyticsEvent{
		{EventType: "level_start"},
		{UserID: "u1"},
	})

	assert.NoError(t, err)
}
