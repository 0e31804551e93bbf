package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestRegisterRequestValidate(t *testing.T) {
	valid := RegisterRequest{Username: "alice", Email: "a@x.com", Password: "password123"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"short username", RegisterRequest{Username: "al", Email: "a@x.com", Password: "password123"}},
		{"non-alphanumeric username", RegisterRequest{Username: "al ice!", Email: "a@x.com", Password: "password123"}},
		{"missing email", RegisterRequest{Username: "alice", Password: "password123"}},
		{"malformed email", RegisterRequest{Username: "alice", Email: "not-an-email", Password: "password123"}},
		{"short password", RegisterRequest{Username: "alice", Email: "a@x.com", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			ve, ok := AsValidationError(err)
			require.True(t, ok)
			assert.NotEmpty(t, ve.Details)
		})
	}
}

func TestRegisterRequestValidateCollectsAllDetails(t *testing.T) {
	req := RegisterRequest{Username: "x", Email: "bad", Password: "short"}
	err := req.Validate()
	require.Error(t, err)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Details, 3)
}

func TestLoginRequestValidate(t *testing.T) {
	valid := LoginRequest{Email: "a@x.com", Password: "password123"}
	require.NoError(t, valid.Validate())

	require.Error(t, (&LoginRequest{Email: "a@x.com"}).Validate())
	require.Error(t, (&LoginRequest{Email: "nope", Password: "password123"}).Validate())
}

func TestScoreSubmissionValidate(t *testing.T) {
	sub := ScoreSubmission{Score: intPtr(500)}
	require.NoError(t, sub.Validate())
	assert.Equal(t, 1, sub.LevelID, "levelId defaults to 1")

	sub = ScoreSubmission{Score: intPtr(0), LevelID: 3}
	require.NoError(t, sub.Validate())
	assert.Equal(t, 3, sub.LevelID)

	require.NoError(t, (&ScoreSubmission{Score: intPtr(MaxScore)}).Validate())
}

func TestScoreSubmissionValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		sub  ScoreSubmission
	}{
		{"missing score", ScoreSubmission{}},
		{"negative score", ScoreSubmission{Score: intPtr(-1)}},
		{"score above cap", ScoreSubmission{Score: intPtr(MaxScore + 1)}},
		{"negative level", ScoreSubmission{Score: intPtr(10), LevelID: -2}},
		{"negative time", ScoreSubmission{Score: intPtr(10), TimeElapsed: floatPtr(-0.5)}},
		{"negative kills", ScoreSubmission{Score: intPtr(10), EnemiesKilled: intPtr(-1)}},
		{"negative deaths", ScoreSubmission{Score: intPtr(10), Deaths: intPtr(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			require.Error(t, err)
			_, ok := AsValidationError(err)
			assert.True(t, ok)
		})
	}
}

func TestAnalyticsRequestValidate(t *testing.T) {
	require.NoError(t, (&AnalyticsRequest{EventType: "level_complete"}).Validate())
	require.Error(t, (&AnalyticsRequest{}).Validate())

	long := make([]byte, 51)
	for i := range long {
		long[i] = 'a'
	}
	require.Error(t, (&AnalyticsRequest{EventType: string(long)}).Validate())
}
