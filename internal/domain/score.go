package domain

import (
	"fmt"
	"time"
)

// Score value bounds accepted on submission
const (
	MinScore = 0
	MaxScore = 999999
)

// Score is one immutable submission row. A user may have any number of
// rows per level; best score and rank are derived, never stored.
type Score struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Score         int       `json:"score"`
	LevelID       int       `json:"levelId"`
	TimeElapsed   *float64  `json:"timeElapsed,omitempty"`
	EnemiesKilled *int      `json:"enemiesKilled,omitempty"`
	Deaths        *int      `json:"deaths,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ScoreSubmission is the payload for POST /score
type ScoreSubmission struct {
	Score         *int     `json:"score"`
	LevelID       int      `json:"levelId"`
	TimeElapsed   *float64 `json:"timeElapsed"`
	EnemiesKilled *int     `json:"enemiesKilled"`
	Deaths        *int     `json:"deaths"`
}

// Validate checks bounds and applies the level default
func (s *ScoreSubmission) Validate() error {
	var details []string
	if s.Score == nil {
		details = append(details, "score is required")
	} else if *s.Score < MinScore || *s.Score > MaxScore {
		details = append(details, fmt.Sprintf("score must be between %d and %d", MinScore, MaxScore))
	}
	if s.LevelID == 0 {
		s.LevelID = 1
	}
	if s.LevelID < 1 {
		details = append(details, "levelId must be a positive integer")
	}
	if s.TimeElapsed != nil && *s.TimeElapsed < 0 {
		details = append(details, "timeElapsed must be non-negative")
	}
	if s.EnemiesKilled != nil && *s.EnemiesKilled < 0 {
		details = append(details, "enemiesKilled must be non-negative")
	}
	if s.Deaths != nil && *s.Deaths < 0 {
		details = append(details, "deaths must be non-negative")
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// ScoreResult is returned by POST /score. Rank counts strictly greater
// scores on the same level, so equal scores share a rank.
type ScoreResult struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Score     int       `json:"score"`
	LevelID   int       `json:"levelId"`
	Rank      int64     `json:"rank"`
	CreatedAt time.Time `json:"createdAt"`
}

// BestScore is returned by GET /score/best
type BestScore struct {
	Score     int       `json:"score"`
	LevelID   int       `json:"levelId"`
	Rank      int64     `json:"rank"`
	CreatedAt time.Time `json:"createdAt"`
}

// LeaderboardQuery holds the parsed GET /leaderboard parameters. LevelID
// is nil when no level filter was supplied.
type LeaderboardQuery struct {
	Limit   int
	Offset  int
	LevelID *int
}

// LeaderboardEntry is one row of the public leaderboard. Rank here is the
// absolute 1-based position in the full score-descending order, which
// gives equal scores distinct, order-dependent ranks.
type LeaderboardEntry struct {
	Rank      int64     `json:"rank"`
	Username  string    `json:"username"`
	Score     int       `json:"score"`
	LevelID   int       `json:"levelId"`
	CreatedAt time.Time `json:"createdAt"`
}

// LeaderboardPage is returned by GET /leaderboard
type LeaderboardPage struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Total       int64              `json:"total"`
	Limit       int                `json:"limit"`
	Offset      int                `json:"offset"`
}

// UserStats aggregates a user's full score history
type UserStats struct {
	UserID             string  `json:"userId"`
	Username           string  `json:"username"`
	TotalScore         int64   `json:"totalScore"`
	GamesPlayed        int64   `json:"gamesPlayed"`
	AverageScore       int64   `json:"averageScore"`
	BestScore          int64   `json:"bestScore"`
	TotalEnemiesKilled int64   `json:"totalEnemiesKilled"`
	TotalDeaths        int64   `json:"totalDeaths"`
	FavoriteLevel      *int    `json:"favoriteLevel"`
	PlayTime           float64 `json:"playTime"`
}
