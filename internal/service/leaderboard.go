package service

import (
	"context"
	"log/slog"

	"github.com/gamescore-backend/internal/config"
	"github.com/gamescore-backend/internal/domain"
	"github.com/gamescore-backend/internal/postgres"
)

// LeaderboardService serves the public paginated ranking
type LeaderboardService struct {
	repo   *postgres.Repository
	cfg    *config.LeaderboardConfig
	logger *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(repo *postgres.Repository, cfg *config.LeaderboardConfig, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch returns one page of the score-descending order. Ranks are
// absolute positions within the full qualifying set, so the first entry
// of a page with offset O carries rank O+1. Total counts all qualifying
// rows regardless of pagination.
func (s *LeaderboardService) Fetch(ctx context.Context, q domain.LeaderboardQuery) (*domain.LeaderboardPage, error) {
	var details []string
	if q.Limit < 0 {
		details = append(details, "limit must be non-negative")
	}
	if q.Offset < 0 {
		details = append(details, "offset must be non-negative")
	}
	if q.LevelID != nil && *q.LevelID < 1 {
		details = append(details, "levelId must be a positive integer")
	}
	if len(details) > 0 {
		return nil, &domain.ValidationError{Details: details}
	}

	if q.Limit == 0 {
		q.Limit = s.cfg.DefaultLimit
	}
	if q.Limit > s.cfg.MaxLimit {
		q.Limit = s.cfg.MaxLimit
	}

	entries, err := s.repo.LeaderboardEntries(ctx, q.LevelID, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountScores(ctx, q.LevelID)
	if err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	return &domain.LeaderboardPage{
		Leaderboard: entries,
		Total:       total,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}, nil
}
