package service

import (
	"context"
	"log/slog"

	"github.com/gamescore-backend/internal/domain"
	"github.com/gamescore-backend/internal/postgres"
	"github.com/gamescore-backend/internal/websocket"
)

// ScoreService persists validated score submissions and derives ranks
type ScoreService struct {
	repo   *postgres.Repository
	hub    *websocket.Hub
	logger *slog.Logger
}

// NewScoreService creates a new score service
func NewScoreService(repo *postgres.Repository, logger *slog.Logger) *ScoreService {
	return &ScoreService{
		repo:   repo,
		logger: logger,
	}
}

// SetHub sets the WebSocket hub for broadcasting accepted submissions
func (s *ScoreService) SetHub(hub *websocket.Hub) {
	s.hub = hub
}

// Submit persists an immutable score row and computes its rank against
// the table state after insertion. Insert and rank count are separate
// statements: a submission landing between them can make the reported
// rank stale by response time. Rank is advisory, not a real-time
// guarantee.
func (s *ScoreService) Submit(ctx context.Context, identity domain.Identity, sub domain.ScoreSubmission) (*domain.ScoreResult, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	row, err := s.repo.InsertScore(ctx, identity.UserID, &sub)
	if err != nil {
		return nil, err
	}

	rank, err := s.repo.ScoreRank(ctx, row.Score, row.LevelID)
	if err != nil {
		return nil, err
	}

	result := &domain.ScoreResult{
		ID:        row.ID,
		UserID:    row.UserID,
		Score:     row.Score,
		LevelID:   row.LevelID,
		Rank:      rank,
		CreatedAt: row.CreatedAt,
	}

	if s.hub != nil {
		s.hub.BroadcastScoreUpdate(websocket.ScoreUpdate{
			Username:  identity.Username,
			Score:     result.Score,
			LevelID:   result.LevelID,
			Rank:      result.Rank,
			CreatedAt: result.CreatedAt,
		})
	}

	return result, nil
}

// BestScore returns the caller's highest-scoring row for a level, ranked
// the same way submissions are.
func (s *ScoreService) BestScore(ctx context.Context, userID string, levelID int) (*domain.BestScore, error) {
	if levelID == 0 {
		levelID = 1
	}
	if levelID < 1 {
		return nil, domain.NewValidationError("levelId must be a positive integer")
	}

	row, err := s.repo.BestScore(ctx, userID, levelID)
	if err != nil {
		return nil, err
	}

	rank, err := s.repo.ScoreRank(ctx, row.Score, row.LevelID)
	if err != nil {
		return nil, err
	}

	return &domain.BestScore{
		Score:     row.Score,
		LevelID:   row.LevelID,
		Rank:      rank,
		CreatedAt: row.CreatedAt,
	}, nil
}

// UserStats aggregates the caller's full score history
func (s *ScoreService) UserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	return s.repo.UserStats(ctx, userID)
}
