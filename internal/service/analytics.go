package service

import (
	"context"
	"log/slog"

	"github.com/gamescore-backend/internal/domain"
	"github.com/gamescore-backend/internal/postgres"
)

// AnalyticsService records gameplay events into the write-only sink
type AnalyticsService struct {
	repo   *postgres.Repository
	logger *slog.Logger
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(repo *postgres.Repository, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{
		repo:   repo,
		logger: logger,
	}
}

// Record stores one event for an authenticated user
func (s *AnalyticsService) Record(ctx context.Context, userID string, req domain.AnalyticsRequest) (*domain.AnalyticsResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.InsertEvent(ctx, userID, req.EventType, req.Metadata)
}

// RecordBatch stores a batch of ingested events. Events without a user
// or type are skipped; the pipeline already logged them.
func (s *AnalyticsService) RecordBatch(ctx context.Context, events []domain.AnalyticsEvent) error {
	valid := events[:0]
	for _, event := range events {
		if event.UserID == "" || event.EventType == "" {
			continue
		}
		valid = append(valid, event)
	}
	if len(valid) == 0 {
		return nil
	}
	return s.repo.InsertEventBatch(ctx, valid)
}
