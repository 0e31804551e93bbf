package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gamescore-backend/internal/config"
	"github.com/gamescore-backend/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits
const uniqueViolation = "23505"

// Repository provides PostgreSQL-based data access. Every call runs under
// a query timeout; timeouts surface as domain.ErrUnavailable so requests
// fail instead of hanging.
type Repository struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:         pool,
		queryTimeout: cfg.QueryTimeout,
		logger:       logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// opCtx bounds a database call with the configured query timeout
func (r *Repository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

// wrapErr wraps a database error, converting timeouts into
// domain.ErrUnavailable.
func (r *Repository) wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domain.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			score INTEGER NOT NULL,
			level_id INTEGER NOT NULL DEFAULT 1,
			time_elapsed DOUBLE PRECISION,
			enemies_killed INTEGER,
			deaths INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS analytics (
			id UUID PRIMARY KEY,
			user_id UUID REFERENCES users(id) ON DELETE SET NULL,
			event_type VARCHAR(50) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_score ON scores(score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_user_id ON scores(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_level_id ON scores(level_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_user_id ON analytics(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_event_type ON analytics(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_created_at ON analytics(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateUser inserts a new user. Duplicate username or email returns
// domain.ErrUserExists.
func (r *Repository) CreateUser(ctx context.Context, username, email, passwordHash string) (*domain.User, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrUserExists
		}
		return nil, r.wrapErr("creating user", err)
	}
	return user, nil
}

// UserExists reports whether a user with the given email or username
// already exists.
func (r *Repository) UserExists(ctx context.Context, email, username string) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 OR username = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, email, username).Scan(&exists); err != nil {
		return false, r.wrapErr("checking user existence", err)
	}
	return exists, nil
}

// GetUserByEmail retrieves a user including the password hash. A missing
// user returns domain.ErrInvalidCredentials so login cannot distinguish
// unknown emails from bad passwords.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	var user domain.User
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, r.wrapErr("getting user by email", err)
	}
	return &user, nil
}

// GetUsername returns the username for a user id
func (r *Repository) GetUsername(ctx context.Context, userID string) (string, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var username string
	err := r.pool.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, userID).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNoScore
		}
		return "", r.wrapErr("getting username", err)
	}
	return username, nil
}

// InsertScore persists one immutable score row
func (r *Repository) InsertScore(ctx context.Context, userID string, sub *domain.ScoreSubmission) (*domain.Score, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	row := &domain.Score{
		ID:            uuid.New().String(),
		UserID:        userID,
		Score:         *sub.Score,
		LevelID:       sub.LevelID,
		TimeElapsed:   sub.TimeElapsed,
		EnemiesKilled: sub.EnemiesKilled,
		Deaths:        sub.Deaths,
		CreatedAt:     time.Now(),
	}

	query := `
		INSERT INTO scores (id, user_id, score, level_id, time_elapsed, enemies_killed, deaths, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		row.ID,
		row.UserID,
		row.Score,
		row.LevelID,
		row.TimeElapsed,
		row.EnemiesKilled,
		row.Deaths,
		row.CreatedAt,
	)
	if err != nil {
		return nil, r.wrapErr("inserting score", err)
	}
	return row, nil
}

// ScoreRank computes the rank of a score within a level: one plus the
// number of strictly greater scores. The ranked row itself never matches
// the strict comparison, so it is excluded by construction.
func (r *Repository) ScoreRank(ctx context.Context, score, levelID int) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := `SELECT COUNT(*) + 1 FROM scores WHERE score > $1 AND level_id = $2`
	var rank int64
	if err := r.pool.QueryRow(ctx, query, score, levelID).Scan(&rank); err != nil {
		return 0, r.wrapErr("computing rank", err)
	}
	return rank, nil
}

// BestScore returns the user's highest-scoring row for a level, or
// domain.ErrNoScore when none exists.
func (r *Repository) BestScore(ctx context.Context, userID string, levelID int) (*domain.Score, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := `
		SELECT id, user_id, score, level_id, time_elapsed, enemies_killed, deaths, created_at
		FROM scores
		WHERE user_id = $1 AND level_id = $2
		ORDER BY score DESC
		LIMIT 1
	`
	var row domain.Score
	err := r.pool.QueryRow(ctx, query, userID, levelID).Scan(
		&row.ID,
		&row.UserID,
		&row.Score,
		&row.LevelID,
		&row.TimeElapsed,
		&row.EnemiesKilled,
		&row.Deaths,
		&row.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoScore
		}
		return nil, r.wrapErr("getting best score", err)
	}
	return &row, nil
}

// leaderboardOrder sequences equal scores oldest first, with the row id
// as the final unique tie-breaker. The window and the page must use the
// same ordering or ranks drift within a page.
const leaderboardOrder = "s.score DESC, s.created_at, s.id"

var (
	leaderboardPageByLevel = fmt.Sprintf(`
		SELECT ROW_NUMBER() OVER (ORDER BY %s) AS rank,
		       u.username, s.score, s.level_id, s.created_at
		FROM scores s
		JOIN users u ON s.user_id = u.id
		WHERE s.level_id = $1
		ORDER BY %s
		LIMIT $2 OFFSET $3
	`, leaderboardOrder, leaderboardOrder)

	leaderboardPageAll = fmt.Sprintf(`
		SELECT ROW_NUMBER() OVER (ORDER BY %s) AS rank,
		       u.username, s.score, s.level_id, s.created_at
		FROM scores s
		JOIN users u ON s.user_id = u.id
		ORDER BY %s
		LIMIT $1 OFFSET $2
	`, leaderboardOrder, leaderboardOrder)
)

// LeaderboardEntries retrieves a page of the score-descending order. The
// window function runs over the full qualifying set, so ranks are
// absolute positions, not positions within the page.
func (r *Repository) LeaderboardEntries(ctx context.Context, levelID *int, limit, offset int) ([]domain.LeaderboardEntry, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var query string
	var args []interface{}
	if levelID != nil {
		query = leaderboardPageByLevel
		args = []interface{}{*levelID, limit, offset}
	} else {
		query = leaderboardPageAll
		args = []interface{}{limit, offset}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, r.wrapErr("getting leaderboard entries", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		err := rows.Scan(&entry.Rank, &entry.Username, &entry.Score, &entry.LevelID, &entry.CreatedAt)
		if err != nil {
			return nil, r.wrapErr("scanning leaderboard entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrapErr("reading leaderboard entries", err)
	}
	return entries, nil
}

// CountScores counts all qualifying score rows, optionally filtered by
// level.
func (r *Repository) CountScores(ctx context.Context, levelID *int) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var count int64
	var err error
	if levelID != nil {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scores WHERE level_id = $1`, *levelID).Scan(&count)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scores`).Scan(&count)
	}
	if err != nil {
		return 0, r.wrapErr("counting scores", err)
	}
	return count, nil
}

// UserStats aggregates a user's full score history
func (r *Repository) UserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	stats := &domain.UserStats{UserID: userID}

	username, err := r.GetUsername(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats.Username = username

	query := `
		SELECT COUNT(id),
		       COALESCE(SUM(score), 0),
		       COALESCE(AVG(score), 0)::float8,
		       COALESCE(MAX(score), 0),
		       COALESCE(SUM(enemies_killed), 0),
		       COALESCE(SUM(deaths), 0),
		       COALESCE(SUM(time_elapsed), 0)
		FROM scores
		WHERE user_id = $1
	`
	var avg float64
	err = r.pool.QueryRow(ctx, query, userID).Scan(
		&stats.GamesPlayed,
		&stats.TotalScore,
		&avg,
		&stats.BestScore,
		&stats.TotalEnemiesKilled,
		&stats.TotalDeaths,
		&stats.PlayTime,
	)
	if err != nil {
		return nil, r.wrapErr("aggregating user stats", err)
	}
	stats.AverageScore = int64(avg + 0.5)

	// Most-played level, absent until the user has submitted a score
	var favorite int
	err = r.pool.QueryRow(ctx, `
		SELECT level_id
		FROM scores
		WHERE user_id = $1
		GROUP BY level_id
		ORDER BY COUNT(*) DESC
		LIMIT 1
	`, userID).Scan(&favorite)
	if err == nil {
		stats.FavoriteLevel = &favorite
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, r.wrapErr("finding favorite level", err)
	}

	return stats, nil
}

// InsertEvent records one analytics event
func (r *Repository) InsertEvent(ctx context.Context, userID, eventType string, metadata map[string]interface{}) (*domain.AnalyticsResult, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	result := &domain.AnalyticsResult{
		ID:        uuid.New().String(),
		EventType: eventType,
		CreatedAt: time.Now(),
	}

	query := `
		INSERT INTO analytics (id, user_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.pool.Exec(ctx, query, result.ID, userID, eventType, metadataJSON, result.CreatedAt)
	if err != nil {
		return nil, r.wrapErr("inserting analytics event", err)
	}
	return result, nil
}

// InsertEventBatch records multiple analytics events in one round trip.
// Events whose user id is malformed or not registered are stored with a
// NULL user reference; one bad id must not fail the batch.
func (r *Repository) InsertEventBatch(ctx context.Context, events []domain.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	known, err := r.knownUserIDs(ctx, events)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO analytics (id, user_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, event := range events {
		metadataJSON, err := marshalMetadata(event.Metadata)
		if err != nil {
			return err
		}
		createdAt := event.Timestamp
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		batch.Queue(query, uuid.New().String(), nullableUserID(event.UserID, known), event.EventType, metadataJSON, createdAt)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return r.wrapErr("batch inserting analytics events", err)
		}
	}
	return nil
}

// knownUserIDs reports which of the events' user ids exist in users.
// Malformed ids are skipped and end up NULL like unknown ones.
func (r *Repository) knownUserIDs(ctx context.Context, events []domain.AnalyticsEvent) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(events))
	ids := make([]string, 0, len(events))
	for _, event := range events {
		if _, ok := seen[event.UserID]; ok {
			continue
		}
		seen[event.UserID] = struct{}{}
		if _, err := uuid.Parse(event.UserID); err == nil {
			ids = append(ids, event.UserID)
		}
	}

	known := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return known, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, r.wrapErr("resolving event users", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, r.wrapErr("scanning event user", err)
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrapErr("resolving event users", err)
	}
	return known, nil
}

// nullableUserID keeps the user reference only when the user exists, so
// the analytics foreign key never rejects an event.
func nullableUserID(id string, known map[string]struct{}) interface{} {
	if _, ok := known[id]; ok {
		return id
	}
	return nil
}

// DeleteEventsBefore removes up to limit analytics events older than the
// cutoff, returning the number of rows deleted.
func (r *Repository) DeleteEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := `
		DELETE FROM analytics
		WHERE id IN (
			SELECT id FROM analytics WHERE created_at < $1 LIMIT $2
		)
	`
	result, err := r.pool.Exec(ctx, query, cutoff, limit)
	if err != nil {
		return 0, r.wrapErr("deleting old analytics events", err)
	}
	return result.RowsAffected(), nil
}

func marshalMetadata(metadata map[string]interface{}) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return data, nil
}
