package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gamescore-backend/internal/auth"
	"github.com/gamescore-backend/internal/config"
	"github.com/gamescore-backend/internal/domain"
	"github.com/gamescore-backend/internal/postgres"
)

// AuthService registers and authenticates users and issues bearer tokens
type AuthService struct {
	repo   *postgres.Repository
	tokens *auth.TokenManager
	cfg    *config.AuthConfig
	logger *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	repo *postgres.Repository,
	tokens *auth.TokenManager,
	cfg *config.AuthConfig,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		repo:   repo,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
	}
}

// Register creates a new user and issues a token. Duplicate username or
// email fails with domain.ErrUserExists.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.repo.UserExists(ctx, req.Email, req.Username)
	if err != nil {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}
	if exists {
		return nil, domain.ErrUserExists
	}

	hash, err := auth.HashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	// The existence pre-check races with concurrent registrations; the
	// unique constraints settle it and surface as ErrUserExists here.
	user, err := s.repo.CreateUser(ctx, req.Username, req.Email, hash)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)

	return &domain.AuthResult{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Token:    token,
	}, nil
}

// Login verifies credentials and issues a fresh token. Unknown emails and
// wrong passwords return the same domain.ErrInvalidCredentials so callers
// cannot enumerate users.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	return &domain.AuthResult{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Token:    token,
	}, nil
}
