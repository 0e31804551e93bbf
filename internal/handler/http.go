package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gamescore-backend/internal/auth"
	"github.com/gamescore-backend/internal/domain"
	"github.com/gamescore-backend/internal/ratelimit"
	"github.com/gamescore-backend/internal/websocket"
)

// AuthService issues and verifies identities
type AuthService interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResult, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error)
}

// ScoreService persists submissions and derives ranks
type ScoreService interface {
	Submit(ctx context.Context, identity domain.Identity, sub domain.ScoreSubmission) (*domain.ScoreResult, error)
	BestScore(ctx context.Context, userID string, levelID int) (*domain.BestScore, error)
	UserStats(ctx context.Context, userID string) (*domain.UserStats, error)
}

// LeaderboardService serves ranked pages
type LeaderboardService interface {
	Fetch(ctx context.Context, q domain.LeaderboardQuery) (*domain.LeaderboardPage, error)
}

// AnalyticsService records gameplay events
type AnalyticsService interface {
	Record(ctx context.Context, userID string, req domain.AnalyticsRequest) (*domain.AnalyticsResult, error)
}

// Handler provides the HTTP API
type Handler struct {
	auth        AuthService
	scores      ScoreService
	leaderboard LeaderboardService
	analytics   AnalyticsService
	tokens      *auth.TokenManager
	limiter     ratelimit.Limiter
	hub         *websocket.Hub
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler. hub may be nil to disable the
// WebSocket feed.
func NewHandler(
	authService AuthService,
	scores ScoreService,
	leaderboard LeaderboardService,
	analytics AnalyticsService,
	tokens *auth.TokenManager,
	limiter ratelimit.Limiter,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		auth:        authService,
		scores:      scores,
		leaderboard: leaderboard,
		analytics:   analytics,
		tokens:      tokens,
		limiter:     limiter,
		hub:         hub,
		logger:      logger,
	}
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

type ctxKey int

const identityKey ctxKey = 0

// identityFromContext returns the authenticated caller set by the
// authenticate middleware.
func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket score feed
	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
	}

	// Throttled auth endpoints
	r.Group(func(r chi.Router) {
		r.Use(h.throttle)
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
	})

	// Public leaderboard
	r.Get("/leaderboard", h.Leaderboard)

	// Authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/score", h.SubmitScore)
		r.Get("/score/best", h.BestScore)
		r.Get("/stats/user/{userID}", h.UserStats)
		r.Post("/analytics", h.RecordEvent)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the bearer token to an identity. Missing tokens
// are 401, malformed or expired ones 403.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			h.writeServiceError(w, domain.ErrMissingToken)
			return
		}

		identity, err := h.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			h.writeServiceError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, *identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// throttle enforces the per-client auth budget. Limiter failures fail
// open: a broken limiter must not lock everyone out.
func (h *Handler) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		allowed, retryAfter, err := h.limiter.Allow(r.Context(), key)
		if err != nil {
			h.logger.Warn("rate limiter unavailable, allowing request", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			h.writeServiceError(w, domain.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey extracts the client address for rate limiting. RealIP has
// already rewritten RemoteAddr from forwarding headers when present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a service error to its HTTP response. Internal
// detail never reaches the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if ve, ok := domain.AsValidationError(err); ok {
		h.writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "Validation failed",
			Details: ve.Details,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeJSON(w, http.StatusBadRequest, errorBody{
			Error: "Invalid request",
		})
	case errors.Is(err, domain.ErrMissingToken):
		h.writeJSON(w, http.StatusUnauthorized, errorBody{
			Error:   "Unauthorized",
			Message: "No token provided",
		})
	case errors.Is(err, domain.ErrInvalidToken):
		h.writeJSON(w, http.StatusForbidden, errorBody{
			Error:   "Forbidden",
			Message: "Invalid or expired token",
		})
	case errors.Is(err, domain.ErrRateLimited):
		h.writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:   "Too many requests",
			Message: "Too many authentication attempts, please try again later.",
		})
	case errors.Is(err, domain.ErrUserExists):
		h.writeJSON(w, http.StatusConflict, errorBody{
			Error:   "User already exists",
			Message: "Email or username already registered",
		})
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: "Invalid credentials",
		})
	case errors.Is(err, domain.ErrNoScore):
		h.writeJSON(w, http.StatusNotFound, errorBody{
			Error: "No score found",
		})
	case errors.Is(err, domain.ErrForbidden):
		h.writeJSON(w, http.StatusForbidden, errorBody{
			Error:   "Forbidden",
			Message: "Cannot access other user stats",
		})
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		h.logger.Error("persistence unavailable", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error: "Service unavailable",
		})
	default:
		h.logger.Error("internal error", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: "Internal server error",
		})
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeServiceError(w, domain.ErrInvalidRequest)
		return
	}

	result, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeServiceError(w, domain.ErrInvalidRequest)
		return
	}

	result, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// SubmitScore handles POST /score
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		h.writeServiceError(w, domain.ErrMissingToken)
		return
	}

	var sub domain.ScoreSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeServiceError(w, domain.ErrInvalidRequest)
		return
	}

	result, err := h.scores.Submit(r.Context(), identity, sub)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// BestScore handles GET /score/best
func (h *Handler) BestScore(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		h.writeServiceError(w, domain.ErrMissingToken)
		return
	}

	levelID := 1
	if raw := r.URL.Query().Get("levelId"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeServiceError(w, domain.NewValidationError("levelId must be an integer"))
			return
		}
		levelID = parsed
	}

	result, err := h.scores.BestScore(r.Context(), identity.UserID, levelID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// UserStats handles GET /stats/user/{userID}. Users can only read their
// own statistics.
func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		h.writeServiceError(w, domain.ErrMissingToken)
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID != identity.UserID {
		h.writeServiceError(w, domain.ErrForbidden)
		return
	}

	stats, err := h.scores.UserStats(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// Leaderboard handles GET /leaderboard
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := domain.LeaderboardQuery{}
	var details []string

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			details = append(details, "limit must be an integer")
		} else {
			q.Limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			details = append(details, "offset must be an integer")
		} else {
			q.Offset = parsed
		}
	}
	if raw := r.URL.Query().Get("levelId"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			details = append(details, "levelId must be an integer")
		} else {
			q.LevelID = &parsed
		}
	}

	if len(details) > 0 {
		h.writeServiceError(w, &domain.ValidationError{Details: details})
		return
	}

	page, err := h.leaderboard.Fetch(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}

// RecordEvent handles POST /analytics
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		h.writeServiceError(w, domain.ErrMissingToken)
		return
	}

	var req domain.AnalyticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeServiceError(w, domain.ErrInvalidRequest)
		return
	}

	result, err := h.analytics.Record(r.Context(), identity.UserID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}
