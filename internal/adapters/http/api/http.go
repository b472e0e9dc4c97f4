// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	service "github.com/okian/codesync/internal/app"
	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/scoring"
	"github.com/okian/codesync/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StudentDependencies
	LeaderboardDependencies
	RankDependencies
	AdminDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	studentHandler     *StudentHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	adminHandler       *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		studentHandler:     NewStudentHandler(deps, maxLimit),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		adminHandler:       NewAdminHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))

	mux.HandleFunc("GET /students/{id}/score", MetricsMiddleware(s.studentHandler.HandleGetScore, "score"))
	mux.HandleFunc("GET /students/{id}/explain", MetricsMiddleware(s.studentHandler.HandleExplain, "explain"))
	mux.HandleFunc("GET /students/{id}/history", MetricsMiddleware(s.studentHandler.HandleHistory, "history"))
	mux.HandleFunc("GET /students/{id}/handles", MetricsMiddleware(s.studentHandler.HandleGetHandles, "handles"))
	mux.HandleFunc("PUT /students/{id}/handles", MetricsMiddleware(s.studentHandler.HandlePutHandles, "handles"))
	mux.HandleFunc("POST /students/{id}/refresh", MetricsMiddleware(s.studentHandler.HandleRefresh, "refresh"))
	mux.HandleFunc("POST /students/{id}/refresh/{platform}", MetricsMiddleware(s.studentHandler.HandleRefreshPlatform, "refresh_platform"))
	mux.HandleFunc("GET /students/{id}/rank", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))

	mux.HandleFunc("POST /admin/recompute", MetricsMiddleware(s.adminHandler.HandleRecompute, "admin_recompute"))
}

// Handler returns mux instrumented with tracing and request ids.
func Handler(mux http.Handler) http.Handler {
	return otelhttp.NewHandler(RequestIDMiddleware(mux), "codesync.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if r.Pattern != "" {
				return r.Pattern
			}
			return r.Method + " " + r.URL.Path
		}),
	)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type scoreResponse struct {
	model.ScoreRecord
	Stale bool `json:"stale"`
}

type refreshAccepted struct {
	Status    string         `json:"status"`
	StudentID string         `json:"studentId"`
	Platform  types.Platform `json:"platform,omitempty"`
}

type historyResponse struct {
	StudentID string           `json:"studentId"`
	Snapshots []model.Snapshot `json:"snapshots"`
}

type explainResponse struct {
	StudentID      string                     `json:"studentId"`
	CodeSyncScore  float64                    `json:"codeSyncScore"`
	DisplayScore   int                        `json:"displayScore"`
	PlatformSkills map[types.Platform]float64 `json:"platformSkills"`
	Breakdown      []scoring.Breakdown        `json:"breakdown"`
	Version        string                     `json:"version"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	setErrorCode(w, code)
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownStudent):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, types.ErrUnknownPlatform):
		writeError(w, http.StatusBadRequest, "unknown_platform", err)
	case errors.Is(err, service.ErrInvalidLimit),
		errors.Is(err, service.ErrInvalidStudent),
		errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, service.ErrPersist):
		writeError(w, http.StatusInternalServerError, "persist_failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// parseBool reads an optional boolean query parameter, returning def when
// it is absent.
func parseBool(r *http.Request, key string, def bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New("invalid " + key + "; must be a boolean")
	}
	return b, nil
}
