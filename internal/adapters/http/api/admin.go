package api

import (
	"context"
	"net/http"

	service "github.com/okian/codesync/internal/app"
)

// AdminDependencies defines the maintenance operations.
type AdminDependencies interface {
	RecomputeAll(ctx context.Context) (service.BatchReport, error)
}

// AdminHandler serves the /admin routes.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// HandleRecompute handles POST /admin/recompute. Every student is rescored
// from stored data; no platform is contacted.
func (h *AdminHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_recompute"
	report, err := h.deps.RecomputeAll(r.Context())
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
