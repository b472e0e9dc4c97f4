package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/scoring"
	"github.com/okian/codesync/internal/domain/types"
)

// maxHandlesBody bounds PUT /students/{id}/handles payloads.
const maxHandlesBody = 16 << 10

// StudentDependencies defines the per-student operations.
type StudentDependencies interface {
	GetScore(ctx context.Context, studentID string, recomputeIfExpired bool) (model.ScoreRecord, error)
	Explain(ctx context.Context, studentID string) (scoring.Result, error)
	History(ctx context.Context, studentID string, limit int) ([]model.Snapshot, error)
	Handles(ctx context.Context, studentID string) (map[types.Platform]string, error)
	SetHandles(ctx context.Context, studentID string, handles map[string]string) (map[types.Platform]string, error)
	RefreshAll(ctx context.Context, studentID string) (model.ScoreRecord, error)
	RefreshOne(ctx context.Context, studentID string, p types.Platform) (model.ScoreRecord, error)
	EnqueueRefresh(ctx context.Context, studentID string, p types.Platform) (bool, error)
}

// StudentHandler serves the /students/{id}/... routes.
type StudentHandler struct {
	deps     StudentDependencies
	maxLimit int
	now      func() time.Time
}

// NewStudentHandler creates a new student handler. maxLimit caps the
// history limit parameter.
func NewStudentHandler(deps StudentDependencies, maxLimit int) *StudentHandler {
	return &StudentHandler{deps: deps, maxLimit: maxLimit, now: time.Now}
}

func studentID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", ErrBadRequest
	}
	return id, nil
}

// HandleGetScore handles GET /students/{id}/score. A stale or outdated record
// is recomputed unless the caller passes recompute=false.
func (h *StudentHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_score"
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, err))
		return
	}
	recompute, err := parseBool(r, "recompute", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	rec, err := h.deps.GetScore(r.Context(), id, recompute)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		ScoreRecord: rec,
		Stale:       !rec.Fresh(h.now(), scoring.FormulaVersion),
	})
}

// HandleExplain handles GET /students/{id}/explain.
func (h *StudentHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	const op = "api.explain"
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, err))
		return
	}
	res, err := h.deps.Explain(r.Context(), id)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{
		StudentID:      id,
		CodeSyncScore:  res.CodeSyncScore,
		DisplayScore:   res.DisplayScore,
		PlatformSkills: res.PlatformSkills,
		Breakdown:      res.Breakdown,
		Version:        scoring.FormulaVersion,
	})
}

// HandleHistory handles GET /students/{id}/history?limit=N. Without a limit
// the whole history is returned.
func (h *StudentHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.history"
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, err))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if limit > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
	}
	snaps, err := h.deps.History(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	if snaps == nil {
		snaps = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, historyResponse{StudentID: id, Snapshots: snaps})
}

// HandleGetHandles handles GET /students/{id}/handles.
func (h *StudentHandler) HandleGetHandles(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_handles"
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, err))
		return
	}
	handles, err := h.deps.Handles(r.Context(), id)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, handles)
}

// HandlePutHandles handles PUT /students/{id}/handles with a body such as
// {"leetcode":"alice","github":"alice-gh"}.
func (h *StudentHandler) HandlePutHandles(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_handles"
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, err))
		return
	}
	var body map[string]string
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHandlesBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	handles, err := h.deps.SetHandles(r.Context(), id, body)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, handles)
}

// HandleRefresh handles POST /students/{id}/refresh. With async=true the
// refresh is queued and 202 is returned.
func (h *StudentHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, "api.refresh", "")
}

// HandleRefreshPlatform handles POST /students/{id}/refresh/{platform}.
func (h *StudentHandler) HandleRefreshPlatform(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_platform"
	p, err := types.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	h.refresh(w, r, op, p)
}

func (h *StudentHandler) refresh(w http.ResponseWriter, r *http.Request, op string, p types.Platform) {
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, err))
		return
	}
	async, err := parseBool(r, "async", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if async {
		ok, err := h.deps.EnqueueRefresh(r.Context(), id, p)
		if err != nil {
			writeServiceError(w, Wrap(op, err))
			return
		}
		if !ok {
			writeServiceError(w, NewKind(op, ErrBackpressure))
			return
		}
		writeJSON(w, http.StatusAccepted, refreshAccepted{Status: "accepted", StudentID: id, Platform: p})
		return
	}

	var rec model.ScoreRecord
	if p == "" {
		rec, err = h.deps.RefreshAll(r.Context(), id)
	} else {
		rec, err = h.deps.RefreshOne(r.Context(), id, p)
	}
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{ScoreRecord: rec})
}
