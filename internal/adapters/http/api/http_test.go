package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/codesync/internal/adapters/http/api"
	service "github.com/okian/codesync/internal/app"
	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/scoring"
	"github.com/okian/codesync/internal/domain/types"
	"github.com/okian/codesync/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	score        model.ScoreRecord
	scoreErr     error
	gotRecompute bool

	refreshErr   error
	refreshed    []types.Platform
	enqueueOK    bool
	enqueueErr   error
	enqueued     []types.Platform
	handles      map[types.Platform]string
	handlesErr   error
	setHandles   map[string]string
	history      []model.Snapshot
	historyErr   error
	historyLimit int

	topN    []types.Entry
	topNErr error
	rank    types.Entry
	rankErr error

	report    service.BatchReport
	reportErr error
}

func (m *mockDeps) GetScore(ctx context.Context, id string, recompute bool) (model.ScoreRecord, error) {
	m.gotRecompute = recompute
	return m.score, m.scoreErr
}

func (m *mockDeps) Explain(ctx context.Context, id string) (scoring.Result, error) {
	if m.scoreErr != nil {
		return scoring.Result{}, m.scoreErr
	}
	return scoring.Result{StudentID: id, CodeSyncScore: m.score.CodeSyncScore, DisplayScore: m.score.DisplayScore}, nil
}

func (m *mockDeps) History(ctx context.Context, id string, limit int) ([]model.Snapshot, error) {
	m.historyLimit = limit
	return m.history, m.historyErr
}

func (m *mockDeps) Handles(ctx context.Context, id string) (map[types.Platform]string, error) {
	return m.handles, m.handlesErr
}

func (m *mockDeps) SetHandles(ctx context.Context, id string, h map[string]string) (map[types.Platform]string, error) {
	m.setHandles = h
	if m.handlesErr != nil {
		return nil, m.handlesErr
	}
	out := make(map[types.Platform]string, len(h))
	for k, v := range h {
		p, err := types.ParsePlatform(k)
		if err != nil {
			return nil, err
		}
		out[p] = v
	}
	return out, nil
}

func (m *mockDeps) RefreshAll(ctx context.Context, id string) (model.ScoreRecord, error) {
	m.refreshed = append(m.refreshed, "")
	return m.score, m.refreshErr
}

func (m *mockDeps) RefreshOne(ctx context.Context, id string, p types.Platform) (model.ScoreRecord, error) {
	m.refreshed = append(m.refreshed, p)
	return m.score, m.refreshErr
}

func (m *mockDeps) EnqueueRefresh(ctx context.Context, id string, p types.Platform) (bool, error) {
	m.enqueued = append(m.enqueued, p)
	return m.enqueueOK, m.enqueueErr
}

func (m *mockDeps) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	if m.topNErr != nil {
		return nil, m.topNErr
	}
	if n > len(m.topN) {
		return m.topN, nil
	}
	return m.topN[:n], nil
}

func (m *mockDeps) Rank(ctx context.Context, id string) (types.Entry, error) {
	return m.rank, m.rankErr
}

func (m *mockDeps) RecomputeAll(ctx context.Context) (service.BatchReport, error) {
	return m.report, m.reportErr
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDeps) http.Handler {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}, 100).
		Register(context.Background(), mux)
	return api.Handler(mux)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func freshScore() model.ScoreRecord {
	now := time.Now().UTC()
	return model.ScoreRecord{
		StudentID:      "s1",
		CodeSyncScore:  42.5,
		DisplayScore:   425,
		PlatformSkills: map[types.Platform]float64{types.LeetCode: 42.5},
		ComputedAt:     now,
		ExpiresAt:      now.Add(time.Hour),
		Version:        scoring.FormulaVersion,
	}
}

func TestServer_Routes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{score: freshScore(), enqueueOK: true}
		h := newMux(deps)

		Convey("Then /healthz serves Prometheus metrics", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("X-Request-ID"), ShouldNotBeEmpty)
		})

		Convey("Then /stats serves the service stats", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then a caller's request id is echoed", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			req.Header.Set("X-Request-ID", "abc-123")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get("X-Request-ID"), ShouldEqual, "abc-123")
		})

		Convey("Then unknown routes and wrong methods are rejected", func() {
			So(do(h, http.MethodGet, "/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodDelete, "/students/s1/score", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestStudentHandler_Score(t *testing.T) {
	Convey("Given a student handler", t, func() {
		deps := &mockDeps{score: freshScore()}
		h := newMux(deps)

		Convey("When the score is requested with recompute", func() {
			w := do(h, http.MethodGet, "/students/s1/score?recompute=true", "")

			Convey("Then the record is returned and the flag forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotRecompute, ShouldBeTrue)
				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["displayScore"], ShouldEqual, 425.0)
				So(body["stale"], ShouldEqual, false)
			})
		})

		Convey("When the score is requested without a recompute flag", func() {
			w := do(h, http.MethodGet, "/students/s1/score", "")

			Convey("Then stale records are recomputed by default", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotRecompute, ShouldBeTrue)
			})
		})

		Convey("When an expired record is served with recompute=false", func() {
			deps.score.ExpiresAt = time.Now().Add(-time.Minute)
			w := do(h, http.MethodGet, "/students/s1/score?recompute=false", "")

			Convey("Then it is returned as stored and marked stale", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotRecompute, ShouldBeFalse)
				So(w.Body.String(), ShouldContainSubstring, `"stale":true`)
			})
		})

		Convey("When recompute is not a boolean", func() {
			w := do(h, http.MethodGet, "/students/s1/score?recompute=maybe", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When the student is unknown", func() {
			deps.scoreErr = fmt.Errorf("%w: ghost", service.ErrUnknownStudent)
			w := do(h, http.MethodGet, "/students/ghost/score", "")

			Convey("Then 404 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w)["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When the store fails", func() {
			deps.scoreErr = fmt.Errorf("%w: boom", service.ErrPersist)
			w := do(h, http.MethodGet, "/students/s1/score", "")

			Convey("Then 500 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["code"], ShouldEqual, "persist_failed")
			})
		})

		Convey("When the explanation is requested", func() {
			w := do(h, http.MethodGet, "/students/s1/explain", "")

			Convey("Then it carries the formula version", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, scoring.FormulaVersion)
			})
		})
	})
}

func TestStudentHandler_Refresh(t *testing.T) {
	Convey("Given a student handler", t, func() {
		deps := &mockDeps{score: freshScore(), enqueueOK: true}
		h := newMux(deps)

		Convey("When a synchronous full refresh is posted", func() {
			w := do(h, http.MethodPost, "/students/s1/refresh", "")

			Convey("Then every platform is refreshed and the score returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.refreshed, ShouldResemble, []types.Platform{""})
			})
		})

		Convey("When a single platform is refreshed", func() {
			w := do(h, http.MethodPost, "/students/s1/refresh/CodeForces", "")

			Convey("Then only that platform is refreshed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.refreshed, ShouldResemble, []types.Platform{types.Codeforces})
			})
		})

		Convey("When the platform is unknown", func() {
			w := do(h, http.MethodPost, "/students/s1/refresh/topcoder", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "unknown_platform")
				So(deps.refreshed, ShouldBeEmpty)
			})
		})

		Convey("When the refresh is async", func() {
			w := do(h, http.MethodPost, "/students/s1/refresh/github?async=true", "")

			Convey("Then it is accepted and queued", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.enqueued, ShouldResemble, []types.Platform{types.GitHub})
				So(deps.refreshed, ShouldBeEmpty)
			})
		})

		Convey("When the queue is full", func() {
			deps.enqueueOK = false
			deps.enqueueErr = service.ErrQueueFull
			w := do(h, http.MethodPost, "/students/s1/refresh?async=true", "")

			Convey("Then backpressure is reported", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decodeError(w)["code"], ShouldEqual, "backpressure")
			})
		})

		Convey("When the service is not running", func() {
			deps.enqueueOK = false
			deps.enqueueErr = service.ErrNotStarted
			w := do(h, http.MethodPost, "/students/s1/refresh?async=true", "")

			Convey("Then 503 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When persisting fails", func() {
			deps.refreshErr = fmt.Errorf("%w: commit", service.ErrPersist)
			w := do(h, http.MethodPost, "/students/s1/refresh", "")

			Convey("Then 500 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestStudentHandler_HandlesAndHistory(t *testing.T) {
	Convey("Given a student handler", t, func() {
		deps := &mockDeps{
			handles: map[types.Platform]string{types.LeetCode: "alice"},
			history: []model.Snapshot{{ID: "a", StudentID: "s1"}, {ID: "b", StudentID: "s1"}},
		}
		h := newMux(deps)

		Convey("When handles are replaced", func() {
			w := do(h, http.MethodPut, "/students/s1/handles", `{"leetcode":"alice","github":"al"}`)

			Convey("Then the stored set is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.setHandles, ShouldResemble, map[string]string{"leetcode": "alice", "github": "al"})
				So(w.Body.String(), ShouldContainSubstring, `"github":"al"`)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(h, http.MethodPut, "/students/s1/handles", `leetcode=alice`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a handle names an unknown platform", func() {
			w := do(h, http.MethodPut, "/students/s1/handles", `{"topcoder":"x"}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "unknown_platform")
			})
		})

		Convey("When handles are read", func() {
			w := do(h, http.MethodGet, "/students/s1/handles", "")

			Convey("Then they are returned keyed by platform", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"leetcode":"alice"`)
			})
		})

		Convey("When history is read with a limit", func() {
			w := do(h, http.MethodGet, "/students/s1/history?limit=2", "")

			Convey("Then the limit is forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.historyLimit, ShouldEqual, 2)
				var body struct {
					Snapshots []model.Snapshot `json:"snapshots"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Snapshots, ShouldHaveLength, 2)
			})
		})

		Convey("When the history limit is invalid", func() {
			So(do(h, http.MethodGet, "/students/s1/history?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/students/s1/history?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the history limit is above the configured maximum", func() {
			w := do(h, http.MethodGet, "/students/s1/history?limit=101", "")

			Convey("Then it is rejected before the service is called", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "limit_exceeded")
				So(deps.historyLimit, ShouldEqual, 0)
			})
		})
	})
}

func TestLeaderboardAndRank(t *testing.T) {
	Convey("Given a populated leaderboard", t, func() {
		deps := &mockDeps{
			topN: []types.Entry{
				{Rank: 1, StudentID: "a", Score: 90, DisplayScore: 900},
				{Rank: 2, StudentID: "b", Score: 80, DisplayScore: 800},
				{Rank: 3, StudentID: "c", Score: 70, DisplayScore: 700},
			},
			rank: types.Entry{Rank: 2, StudentID: "b", Score: 80, DisplayScore: 800},
		}
		h := newMux(deps)

		Convey("When requesting top N entries", func() {
			w := do(h, http.MethodGet, "/leaderboard?limit=2", "")

			Convey("Then it should return the top N entries", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var entries []types.Entry
				So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
				So(entries, ShouldResemble, deps.topN[:2])
			})
		})

		Convey("When no limit is specified", func() {
			w := do(h, http.MethodGet, "/leaderboard", "")

			Convey("Then the default page is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the limit is out of range", func() {
			So(do(h, http.MethodGet, "/leaderboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			w := do(h, http.MethodGet, "/leaderboard?limit=101", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "limit_exceeded")
		})

		Convey("When the leaderboard fails", func() {
			deps.topNErr = errors.New("index unavailable")
			w := do(h, http.MethodGet, "/leaderboard?limit=2", "")

			Convey("Then it should return internal server error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When requesting a rank", func() {
			w := do(h, http.MethodGet, "/students/b/rank", "")

			Convey("Then the entry is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"rank":2`)
			})
		})

		Convey("When the student is not ranked", func() {
			deps.rankErr = fmt.Errorf("%w: z", service.ErrUnknownStudent)
			w := do(h, http.MethodGet, "/students/z/rank", "")

			Convey("Then it should return not found status", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestAdminHandler_Recompute(t *testing.T) {
	Convey("Given an admin handler", t, func() {
		deps := &mockDeps{report: service.BatchReport{Total: 3, Succeeded: 2, Failed: map[string]string{"c": "boom"}}}
		h := newMux(deps)

		Convey("When a recompute is posted", func() {
			w := do(h, http.MethodPost, "/admin/recompute", "")

			Convey("Then the batch report is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var report service.BatchReport
				So(json.Unmarshal(w.Body.Bytes(), &report), ShouldBeNil)
				So(report, ShouldResemble, deps.report)
			})
		})

		Convey("When listing students fails", func() {
			deps.reportErr = fmt.Errorf("%w: list", service.ErrPersist)
			w := do(h, http.MethodPost, "/admin/recompute", "")

			Convey("Then 500 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given operation-tagged errors", t, func() {
		cause := errors.New("eof")

		Convey("Then kinds and causes both unwrap", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: eof")
			So(api.NewKind("api.op", api.ErrBackpressure).Error(), ShouldEqual, "api.op: backpressure")
			So(api.Wrap("api.op", nil), ShouldBeNil)
		})
	})
}

// endpointErrors reads errors_by_endpoint_total for one label set.
func endpointErrors(endpoint, method, errorType string) float64 {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return -1
	}
	want := map[string]string{"endpoint": endpoint, "method": method, "error_type": errorType}
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), "errors_by_endpoint_total") {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if want[lp.GetName()] == lp.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetricsMiddleware_ErrorCodes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{score: freshScore(), enqueueOK: true}
		h := newMux(deps)

		Convey("When a refresh fails to persist", func() {
			deps.refreshErr = fmt.Errorf("%w: commit", service.ErrPersist)
			before := endpointErrors("refresh", http.MethodPost, "persist_failed")
			w := do(h, http.MethodPost, "/students/s1/refresh", "")

			Convey("Then the error is counted under the body's code", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(endpointErrors("refresh", http.MethodPost, "persist_failed"), ShouldEqual, before+1)
			})
		})

		Convey("When an async refresh hits a full queue", func() {
			deps.enqueueOK = false
			before := endpointErrors("refresh", http.MethodPost, "backpressure")
			w := do(h, http.MethodPost, "/students/s1/refresh?async=true", "")

			Convey("Then it is counted as backpressure", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(endpointErrors("refresh", http.MethodPost, "backpressure"), ShouldEqual, before+1)
			})
		})
	})
}
