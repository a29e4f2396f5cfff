package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotask/internal/config"
	"autotask/internal/logbus"
	"autotask/internal/model"
)

type fakeState struct{ st model.RunState }

func (f fakeState) State() model.RunState { return f.st }

type fakeTrigger struct {
	running bool
	next    time.Time
	calls   atomic.Int32
	done    chan struct{}
}

func (f *fakeTrigger) Trigger(context.Context) error {
	f.calls.Add(1)
	close(f.done)
	return nil
}

func (f *fakeTrigger) Running() bool      { return f.running }
func (f *fakeTrigger) NextRun() time.Time { return f.next }

type fakeRuns struct{ runs []model.RunState }

func (f fakeRuns) ListRuns(_ context.Context, limit int) ([]model.RunState, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func do(t *testing.T, h http.Handler, method, path string, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var body map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &body)
	}
	return w, body
}

func TestStateIncludesNextRun(t *testing.T) {
	next := time.Date(2026, 3, 2, 9, 10, 0, 0, time.UTC)
	st := model.RunState{RunID: "r1", Results: []model.AccountRunResult{{Site: "yyg", AccountID: "a"}}}
	srv := New(Options{State: fakeState{st: st}, Trigger: &fakeTrigger{next: next, done: make(chan struct{})}})

	w, body := do(t, srv.Handler(), http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "r1", data["runId"])
	assert.Equal(t, float64(next.UnixMilli()), data["nextRunAtMs"])
	assert.Len(t, data["results"], 1)
}

func TestRunTriggersInBackground(t *testing.T) {
	tr := &fakeTrigger{done: make(chan struct{})}
	srv := New(Options{Trigger: tr, Bus: logbus.New(10)})

	w, _ := do(t, srv.Handler(), http.MethodPost, "/api/run", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-tr.done:
	case <-time.After(2 * time.Second):
		t.Fatal("run was not triggered")
	}
	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestRunConflictWhileRunning(t *testing.T) {
	tr := &fakeTrigger{running: true, done: make(chan struct{})}
	srv := New(Options{Trigger: tr})

	w, _ := do(t, srv.Handler(), http.MethodPost, "/api/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, tr.calls.Load())
}

func TestRunsRequiresHistory(t *testing.T) {
	w, _ := do(t, New(Options{}).Handler(), http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	srv := New(Options{Runs: fakeRuns{runs: []model.RunState{{RunID: "a"}, {RunID: "b"}, {RunID: "c"}}}})
	w, body := do(t, srv.Handler(), http.MethodGet, "/api/runs?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)
}

func TestLogsLimit(t *testing.T) {
	bus := logbus.New(10)
	bus.Log("info", "one", nil)
	bus.Log("info", "two", nil)
	srv := New(Options{Bus: bus})

	_, body := do(t, srv.Handler(), http.MethodGet, "/api/logs?limit=1", nil)
	lines := body["data"].([]any)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "two")
}

func TestCorsPreflight(t *testing.T) {
	srv := New(Options{Cfg: config.ServerConfig{Cors: config.CorsConfig{AllowOrigins: []string{"http://panel.local"}}}})
	h := srv.Handler()

	w, _ := do(t, h, http.MethodOptions, "/api/state", http.Header{"Origin": {"http://panel.local"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://panel.local", w.Header().Get("Access-Control-Allow-Origin"))

	w, _ = do(t, h, http.MethodGet, "/api/state", http.Header{"Origin": {"http://evil.example"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
