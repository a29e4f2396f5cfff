// Package httpapi 是 serve 模式下的管理接口：运行状态、手动触发、历史记录、日志流和指标。
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"autotask/internal/captcha"
	"autotask/internal/config"
	"autotask/internal/logbus"
	"autotask/internal/model"
	"autotask/internal/ws"
)

type StateSource interface {
	State() model.RunState
}

// RunTrigger 由调度器实现，保证同一时间只有一次运行。
type RunTrigger interface {
	Trigger(ctx context.Context) error
	Running() bool
	NextRun() time.Time
}

type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.RunState, error)
}

type SolverStatus interface {
	Status() captcha.Status
}

type Options struct {
	Cfg     config.ServerConfig
	Bus     *logbus.Bus
	State   StateSource
	Trigger RunTrigger
	// Runs 为空时 /api/runs 返回 404（JSON 存储没有运行历史）。
	Runs    RunLister
	Solver  SolverStatus
	Metrics http.Handler
	// BaseContext 是手动触发的运行所使用的 ctx，进程退出时取消。
	BaseContext context.Context
}

type Server struct {
	cfg     config.ServerConfig
	bus     *logbus.Bus
	state   StateSource
	trigger RunTrigger
	runs    RunLister
	solver  SolverStatus
	metrics http.Handler
	ws      *ws.Handler
	baseCtx context.Context
}

func New(opts Options) *Server {
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	return &Server{
		cfg:     opts.Cfg,
		bus:     opts.Bus,
		state:   opts.State,
		trigger: opts.Trigger,
		runs:    opts.Runs,
		solver:  opts.Solver,
		metrics: opts.Metrics,
		ws:      ws.NewHandler(opts.Bus, opts.Cfg.Cors.AllowOrigins),
		baseCtx: base,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)
	r.Handle("/ws", s.ws)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(cors(s.cfg.Cors))
		r.Get("/state", s.handleState)
		r.Post("/run", s.handleRun)
		r.Get("/runs", s.handleRuns)
		r.Get("/captcha/state", s.handleCaptchaState)
		r.Get("/logs", s.handleLogs)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	var st model.RunState
	if s.state != nil {
		st = s.state.State()
	}
	if st.Results == nil {
		st.Results = []model.AccountRunResult{}
	}
	if s.trigger != nil {
		if next := s.trigger.NextRun(); !next.IsZero() {
			st.NextRunAt = next.UnixMilli()
		}
		st.Running = st.Running || s.trigger.Running()
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": st})
}

func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	if s.trigger == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "scheduler not configured"})
		return
	}
	if s.trigger.Running() {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "a run is already in progress"})
		return
	}
	go func() {
		if err := s.trigger.Trigger(s.baseCtx); err != nil && s.bus != nil {
			s.bus.Log("warn", "手动触发的运行失败", map[string]any{"error": err.Error()})
		}
	}()
	if s.bus != nil {
		s.bus.Log("info", "已手动触发运行", nil)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "run history requires sqlite storage"})
		return
	}
	limit := queryInt(r, "limit", 20, 1, 200)
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []model.RunState{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": runs})
}

func (s *Server) handleCaptchaState(w http.ResponseWriter, _ *http.Request) {
	if s.solver == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": captcha.Status{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.solver.Status()})
}

// handleLogs 返回缓冲区中最近的日志行。
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines := []string{}
	if s.bus != nil {
		lines = logbus.Lines(s.bus.Snapshot())
	}
	if limit := queryInt(r, "limit", 0, 0, 100000); limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": lines})
}

func queryInt(r *http.Request, key string, def, min, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe 阻塞直到 ctx 取消，然后优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	if s.bus != nil {
		s.bus.Log("info", "管理接口已启动", map[string]any{"addr": addr})
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.bus != nil {
		s.bus.Log("info", "管理接口关闭中", nil)
	}
	return srv.Shutdown(shutdownCtx)
}
