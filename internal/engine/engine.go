// Package engine 按站点、按账号顺序执行：读取凭证、校验、必要时重新登录、保存、执行任务。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"autotask/internal/auth"
	"autotask/internal/logbus"
	"autotask/internal/metrics"
	"autotask/internal/model"
	"autotask/internal/notify"
	"autotask/internal/provider"
	"autotask/internal/runner"
	"autotask/internal/session"
	"autotask/internal/store"
)

// Profile 是一个站点的完整运行配置。
type Profile struct {
	// Site 为站点标识（sijishe、yyg、wxpay），用于凭证文件名、日志和指标。
	Site     string
	Name     string
	Host     string
	Accounts []model.Account
	Store    store.CredentialStore
	// NewSession 为每个账号创建独立会话。
	NewSession func(acc model.Account) (*session.Session, error)
	Auth       auth.Authenticator
	Validator  auth.Validator
	Tasks      []runner.Task
	UseProxy   bool
}

// RunSink 保存每次运行的汇总，可为空。
type RunSink interface {
	SaveRun(ctx context.Context, st model.RunState) error
}

type Options struct {
	Profiles []Profile
	Runner   *runner.Runner
	Bus      *logbus.Bus
	Notifier notify.Notifier
	Proxy    *provider.ProxySource
	Metrics  metrics.Recorder
	Runs     RunSink
	Now      func() time.Time
}

type Engine struct {
	profiles []Profile
	runner   *runner.Runner
	bus      *logbus.Bus
	log      logbus.Logger
	notifier notify.Notifier
	proxy    *provider.ProxySource
	metrics  metrics.Recorder
	runs     RunSink
	now      func() time.Time

	mu    sync.Mutex
	state model.RunState
}

// ErrBusy 表示已有一次运行在进行中。
var ErrBusy = errors.New("engine already running")

// storeWriteError 标记凭证写入失败，会中止整次运行。
type storeWriteError struct{ err error }

func (e *storeWriteError) Error() string { return "credential store write: " + e.err.Error() }

func (e *storeWriteError) Unwrap() error { return e.err }

func New(opts Options) *Engine {
	e := &Engine{
		profiles: opts.Profiles,
		runner:   opts.Runner,
		bus:      opts.Bus,
		notifier: opts.Notifier,
		proxy:    opts.Proxy,
		metrics:  opts.Metrics,
		runs:     opts.Runs,
		now:      opts.Now,
	}
	e.log = logbus.Nop()
	if e.bus != nil {
		e.log = e.bus
	}
	if e.runner == nil {
		e.runner = &runner.Runner{}
	}
	if e.notifier == nil {
		e.notifier = notify.Nop()
	}
	if e.metrics == nil {
		e.metrics = metrics.Nop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) Profiles() []Profile { return e.profiles }

// State 返回最近一次（或正在进行的）运行状态的副本。
func (e *Engine) State() model.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	st.Results = append([]model.AccountRunResult(nil), e.state.Results...)
	return st
}

// Run 执行一次完整运行。账号之间互不影响；只有凭证写入失败和 ctx 取消会提前结束并返回错误。
func (e *Engine) Run(ctx context.Context) ([]model.AccountRunResult, error) {
	start := e.now()
	runID := uuid.NewString()

	e.mu.Lock()
	if e.state.Running {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.state = model.RunState{RunID: runID, Running: true, StartedAt: start.UnixMilli(), Results: []model.AccountRunResult{}}
	e.publishLocked()
	e.mu.Unlock()

	log := logbus.With(e.log, map[string]any{"run": runID})
	log.Log("info", "开始运行", map[string]any{"sites": len(e.profiles)})

	var all []model.AccountRunResult
	var runErr error
	for _, p := range e.profiles {
		siteStart := time.Now()
		results, err := e.runSite(ctx, p, runID)
		all = append(all, results...)
		if len(results) > 0 {
			e.notifySite(ctx, p, results, siteStart)
		}
		if err != nil {
			runErr = err
			break
		}
	}

	finished := e.now()
	e.mu.Lock()
	e.state.Running = false
	e.state.FinishedAt = finished.UnixMilli()
	if runErr != nil {
		e.state.LastError = runErr.Error()
	}
	final := e.state
	final.Results = append([]model.AccountRunResult(nil), e.state.Results...)
	e.publishLocked()
	e.mu.Unlock()

	e.metrics.RecordRun(finished.Sub(start), runErr)
	if e.runs != nil {
		if err := e.runs.SaveRun(context.WithoutCancel(ctx), final); err != nil {
			log.Log("warn", "保存运行记录失败", map[string]any{"error": err.Error()})
		}
	}
	if runErr != nil {
		log.Log("error", "运行中止", map[string]any{"error": runErr.Error()})
	} else {
		log.Log("info", "运行结束", map[string]any{"accounts": len(all), "elapsed": finished.Sub(start).Round(time.Second).String()})
	}
	return all, runErr
}

func (e *Engine) runSite(ctx context.Context, p Profile, runID string) ([]model.AccountRunResult, error) {
	log := logbus.With(e.log, map[string]any{"run": runID, "site": p.Site})
	log.Log("info", "开始处理站点", map[string]any{"name": p.Name, "host": p.Host, "accounts": len(p.Accounts)})

	stored, err := p.Store.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			log.Log("warn", "凭证文件损坏，按空处理", map[string]any{"error": err.Error()})
		} else {
			log.Log("warn", "读取凭证失败，按空处理", map[string]any{"error": err.Error()})
		}
	}
	if stored == nil {
		stored = map[string]model.Credential{}
	}

	var results []model.AccountRunResult
	for i, acc := range p.Accounts {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		alog := logbus.With(log, map[string]any{"account": acc.ID})
		alog.Log("info", fmt.Sprintf("======== 账号 %d/%d ========", i+1, len(p.Accounts)), nil)

		res, err := e.runAccount(ctx, p, acc, stored, alog)
		results = append(results, res)
		e.appendResult(res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Engine) runAccount(ctx context.Context, p Profile, acc model.Account, stored map[string]model.Credential, log logbus.Logger) (model.AccountRunResult, error) {
	result := model.AccountRunResult{Site: p.Site, AccountID: acc.ID}

	sess, err := p.NewSession(acc)
	if err != nil {
		result.Error = err.Error()
		log.Log("error", "创建会话失败", map[string]any{"error": err.Error()})
		return result, nil
	}
	if p.UseProxy && e.proxy.Enabled() {
		if hp, err := e.proxy.Next(ctx); err != nil {
			log.Log("warn", "获取代理失败，直连", map[string]any{"error": err.Error()})
		} else {
			sess.SetProxy(hp)
			log.Log("info", "使用代理", map[string]any{"proxy": hp})
		}
	}

	cred, err := e.credential(ctx, p, acc, sess, stored, log)
	if err != nil {
		result.Error = err.Error()
		var swe *storeWriteError
		if errors.As(err, &swe) {
			return result, err
		}
		var ae *auth.Error
		if errors.As(err, &ae) {
			e.metrics.RecordAuthFailure(p.Site, string(ae.Failure))
			log.Log("error", "登录失败，跳过该账号", map[string]any{"failure": string(ae.Failure), "reason": ae.Reason})
		}
		return result, nil
	}

	result = e.runner.Run(ctx, runner.Job{Site: p.Site, Account: acc, Credential: cred, Session: sess, Log: log}, p.Tasks)
	for _, o := range result.Outcomes {
		e.metrics.RecordTask(p.Site, string(o.Status))
	}
	log.Log("info", "账号处理完成", map[string]any{
		"succeeded": result.Count(model.OutcomeSucceeded),
		"skipped":   result.Count(model.OutcomeSkipped),
		"failed":    result.Count(model.OutcomeFailed),
	})
	return result, nil
}

// credential 依次尝试：已保存的凭证、配置中的 cookie、重新登录。新凭证在执行任务前保存。
func (e *Engine) credential(ctx context.Context, p Profile, acc model.Account, sess *session.Session, stored map[string]model.Credential, log logbus.Logger) (model.Credential, error) {
	if c, ok := stored[acc.ID]; ok {
		if !c.Empty() {
			sess.Apply(c)
			if p.Validator.Validate(ctx, sess) {
				log.Log("info", "已保存的凭证有效", nil)
				e.metrics.RecordCredential(p.Site, "stored")
				return c, nil
			}
		}
		log.Log("warn", "已保存的凭证失效，删除", nil)
		if err := p.Store.Remove(ctx, acc.ID); err != nil {
			return model.Credential{}, &storeWriteError{err: err}
		}
		delete(stored, acc.ID)
		sess.Reset()
	}
	if err := ctx.Err(); err != nil {
		return model.Credential{}, err
	}

	if acc.Cookie != "" {
		sess.SetCookies(acc.Cookie)
		if p.Validator.Validate(ctx, sess) {
			log.Log("info", "配置的 cookie 有效", nil)
			c := model.CookieCredential(acc.Cookie, e.now())
			if err := e.save(ctx, p, acc.ID, c, stored); err != nil {
				return model.Credential{}, err
			}
			e.metrics.RecordCredential(p.Site, "config")
			return c, nil
		}
		log.Log("warn", "配置的 cookie 无效", nil)
		sess.Reset()
	}

	log.Log("info", "开始登录", nil)
	c, err := p.Auth.Authenticate(ctx, sess, acc)
	if err != nil {
		return model.Credential{}, err
	}
	if err := e.save(ctx, p, acc.ID, c, stored); err != nil {
		return model.Credential{}, err
	}
	log.Log("info", "登录成功，凭证已保存", nil)
	e.metrics.RecordCredential(p.Site, "fresh")
	return c, nil
}

func (e *Engine) save(ctx context.Context, p Profile, id string, c model.Credential, stored map[string]model.Credential) error {
	if err := p.Store.Upsert(ctx, id, c); err != nil {
		return &storeWriteError{err: err}
	}
	stored[id] = c
	return nil
}

func (e *Engine) notifySite(ctx context.Context, p Profile, results []model.AccountRunResult, start time.Time) {
	var lines []string
	if e.bus != nil {
		lines = logbus.Lines(e.bus.Since(start.UnixMilli()))
	}
	title := p.Name + " 运行日志"
	if err := e.notifier.Notify(context.WithoutCancel(ctx), title, notify.Body(results, lines)); err != nil {
		e.log.Log("warn", "推送失败", map[string]any{"site": p.Site, "error": err.Error()})
	}
}

func (e *Engine) appendResult(r model.AccountRunResult) {
	e.mu.Lock()
	e.state.Results = append(e.state.Results, r)
	e.publishLocked()
	e.mu.Unlock()
}

func (e *Engine) publishLocked() {
	if e.bus != nil {
		st := e.state
		st.Results = append([]model.AccountRunResult(nil), e.state.Results...)
		e.bus.Publish("run_state", st)
	}
}
