// Package scheduler 在 serve 模式下按 cron 触发运行。
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"autotask/internal/logbus"
)

// RunFunc 执行一次完整运行。
type RunFunc func(ctx context.Context) error

type Scheduler struct {
	cron *Cron
	run  RunFunc
	log  logbus.Logger

	// 测试注入
	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	running bool
	next    time.Time
}

var ErrBusy = errors.New("a run is already in progress")

func New(expr string, run RunFunc, log logbus.Logger) (*Scheduler, error) {
	c, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logbus.Nop()
	}
	return &Scheduler{cron: c, run: run, log: log, now: time.Now, after: time.After}, nil
}

// Loop 阻塞直到 ctx 取消。每到触发时间同步执行一次运行，运行期间错过的触发会被跳过。
func (s *Scheduler) Loop(ctx context.Context) {
	for ctx.Err() == nil {
		next := s.cron.Next(s.now())
		if next.IsZero() {
			s.log.Log("error", "cron 表达式无可用触发时间", nil)
			return
		}
		s.mu.Lock()
		s.next = next
		s.mu.Unlock()
		s.log.Log("info", "下次运行时间", map[string]any{"at": next.Format("2006-01-02 15:04")})

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
		}
		if err := s.Trigger(ctx); err != nil && !errors.Is(err, ErrBusy) {
			s.log.Log("error", "定时运行失败", map[string]any{"error": err.Error()})
		}
	}
}

// Trigger 立即执行一次运行；已有运行进行中时返回 ErrBusy。
func (s *Scheduler) Trigger(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrBusy
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return s.run(ctx)
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
