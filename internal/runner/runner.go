// Package runner 对一个已登录的会话按顺序执行任务，单个任务失败不影响后续任务。
package runner

import (
	"context"
	"fmt"
	"runtime/debug"

	"autotask/internal/logbus"
	"autotask/internal/model"
	"autotask/internal/pace"
	"autotask/internal/session"
)

type Job struct {
	Site       string
	Account    model.Account
	Credential model.Credential
	Session    *session.Session
	Log        logbus.Logger
}

type Task interface {
	Name() string
	Run(ctx context.Context, job Job, rec *Recorder) error
}

type funcTask struct {
	name string
	fn   func(ctx context.Context, job Job, rec *Recorder) error
}

func (t funcTask) Name() string { return t.name }

func (t funcTask) Run(ctx context.Context, job Job, rec *Recorder) error { return t.fn(ctx, job, rec) }

func Func(name string, fn func(ctx context.Context, job Job, rec *Recorder) error) Task {
	return funcTask{name: name, fn: fn}
}

type Runner struct {
	Pacer pace.Pacer
	// Gap 是相邻两个任务之间的随机间隔。
	Gap pace.Range
	Log logbus.Logger
}

func (r *Runner) Run(ctx context.Context, job Job, tasks []Task) model.AccountRunResult {
	if job.Log == nil {
		job.Log = r.Log
	}
	if job.Log == nil {
		job.Log = logbus.Nop()
	}
	sh := &sheet{log: job.Log}
	result := model.AccountRunResult{
		Site:          job.Site,
		AccountID:     job.Account.ID,
		Authenticated: true,
	}

	for i, t := range tasks {
		if i > 0 && r.Pacer != nil {
			if err := r.Pacer.Wait(ctx, r.Gap); err != nil {
				result.Error = err.Error()
				break
			}
		}
		if err := ctx.Err(); err != nil {
			result.Error = err.Error()
			break
		}

		rec := &Recorder{task: t.Name(), sheet: sh}
		before := len(sh.outcomes)
		if err := runOne(ctx, t, job, rec); err != nil {
			rec.Fail(err.Error())
		} else if len(sh.outcomes) == before {
			rec.Succeed("")
		}
	}

	result.Outcomes = sh.outcomes
	result.Balance = sh.balance
	return result
}

func runOne(ctx context.Context, t Task, job Job, rec *Recorder) (err error) {
	defer func() {
		if p := recover(); p != nil {
			job.Log.Log("error", "任务异常", map[string]any{"task": t.Name(), "panic": fmt.Sprint(p), "stack": string(debug.Stack())})
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return t.Run(ctx, job, rec)
}
