package runner

import (
	"autotask/internal/logbus"
	"autotask/internal/model"
)

type sheet struct {
	log      logbus.Logger
	outcomes []model.TaskOutcome
	balance  string
}

// Recorder 记录任务结果。一个任务可以为多个子项（如每张券、每个帖子）分别记录。
type Recorder struct {
	task  string
	sheet *sheet
}

// For 返回记录子项结果的 Recorder，结果名为 "任务/子项"。
func (r *Recorder) For(item string) *Recorder {
	return &Recorder{task: r.task + "/" + item, sheet: r.sheet}
}

func (r *Recorder) Succeed(reason string) { r.add(model.OutcomeSucceeded, reason) }

func (r *Recorder) Skip(reason string) { r.add(model.OutcomeSkipped, reason) }

func (r *Recorder) Fail(reason string) { r.add(model.OutcomeFailed, reason) }

func (r *Recorder) SetBalance(balance string) { r.sheet.balance = balance }

func (r *Recorder) add(status model.OutcomeStatus, reason string) {
	r.sheet.outcomes = append(r.sheet.outcomes, model.TaskOutcome{Task: r.task, Status: status, Reason: reason})
	fields := map[string]any{"task": r.task}
	if reason != "" {
		fields["reason"] = reason
	}
	switch status {
	case model.OutcomeFailed:
		r.sheet.log.Log("warn", "["+r.task+"]失败", fields)
	case model.OutcomeSkipped:
		r.sheet.log.Log("info", "["+r.task+"]跳过", fields)
	default:
		r.sheet.log.Log("info", "["+r.task+"]成功", fields)
	}
}
