package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotask/internal/model"
	"autotask/internal/pace"
)

func TestRunnerIsolatesFailures(t *testing.T) {
	var ran []string
	tasks := []Task{
		Func("fail", func(ctx context.Context, job Job, rec *Recorder) error {
			ran = append(ran, "fail")
			return errors.New("service said no")
		}),
		Func("ok", func(ctx context.Context, job Job, rec *Recorder) error {
			ran = append(ran, "ok")
			return nil
		}),
		Func("boom", func(ctx context.Context, job Job, rec *Recorder) error {
			ran = append(ran, "boom")
			panic("nil map")
		}),
		Func("after", func(ctx context.Context, job Job, rec *Recorder) error {
			ran = append(ran, "after")
			rec.SetBalance("42")
			return nil
		}),
	}
	pacer := &pace.Record{}
	r := &Runner{Pacer: pacer, Gap: pace.Range{Min: 3 * time.Second, Max: 5 * time.Second}}

	res := r.Run(context.Background(), Job{Site: "yyg", Account: model.Account{ID: "a"}}, tasks)

	assert.Equal(t, []string{"fail", "ok", "boom", "after"}, ran)
	require.Len(t, res.Outcomes, 4)
	assert.Equal(t, model.TaskOutcome{Task: "fail", Status: model.OutcomeFailed, Reason: "service said no"}, res.Outcomes[0])
	assert.Equal(t, model.OutcomeSucceeded, res.Outcomes[1].Status)
	assert.Equal(t, model.OutcomeFailed, res.Outcomes[2].Status)
	assert.Contains(t, res.Outcomes[2].Reason, "panic")
	assert.Equal(t, model.OutcomeSucceeded, res.Outcomes[3].Status)
	assert.Equal(t, "42", res.Balance)
	assert.Equal(t, "a", res.AccountID)
	assert.True(t, res.Authenticated)
	assert.Len(t, pacer.Waits, 3)
}

func TestRecorderItems(t *testing.T) {
	task := Func("redeem", func(ctx context.Context, job Job, rec *Recorder) error {
		rec.For("g1").Succeed("")
		rec.For("g2").Skip("not a coupon")
		return nil
	})
	res := (&Runner{}).Run(context.Background(), Job{}, []Task{task})
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, "redeem/g1", res.Outcomes[0].Task)
	assert.Equal(t, "redeem/g2", res.Outcomes[1].Task)
	assert.Equal(t, 1, res.Count(model.OutcomeSkipped))
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	tasks := []Task{
		Func("first", func(ctx context.Context, job Job, rec *Recorder) error { calls++; cancel(); return nil }),
		Func("second", func(ctx context.Context, job Job, rec *Recorder) error { calls++; return nil }),
	}
	res := (&Runner{Pacer: &pace.Record{}}).Run(ctx, Job{}, tasks)
	assert.Equal(t, 1, calls)
	assert.Equal(t, context.Canceled.Error(), res.Error)
}
