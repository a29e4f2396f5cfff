// Package pace 提供随机等待区间，用于请求之间的节流。
package pace

import (
	"context"
	"math/rand"
	"time"
)

type Range struct {
	Min time.Duration
	Max time.Duration
}

// Pick 在 [Min, Max] 之间取一个随机值；负的 Min 按 0 处理，Max 小于 Min 时返回 Min。
func (r Range) Pick() time.Duration {
	lo := max(r.Min, 0)
	if r.Max <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(r.Max-lo)+1))
}

type Pacer interface {
	Wait(ctx context.Context, r Range) error
}

type Sleeper struct{}

func (Sleeper) Wait(ctx context.Context, r Range) error {
	d := r.Pick()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Record 不真正等待，只记录每次请求的区间，测试用。
type Record struct {
	Waits []Range
}

func (r *Record) Wait(ctx context.Context, rg Range) error {
	r.Waits = append(r.Waits, rg)
	return ctx.Err()
}
