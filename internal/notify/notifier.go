// Package notify 在一次运行结束后推送运行日志。推送失败只记日志，不影响运行结果。
package notify

import (
	"context"
	"fmt"
	"strings"

	"autotask/internal/model"
)

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

type nop struct{}

func (nop) Notify(context.Context, string, string) error { return nil }

func Nop() Notifier { return nop{} }

// Summary 按账号汇总结果，每个账号一行。
func Summary(results []model.AccountRunResult) string {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "[%s] %s: ", r.Site, r.AccountID)
		if !r.Authenticated {
			reason := r.Error
			if reason == "" {
				reason = "未登录"
			}
			sb.WriteString("登录失败 " + reason + "\n")
			continue
		}
		fmt.Fprintf(&sb, "成功 %d 跳过 %d 失败 %d",
			r.Count(model.OutcomeSucceeded), r.Count(model.OutcomeSkipped), r.Count(model.OutcomeFailed))
		if r.Balance != "" {
			sb.WriteString(" 余额 " + r.Balance)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Body 拼出推送正文：汇总 + 空行 + 日志行。
func Body(results []model.AccountRunResult, lines []string) string {
	var sb strings.Builder
	sb.WriteString(Summary(results))
	if len(lines) > 0 {
		sb.WriteString("\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}
	return sb.String()
}
