package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autotask/internal/captcha"
	"autotask/internal/logbus"
	"autotask/internal/model"
	"autotask/internal/pace"
	"autotask/internal/provider"
	"autotask/internal/session"
)

// Challenge 是一次尝试拿到的验证码及其附带参数（如 formhash），只在本次尝试内有效。
type Challenge struct {
	Image   []byte
	Params  map[string]string
	Attempt int
}

// ChallengeSite 是带图片验证码登录的站点。没有独立校验接口的站点，VerifyChallenge 直接返回 OK，
// 由 Submit 以 ChallengeRejected 报告验证码错误。
type ChallengeSite interface {
	FetchChallenge(ctx context.Context, sess *session.Session, attempt int) (Challenge, error)
	VerifyChallenge(ctx context.Context, sess *session.Session, ch Challenge, text string) (provider.Result, error)
	Submit(ctx context.Context, sess *session.Session, acc model.Account, ch Challenge, text string) (provider.Result, error)
}

type ChallengeAuthenticator struct {
	Site        ChallengeSite
	Solver      captcha.Solver
	Pacer       pace.Pacer
	Gap         pace.Range
	MaxAttempts int
	Log         logbus.Logger
	Now         func() time.Time
}

func (a *ChallengeAuthenticator) Authenticate(ctx context.Context, sess *session.Session, acc model.Account) (model.Credential, error) {
	log := a.Log
	if log == nil {
		log = logbus.Nop()
	}
	if strings.TrimSpace(acc.Secret) == "" {
		return model.Credential{}, failed(FailureNoCredentials, "未配置密码")
	}
	maxAttempts := a.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	lastReason := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && a.Pacer != nil {
			if err := a.Pacer.Wait(ctx, a.Gap); err != nil {
				return model.Credential{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return model.Credential{}, err
		}

		res, err := a.attempt(ctx, sess, acc, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return model.Credential{}, ctx.Err()
			}
			var authErr *Error
			if errors.As(err, &authErr) {
				return model.Credential{}, err
			}
			lastReason = err.Error()
			log.Log("warn", "[登录]尝试失败", map[string]any{"attempt": attempt, "reason": lastReason})
			continue
		}
		if res.OK {
			cookies := sess.CookieString()
			if cookies == "" {
				return model.Credential{}, failed(FailureRejected, "登录成功但没有拿到 cookie")
			}
			log.Log("info", "[登录]成功", map[string]any{"attempt": attempt})
			return model.CookieCredential(cookies, a.now()), nil
		}
		lastReason = res.Reason
		log.Log("warn", "[登录]验证码未通过", map[string]any{"attempt": attempt, "reason": lastReason})
	}
	log.Log("error", "[登录]验证码重试次数已达上限", map[string]any{"attempts": maxAttempts})
	return model.Credential{}, failed(FailureExhausted, lastReason)
}

// attempt 执行一轮获取、识别、校验、提交。返回非 OK 的 Result 表示本轮可重试；
// 返回 *Error 表示终止。
func (a *ChallengeAuthenticator) attempt(ctx context.Context, sess *session.Session, acc model.Account, attempt int) (provider.Result, error) {
	ch, err := a.Site.FetchChallenge(ctx, sess, attempt)
	if err != nil {
		return provider.Result{}, fmt.Errorf("获取验证码失败: %w", err)
	}
	ch.Attempt = attempt

	text, err := a.Solver.Solve(ctx, ch.Image)
	if err != nil {
		return provider.Result{}, fmt.Errorf("识别验证码失败: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return provider.Rejected("验证码识别结果为空"), nil
	}

	res, err := a.Site.VerifyChallenge(ctx, sess, ch, text)
	if err != nil {
		return provider.Result{}, fmt.Errorf("校验验证码失败: %w", err)
	}
	if !res.OK {
		if res.Reason == "" {
			res.Reason = "验证码错误"
		}
		return provider.Rejected(res.Reason), nil
	}

	res, err = a.Site.Submit(ctx, sess, acc, ch, text)
	if err != nil {
		return provider.Result{}, fmt.Errorf("提交登录失败: %w", err)
	}
	if res.OK || res.ChallengeRejected {
		return res, nil
	}
	if res.Reason == "" {
		res.Reason = "登录失败"
	}
	return provider.Result{}, failed(FailureRejected, res.Reason)
}

func (a *ChallengeAuthenticator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
