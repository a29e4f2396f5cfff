// Package auth 实现登录流程：图片验证码循环（获取、识别、校验、提交）和授权码换令牌。
package auth

import (
	"context"
	"errors"
	"fmt"

	"autotask/internal/model"
	"autotask/internal/session"
)

// ErrFailed 匹配所有 *Error，对单个账号是终止性的，对整次运行不是。
var ErrFailed = errors.New("authentication failed")

type Failure string

const (
	FailureExhausted     Failure = "exhausted-retries"
	FailureRejected      Failure = "rejected"
	FailureNoCredentials Failure = "no-credentials"
	FailureNoCode        Failure = "no-code"
)

type Error struct {
	Failure Failure
	Reason  string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("auth failed: %s", e.Failure)
	}
	return fmt.Sprintf("auth failed: %s: %s", e.Failure, e.Reason)
}

func (e *Error) Is(target error) bool { return target == ErrFailed }

func failed(f Failure, reason string) error {
	return &Error{Failure: f, Reason: reason}
}

// Authenticator 走一次完整登录，成功时会话里已经带上新凭证。
type Authenticator interface {
	Authenticate(ctx context.Context, sess *session.Session, acc model.Account) (model.Credential, error)
}

// Validator 用一次轻量请求判断会话是否仍然有效；网络错误返回 false，不报错。
type Validator interface {
	Validate(ctx context.Context, sess *session.Session) bool
}
