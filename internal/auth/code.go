package auth

import (
	"context"
	"strings"
	"time"

	"autotask/internal/logbus"
	"autotask/internal/model"
	"autotask/internal/session"
)

// CodeSource 为账号取一个短期授权码，取不到时返回空串或错误。
type CodeSource interface {
	Code(ctx context.Context, accountID string) (string, error)
}

// CodeExchanger 用授权码换会话令牌。
type CodeExchanger interface {
	Exchange(ctx context.Context, sess *session.Session, code string) (string, error)
}

// CodeExchangeAuthenticator 没有本地重试：拿不到授权码直接失败。
type CodeExchangeAuthenticator struct {
	Codes     CodeSource
	Exchanger CodeExchanger
	Log       logbus.Logger
	Now       func() time.Time
}

func (a *CodeExchangeAuthenticator) Authenticate(ctx context.Context, sess *session.Session, acc model.Account) (model.Credential, error) {
	log := a.Log
	if log == nil {
		log = logbus.Nop()
	}
	code, err := a.Codes.Code(ctx, acc.ID)
	if ctx.Err() != nil {
		return model.Credential{}, ctx.Err()
	}
	if err != nil || strings.TrimSpace(code) == "" {
		reason := "授权码为空"
		if err != nil {
			reason = err.Error()
		}
		log.Log("error", "[授权]获取授权码失败", map[string]any{"reason": reason})
		return model.Credential{}, failed(FailureNoCode, reason)
	}

	token, err := a.Exchanger.Exchange(ctx, sess, strings.TrimSpace(code))
	if ctx.Err() != nil {
		return model.Credential{}, ctx.Err()
	}
	if err != nil {
		return model.Credential{}, failed(FailureRejected, err.Error())
	}
	if token == "" {
		return model.Credential{}, failed(FailureRejected, "未返回令牌")
	}
	sess.SetToken(token)
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	return model.TokenCredential(token, now), nil
}
