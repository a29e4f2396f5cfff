package model

import "time"

// Account 是一条账号配置：ID 用于区分凭证和日志，Secret 为密码（可为空），
// Cookie 为配置中直接给出的 cookie 字符串（可为空）。
type Account struct {
	ID     string `json:"id"`
	Secret string `json:"-"`
	Cookie string `json:"-"`
}

type CredentialKind string

const (
	CredentialToken  CredentialKind = "token"
	CredentialCookie CredentialKind = "cookie"
)

type Credential struct {
	Kind      CredentialKind `json:"kind"`
	Token     string         `json:"token,omitempty"`
	Cookies   string         `json:"cookies,omitempty"`
	UpdatedAt time.Time      `json:"update_time"`
}

func (c Credential) Empty() bool {
	switch c.Kind {
	case CredentialToken:
		return c.Token == ""
	case CredentialCookie:
		return c.Cookies == ""
	default:
		return c.Token == "" && c.Cookies == ""
	}
}

func TokenCredential(token string, at time.Time) Credential {
	return Credential{Kind: CredentialToken, Token: token, UpdatedAt: StoredTime(at)}
}

func CookieCredential(cookies string, at time.Time) Credential {
	return Credential{Kind: CredentialCookie, Cookies: cookies, UpdatedAt: StoredTime(at)}
}

// StoredTime 把时间规整为存储精度（UTC 毫秒，去掉单调时钟），写入后读回保持相等。
func StoredTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Round(0).Truncate(time.Millisecond).UTC()
}
