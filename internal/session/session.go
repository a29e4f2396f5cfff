// Package session 为单个账号封装 HTTP 会话：cookie jar、代理、令牌头和请求速率下限。
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"autotask/internal/logbus"
	"autotask/internal/model"
)

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// TokenHeader 非空时，SetToken 把令牌写入该请求头（如 Session-Token）。
	TokenHeader string
	// QPS 为每秒请求上限，<=0 表示不限制。
	QPS        float64
	GetRetries int
	Log        logbus.Logger
}

type Session struct {
	opts    Options
	base    *url.URL
	client  *resty.Client
	jar     *cookiejar.Jar
	limiter *rate.Limiter
	token   string
	proxy   string
}

func New(opts Options) (*Session, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Log == nil {
		opts.Log = logbus.Nop()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	s := &Session{opts: opts, base: base, jar: jar}
	if opts.QPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.QPS), 1)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetCookieJar(jar).
		SetRetryCount(opts.GetRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 只重试 GET，避免重复提交登录或评论。
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if s.limiter != nil {
			if err := s.limiter.Wait(req.Context()); err != nil {
				return err
			}
		}
		opts.Log.Log("debug", "http request", map[string]any{
			"method": req.Method,
			"url":    req.URL,
		})
		return nil
	})
	s.client = client
	return s, nil
}

// R 返回绑定 ctx 的新请求。
func (s *Session) R(ctx context.Context) *resty.Request {
	return s.client.R().SetContext(ctx)
}

func (s *Session) BaseURL() string { return s.client.BaseURL }

func (s *Session) Host() string { return s.base.Host }

func (s *Session) SetHeader(key, value string) {
	s.client.SetHeader(key, value)
}

func (s *Session) SetToken(token string) {
	s.token = token
	if s.opts.TokenHeader == "" {
		return
	}
	if token == "" {
		s.client.Header.Del(s.opts.TokenHeader)
		return
	}
	s.client.SetHeader(s.opts.TokenHeader, token)
}

func (s *Session) Token() string { return s.token }

// SetProxy 设置 host:port 形式的 HTTP 代理，空串表示直连。
func (s *Session) SetProxy(hostPort string) {
	hostPort = strings.TrimSpace(hostPort)
	s.proxy = hostPort
	if hostPort == "" {
		s.client.RemoveProxy()
		return
	}
	if !strings.Contains(hostPort, "://") {
		hostPort = "http://" + hostPort
	}
	s.client.SetProxy(hostPort)
}

func (s *Session) Proxy() string { return s.proxy }

// Apply 把凭证装入会话：令牌写入请求头，cookie 串写入 jar。
func (s *Session) Apply(cred model.Credential) {
	if cred.Token != "" {
		s.SetToken(cred.Token)
	}
	if cred.Cookies != "" {
		s.SetCookies(cred.Cookies)
	}
}

func (s *Session) SetCookies(raw string) {
	s.jar.SetCookies(s.cookieURL(), model.CookiesToHTTP(model.ParseCookieString(raw)))
}

// CookieString 返回当前 jar 中对站点根路径可见的 cookie 串。
func (s *Session) CookieString() string {
	return model.FormatCookieString(model.CookiesFromHTTP(s.jar.Cookies(s.cookieURL())))
}

// Reset 清空 cookie 和令牌，用于凭证失效后重新登录。
func (s *Session) Reset() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return
	}
	s.jar = jar
	s.client.SetCookieJar(jar)
	s.SetToken("")
}

func (s *Session) cookieURL() *url.URL {
	u := *s.base
	u.Path = "/"
	u.RawQuery = ""
	return &u
}
