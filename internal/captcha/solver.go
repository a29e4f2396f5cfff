// Package captcha 调用外部 OCR 服务识别图片验证码。
package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUnavailable 表示本次没有拿到可用的识别结果（未配置、网络错误、服务报错或结果为空）。
var ErrUnavailable = errors.New("captcha solver unavailable")

type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

type solveRequest struct {
	Image string `json:"image"`
}

type solveResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

type Status struct {
	SolveCount    int64 `json:"solveCount"`
	FailCount     int64 `json:"failCount"`
	TotalSolveMs  int64 `json:"totalSolveMs"`
	LastSolveAtMs int64 `json:"lastSolveAtMs"`
	LastSolveMs   int64 `json:"lastSolveMs"`
}

// OCRClient 是 ddddocr 风格 HTTP 服务的客户端：POST {"image": base64}，返回 {"result"} 或 {"message"}。
type OCRClient struct {
	url    string
	client *resty.Client

	solveCount    atomic.Int64
	failCount     atomic.Int64
	totalSolveMs  atomic.Int64
	lastSolveAtMs atomic.Int64
	lastSolveMs   atomic.Int64
}

func NewOCRClient(url string, timeout time.Duration) *OCRClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &OCRClient{url: strings.TrimSpace(url), client: c}
}

func (o *OCRClient) Solve(ctx context.Context, image []byte) (string, error) {
	if o.url == "" {
		return "", fmt.Errorf("%w: ocr url not configured", ErrUnavailable)
	}
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrUnavailable)
	}
	start := time.Now()
	text, err := o.solve(ctx, image)
	elapsed := time.Since(start).Milliseconds()
	o.lastSolveAtMs.Store(time.Now().UnixMilli())
	o.lastSolveMs.Store(elapsed)
	o.totalSolveMs.Add(elapsed)
	if err != nil {
		o.failCount.Add(1)
		return "", err
	}
	o.solveCount.Add(1)
	return text, nil
}

func (o *OCRClient) solve(ctx context.Context, image []byte) (string, error) {
	var out solveResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(solveRequest{Image: base64.StdEncoding.EncodeToString(image)}).
		SetResult(&out).
		SetError(&out).
		ForceContentType("application/json").
		Post(o.url)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		msg := out.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	text := strings.TrimSpace(out.Result)
	if text == "" {
		msg := out.Message
		if msg == "" {
			msg = "empty result"
		}
		return "", fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	return text, nil
}

func (o *OCRClient) Status() Status {
	return Status{
		SolveCount:    o.solveCount.Load(),
		FailCount:     o.failCount.Load(),
		TotalSolveMs:  o.totalSolveMs.Load(),
		LastSolveAtMs: o.lastSolveAtMs.Load(),
		LastSolveMs:   o.lastSolveMs.Load(),
	}
}

// DecodeDataURI 解码 "data:image/png;base64,..." 或裸 base64 字符串。
func DecodeDataURI(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ","); ok {
			s = rest
		}
	}
	return base64.StdEncoding.DecodeString(s)
}
