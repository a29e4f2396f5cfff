package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ProxySource 从代理 API 取一条 "ip:端口" 文本。
type ProxySource struct {
	url    string
	client *resty.Client
}

func NewProxySource(apiURL string, timeout time.Duration) *ProxySource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ProxySource{url: strings.TrimSpace(apiURL), client: resty.New().SetTimeout(timeout)}
}

func (p *ProxySource) Enabled() bool { return p != nil && p.url != "" }

func (p *ProxySource) Next(ctx context.Context) (string, error) {
	if !p.Enabled() {
		return "", errors.New("proxy api url not configured")
	}
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		return "", fmt.Errorf("get proxy: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("get proxy: %s", resp.Status())
	}
	line := strings.TrimSpace(resp.String())
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" || !strings.Contains(line, ":") {
		return "", fmt.Errorf("get proxy: unexpected reply %q", line)
	}
	return line, nil
}
