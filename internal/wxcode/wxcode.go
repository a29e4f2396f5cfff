// Package wxcode 通过外部微信协议服务为 wxid 获取小程序登录 code。
package wxcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"autotask/internal/auth"
)

type request struct {
	WXID  string `json:"wxid"`
	AppID string `json:"appid"`
}

type reply struct {
	Code    string `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		Code string `json:"code"`
	} `json:"data"`
}

type Client struct {
	url    string
	token  string
	appID  string
	client *resty.Client
}

var _ auth.CodeSource = (*Client)(nil)

func New(url, token, appID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:    strings.TrimSpace(url),
		token:  strings.TrimSpace(token),
		appID:  appID,
		client: resty.New().SetTimeout(timeout),
	}
}

func (c *Client) Code(ctx context.Context, wxid string) (string, error) {
	if c.url == "" {
		return "", errors.New("wxcode url not configured")
	}
	var out reply
	req := c.client.R().
		SetContext(ctx).
		SetBody(request{WXID: wxid, AppID: c.appID}).
		SetResult(&out).
		ForceContentType("application/json")
	if c.token != "" {
		req.SetHeader("token", c.token)
	}
	resp, err := req.Post(c.url)
	if err != nil {
		return "", fmt.Errorf("get code: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("get code: %s", resp.Status())
	}
	code := out.Code
	if code == "" {
		code = out.Data.Code
	}
	if code == "" {
		msg := out.Message
		if msg == "" {
			msg = "empty code"
		}
		return "", fmt.Errorf("get code: %s", msg)
	}
	return code, nil
}
