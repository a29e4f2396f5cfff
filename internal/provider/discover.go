package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// DiscoverHost 打开发布页，找到文字包含 linkText 的第一个链接，返回其域名。
// 找不到或请求失败时返回 fallback 和错误，调用方可以直接使用 fallback。
func DiscoverHost(ctx context.Context, guideURL, linkText, fallback string, timeout time.Duration) (string, error) {
	if guideURL == "" || linkText == "" {
		return fallback, nil
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	resp, err := resty.New().SetTimeout(timeout).R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(guideURL)
	if err != nil {
		return fallback, fmt.Errorf("open guide page: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return fallback, fmt.Errorf("open guide page: %s", resp.Status())
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return fallback, fmt.Errorf("parse guide page: %w", err)
	}
	host := HostFromDocument(doc, linkText)
	if host == "" {
		return fallback, fmt.Errorf("no link matching %q", linkText)
	}
	return host, nil
}

func HostFromDocument(doc *goquery.Document, linkText string) string {
	var host string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(strings.TrimSpace(a.Text()), linkText) {
			return true
		}
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		host = hostOf(href)
		return host == ""
	})
	return host
}

func hostOf(href string) string {
	href = strings.TrimSpace(href)
	if _, rest, ok := strings.Cut(href, "//"); ok {
		href = rest
	}
	href, _, _ = strings.Cut(href, "/")
	return strings.TrimSpace(href)
}
