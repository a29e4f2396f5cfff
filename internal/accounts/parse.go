// Package accounts 解析多账号配置串。
package accounts

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"autotask/internal/model"
)

type ParseOptions struct {
	// Separators 按顺序检测，使用第一个在串中出现的分隔符；都不出现时整串视为单账号。
	Separators []string
	// BareIsCookie 为 true 时，不含 "&" 的条目若形如 cookie 串则按 cookie 处理。
	BareIsCookie bool
}

// Parse 把 raw 拆成账号列表，保持原有顺序。条目格式：
//
//	id&secret
//	key=value      （值作为 id）
//	a=1; b=2       （BareIsCookie 时视为 cookie，id 见 CookieID）
//	id
func Parse(raw string, opts ParseOptions) []model.Account {
	seps := opts.Separators
	if len(seps) == 0 {
		seps = []string{"\n"}
	}
	entries := []string{raw}
	for _, sep := range seps {
		if sep != "" && strings.Contains(raw, sep) {
			entries = strings.Split(raw, sep)
			break
		}
	}

	var out []model.Account
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		out = append(out, parseEntry(entry, opts.BareIsCookie))
	}
	return out
}

func parseEntry(entry string, bareIsCookie bool) model.Account {
	if id, secret, ok := strings.Cut(entry, "&"); ok {
		return model.Account{ID: strings.TrimSpace(id), Secret: strings.TrimSpace(secret)}
	}
	if bareIsCookie && looksLikeCookie(entry) {
		return model.Account{ID: CookieID(entry), Cookie: entry}
	}
	if _, value, ok := strings.Cut(entry, "="); ok {
		return model.Account{ID: strings.TrimSpace(value)}
	}
	return model.Account{ID: entry}
}

func looksLikeCookie(entry string) bool {
	return len(model.ParseCookieString(entry)) > 0
}

// CookieID 为 cookie 账号生成不随配置顺序变化的 id：
// 有 wordpress_logged_in 时取其中的用户名，否则取规范化 cookie 串的摘要。
func CookieID(raw string) string {
	cookies := model.ParseCookieString(raw)
	for _, c := range cookies {
		if !strings.HasPrefix(c.Name, "wordpress_logged_in") {
			continue
		}
		v, err := url.QueryUnescape(c.Value)
		if err != nil {
			v = c.Value
		}
		if user, _, ok := strings.Cut(v, "|"); ok && user != "" {
			return "cookie-" + user
		}
	}
	sum := sha256.Sum256([]byte(model.FormatCookieString(cookies)))
	return "cookie-" + hex.EncodeToString(sum[:6])
}
