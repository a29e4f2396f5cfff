// Package zibll 适配嘤嘤怪之家（WordPress + zibll 主题）：图片验证码登录、签到、评论和积分查询。
package zibll

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"autotask/internal/auth"
	"autotask/internal/captcha"
	"autotask/internal/logbus"
	"autotask/internal/model"
	"autotask/internal/pace"
	"autotask/internal/provider"
	"autotask/internal/session"
)

const (
	ajaxPath    = "/wp-admin/admin-ajax.php"
	captchaPath = "/wp-content/themes/zibll/action/captcha.php"
	balancePath = "/user/balance"

	captchaSignin  = "img_yz_signin"
	captchaComment = "submit_comment"
)

var reBalance = regexp.MustCompile(`积分: (\d+)`)

// reply 是 admin-ajax.php 的通用响应。
type reply struct {
	Error provider.FlexInt `json:"error"`
	Msg   string           `json:"msg"`
}

type captchaReply struct {
	Img string `json:"img"`
}

type Site struct {
	Log    logbus.Logger
	Solver captcha.Solver
	Pacer  pace.Pacer

	CommentGap      pace.Range
	RetryGap        pace.Range
	PostListGap     pace.Range
	CommentAttempts int
	PostListTries   int
	MaxPosts        int
	CategoryPath    string
	CommentText     string
	FallbackPostIDs []string
}

var (
	_ auth.ChallengeSite = (*Site)(nil)
	_ auth.Validator     = (*Site)(nil)
)

func New(log logbus.Logger, solver captcha.Solver, pacer pace.Pacer) *Site {
	if log == nil {
		log = logbus.Nop()
	}
	return &Site{
		Log:             log,
		Solver:          solver,
		Pacer:           pacer,
		CommentAttempts: 3,
		PostListTries:   3,
		MaxPosts:        4,
		CategoryPath:    "/category/pcgame?orderby=modified",
		CommentText:     "感谢分享",
		FallbackPostIDs: []string{"14818", "14817", "14816", "14815"},
	}
}

func (s *Site) fetchCaptcha(ctx context.Context, sess *session.Session, id string) ([]byte, error) {
	var out captchaReply
	resp, err := sess.R(ctx).
		SetQueryParams(map[string]string{"type": "image", "id": id}).
		SetResult(&out).
		ForceContentType("application/json").
		Get(captchaPath)
	if err != nil {
		return nil, err
	}
	if resp.IsError() || out.Img == "" {
		return nil, fmt.Errorf("captcha: %s 未返回图片", resp.Status())
	}
	return captcha.DecodeDataURI(out.Img)
}

func (s *Site) postAjax(ctx context.Context, sess *session.Session, form url.Values, referer string) (reply, error) {
	var out reply
	req := sess.R(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8").
		SetBody(form.Encode())
	if referer != "" {
		req.SetHeader("Referer", referer)
	}
	resp, err := req.Post(ajaxPath)
	if err != nil {
		return reply{}, err
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return reply{}, fmt.Errorf("admin-ajax: %s: %w", resp.Status(), err)
	}
	return out, nil
}

func (s *Site) FetchChallenge(ctx context.Context, sess *session.Session, attempt int) (auth.Challenge, error) {
	img, err := s.fetchCaptcha(ctx, sess, captchaSignin)
	if err != nil {
		return auth.Challenge{}, err
	}
	return auth.Challenge{Image: img}, nil
}

// VerifyChallenge 站点没有单独的校验接口，验证码随登录一起提交。
func (s *Site) VerifyChallenge(ctx context.Context, sess *session.Session, ch auth.Challenge, text string) (provider.Result, error) {
	return provider.OK(), nil
}

func (s *Site) Submit(ctx context.Context, sess *session.Session, acc model.Account, ch auth.Challenge, text string) (provider.Result, error) {
	form := url.Values{}
	form.Set("username", acc.ID)
	form.Set("password", acc.Secret)
	form.Set("canvas_yz", text)
	form.Set("remember", "forever")
	form.Set("action", "user_signin")
	out, err := s.postAjax(ctx, sess, form, "")
	if err != nil {
		return provider.Result{}, err
	}
	if out.Error == 0 {
		return provider.OK(), nil
	}
	if isCaptchaMismatch(out.Msg) {
		return provider.Rejected(out.Msg), nil
	}
	return provider.Fail(out.Msg), nil
}

func isCaptchaMismatch(msg string) bool {
	return strings.Contains(msg, "重新获取") ||
		strings.Contains(msg, "请输入图形验证码") ||
		strings.Contains(msg, "图形验证码错误")
}

func (s *Site) Validate(ctx context.Context, sess *session.Session) bool {
	resp, err := sess.R(ctx).Get(balancePath)
	if err != nil {
		s.Log.Log("warn", "[登录检测]请求失败", map[string]any{"error": err.Error()})
		return false
	}
	body := resp.String()
	if resp.IsError() || strings.Contains(body, "请先登录") {
		return false
	}
	return reBalance.MatchString(body)
}

// postIDs 从分类页取最新的帖子 id，多次取不到时使用默认 id。
func (s *Site) postIDs(ctx context.Context, sess *session.Session) ([]string, error) {
	tries := s.PostListTries
	if tries <= 0 {
		tries = 3
	}
	for try := 0; try <= tries; try++ {
		if try > 0 {
			s.Log.Log("info", "[获取帖子ID]未获取到帖子ID，重试", map[string]any{"try": try})
			if err := s.wait(ctx, s.PostListGap); err != nil {
				return nil, err
			}
		}
		resp, err := sess.R(ctx).
			SetHeader("Referer", sess.BaseURL()+"/category/pcgame").
			Get(s.CategoryPath)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
		if err != nil {
			continue
		}
		if ids := extractPostIDs(doc, s.MaxPosts); len(ids) > 0 {
			s.Log.Log("info", "[获取帖子ID]成功", map[string]any{"ids": strings.Join(ids, ",")})
			return ids, nil
		}
	}
	s.Log.Log("warn", "[获取帖子ID]多次未获取到帖子ID，使用默认帖子ID", map[string]any{"ids": strings.Join(s.FallbackPostIDs, ",")})
	return s.FallbackPostIDs, nil
}

func extractPostIDs(doc *goquery.Document, max int) []string {
	var ids []string
	doc.Find("posts .item-body h2 a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimRight(strings.TrimSpace(href), "/")
		last := href[strings.LastIndex(href, "/")+1:]
		id := strings.TrimSuffix(last, ".html")
		if id != "" {
			ids = append(ids, id)
		}
		return max <= 0 || len(ids) < max
	})
	return ids
}

func (s *Site) wait(ctx context.Context, r pace.Range) error {
	if s.Pacer == nil {
		return ctx.Err()
	}
	return s.Pacer.Wait(ctx, r)
}
