package zibll

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"autotask/internal/runner"
	"autotask/internal/session"
)

func (s *Site) CheckinTask() runner.Task {
	return runner.Func("签到", func(ctx context.Context, job runner.Job, rec *runner.Recorder) error {
		form := url.Values{}
		form.Set("action", "user_checkin")
		out, err := s.postAjax(ctx, job.Session, form, "")
		if err != nil {
			return fmt.Errorf("签到: %w", err)
		}
		switch {
		case out.Error == 0:
			rec.Succeed(out.Msg)
		case strings.Contains(out.Msg, "已签到") || strings.Contains(out.Msg, "已经签到"):
			rec.Skip(out.Msg)
		default:
			return errors.New(out.Msg)
		}
		return nil
	})
}

// CommentTask 给最新的几个帖子各评论一次，帖子之间间隔 CommentGap。
func (s *Site) CommentTask() runner.Task {
	return runner.Func("评论", func(ctx context.Context, job runner.Job, rec *runner.Recorder) error {
		ids, err := s.postIDs(ctx, job.Session)
		if err != nil {
			return err
		}
		for i, id := range ids {
			if i > 0 {
				if err := s.wait(ctx, s.CommentGap); err != nil {
					return err
				}
			}
			item := rec.For(id)
			msg, err := s.comment(ctx, job.Session, id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				item.Fail(err.Error())
				continue
			}
			item.Succeed(msg)
		}
		return nil
	})
}

// comment 提交一条评论；站点报图形验证码错误时换一张验证码重试，最多 CommentAttempts 次。
func (s *Site) comment(ctx context.Context, sess *session.Session, postID string) (string, error) {
	attempts := s.CommentAttempts
	if attempts <= 0 {
		attempts = 3
	}
	lastReason := ""
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			s.Log.Log("info", "[评论]验证码错误，重试", map[string]any{"post": postID, "attempt": attempt})
			if err := s.wait(ctx, s.RetryGap); err != nil {
				return "", err
			}
		}
		img, err := s.fetchCaptcha(ctx, sess, captchaComment)
		if err != nil {
			lastReason = "获取验证码失败: " + err.Error()
			continue
		}
		text, err := s.Solver.Solve(ctx, img)
		if err != nil || strings.TrimSpace(text) == "" {
			lastReason = "获取验证码文字失败"
			continue
		}

		form := url.Values{}
		form.Set("comment", s.CommentText)
		form.Set("canvas_yz", strings.TrimSpace(text))
		form.Set("comment_post_ID", postID)
		form.Set("comment_parent", "0")
		form.Set("action", "submit_comment")
		out, err := s.postAjax(ctx, sess, form, sess.BaseURL()+"/"+postID+".html")
		if err != nil {
			lastReason = err.Error()
			continue
		}
		if strings.Contains(out.Msg, "图形验证码错误") {
			lastReason = out.Msg
			continue
		}
		if out.Error != 0 {
			return "", errors.New(out.Msg)
		}
		return out.Msg, nil
	}
	return "", fmt.Errorf("验证码错误重试次数已达上限: %s", lastReason)
}

func (s *Site) BalanceTask() runner.Task {
	return runner.Func("积分", func(ctx context.Context, job runner.Job, rec *runner.Recorder) error {
		resp, err := job.Session.R(ctx).Get(balancePath)
		if err != nil {
			return fmt.Errorf("获取用户积分: %w", err)
		}
		m := reBalance.FindStringSubmatch(resp.String())
		if m == nil {
			return errors.New("未找到积分记录")
		}
		rec.SetBalance(m[1])
		rec.Succeed("当前积分: " + m[1])
		return nil
	})
}
