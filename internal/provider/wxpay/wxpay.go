// Package wxpay 适配微信支付提现笔笔省小程序：授权码登录、查询免费券余额、领取可用优惠券。
package wxpay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"autotask/internal/auth"
	"autotask/internal/logbus"
	"autotask/internal/pace"
	"autotask/internal/provider"
	"autotask/internal/runner"
	"autotask/internal/session"
)

const (
	TokenHeader = "Session-Token"

	loginPath   = "/txbbs-user/user/login"
	balancePath = "/txbbs-mall/cashoutfree/getbalance"
	giftsPath   = "/txbbs-mall/gift/listgifts"
	redeemPath  = "/txbbs-mall/gift/redeemgift"

	giftTypeCoupon      = "GT_COUPON"
	giftStatusAvailable = "GS_AVAILABLE"
)

type envelope[T any] struct {
	ErrCode provider.FlexInt `json:"errcode"`
	Msg     string           `json:"msg"`
	Data    T                `json:"data"`
}

func (e envelope[T]) err(op string) error {
	msg := e.Msg
	if msg == "" {
		msg = "未知错误"
	}
	return fmt.Errorf("%s: errcode=%d %s", op, int64(e.ErrCode), msg)
}

type loginData struct {
	SessionToken string `json:"session_token"`
}

type balanceData struct {
	Balance provider.FlexInt `json:"balance"`
}

type couponInfo struct {
	Name string `json:"name"`
}

type Gift struct {
	ID         json.RawMessage `json:"gift_id"`
	Type       string          `json:"gift_type"`
	Status     string          `json:"gift_status"`
	CouponInfo couponInfo      `json:"coupon_info"`
}

func (g Gift) IDString() string { return strings.Trim(string(g.ID), `"`) }

// Redeemable 只有可领取状态的优惠券才尝试领取。
func (g Gift) Redeemable() bool {
	return g.Type == giftTypeCoupon && g.Status == giftStatusAvailable
}

type giftsData struct {
	Gifts []Gift `json:"gift_info_list"`
}

type redeemData struct {
	GiftInfo Gift `json:"gift_info"`
}

type Site struct {
	Log   logbus.Logger
	Pacer pace.Pacer
	// Gap 是同一任务内相邻两次接口调用的间隔。
	Gap pace.Range
}

var (
	_ auth.CodeExchanger = (*Site)(nil)
	_ auth.Validator     = (*Site)(nil)
)

func New(log logbus.Logger, pacer pace.Pacer, gap pace.Range) *Site {
	if log == nil {
		log = logbus.Nop()
	}
	return &Site{Log: log, Pacer: pacer, Gap: gap}
}

func decode[T any](resp *resty.Response, op string) (envelope[T], error) {
	var out envelope[T]
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return out, fmt.Errorf("%s: %s: %w", op, resp.Status(), err)
	}
	if out.ErrCode != 0 {
		return out, out.err(op)
	}
	return out, nil
}

func (s *Site) Exchange(ctx context.Context, sess *session.Session, code string) (string, error) {
	resp, err := sess.R(ctx).SetHeader("jscode", code).Get(loginPath)
	if err != nil {
		return "", err
	}
	out, err := decode[loginData](resp, "登录")
	if err != nil {
		return "", err
	}
	if out.Data.SessionToken == "" {
		return "", fmt.Errorf("登录: 未返回 session_token")
	}
	return out.Data.SessionToken, nil
}

// Balance 返回免费券余额（元，向下取整）。
func (s *Site) Balance(ctx context.Context, sess *session.Session) (int64, error) {
	resp, err := sess.R(ctx).Get(balancePath)
	if err != nil {
		return 0, err
	}
	out, err := decode[balanceData](resp, "获取用户余额")
	if err != nil {
		return 0, err
	}
	return int64(out.Data.Balance) / 100, nil
}

func (s *Site) Validate(ctx context.Context, sess *session.Session) bool {
	if sess.Token() == "" {
		return false
	}
	if _, err := s.Balance(ctx, sess); err != nil {
		s.Log.Log("warn", "[令牌检测]令牌无效", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func (s *Site) ListGifts(ctx context.Context, sess *session.Session) ([]Gift, error) {
	resp, err := sess.R(ctx).
		SetQueryParams(map[string]string{"longitude": "0", "latitude": "0"}).
		Get(giftsPath)
	if err != nil {
		return nil, err
	}
	out, err := decode[giftsData](resp, "获取优惠券列表")
	if err != nil {
		return nil, err
	}
	return out.Data.Gifts, nil
}

func (s *Site) Redeem(ctx context.Context, sess *session.Session, g Gift) (string, error) {
	resp, err := sess.R(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]json.RawMessage{"gift_id": g.ID}).
		Post(redeemPath)
	if err != nil {
		return "", err
	}
	out, err := decode[redeemData](resp, "领取优惠券")
	if err != nil {
		return "", err
	}
	name := out.Data.GiftInfo.CouponInfo.Name
	if name == "" {
		name = "未知名称"
	}
	return name, nil
}

// RedeemTask 列出优惠券并领取所有可领取的券，其余记为跳过。
func (s *Site) RedeemTask() runner.Task {
	return runner.Func("领券", func(ctx context.Context, job runner.Job, rec *runner.Recorder) error {
		gifts, err := s.ListGifts(ctx, job.Session)
		if err != nil {
			return err
		}
		if len(gifts) == 0 {
			rec.Skip("没有优惠券")
			return nil
		}
		for _, g := range gifts {
			item := rec.For(g.IDString())
			if !g.Redeemable() {
				item.Skip(fmt.Sprintf("%s/%s", g.Type, g.Status))
				continue
			}
			if err := s.wait(ctx); err != nil {
				return err
			}
			name, err := s.Redeem(ctx, job.Session, g)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				item.Fail(err.Error())
				continue
			}
			item.Succeed(name)
		}
		return nil
	})
}

func (s *Site) BalanceTask() runner.Task {
	return runner.Func("余额", func(ctx context.Context, job runner.Job, rec *runner.Recorder) error {
		yuan, err := s.Balance(ctx, job.Session)
		if err != nil {
			return err
		}
		b := strconv.FormatInt(yuan, 10)
		rec.SetBalance(b)
		rec.Succeed("当前提现免费券: " + b + "元")
		return nil
	})
}

func (s *Site) wait(ctx context.Context) error {
	if s.Pacer == nil {
		return ctx.Err()
	}
	return s.Pacer.Wait(ctx, s.Gap)
}
