// mock 在本地模拟全部上游：两个论坛、小程序接口、OCR 和授权码服务。
// 配合 config.mock.yaml 中的 baseURL 使用，便于离线调试完整流程。
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	imagePrefix = "MOCK:"
	codeCookie  = "mock_seccode"
	password    = "pw"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	wrongRate := flag.Float64("ocr-wrong-rate", 0.3, "probability that the fake OCR answers wrong")
	flag.Parse()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	r.Mount("/sijishe", forumRoutes())
	r.Mount("/yyg", wordpressRoutes())
	r.Mount("/wxpay", newMiniapp().routes())
	r.Post("/ocr", ocrHandler(*wrongRate))
	r.Post("/wxcode", wxcodeHandler)

	log.Printf("mock upstreams listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, r))
}

// issueCaptcha 生成验证码并写入 cookie，图片内容里直接带着答案，供假 OCR 读取。
func issueCaptcha(w http.ResponseWriter) []byte {
	code := randString(4)
	http.SetCookie(w, &http.Cookie{Name: codeCookie, Value: code, Path: "/"})
	return []byte(imagePrefix + code)
}

func captchaOK(r *http.Request, answer string) bool {
	c, err := r.Cookie(codeCookie)
	return err == nil && answer != "" && strings.EqualFold(c.Value, answer)
}

func loggedIn(r *http.Request, name string) bool {
	c, err := r.Cookie(name)
	return err == nil && c.Value != ""
}

func forumRoutes() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/member.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("loginsubmit") != "yes" {
			fmt.Fprint(w, `<root><![CDATA[<form><input type="hidden" name="formhash" value="mk12FH34" />
<span id="seccode_cSAmck"></span><div id="main_messaqge_Lmck1"></div></form>]]></root>`)
			return
		}
		_ = r.ParseForm()
		switch {
		case !captchaOK(r, r.PostForm.Get("seccodeverify")):
			fmt.Fprint(w, `<root><![CDATA[抱歉，验证码填写错误]]></root>`)
		case r.PostForm.Get("password") != password:
			fmt.Fprint(w, `<root><![CDATA[登录失败，您还可以尝试 4 次]]></root>`)
		default:
			http.SetCookie(w, &http.Cookie{Name: "sjs_auth", Value: r.PostForm.Get("username"), Path: "/"})
			fmt.Fprintf(w, `<root><![CDATA[欢迎您回来，<font>老司机</font> %s，现在将转入登录前页面]]></root>`, r.PostForm.Get("username"))
		}
	})
	r.Get("/misc.php", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") == "check" {
			if captchaOK(r, q.Get("secverify")) {
				fmt.Fprint(w, `<root><![CDATA[succeed]]></root>`)
			} else {
				fmt.Fprint(w, `<root><![CDATA[invalid]]></root>`)
			}
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(issueCaptcha(w))
	})
	r.Get("/home.php", func(w http.ResponseWriter, r *http.Request) {
		if loggedIn(r, "sjs_auth") {
			fmt.Fprint(w, "<html>个人空间</html>")
			return
		}
		fmt.Fprint(w, "<html>请先登录后才能继续浏览</html>")
	})

	var mu sync.Mutex
	signed := map[string]bool{}
	r.Get("/k_misign-sign.html", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("operation") != "qiandao" {
			fmt.Fprint(w, `<a href="plugin.php?id=k_misign:sign&operation=qiandao&formhash=mkSG5678&format=empty">签到</a>`)
			return
		}
		c, err := r.Cookie("sjs_auth")
		if err != nil {
			fmt.Fprint(w, `<root><![CDATA[请先登录]]></root>`)
			return
		}
		mu.Lock()
		already := signed[c.Value]
		signed[c.Value] = true
		mu.Unlock()
		if already {
			fmt.Fprint(w, `<root><![CDATA[今日已签]]></root>`)
			return
		}
		fmt.Fprintf(w, `<root><![CDATA[<p>签到成功 获得随机奖励 %d车票 和 。</p>]]></root>`, 100+rand.Intn(200))
	})
	return r
}

func wordpressRoutes() http.Handler {
	r := chi.NewRouter()
	var mu sync.Mutex
	checkedIn := map[string]bool{}
	points := map[string]int{}

	r.Get("/wp-content/themes/zibll/action/captcha.php", func(w http.ResponseWriter, r *http.Request) {
		img := base64.StdEncoding.EncodeToString(issueCaptcha(w))
		writeJSON(w, map[string]any{"img": "data:image/png;base64," + img})
	})
	r.Post("/wp-admin/admin-ajax.php", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f := r.PostForm
		user := ""
		if c, err := r.Cookie("wordpress_logged_in_mock"); err == nil {
			user = c.Value
		}
		mu.Lock()
		defer mu.Unlock()

		switch f.Get("action") {
		case "user_signin":
			switch {
			case !captchaOK(r, f.Get("canvas_yz")):
				writeJSON(w, map[string]any{"error": 1, "msg": "图形验证码错误"})
			case f.Get("password") != password:
				writeJSON(w, map[string]any{"error": 1, "msg": "用户名或密码错误"})
			default:
				http.SetCookie(w, &http.Cookie{Name: "wordpress_logged_in_mock", Value: f.Get("username"), Path: "/"})
				writeJSON(w, map[string]any{"error": 0, "msg": "登录成功"})
			}
		case "user_checkin":
			if user == "" {
				writeJSON(w, map[string]any{"error": 1, "msg": "请先登录"})
			} else if checkedIn[user] {
				writeJSON(w, map[string]any{"error": 1, "msg": "今日已签到"})
			} else {
				checkedIn[user] = true
				points[user] += 5
				writeJSON(w, map[string]any{"error": "0", "msg": "签到成功，积分+5"})
			}
		case "submit_comment":
			if !captchaOK(r, f.Get("canvas_yz")) {
				writeJSON(w, map[string]any{"error": 1, "msg": "图形验证码错误"})
				return
			}
			points[user]++
			writeJSON(w, map[string]any{"error": 0, "msg": "评论成功"})
		default:
			writeJSON(w, map[string]any{"error": 1, "msg": "unknown action"})
		}
	})
	r.Get("/category/pcgame", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><posts>`)
		for id := 20001; id <= 20006; id++ {
			fmt.Fprintf(w, `<div class="item-body"><h2><a href="/%d.html">post %d</a></h2></div>`, id, id)
		}
		fmt.Fprint(w, `</posts></body></html>`)
	})
	r.Get("/user/balance", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("wordpress_logged_in_mock")
		if err != nil {
			fmt.Fprint(w, "<html>请先登录</html>")
			return
		}
		mu.Lock()
		p := points[c.Value]
		mu.Unlock()
		fmt.Fprintf(w, "<html><div>积分: %d</div></html>", p)
	})
	return r
}

type miniapp struct {
	mu       sync.Mutex
	balances map[string]int
	redeemed map[string]bool
}

func newMiniapp() *miniapp {
	return &miniapp{balances: map[string]int{}, redeemed: map[string]bool{}}
}

func (m *miniapp) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/txbbs-user/user/login", func(w http.ResponseWriter, r *http.Request) {
		code := r.Header.Get("jscode")
		if !strings.HasPrefix(code, "code-") {
			writeJSON(w, map[string]any{"errcode": "40029", "msg": "invalid code"})
			return
		}
		writeJSON(w, map[string]any{"errcode": 0, "data": map[string]any{"session_token": "tok-" + strings.TrimPrefix(code, "code-")}})
	})
	r.Get("/txbbs-mall/cashoutfree/getbalance", func(w http.ResponseWriter, r *http.Request) {
		tok, ok := m.token(w, r)
		if !ok {
			return
		}
		m.mu.Lock()
		b := m.balances[tok]
		m.mu.Unlock()
		writeJSON(w, map[string]any{"errcode": 0, "data": map[string]any{"balance": fmt.Sprint(b)}})
	})
	r.Get("/txbbs-mall/gift/listgifts", func(w http.ResponseWriter, r *http.Request) {
		tok, ok := m.token(w, r)
		if !ok {
			return
		}
		m.mu.Lock()
		status := "GS_AVAILABLE"
		if m.redeemed[tok] {
			status = "GS_REDEEMED"
		}
		m.mu.Unlock()
		writeJSON(w, map[string]any{"errcode": 0, "data": map[string]any{"gift_info_list": []map[string]any{
			{"gift_id": "g-coupon", "gift_type": "GT_COUPON", "gift_status": status},
			{"gift_id": 7, "gift_type": "GT_POINTS", "gift_status": "GS_AVAILABLE"},
		}}})
	})
	r.Post("/txbbs-mall/gift/redeemgift", func(w http.ResponseWriter, r *http.Request) {
		tok, ok := m.token(w, r)
		if !ok {
			return
		}
		m.mu.Lock()
		m.redeemed[tok] = true
		m.balances[tok] += 100
		m.mu.Unlock()
		writeJSON(w, map[string]any{"errcode": 0, "data": map[string]any{"gift_info": map[string]any{"coupon_info": map[string]any{"name": "1元提现免费券"}}}})
	})
	return r
}

func (m *miniapp) token(w http.ResponseWriter, r *http.Request) (string, bool) {
	tok := r.Header.Get("Session-Token")
	if !strings.HasPrefix(tok, "tok-") {
		writeJSON(w, map[string]any{"errcode": -1, "msg": "session expired"})
		return "", false
	}
	return tok, true
}

func ocrHandler(wrongRate float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, map[string]any{"message": "bad request"})
			return
		}
		raw, err := base64.StdEncoding.DecodeString(body.Image)
		if err != nil || !strings.HasPrefix(string(raw), imagePrefix) {
			writeJSON(w, map[string]any{"message": "unrecognized image"})
			return
		}
		answer := strings.TrimPrefix(string(raw), imagePrefix)
		if rand.Float64() < wrongRate {
			answer = "zzzz"
		}
		writeJSON(w, map[string]any{"result": answer})
	}
}

func wxcodeHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WXID  string `json:"wxid"`
		AppID string `json:"appid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.WXID == "" {
		writeJSON(w, map[string]any{"msg": "wxid required"})
		return
	}
	writeJSON(w, map[string]any{"data": map[string]any{"code": "code-" + body.WXID}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func randString(n int) string {
	const alphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
