package zibll

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotask/internal/auth"
	"autotask/internal/model"
	"autotask/internal/pace"
	"autotask/internal/runner"
	"autotask/internal/session"
)

type wp struct {
	categoryHTML string
	comments     map[string]int
	commentCodes []string
	checkedIn    bool
}

func (s *wp) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(captchaPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"img": "data:image/png;base64,UE5H"})
	})
	mux.HandleFunc(ajaxPath, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f := r.PostForm
		out := map[string]any{"error": 0}
		switch f.Get("action") {
		case "user_signin":
			switch {
			case f.Get("canvas_yz") != "good":
				out = map[string]any{"error": 1, "msg": "图形验证码错误，请重新获取"}
			case f.Get("password") != "pw":
				out = map[string]any{"error": 1, "msg": "用户名或密码错误"}
			default:
				http.SetCookie(w, &http.Cookie{Name: "wordpress_logged_in_x", Value: "u", Path: "/"})
				out["msg"] = "登录成功"
			}
		case "user_checkin":
			if s.checkedIn {
				out = map[string]any{"error": 1, "msg": "今日已签到"}
			} else {
				s.checkedIn = true
				out["msg"] = "签到成功，积分+5"
			}
		case "submit_comment":
			assert.Equal(t, "感谢分享", f.Get("comment"))
			s.commentCodes = append(s.commentCodes, f.Get("canvas_yz"))
			if f.Get("canvas_yz") != "good" {
				out = map[string]any{"error": 1, "msg": "图形验证码错误"}
				break
			}
			s.comments[f.Get("comment_post_ID")]++
			out["msg"] = "评论成功"
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/category/pcgame", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, s.categoryHTML)
	})
	mux.HandleFunc(balancePath, func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("wordpress_logged_in_x"); err != nil {
			fmt.Fprint(w, "请先登录")
			return
		}
		fmt.Fprint(w, "<div>积分: 135</div><div>积分: 5</div>")
	})
	return mux
}

type queueSolver struct{ answers []string }

func (q *queueSolver) Solve(ctx context.Context, image []byte) (string, error) {
	if string(image) != "PNG" {
		return "", fmt.Errorf("unexpected image %q", image)
	}
	a := q.answers[0]
	if len(q.answers) > 1 {
		q.answers = q.answers[1:]
	}
	return a, nil
}

func setup(t *testing.T, answers ...string) (*wp, *Site, *session.Session, *pace.Record) {
	t.Helper()
	state := &wp{comments: map[string]int{}}
	srv := httptest.NewServer(state.handler(t))
	t.Cleanup(srv.Close)
	sess, err := session.New(session.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	pacer := &pace.Record{}
	return state, New(nil, &queueSolver{answers: answers}, pacer), sess, pacer
}

func TestLoginSubmitRejectsCaptchaThenSucceeds(t *testing.T) {
	_, site, sess, _ := setup(t)
	a := &auth.ChallengeAuthenticator{Site: site, Solver: &queueSolver{answers: []string{"bad", "good"}}, Pacer: &pace.Record{}}

	cred, err := a.Authenticate(context.Background(), sess, model.Account{ID: "user", Secret: "pw"})
	require.NoError(t, err)
	assert.Contains(t, cred.Cookies, "wordpress_logged_in_x=u")
	assert.True(t, site.Validate(context.Background(), sess))
}

func TestLoginWrongPassword(t *testing.T) {
	_, site, sess, _ := setup(t)
	a := &auth.ChallengeAuthenticator{Site: site, Solver: &queueSolver{answers: []string{"good"}}}
	_, err := a.Authenticate(context.Background(), sess, model.Account{ID: "user", Secret: "nope"})
	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, auth.FailureRejected, authErr.Failure)
	assert.Equal(t, "用户名或密码错误", authErr.Reason)
}

func TestValidateTransportError(t *testing.T) {
	_, site, _, _ := setup(t)
	sess, err := session.New(session.Options{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.False(t, site.Validate(context.Background(), sess))
}

func TestTasks(t *testing.T) {
	state, site, sess, pacer := setup(t, "bad", "good")
	state.categoryHTML = `<html><body><main>
		<posts class="posts-item"><div class="item-body flex xx flex1 jsb"><h2><a href="https://yyg.boats/14901.html">a</a></h2></div></posts>
		<posts class="posts-item"><div class="item-body flex xx flex1 jsb"><h2><a href="https://yyg.boats/14900.html">b</a></h2></div></posts>
	</main></body></html>`
	sess.SetCookies("wordpress_logged_in_x=u")

	job := runner.Job{Site: "yyg", Account: model.Account{ID: "user"}, Session: sess}
	res := (&runner.Runner{}).Run(context.Background(), job, []runner.Task{site.CheckinTask(), site.CommentTask(), site.BalanceTask()})

	require.Len(t, res.Outcomes, 4)
	assert.Equal(t, model.TaskOutcome{Task: "签到", Status: model.OutcomeSucceeded, Reason: "签到成功，积分+5"}, res.Outcomes[0])
	assert.Equal(t, "评论/14901", res.Outcomes[1].Task)
	assert.Equal(t, model.OutcomeSucceeded, res.Outcomes[1].Status)
	assert.Equal(t, "评论/14900", res.Outcomes[2].Task)
	assert.Equal(t, "积分", res.Outcomes[3].Task)
	assert.Equal(t, "135", res.Balance)

	assert.Equal(t, map[string]int{"14901": 1, "14900": 1}, state.comments)
	assert.Equal(t, []string{"bad", "good", "good"}, state.commentCodes)
	// 一次验证码重试间隔，加上两个帖子之间的评论间隔。
	assert.Len(t, pacer.Waits, 2)
}

func TestCommentGivesUpAfterThreeMismatches(t *testing.T) {
	state, site, sess, _ := setup(t, "bad")
	msg, err := site.comment(context.Background(), sess, "14818")
	require.Error(t, err)
	assert.Empty(t, msg)
	assert.Len(t, state.commentCodes, 3)
}

func TestPostIDsFallback(t *testing.T) {
	state, site, sess, pacer := setup(t)
	state.categoryHTML = "<html>nothing here</html>"
	ids, err := site.postIDs(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"14818", "14817", "14816", "14815"}, ids)
	assert.Len(t, pacer.Waits, 3)
}

func TestCheckinAlreadyDone(t *testing.T) {
	state, site, sess, _ := setup(t)
	state.checkedIn = true
	res := (&runner.Runner{}).Run(context.Background(), runner.Job{Session: sess}, []runner.Task{site.CheckinTask()})
	assert.Equal(t, model.OutcomeSkipped, res.Outcomes[0].Status)
}
