package notify

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/mail"
	"strings"

	"gopkg.in/gomail.v2"

	"autotask/internal/logbus"
)

type EmailNotifier struct {
	email    string
	authCode string
	sender   string
	log      logbus.Logger
	send     func(host string, port int, ssl bool, user, pass string, msg *gomail.Message) error
}

func NewEmailNotifier(email, authCode string, log logbus.Logger) (*EmailNotifier, error) {
	n := &EmailNotifier{
		email:    strings.TrimSpace(email),
		authCode: strings.TrimSpace(authCode),
		sender:   "自动任务",
		log:      log,
		send:     dialAndSend,
	}
	if n.log == nil {
		n.log = logbus.Nop()
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func dialAndSend(host string, port int, ssl bool, user, pass string, msg *gomail.Message) error {
	d := gomail.NewDialer(host, port, user, pass)
	d.SSL = ssl
	return d.DialAndSend(msg)
}

func (n *EmailNotifier) validate() error {
	if n.email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(n.email); err != nil {
		return errors.New("invalid email")
	}
	if n.authCode == "" {
		return errors.New("authCode is required")
	}
	return nil
}

var emailHTMLTpl = template.Must(template.New("log").Parse(`<!doctype html>
<html><body style="font-family:-apple-system,Segoe UI,sans-serif">
<h3 style="margin:0 0 12px">{{.Title}}</h3>
<pre style="font-size:12px;line-height:1.5;background:#f6f8fa;padding:12px;border-radius:6px;white-space:pre-wrap">{{.Body}}</pre>
</body></html>`))

func (n *EmailNotifier) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host, port, useSSL, err := smtpConfigForEmail(n.email)
	if err != nil {
		return err
	}
	var html bytes.Buffer
	if err := emailHTMLTpl.Execute(&html, struct{ Title, Body string }{title, body}); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(n.email, n.sender))
	msg.SetHeader("To", n.email)
	msg.SetHeader("Subject", title)
	msg.SetBody("text/plain", body)
	msg.AddAlternative("text/html", html.String())

	if err := n.send(host, port, useSSL, n.email, n.authCode, msg); err != nil {
		return err
	}
	n.log.Log("info", "通知邮件已发送", map[string]any{"to": n.email, "title": title})
	return nil
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))
	is := func(d string) bool { return domain == d || strings.HasSuffix(domain, "."+d) }

	switch {
	case is("qq.com") || is("foxmail.com"):
		return "smtp.qq.com", 465, true, nil
	case is("163.com") || is("126.com") || is("yeah.net"):
		return "smtp.163.com", 465, true, nil
	case is("gmail.com"):
		return "smtp.gmail.com", 587, false, nil
	case is("outlook.com") || is("hotmail.com") || is("live.com"):
		return "smtp.office365.com", 587, false, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}
