package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"autotask/internal/pace"
)

// ErrNoAccounts 表示所有启用的站点都没有配置账号，本次运行无事可做。
var ErrNoAccounts = errors.New("no accounts configured")

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	OCR      OCRConfig      `yaml:"ocr"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	WXCode   WXCodeConfig   `yaml:"wxcode"`
	Limits   LimitsConfig   `yaml:"limits"`
	Pacing   PacingConfig   `yaml:"pacing"`
	Notify   NotifyConfig   `yaml:"notify"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sites    SitesConfig    `yaml:"sites"`
}

type ServerConfig struct {
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	// Driver 为 json（默认，每个站点一个文件）或 sqlite。
	Driver     string `yaml:"driver"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlitePath"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Capacity int    `yaml:"capacity"`
}

type OCRConfig struct {
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

func (c OCRConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type ProxyConfig struct {
	APIURL string `yaml:"apiURL"`
}

type WXCodeConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type LimitsConfig struct {
	RequestTimeoutMs int     `yaml:"requestTimeoutMs"`
	PerHostQPS       float64 `yaml:"perHostQPS"`
	AuthAttempts     int     `yaml:"authAttempts"`
	CommentAttempts  int     `yaml:"commentAttempts"`
	// GetRetries 为 GET 请求遇到 5xx 或网络错误时的重试次数，负数表示不重试。
	GetRetries int `yaml:"getRetries"`
}

func (c LimitsConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

type PacingConfig struct {
	APIMinMs      int `yaml:"apiMinMs"`
	APIMaxMs      int `yaml:"apiMaxMs"`
	RetryMinMs    int `yaml:"retryMinMs"`
	RetryMaxMs    int `yaml:"retryMaxMs"`
	CommentMinMs  int `yaml:"commentMinMs"`
	CommentMaxMs  int `yaml:"commentMaxMs"`
	PostListMinMs int `yaml:"postListMinMs"`
	PostListMaxMs int `yaml:"postListMaxMs"`
}

func msRange(min, max int) pace.Range {
	return pace.Range{Min: time.Duration(min) * time.Millisecond, Max: time.Duration(max) * time.Millisecond}
}

func (c PacingConfig) API() pace.Range      { return msRange(c.APIMinMs, c.APIMaxMs) }
func (c PacingConfig) Retry() pace.Range    { return msRange(c.RetryMinMs, c.RetryMaxMs) }
func (c PacingConfig) Comment() pace.Range  { return msRange(c.CommentMinMs, c.CommentMaxMs) }
func (c PacingConfig) PostList() pace.Range { return msRange(c.PostListMinMs, c.PostListMaxMs) }

type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Email    string `yaml:"email"`
	AuthCode string `yaml:"authCode"`
	Title    string `yaml:"title"`
}

type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

type SitesConfig struct {
	Sijishe SiteConfig `yaml:"sijishe"`
	Yyg     SiteConfig `yaml:"yyg"`
	Wxpay   SiteConfig `yaml:"wxpay"`
}

type SiteConfig struct {
	Disabled    bool     `yaml:"disabled"`
	Name        string   `yaml:"name"`
	Accounts    string   `yaml:"accounts"`
	AccountsEnv string   `yaml:"accountsEnv"`
	Separators  []string `yaml:"separators"`
	// BaseURL 非空时跳过域名发现，直接使用（本地 mock 调试用）。
	BaseURL       string `yaml:"baseURL"`
	DefaultHost   string `yaml:"defaultHost"`
	GuideURL      string `yaml:"guideURL"`
	GuideLinkText string `yaml:"guideLinkText"`
	UseProxy      bool   `yaml:"useProxy"`
	UserAgent     string `yaml:"userAgent"`
	AppID         string `yaml:"appID"`
}

// Load 读取 YAML 配置；文件不存在时只使用默认值和环境变量。
func Load(path string) (Config, error) {
	var b []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
		b = data
	}
	return Parse(b, os.Getenv)
}

func Parse(b []byte, getenv func(string) string) (Config, error) {
	var cfg Config
	if len(b) > 0 {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	if getenv != nil {
		cfg.applyEnv(getenv)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

const (
	defaultWebUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36"
	defaultWXUserAgent  = "Mozilla/5.0 (Linux; Android 12; M2012K11AC Build/SKQ1.220303.001; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/134.0.6998.136 Mobile Safari/537.36 XWEB/1340129 MMWEBSDK/20240301 MMWEBID/9871 MicroMessenger/8.0.48.2580(0x28003036) WeChat/arm64 Weixin NetType/WIFI Language/zh_CN ABI/arm64 MiniProgramEnv/android"
)

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "json"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/autotask.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Capacity <= 0 {
		c.Log.Capacity = 2000
	}
	if c.Limits.RequestTimeoutMs <= 0 {
		c.Limits.RequestTimeoutMs = 15000
	}
	if c.Limits.RequestTimeoutMs < 5000 {
		c.Limits.RequestTimeoutMs = 5000
	}
	if c.Limits.RequestTimeoutMs > 15000 {
		c.Limits.RequestTimeoutMs = 15000
	}
	if c.Limits.PerHostQPS <= 0 {
		c.Limits.PerHostQPS = 2
	}
	if c.Limits.AuthAttempts <= 0 {
		c.Limits.AuthAttempts = 3
	}
	if c.Limits.CommentAttempts <= 0 {
		c.Limits.CommentAttempts = 3
	}
	if c.Limits.GetRetries == 0 {
		c.Limits.GetRetries = 1
	}
	if c.Limits.GetRetries < 0 {
		c.Limits.GetRetries = 0
	}
	p := &c.Pacing
	defaultRange(&p.APIMinMs, &p.APIMaxMs, 3000, 5000)
	defaultRange(&p.RetryMinMs, &p.RetryMaxMs, 3000, 5000)
	defaultRange(&p.CommentMinMs, &p.CommentMaxMs, 16000, 30000)
	defaultRange(&p.PostListMinMs, &p.PostListMaxMs, 5000, 10000)
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "10 9,10 * * *"
	}

	s := &c.Sites.Sijishe
	setDefault(&s.Name, "司机社")
	setDefault(&s.AccountsEnv, "sijishe")
	setDefault(&s.DefaultHost, "sjs47.com")
	setDefault(&s.GuideURL, "https://47447.net/")
	setDefault(&s.GuideLinkText, "打开网站")
	setDefault(&s.UserAgent, defaultWebUserAgent)
	if len(s.Separators) == 0 {
		s.Separators = []string{"\n"}
	}

	y := &c.Sites.Yyg
	setDefault(&y.Name, "嘤嘤怪之家")
	setDefault(&y.AccountsEnv, "yyg")
	setDefault(&y.DefaultHost, "yyg.app")
	setDefault(&y.GuideURL, "https://yyg.autos/")
	setDefault(&y.GuideLinkText, "访问最新域名")
	setDefault(&y.UserAgent, defaultWebUserAgent)
	if len(y.Separators) == 0 {
		y.Separators = []string{"\n"}
	}

	w := &c.Sites.Wxpay
	setDefault(&w.Name, "微信支付提现笔笔省")
	setDefault(&w.AccountsEnv, "soy_wxid_data")
	setDefault(&w.DefaultHost, "discount.wxpapp.wechatpay.cn")
	setDefault(&w.UserAgent, defaultWXUserAgent)
	setDefault(&w.AppID, "wxdb3c0e388702f785")
	if len(w.Separators) == 0 {
		w.Separators = []string{"\n", "@"}
	}
}

// applyEnv 兼容原脚本的环境变量，非空时覆盖文件中的值。
func (c *Config) applyEnv(getenv func(string) string) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.OCR.URL, "DDDD_OCR_URL")
	override(&c.Proxy.APIURL, "PROXY_API_URL")
	override(&c.WXCode.URL, "soy_codeurl_data")
	override(&c.WXCode.Token, "soy_codetoken_data")
	override(&c.Notify.Email, "LY_NOTIFY_EMAIL")
	override(&c.Notify.AuthCode, "LY_NOTIFY_AUTH_CODE")
	switch strings.ToLower(strings.TrimSpace(getenv("LY_NOTIFY"))) {
	case "1", "true", "yes", "on":
		c.Notify.Enabled = true
	}
	for _, s := range []*SiteConfig{&c.Sites.Sijishe, &c.Sites.Yyg, &c.Sites.Wxpay} {
		// 账号串保留原样（含换行），不做 TrimSpace。
		if v := getenv(s.AccountsEnv); strings.TrimSpace(v) != "" {
			s.Accounts = v
		}
	}
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be json or sqlite, got %q", c.Storage.Driver)
	}
	p := c.Pacing
	for name, pair := range map[string][2]int{
		"api":      {p.APIMinMs, p.APIMaxMs},
		"retry":    {p.RetryMinMs, p.RetryMaxMs},
		"comment":  {p.CommentMinMs, p.CommentMaxMs},
		"postList": {p.PostListMinMs, p.PostListMaxMs},
	} {
		if pair[0] < 0 {
			return fmt.Errorf("pacing.%s: min %dms must not be negative", name, pair[0])
		}
		if pair[1] < pair[0] {
			return fmt.Errorf("pacing.%s: max %dms is below min %dms", name, pair[1], pair[0])
		}
	}
	if c.Notify.Enabled && strings.TrimSpace(c.Notify.Email) == "" {
		return errors.New("notify.email is required when notify is enabled")
	}
	return nil
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func defaultRange(min, max *int, dmin, dmax int) {
	if *min <= 0 && *max <= 0 {
		*min, *max = dmin, dmax
		return
	}
	if *max <= 0 {
		*max = *min
	}
}

// BaseURL 返回站点的访问根地址。
func (s SiteConfig) BaseURLFor(host string) string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	if host == "" {
		host = s.DefaultHost
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}
	return "https://" + strings.TrimRight(host, "/")
}
