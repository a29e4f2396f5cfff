package engine

import (
	"context"
	"strings"

	"autotask/internal/accounts"
	"autotask/internal/auth"
	"autotask/internal/captcha"
	"autotask/internal/config"
	"autotask/internal/logbus"
	"autotask/internal/model"
	"autotask/internal/pace"
	"autotask/internal/provider"
	"autotask/internal/provider/discuz"
	"autotask/internal/provider/wxpay"
	"autotask/internal/provider/zibll"
	"autotask/internal/runner"
	"autotask/internal/session"
	"autotask/internal/store"
	"autotask/internal/store/jsonfile"
	"autotask/internal/store/sqlite"
	"autotask/internal/wxcode"
)

const (
	SiteSijishe = "sijishe"
	SiteYyg     = "yyg"
	SiteWxpay   = "wxpay"
)

// Sites 为固定的运行顺序。
var Sites = []string{SiteSijishe, SiteYyg, SiteWxpay}

type BuildDeps struct {
	Log    logbus.Logger
	Solver captcha.Solver
	Pacer  pace.Pacer
	// DB 非空时凭证存入 SQLite，否则每个站点一个 JSON 文件。
	DB *sqlite.Store
	// Only 非空时只构建该站点。
	Only string
}

// BuildProfiles 根据配置构建各站点的运行配置。没有任何站点配置账号时返回 config.ErrNoAccounts。
func BuildProfiles(ctx context.Context, cfg config.Config, deps BuildDeps) ([]Profile, error) {
	if deps.Log == nil {
		deps.Log = logbus.Nop()
	}
	if deps.Pacer == nil {
		deps.Pacer = pace.Sleeper{}
	}

	var out []Profile
	for _, key := range Sites {
		if deps.Only != "" && deps.Only != key {
			continue
		}
		sc := siteConfig(cfg, key)
		log := logbus.With(deps.Log, map[string]any{"site": key})
		if sc.Disabled {
			log.Log("info", "站点已禁用", nil)
			continue
		}
		accs := accounts.Parse(sc.Accounts, accounts.ParseOptions{
			Separators:   sc.Separators,
			BareIsCookie: key != SiteWxpay,
		})
		if len(accs) == 0 {
			log.Log("info", "未配置账号，跳过", map[string]any{"env": sc.AccountsEnv})
			continue
		}

		host := resolveHost(ctx, cfg, sc, log)
		p := Profile{
			Site:     key,
			Name:     sc.Name,
			Host:     host,
			Accounts: accs,
			Store:    credentialStore(cfg, deps.DB, key, host),
			UseProxy: sc.UseProxy,
		}
		opts := session.Options{
			BaseURL:    sc.BaseURLFor(host),
			Timeout:    cfg.Limits.RequestTimeout(),
			UserAgent:  sc.UserAgent,
			QPS:        cfg.Limits.PerHostQPS,
			GetRetries: cfg.Limits.GetRetries,
			Log:        log,
		}

		switch key {
		case SiteSijishe:
			site := discuz.New(log)
			p.Auth = challengeAuth(cfg, site, deps, log)
			p.Validator = site
			p.Tasks = []runner.Task{site.SignTask()}
		case SiteYyg:
			site := zibll.New(log, deps.Solver, deps.Pacer)
			site.CommentGap = cfg.Pacing.Comment()
			site.RetryGap = cfg.Pacing.Retry()
			site.PostListGap = cfg.Pacing.PostList()
			site.CommentAttempts = cfg.Limits.CommentAttempts
			p.Auth = challengeAuth(cfg, site, deps, log)
			p.Validator = site
			p.Tasks = []runner.Task{site.CheckinTask(), site.CommentTask(), site.BalanceTask()}
		case SiteWxpay:
			site := wxpay.New(log, deps.Pacer, cfg.Pacing.API())
			p.Auth = &auth.CodeExchangeAuthenticator{
				Codes:     wxcode.New(cfg.WXCode.URL, cfg.WXCode.Token, sc.AppID, cfg.Limits.RequestTimeout()),
				Exchanger: site,
				Log:       log,
			}
			p.Validator = site
			p.Tasks = []runner.Task{site.RedeemTask(), site.BalanceTask()}
			opts.TokenHeader = wxpay.TokenHeader
			if sc.BaseURL == "" {
				opts.Headers = map[string]string{"authority": host}
			}
		}

		p.NewSession = func(acc model.Account) (*session.Session, error) {
			o := opts
			o.Log = logbus.With(log, map[string]any{"account": acc.ID})
			return session.New(o)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, config.ErrNoAccounts
	}
	return out, nil
}

func siteConfig(cfg config.Config, key string) config.SiteConfig {
	switch key {
	case SiteSijishe:
		return cfg.Sites.Sijishe
	case SiteYyg:
		return cfg.Sites.Yyg
	default:
		return cfg.Sites.Wxpay
	}
}

func challengeAuth(cfg config.Config, site auth.ChallengeSite, deps BuildDeps, log logbus.Logger) *auth.ChallengeAuthenticator {
	return &auth.ChallengeAuthenticator{
		Site:        site,
		Solver:      deps.Solver,
		Pacer:       deps.Pacer,
		Gap:         cfg.Pacing.Retry(),
		MaxAttempts: cfg.Limits.AuthAttempts,
		Log:         log,
	}
}

// resolveHost 优先使用配置的 baseURL，其次从发布页发现最新域名，失败时回退到默认域名。
func resolveHost(ctx context.Context, cfg config.Config, sc config.SiteConfig, log logbus.Logger) string {
	if sc.BaseURL != "" {
		return strings.TrimRight(sc.BaseURL, "/")
	}
	host, err := provider.DiscoverHost(ctx, sc.GuideURL, sc.GuideLinkText, sc.DefaultHost, cfg.Limits.RequestTimeout())
	if err != nil {
		log.Log("warn", "获取最新域名失败，使用默认域名", map[string]any{"host": host, "error": err.Error()})
	} else if sc.GuideURL != "" {
		log.Log("info", "获取最新域名", map[string]any{"host": host})
	}
	return host
}

func credentialStore(cfg config.Config, db *sqlite.Store, key, host string) store.CredentialStore {
	if db != nil {
		return db.Credentials(key)
	}
	s := jsonfile.New(jsonfile.PathFor(cfg.Storage.Dir, key), key)
	s.SetHost(host)
	return s
}
