package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"autotask/internal/captcha"
	"autotask/internal/config"
	"autotask/internal/engine"
	"autotask/internal/httpapi"
	"autotask/internal/logbus"
	"autotask/internal/metrics"
	"autotask/internal/notify"
	"autotask/internal/pace"
	"autotask/internal/provider"
	"autotask/internal/runner"
	"autotask/internal/scheduler"
	"autotask/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	serve := flag.Bool("serve", false, "run as a daemon: cron schedule plus admin HTTP API")
	only := flag.String("site", "", "run a single site: sijishe, yyg or wxpay")
	envFile := flag.String("env", ".env", "optional .env file with account variables")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("load env file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *only != "" && !validSite(*only) {
		log.Fatalf("unknown site %q", *only)
	}

	bus := logbus.New(cfg.Log.Capacity)
	bus.AddSink(logbus.ConsoleSink(os.Stdout, cfg.Log.Level))
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sqlite.Store
	if cfg.Storage.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			log.Fatalf("create data dir: %v", err)
		}
		db, err = sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		defer db.Close()
	}

	solver := captcha.NewOCRClient(cfg.OCR.URL, cfg.OCR.Timeout())
	if cfg.OCR.URL == "" {
		bus.Log("warn", "未配置 OCR 地址（DDDD_OCR_URL），验证码登录将失败", nil)
	}

	profiles, err := engine.BuildProfiles(ctx, cfg, engine.BuildDeps{
		Log:    bus,
		Solver: solver,
		Pacer:  pace.Sleeper{},
		DB:     db,
		Only:   *only,
	})
	if errors.Is(err, config.ErrNoAccounts) {
		bus.Log("error", "未配置任何账号，请设置环境变量或配置文件", nil)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("build sites: %v", err)
	}

	var notifier notify.Notifier = notify.Nop()
	if cfg.Notify.Enabled {
		n, err := notify.NewEmailNotifier(cfg.Notify.Email, cfg.Notify.AuthCode, bus)
		if err != nil {
			bus.Log("warn", "邮件推送配置无效，已关闭推送", map[string]any{"error": err.Error()})
		} else {
			notifier = n
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	opts := engine.Options{
		Profiles: profiles,
		Runner:   &runner.Runner{Pacer: pace.Sleeper{}, Gap: cfg.Pacing.API(), Log: bus},
		Bus:      bus,
		Notifier: notifier,
		Proxy:    provider.NewProxySource(cfg.Proxy.APIURL, cfg.Limits.RequestTimeout()),
		Metrics:  collector,
	}
	if db != nil {
		opts.Runs = db
	}
	eng := engine.New(opts)

	if !*serve {
		if _, err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			bus.Log("error", "运行失败", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		return
	}

	sched, err := scheduler.New(cfg.Schedule.Cron, func(ctx context.Context) error {
		_, err := eng.Run(ctx)
		return err
	}, bus)
	if err != nil {
		log.Fatalf("parse schedule: %v", err)
	}
	go sched.Loop(ctx)

	apiOpts := httpapi.Options{
		Cfg:         cfg.Server,
		Bus:         bus,
		State:       eng,
		Trigger:     sched,
		Solver:      solver,
		Metrics:     metrics.Handler(reg),
		BaseContext: ctx,
	}
	if db != nil {
		apiOpts.Runs = db
	}
	if err := httpapi.New(apiOpts).ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		bus.Log("error", "管理接口异常退出", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	bus.Log("info", "已退出", nil)
}

func validSite(s string) bool {
	for _, k := range engine.Sites {
		if k == s {
			return true
		}
	}
	return false
}
