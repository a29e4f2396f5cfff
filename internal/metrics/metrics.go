// Package metrics 提供 Prometheus 指标，serve 模式下通过 /metrics 暴露。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder interface {
	RecordCredential(site, source string)
	RecordAuthFailure(site, failure string)
	RecordTask(site, status string)
	RecordRun(duration time.Duration, err error)
}

type Collector struct {
	credentials  *prometheus.CounterVec
	authFailures *prometheus.CounterVec
	tasks        *prometheus.CounterVec
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	lastRun      prometheus.Gauge
}

var _ Recorder = (*Collector)(nil)

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		credentials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotask_credentials_total",
			Help: "按来源统计的可用凭证数（stored/config/fresh）",
		}, []string{"site", "source"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotask_auth_failures_total",
			Help: "登录失败次数",
		}, []string{"site", "failure"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotask_task_outcomes_total",
			Help: "任务结果数",
		}, []string{"site", "status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotask_runs_total",
			Help: "运行次数",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotask_run_duration_seconds",
			Help:    "单次运行耗时（秒）",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotask_last_run_timestamp_seconds",
			Help: "最近一次运行结束时间",
		}),
	}
	reg.MustRegister(c.credentials, c.authFailures, c.tasks, c.runs, c.runDuration, c.lastRun)
	return c
}

func (c *Collector) RecordCredential(site, source string) {
	c.credentials.WithLabelValues(site, source).Inc()
}

func (c *Collector) RecordAuthFailure(site, failure string) {
	c.authFailures.WithLabelValues(site, failure).Inc()
}

func (c *Collector) RecordTask(site, status string) {
	c.tasks.WithLabelValues(site, status).Inc()
}

func (c *Collector) RecordRun(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.runs.WithLabelValues(result).Inc()
	c.runDuration.Observe(duration.Seconds())
	c.lastRun.SetToCurrentTime()
}

type nop struct{}

func (nop) RecordCredential(string, string)  {}
func (nop) RecordAuthFailure(string, string) {}
func (nop) RecordTask(string, string)        {}
func (nop) RecordRun(time.Duration, error)   {}

func Nop() Recorder { return nop{} }

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
