package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 会话指标
	logins         prometheus.Counter
	loginFailures  prometheus.Counter
	tokenRefreshes prometheus.Counter
	sessionState   prometheus.Gauge

	// 轮询指标
	polls         prometheus.Counter
	pollSkips     prometheus.Counter
	pollErrors    prometheus.Counter
	ordersSeen    prometheus.Counter
	pendingOrders prometheus.Gauge

	// 通知指标
	notificationsSent   prometheus.Counter
	notificationsFailed prometheus.Counter

	// 存活指标
	monitorVerdicts *prometheus.CounterVec
	cycleRestarts   prometheus.Counter
	fatalRestarts   prometheus.Counter

	// 系统指标
	restRequests *prometheus.CounterVec
	restErrors   *prometheus.CounterVec
	restLatency  *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "notif",
		Subsystem: "sentinel",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		logins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "logins_total",
			Help:      "登录成功总数",
		}),
		loginFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "login_failures_total",
			Help:      "登录失败总数",
		}),
		tokenRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "token_refreshes_total",
			Help:      "401 触发的强制刷新总数",
		}),
		sessionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "session_state",
			Help:      "会话状态(0=未认证,1=有效,2=未校验,3=失效)",
		}),

		polls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "polls_total",
			Help:      "订单检查执行总数",
		}),
		pollSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "poll_skips_total",
			Help:      "因 busy 守卫跳过的检查总数",
		}),
		pollErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "poll_errors_total",
			Help:      "订单检查失败总数",
		}),
		ordersSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_seen_total",
			Help:      "拉取到的订单记录总数",
		}),
		pendingOrders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "pending_orders",
			Help:      "最近一次检查的待确认订单数",
		}),

		notificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "notifications_sent_total",
			Help:      "已分发的通知总数",
		}),
		notificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "notifications_failed_total",
			Help:      "分发失败的通知总数",
		}),

		monitorVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "monitor_verdicts_total",
				Help:      "各存活监控的检查结论总数",
			},
			[]string{"monitor", "status"},
		),
		cycleRestarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cycle_restarts_total",
			Help:      "轮询周期重启总数",
		}),
		fatalRestarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fatal_restarts_total",
			Help:      "升级为进程级重启的次数",
		}),

		restRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_requests_total",
				Help:      "REST请求总数",
			},
			[]string{"action"},
		),
		restErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_errors_total",
				Help:      "REST错误总数",
			},
			[]string{"action"},
		),
		restLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_latency_seconds",
				Help:      "REST请求延迟（秒）",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
	}

	return m
}

// 会话相关方法
func (m *Monitor) RecordLogin() {
	m.logins.Inc()
}

func (m *Monitor) RecordLoginFailure() {
	m.loginFailures.Inc()
}

func (m *Monitor) RecordTokenRefresh() {
	m.tokenRefreshes.Inc()
}

func (m *Monitor) UpdateSessionState(state int) {
	m.sessionState.Set(float64(state))
}

// 轮询相关方法
func (m *Monitor) RecordPoll() {
	m.polls.Inc()
}

func (m *Monitor) RecordPollSkip() {
	m.pollSkips.Inc()
}

func (m *Monitor) RecordPollError() {
	m.pollErrors.Inc()
}

func (m *Monitor) RecordOrdersSeen(total, pending int) {
	m.ordersSeen.Add(float64(total))
	m.pendingOrders.Set(float64(pending))
}

// 通知相关方法
func (m *Monitor) RecordNotificationSent() {
	m.notificationsSent.Inc()
}

func (m *Monitor) RecordNotificationFailed() {
	m.notificationsFailed.Inc()
}

// 存活相关方法
func (m *Monitor) RecordMonitorVerdict(name, status string) {
	m.monitorVerdicts.WithLabelValues(name, status).Inc()
}

func (m *Monitor) RecordCycleRestart() {
	m.cycleRestarts.Inc()
}

func (m *Monitor) RecordFatalRestart() {
	m.fatalRestarts.Inc()
}

// 系统相关方法
func (m *Monitor) RecordRESTRequest(action string) {
	m.restRequests.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTError(action string) {
	m.restErrors.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTLatency(action string, seconds float64) {
	m.restLatency.WithLabelValues(action).Observe(seconds)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
