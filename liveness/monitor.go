package liveness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ghazaresan1/notif/infrastructure/monitor"
	"github.com/ghazaresan1/notif/store"
)

// Status 监控结论
type Status int

const (
	// StatusHealthy 一切正常
	StatusHealthy Status = iota
	// StatusDegraded 可用性下降，需要重启轮询周期
	StatusDegraded
	// StatusUnreachable 完全失联
	StatusUnreachable
)

// String 返回状态名称
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusDegraded:
		return "DEGRADED"
	case StatusUnreachable:
		return "UNREACHABLE"
	default:
		return "UNKNOWN"
	}
}

// Verdict 一次检查的结论。
type Verdict struct {
	Status Status
	Reason string
}

// Healthy 正常结论。
func Healthy() Verdict { return Verdict{Status: StatusHealthy} }

// Degraded 降级结论。
func Degraded(reason string) Verdict { return Verdict{Status: StatusDegraded, Reason: reason} }

// Unreachable 失联结论。
func Unreachable(reason string) Verdict { return Verdict{Status: StatusUnreachable, Reason: reason} }

// Monitor 一个独立周期调度的存活自检任务。
type Monitor interface {
	Name() string
	Period() time.Duration
	Check(ctx context.Context) Verdict
}

// 共享的"最近一次存活信号"键。每个监控各自还有 liveness/<name>。
const lastSignalKey = store.LivenessPrefix + "last"

// Runner 并发独立地运行一组监控。任何非 Healthy 结论触发恢复回调；
// 各监控周期刻意错开，恢复尝试被打散而非同步。
type Runner struct {
	monitors []Monitor
	store    store.Store
	metrics  *monitor.Monitor
	log      *zap.Logger
	clock    Clock

	// onUnhealthy 必须幂等，会被多个监控并发调用
	onUnhealthy func(name string, v Verdict)

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
}

// NewRunner 创建监控运行器。metrics 与 log 可为 nil。
func NewRunner(monitors []Monitor, st store.Store, onUnhealthy func(string, Verdict), metrics *monitor.Monitor, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		monitors:    monitors,
		store:       st,
		metrics:     metrics,
		log:         log,
		clock:       NowUTC,
		onUnhealthy: onUnhealthy,
		stopChan:    make(chan struct{}),
	}
}

// Start 为每个监控启动独立循环。
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	for _, m := range r.monitors {
		r.wg.Add(1)
		go r.loop(ctx, m)
	}
	r.started = true
	return nil
}

// Stop 停止所有监控循环并等待退出。重复调用无害。
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.mu.Unlock()

	close(r.stopChan)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for liveness runner to stop")
	}
}

// Health 容器健康检查。
func (r *Runner) Health() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return fmt.Errorf("liveness runner not started")
	}
	return nil
}

func (r *Runner) loop(ctx context.Context, m Monitor) {
	defer r.wg.Done()

	ticker := time.NewTicker(m.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.runCheck(ctx, m)
		}
	}
}

func (r *Runner) runCheck(ctx context.Context, m Monitor) {
	v := m.Check(ctx)

	if r.metrics != nil {
		r.metrics.RecordMonitorVerdict(m.Name(), v.Status.String())
	}

	// 结论先落地再处理：看门狗重启后靠这些时间戳恢复记忆
	r.recordSignal(ctx, m.Name())

	if v.Status == StatusHealthy {
		return
	}
	r.log.Warn("liveness check unhealthy",
		zap.String("monitor", m.Name()),
		zap.String("status", v.Status.String()),
		zap.String("reason", v.Reason),
	)
	if r.onUnhealthy != nil {
		r.onUnhealthy(m.Name(), v)
	}
}

func (r *Runner) recordSignal(ctx context.Context, name string) {
	if r.store == nil {
		return
	}
	now := []byte(r.clock.Now().UTC().Format(time.RFC3339Nano))
	if err := r.store.Put(ctx, store.LivenessPrefix+name, now); err != nil {
		r.log.Warn("record liveness signal failed", zap.String("monitor", name), zap.Error(err))
		return
	}
	if err := r.store.Put(ctx, lastSignalKey, now); err != nil {
		r.log.Warn("record shared liveness signal failed", zap.Error(err))
	}
}

// LastSignal 读取共享存活信号时间戳。
func LastSignal(ctx context.Context, st store.Store) (time.Time, bool) {
	raw, err := st.Get(ctx, lastSignalKey)
	if err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
