package liveness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ghazaresan1/notif/session"
	"github.com/ghazaresan1/notif/store"
)

// TokenSource 监控对会话的只读视图。
type TokenSource interface {
	Token() (string, session.State)
	HasToken() bool
}

// Heartbeat 确认会话仍持有 token；丢失即要求恢复（恢复路径会重新登录）。
type Heartbeat struct {
	Sess     TokenSource
	Interval time.Duration
}

func (h *Heartbeat) Name() string { return "heartbeat" }

func (h *Heartbeat) Period() time.Duration {
	if h.Interval <= 0 {
		return 30 * time.Second
	}
	return h.Interval
}

func (h *Heartbeat) Check(ctx context.Context) Verdict {
	if !h.Sess.HasToken() {
		return Degraded("no token present")
	}
	return Healthy()
}

// Watchdog 比较"现在"与最近一次存活信号的间隔。间隔超过自身周期乘以
// 安全系数说明整个进程曾被挂起，宣告失联以触发完整重启。
// 信号读自持久化存储，看门狗自己重启后依然有记忆。
type Watchdog struct {
	Store    store.Store
	Interval time.Duration
	Factor   int
	Clock    Clock
}

func (w *Watchdog) Name() string { return "watchdog" }

func (w *Watchdog) Period() time.Duration {
	if w.Interval <= 0 {
		return 25 * time.Second
	}
	return w.Interval
}

func (w *Watchdog) factor() int {
	if w.Factor <= 0 {
		return 3
	}
	return w.Factor
}

func (w *Watchdog) clock() Clock {
	if w.Clock == nil {
		return NowUTC
	}
	return w.Clock
}

func (w *Watchdog) Check(ctx context.Context) Verdict {
	last, ok := LastSignal(ctx, w.Store)
	if !ok {
		// 尚无信号可比较，无从判断
		return Healthy()
	}
	gap := w.clock().Now().Sub(last)
	threshold := w.Period() * time.Duration(w.factor())
	if gap > threshold {
		return Unreachable(fmt.Sprintf("no liveness signal for %s (threshold %s)", gap.Round(time.Second), threshold))
	}
	return Healthy()
}

// VerifyAPI 健康探针依赖的校验端点。
type VerifyAPI interface {
	Verify(ctx context.Context, token string) error
}

// HealthProbe 带独立短超时的轻量认证探测。失败只算降级，交由恢复路径处理。
type HealthProbe struct {
	API      VerifyAPI
	Sess     TokenSource
	Interval time.Duration
	Timeout  time.Duration
}

func (p *HealthProbe) Name() string { return "health-probe" }

func (p *HealthProbe) Period() time.Duration {
	if p.Interval <= 0 {
		return 45 * time.Second
	}
	return p.Interval
}

func (p *HealthProbe) Check(ctx context.Context) Verdict {
	token, _ := p.Sess.Token()
	if token == "" {
		return Degraded("no token to probe with")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.API.Verify(cctx, token); err != nil {
		return Degraded(err.Error())
	}
	return Healthy()
}

// PingAPI 保活端点。
type PingAPI interface {
	Ping(ctx context.Context) error
}

// KeepAlive 尽力而为的保活信号，只为劝阻宿主挂起进程而存在。
// 失败只记日志，永不升级为恢复动作。
type KeepAlive struct {
	API      PingAPI
	Hinter   WakeHinter
	Interval time.Duration
	Log      *zap.Logger
}

func (k *KeepAlive) Name() string { return "keep-alive" }

func (k *KeepAlive) Period() time.Duration {
	if k.Interval <= 0 {
		return 20 * time.Second
	}
	return k.Interval
}

func (k *KeepAlive) Check(ctx context.Context) Verdict {
	if k.Hinter != nil {
		if err := k.Hinter.Hint(); err != nil && k.Log != nil {
			k.Log.Debug("wake hint failed", zap.Error(err))
		}
	}
	if k.API != nil {
		if err := k.API.Ping(ctx); err != nil && k.Log != nil {
			k.Log.Debug("keep-alive ping failed, continuing", zap.Error(err))
		}
	}
	return Healthy()
}
