package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ghazaresan1/notif/gateway"
	"github.com/ghazaresan1/notif/infrastructure/monitor"
	"github.com/ghazaresan1/notif/notify"
	"github.com/ghazaresan1/notif/retry"
	"github.com/ghazaresan1/notif/session"
)

// OrdersAPI 轮询依赖的后端操作子集。*gateway.Client 满足该接口。
type OrdersAPI interface {
	GetOrders(ctx context.Context, token string) ([]gateway.Order, error)
}

// Session 轮询器对会话的借用视图：读 token、请求刷新、防御性失效。
// 轮询器从不直接改写会话内部状态。
type Session interface {
	Token() (string, session.State)
	Refresh(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

// Result 单次检查的结果。
type Result struct {
	Skipped bool // busy 守卫生效，本次未执行
	Total   int
	Pending int
}

// Poller 执行"检查新订单"操作。busy 守卫保证同一时刻至多一个检查体在执行。
type Poller struct {
	api        OrdersAPI
	sess       Session
	dispatcher notify.Dispatcher
	retry      retry.Policy
	metrics    *monitor.Monitor
	log        *zap.Logger

	busy atomic.Bool

	mu            sync.RWMutex
	lastSuccessAt time.Time
}

// NewPoller 创建轮询器。metrics 与 log 可为 nil。
func NewPoller(api OrdersAPI, sess Session, dispatcher notify.Dispatcher, policy retry.Policy, metrics *monitor.Monitor, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		api:        api,
		sess:       sess,
		dispatcher: dispatcher,
		retry:      policy,
		metrics:    metrics,
		log:        log,
	}
}

// LastSuccess 最近一次成功检查的时间，零值表示尚未成功过。
func (p *Poller) LastSuccess() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSuccessAt
}

// CheckForNewOrders 拉取订单并把待确认分区交给通知分发。
// 并发触发时第二个调用观察到 busy 直接返回 Skipped，不算错误。
// 401 只触发一次刷新加一次重拉，绝不无界循环。
// 任何不可恢复错误会防御性失效缓存 token，下个周期被迫重新认证。
func (p *Poller) CheckForNewOrders(ctx context.Context) (Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		if p.metrics != nil {
			p.metrics.RecordPollSkip()
		}
		return Result{Skipped: true}, nil
	}
	defer p.busy.Store(false)

	if p.metrics != nil {
		p.metrics.RecordPoll()
	}

	token, _ := p.sess.Token()
	if token == "" {
		tok, err := p.sess.Refresh(ctx)
		if err != nil {
			return p.fail(ctx, err)
		}
		token = tok
	}

	orders, err := p.fetch(ctx, token)
	if errors.Is(err, gateway.ErrUnauthorized) {
		if p.metrics != nil {
			p.metrics.RecordTokenRefresh()
		}
		newToken, rerr := p.sess.Refresh(ctx)
		if rerr != nil {
			return p.fail(ctx, rerr)
		}
		// 新 token 只重试一次，限定延迟上界
		orders, err = p.api.GetOrders(ctx, newToken)
	}
	if err != nil {
		return p.fail(ctx, err)
	}

	pending := 0
	for _, o := range orders {
		if o.IsPending() {
			pending++
		}
	}

	p.mu.Lock()
	p.lastSuccessAt = time.Now()
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordOrdersSeen(len(orders), pending)
	}
	p.log.Debug("order check completed", zap.Int("total", len(orders)), zap.Int("pending", pending))

	if pending > 0 && p.dispatcher != nil {
		// 按约定整批只通知一次，带上数量，绝不逐单
		if nerr := p.dispatcher.Notify(notify.NewOrderNotification(pending)); nerr != nil {
			if p.metrics != nil {
				p.metrics.RecordNotificationFailed()
			}
			p.log.Warn("notification dispatch failed", zap.Error(nerr))
		} else if p.metrics != nil {
			p.metrics.RecordNotificationSent()
		}
	}

	return Result{Total: len(orders), Pending: pending}, nil
}

// fetch 带退避重试的拉取，401 不在这里重试。
func (p *Poller) fetch(ctx context.Context, token string) ([]gateway.Order, error) {
	var orders []gateway.Order
	err := p.retry.Do(ctx, func() error {
		o, err := p.api.GetOrders(ctx, token)
		if err != nil {
			if errors.Is(err, gateway.ErrUnauthorized) {
				return retry.Permanent(err)
			}
			return err
		}
		orders = o
		return nil
	})
	return orders, err
}

func (p *Poller) fail(ctx context.Context, err error) (Result, error) {
	if p.metrics != nil {
		p.metrics.RecordPollError()
	}
	p.sess.Invalidate(ctx)
	return Result{}, err
}
