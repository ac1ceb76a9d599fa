package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ghazaresan1/notif/infrastructure/monitor"
	"github.com/ghazaresan1/notif/order"
	"github.com/ghazaresan1/notif/retry"
	"github.com/ghazaresan1/notif/session"
)

// State 引擎状态
type State int

const (
	// StateIdle 尚未拿到凭据
	StateIdle State = iota
	// StateRunning 轮询周期运行中
	StateRunning
	// StatePaused 离线暂停
	StatePaused
	// StateStopped 已停止
	StateStopped
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config 引擎配置
type Config struct {
	CheckInterval    time.Duration // 主轮询周期
	RestartBaseDelay time.Duration // 失败退避基数
	MaxRestartDelay  time.Duration // 退避上限
	RetryCeiling     int           // 超过后升级为进程级重启
}

// DefaultConfig 默认值沿用门户端的节奏。
func DefaultConfig() Config {
	return Config{
		CheckInterval:    20 * time.Second,
		RestartBaseDelay: 5 * time.Second,
		MaxRestartDelay:  5 * time.Minute,
		RetryCeiling:     8,
	}
}

// Checker 主周期执行的检查操作。
type Checker interface {
	CheckForNewOrders(ctx context.Context) (order.Result, error)
}

// Sessions 引擎对会话管理的依赖。
type Sessions interface {
	SetCredentials(creds session.Credentials)
	Login(ctx context.Context) (string, error)
	Verify(ctx context.Context) (string, error)
	State() session.State
}

// Engine 把会话、轮询与恢复路径接在一起，独占主周期的调度权。
// RestartCycle 幂等且可被多个监控并发调用：旧调度先取消再建新的，
// 任何时刻至多一个调度在排队。
type Engine struct {
	cfg     Config
	sess    Sessions
	poller  Checker
	metrics *monitor.Monitor
	log     *zap.Logger

	// onFatal 内部重试触顶后的升级出口，由宿主接管（进程退出等）
	onFatal func(reason string)

	mu         sync.Mutex
	state      State
	retryCount int
	baseCtx    context.Context
	cancelBase context.CancelFunc
	cancelGen  context.CancelFunc // 当前调度代；nil 表示没有活动调度

	stats Statistics
}

// Statistics 引擎统计信息
type Statistics struct {
	ChecksRun     int64
	ChecksFailed  int64
	CycleRestarts int64
	LastCheckAt   time.Time
}

// New 创建引擎。metrics 与 log 可为 nil，onFatal 可为 nil（只记日志）。
func New(cfg Config, sess Sessions, poller Checker, metrics *monitor.Monitor, log *zap.Logger, onFatal func(reason string)) *Engine {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 20 * time.Second
	}
	if cfg.RestartBaseDelay <= 0 {
		cfg.RestartBaseDelay = 5 * time.Second
	}
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		sess:    sess,
		poller:  poller,
		metrics: metrics,
		log:     log,
		onFatal: onFatal,
		state:   StateIdle,
	}
}

// Start 记录基准 context，真正的调度要等凭据注入。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.baseCtx != nil {
		return nil
	}
	e.baseCtx, e.cancelBase = context.WithCancel(ctx)
	return nil
}

// Stop 停止引擎与所有调度。
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopCycleLocked()
	if e.cancelBase != nil {
		e.cancelBase()
	}
	e.state = StateStopped
	return nil
}

// Health 容器健康检查。
func (e *Engine) Health() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return fmt.Errorf("engine stopped")
	}
	return nil
}

// State 返回引擎状态。
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats 返回统计快照。
func (e *Engine) Stats() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// OnCredentialsProvided 注入凭据并立即登录。登录失败原样上抛且不排任何调度，
// 坏凭据绝不引发静默重试风暴；成功则启动主轮询周期。
func (e *Engine) OnCredentialsProvided(ctx context.Context, creds session.Credentials) error {
	e.sess.SetCredentials(creds)
	if _, err := e.sess.Login(ctx); err != nil {
		e.log.Warn("initial login failed, cycle not scheduled", zap.Error(err))
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.baseCtx == nil {
		return fmt.Errorf("engine not started")
	}
	e.state = StateRunning
	e.retryCount = 0
	e.startCycleLocked()
	return nil
}

// RestartCycle 取消排队中的检查、清零退避计数并带一次立即检查重建调度。
// 对健康运行中的周期调用是安全的 no-op（只清计数），连续调用只留一个调度。
func (e *Engine) RestartCycle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retryCount = 0
	switch e.state {
	case StateStopped, StatePaused, StateIdle:
		// 离线或未就绪时只清计数；恢复路径各自负责重新调度
		return
	}
	e.stats.CycleRestarts++
	if e.metrics != nil {
		e.metrics.RecordCycleRestart()
	}
	e.startCycleLocked()
}

// ForceCheck 贯序外的一次立即检查，busy 守卫自会挡掉重叠。
func (e *Engine) ForceCheck() {
	e.mu.Lock()
	ctx := e.baseCtx
	e.mu.Unlock()
	if ctx == nil {
		return
	}
	go func() {
		if _, err := e.poller.CheckForNewOrders(ctx); err != nil {
			e.log.Warn("forced check failed", zap.Error(err))
		}
	}()
}

// OnConnectivityLost 离线暂停，不再白费尝试。
func (e *Engine) OnConnectivityLost() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return
	}
	e.stopCycleLocked()
	e.state = StatePaused
	e.log.Info("connectivity lost, cycle paused")
}

// OnConnectivityRestored 恢复联网立即重启周期。
func (e *Engine) OnConnectivityRestored() {
	e.mu.Lock()
	if e.state != StatePaused {
		e.mu.Unlock()
		return
	}
	e.state = StateRunning
	e.retryCount = 0
	e.startCycleLocked()
	e.mu.Unlock()
	e.log.Info("connectivity restored, cycle restarted")
}

// stopCycleLocked 取消当前调度代。调用方必须持锁。
func (e *Engine) stopCycleLocked() {
	if e.cancelGen != nil {
		e.cancelGen()
		e.cancelGen = nil
	}
}

// startCycleLocked 旧代先取消，新代从一次立即检查开始。调用方必须持锁。
func (e *Engine) startCycleLocked() {
	e.stopCycleLocked()
	if e.baseCtx == nil {
		return
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	e.cancelGen = cancel
	go e.run(ctx)
}

// run 单个调度代的主循环。失败按 min(base*2^n, max) 退避一次性重排，
// retryCount 触顶后升级为进程级重启并终结本代。
func (e *Engine) run(ctx context.Context) {
	next := time.Duration(0) // 首次立即检查
	backoff := retry.Policy{BaseDelay: e.cfg.RestartBaseDelay, MaxDelay: e.cfg.MaxRestartDelay}

	for {
		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := e.checkOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			e.mu.Lock()
			e.retryCount = 0
			e.mu.Unlock()
			next = e.cfg.CheckInterval
			continue
		}

		e.mu.Lock()
		e.retryCount++
		count := e.retryCount
		e.mu.Unlock()

		if count > e.cfg.RetryCeiling {
			e.escalate(err)
			return
		}
		next = backoff.Delay(count)
		e.log.Warn("check failed, backing off",
			zap.Error(err),
			zap.Int("retry", count),
			zap.Duration("delay", next),
		)
	}
}

func (e *Engine) checkOnce(ctx context.Context) error {
	e.mu.Lock()
	e.stats.ChecksRun++
	e.stats.LastCheckAt = time.Now()
	e.mu.Unlock()

	// 检查前先校验会话,拿不到可信 token 就没必要打业务端点
	if _, err := e.sess.Verify(ctx); err != nil {
		e.countFailure()
		return err
	}
	if _, err := e.poller.CheckForNewOrders(ctx); err != nil {
		e.countFailure()
		return err
	}
	return nil
}

func (e *Engine) countFailure() {
	e.mu.Lock()
	e.stats.ChecksFailed++
	e.mu.Unlock()
}

// escalate 内部恢复手段用尽，请求宿主做一次完整重启。
func (e *Engine) escalate(err error) {
	if e.metrics != nil {
		e.metrics.RecordFatalRestart()
	}
	e.log.Error("retry ceiling exceeded, requesting external restart", zap.Error(err))

	e.mu.Lock()
	e.cancelGen = nil
	e.state = StateStopped
	onFatal := e.onFatal
	e.mu.Unlock()

	if onFatal != nil {
		onFatal(err.Error())
	}
}
