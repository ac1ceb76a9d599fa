package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ghazaresan1/notif/gateway"
	"github.com/ghazaresan1/notif/retry"
	"github.com/ghazaresan1/notif/store"
)

// API 会话管理依赖的后端操作子集。*gateway.Client 满足该接口。
type API interface {
	Authenticate(ctx context.Context, username, password string) (gateway.AuthResponse, error)
	Verify(ctx context.Context, token string) error
}

// Metrics 会话指标收集。*monitor.Monitor 满足该接口。
type Metrics interface {
	RecordLogin()
	RecordLoginFailure()
	UpdateSessionState(state int)
}

// Manager 独占持有凭据、安全键与当前 token。
// 其他组件只借用 token，所有变更都经由这里。
type Manager struct {
	api     API
	store   store.Store
	retry   retry.Policy
	metrics Metrics
	log     *zap.Logger

	mu         sync.RWMutex
	creds      Credentials
	token      string
	obtainedAt time.Time
	state      State

	// loginMu 对 Login/Refresh 做 single-flight：并发调用共享一次认证往返，
	// 先成功者胜出，等待者直接复用其结果。
	loginMu  sync.Mutex
	loginSeq uint64
}

// NewManager 创建会话管理器。metrics 与 log 可为 nil。
func NewManager(api API, st store.Store, policy retry.Policy, metrics Metrics, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		api:     api,
		store:   st,
		retry:   policy,
		metrics: metrics,
		log:     log,
		state:   StateUnauthenticated,
	}
}

// setStateLocked 调用方必须持有 mu 写锁。
func (m *Manager) setStateLocked(s State) {
	m.state = s
	if m.metrics != nil {
		m.metrics.UpdateSessionState(int(s))
	}
}

// SetCredentials 注入凭据。替换前的凭据立即失效。
func (m *Manager) SetCredentials(creds Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
}

// Token 返回当前 token 与状态快照。
func (m *Manager) Token() (string, State) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.state
}

// HasToken 心跳监控用：当前是否持有 token。
func (m *Manager) HasToken() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// State 返回当前会话状态。
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Restore 从持久化存储恢复 token。恢复的 token 在下次 Verify 前视为未校验。
func (m *Manager) Restore(ctx context.Context) error {
	raw, err := m.store.Get(ctx, store.KeyAuthToken)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(raw) == 0 {
		return nil
	}
	m.token = string(raw)
	m.setStateLocked(StateUnverified)
	m.log.Info("session restored from store", zap.String("state", m.state.String()))
	return nil
}

func (m *Manager) seq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loginSeqLocked()
}

func (m *Manager) loginSeqLocked() uint64 {
	return m.loginSeq
}

// Login 登录并持久化新 token。只有传输类错误会被退避重试；
// 明确的拒绝（错误凭据）立即上抛，避免反复冲击认证端点。
func (m *Manager) Login(ctx context.Context) (string, error) {
	before := m.seq()
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	// 等待期间别人已完成登录，直接复用其结果
	m.mu.RLock()
	piggyback := m.loginSeq != before && m.state == StateValid
	token := m.token
	m.mu.RUnlock()
	if piggyback {
		return token, nil
	}
	return m.doLogin(ctx)
}

// Refresh 无视当前状态强制重新登录，业务端点观察到 401 后调用。
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	before := m.seq()
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	m.mu.RLock()
	piggyback := m.loginSeq != before && m.state == StateValid
	token := m.token
	m.mu.RUnlock()
	if piggyback {
		return token, nil
	}
	return m.doLogin(ctx)
}

// doLogin 调用方必须持有 loginMu。
func (m *Manager) doLogin(ctx context.Context) (string, error) {
	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()
	if creds.Empty() {
		return "", gateway.ErrMissingCredentials
	}

	var resp gateway.AuthResponse
	err := m.retry.Do(ctx, func() error {
		r, err := m.api.Authenticate(ctx, creds.Username, creds.Password)
		if err != nil {
			var rej *gateway.RejectedError
			if errors.As(err, &rej) {
				return retry.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordLoginFailure()
		}
		m.failClosed(ctx)
		m.log.Warn("login failed", zap.Error(err))
		return "", err
	}

	m.mu.Lock()
	m.token = resp.Token
	m.obtainedAt = time.Now()
	m.setStateLocked(StateValid)
	m.loginSeq++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordLogin()
	}

	m.persist(ctx, resp)
	m.log.Info("login succeeded", zap.String("restaurant", resp.RestaurantName))
	return resp.Token, nil
}

// persist 落盘 token 与门店信息。两个键之间无原子性，写失败仅告警，
// 内存中的会话仍然有效。
func (m *Manager) persist(ctx context.Context, resp gateway.AuthResponse) {
	if err := m.store.Put(ctx, store.KeyAuthToken, []byte(resp.Token)); err != nil {
		m.log.Warn("persist token failed", zap.Error(err))
	}
	info, err := json.Marshal(RestaurantInfo{Name: resp.RestaurantName, CanEditMenu: resp.CanEditMenu})
	if err == nil {
		if err := m.store.Put(ctx, store.KeyRestaurantInfo, info); err != nil {
			m.log.Warn("persist restaurant info failed", zap.Error(err))
		}
	}
}

// failClosed 登录失败后清掉一切残留 token，下轮被迫重新认证。
func (m *Manager) failClosed(ctx context.Context) {
	m.mu.Lock()
	m.token = ""
	m.setStateLocked(StateInvalid)
	m.mu.Unlock()
	if err := m.store.Delete(ctx, store.KeyAuthToken); err != nil {
		m.log.Warn("delete persisted token failed", zap.Error(err))
	}
}

// Verify 校验当前 token；没有 token 则转登录，校验失败也转登录。
// 调用方拿到的要么是"此刻可信"的 token，要么是错误，绝不静默返回失效 token。
func (m *Manager) Verify(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token == "" {
		return m.Login(ctx)
	}
	if err := m.api.Verify(ctx, token); err != nil {
		m.mu.Lock()
		m.setStateLocked(StateInvalid)
		m.mu.Unlock()
		m.log.Info("token verification failed, re-authenticating", zap.Error(err))
		return m.Login(ctx)
	}
	m.mu.Lock()
	m.setStateLocked(StateValid)
	m.mu.Unlock()
	return token, nil
}

// Invalidate 防御性失效：清空缓存与持久化的 token，下次必须重新认证。
func (m *Manager) Invalidate(ctx context.Context) {
	m.failClosed(ctx)
	m.log.Info("session invalidated")
}

// RestaurantInfo 返回已落盘的门店信息（若有）。
func (m *Manager) RestaurantInfo(ctx context.Context) (RestaurantInfo, bool) {
	var info RestaurantInfo
	raw, err := m.store.Get(ctx, store.KeyRestaurantInfo)
	if err != nil {
		return info, false
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, false
	}
	return info, true
}
