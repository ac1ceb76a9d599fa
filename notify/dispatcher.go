package notify

import (
	"fmt"
	"sync"
	"time"
)

// Notification 一条用户可见的通知。
type Notification struct {
	Title     string
	Body      string
	Tag       string // 去重键，由各通道自行裁量
	Count     int    // 本次聚合的事件数（新订单数）
	Renotify  bool   // true 时绕过节流，重复提醒
	Timestamp time.Time
}

// Dispatcher 通知分发接口，轮询器按"每次检查至多一条"的约定调用。
type Dispatcher interface {
	Notify(n Notification) error
}

// Channel 通知通道接口。
type Channel interface {
	Send(n Notification) error
	Name() string
}

// Throttler 按 Tag 节流，避免同一事件刷屏。
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.Mutex
}

// NewThrottler 创建节流器。
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow 检查是否允许发送。
func (t *Throttler) Allow(tag string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	last, exists := t.lastSent[tag]
	if !exists || now.Sub(last) >= t.interval {
		t.lastSent[tag] = now
		return true
	}
	return false
}

// Reset 清除某个 tag 的节流记录。
func (t *Throttler) Reset(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, tag)
}

// Manager 把通知扇出到所有通道，Tag 级节流。
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// NewManager 创建分发管理器。
func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// Notify 发送通知到所有通道。全部通道失败时返回最后一个错误。
func (m *Manager) Notify(n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.Tag != "" && !n.Renotify && !m.throttle.Allow(n.Tag) {
		return nil // 被节流，静默忽略
	}
	if n.Renotify && n.Tag != "" {
		m.throttle.Reset(n.Tag)
		m.throttle.Allow(n.Tag)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	successCount := 0
	for _, ch := range m.channels {
		if err := ch.Send(n); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
		} else {
			successCount++
		}
	}
	if successCount == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// AddChannel 添加通道。
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 返回所有通道名。
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}
