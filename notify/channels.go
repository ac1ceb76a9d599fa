package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NewOrderNotification 新订单通知，标题与正文沿用门户的波斯语文案；
// 正文固定，待确认数量由 Count 携带。
func NewOrderNotification(count int) Notification {
	return Notification{
		Title:    "سفارش جدید",
		Body:     "یک سفارش جدید در انتظار تایید دارید",
		Tag:      "new-order",
		Count:    count,
		Renotify: true,
	}
}

// LogChannel 结构化日志通道。
type LogChannel struct {
	log  *zap.Logger
	name string
}

// NewLogChannel 创建日志通道。
func NewLogChannel(name string, log *zap.Logger) *LogChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogChannel{log: log, name: name}
}

func (c *LogChannel) Send(n Notification) error {
	c.log.Info("notification",
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("tag", n.Tag),
		zap.Int("count", n.Count),
		zap.Bool("renotify", n.Renotify),
	)
	return nil
}

func (c *LogChannel) Name() string {
	return c.name
}

// WebhookChannel 把通知以 JSON POST 到外部桥（桌面通知代理等）。
type WebhookChannel struct {
	name       string
	url        string
	httpClient *http.Client
}

// NewWebhookChannel 创建 webhook 通道。
func NewWebhookChannel(name, url string) *WebhookChannel {
	return &WebhookChannel{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Tag       string `json:"tag"`
	Count     int    `json:"count"`
	Renotify  bool   `json:"renotify"`
	Timestamp string `json:"timestamp"`
}

func (c *WebhookChannel) Send(n Notification) error {
	payload, err := json.Marshal(webhookPayload{
		Title:     n.Title,
		Body:      n.Body,
		Tag:       n.Tag,
		Count:     n.Count,
		Renotify:  n.Renotify,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Post(c.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s status %d", c.name, resp.StatusCode)
	}
	return nil
}

func (c *WebhookChannel) Name() string {
	return c.name
}

// MockChannel 模拟通道（用于测试）。
type MockChannel struct {
	name      string
	mu        sync.Mutex
	sent      []Notification
	shouldErr bool
}

// NewMockChannel 创建模拟通道。
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

func (c *MockChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *MockChannel) Name() string {
	return c.name
}

// Sent 返回收到的通知副本。
func (c *MockChannel) Sent() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.sent))
	copy(out, c.sent)
	return out
}

// Count 返回收到的通知数量。
func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// SetShouldError 设置是否返回错误。
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}
