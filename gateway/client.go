package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

const (
	defaultReferer = "https://portal.ghazaresan.com/"

	authenticatePath = "/api/Authorization/Authenticate"
	verifyPath       = "/api/Authorization/Verify"
	getOrdersPath    = "/api/Orders/GetOrders"
	pingPath         = "/api/ping"
)

// RESTMetrics 按操作统计请求、错误与延迟。*monitor.Monitor 满足该接口。
type RESTMetrics interface {
	RecordRESTRequest(action string)
	RecordRESTError(action string)
	RecordRESTLatency(action string, seconds float64)
}

// Client 订单后端客户端；HTTPClient 可注入 httptest，默认不发起真实网络调用。
type Client struct {
	BaseURL     string
	SecurityKey string
	Referer     string
	HTTPClient  *http.Client
	Limiter     RateLimiter
	Metrics     RESTMetrics
	Timeout     time.Duration // 单次请求超时，独立于调用方的调度周期
}

// NewDefaultHTTPClient 返回带连接超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// AuthResponse 登录响应。Token 为空视为拒绝。
type AuthResponse struct {
	Token          string `json:"Token"`
	RestaurantName string `json:"RestaurantName"`
	CanEditMenu    bool   `json:"CanEditMenu"`
}

type authRequest struct {
	UserName string `json:"UserName"`
	Password string `json:"Password"`
}

func (c *Client) referer() string {
	if c.Referer != "" {
		return c.Referer
	}
	return defaultReferer
}

func (c *Client) do(ctx context.Context, req *http.Request, op string) (*http.Response, error) {
	if c.Limiter != nil {
		c.Limiter.Wait(ctx)
	}
	if c.Metrics != nil {
		c.Metrics.RecordRESTRequest(op)
	}
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if c.Metrics != nil {
		c.Metrics.RecordRESTLatency(op, time.Since(start).Seconds())
	}
	if err != nil {
		if c.Metrics != nil {
			c.Metrics.RecordRESTError(op)
		}
		return nil, &TransportError{Op: op, Err: err}
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if c.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return req, cancel, nil
}

// Authenticate 执行登录。非 2xx 或响应缺少 Token 均按拒绝处理。
func (c *Client) Authenticate(ctx context.Context, username, password string) (AuthResponse, error) {
	var out AuthResponse
	payload, err := json.Marshal(authRequest{UserName: username, Password: password})
	if err != nil {
		return out, err
	}
	req, cancel, err := c.newRequest(ctx, http.MethodPost, authenticatePath, payload)
	if err != nil {
		return out, err
	}
	defer cancel()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SecurityKey", c.SecurityKey)
	req.Header.Set("Referer", c.referer())

	resp, err := c.do(ctx, req, "authenticate")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &RejectedError{Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, &TransportError{Op: "authenticate decode", Err: err}
	}
	if out.Token == "" {
		return out, &RejectedError{Status: resp.StatusCode}
	}
	return out, nil
}

// Verify 轻量校验当前 token 是否仍被后端接受。
func (c *Client) Verify(ctx context.Context, token string) error {
	req, cancel, err := c.newRequest(ctx, http.MethodGet, verifyPath, nil)
	if err != nil {
		return err
	}
	defer cancel()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := c.do(ctx, req, "verify")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServerError{Status: resp.StatusCode}
	}
	return nil
}

// GetOrders 拉取订单列表。请求体固定为空 JSON 对象。
func (c *Client) GetOrders(ctx context.Context, token string) ([]Order, error) {
	req, cancel, err := c.newRequest(ctx, http.MethodPost, getOrdersPath, []byte("{}"))
	if err != nil {
		return nil, err
	}
	defer cancel()
	req.Header.Set("accept", "application/json")
	req.Header.Set("authorizationcode", token)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("referer", c.referer())
	req.Header.Set("securitykey", c.SecurityKey)

	resp, err := c.do(ctx, req, "get orders")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServerError{Status: resp.StatusCode}
	}
	var orders []Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, &TransportError{Op: "get orders decode", Err: err}
	}
	return orders, nil
}

// Ping 尽力而为的保活信号，失败只由调用方记日志，永不升级。
func (c *Client) Ping(ctx context.Context) error {
	req, cancel, err := c.newRequest(ctx, http.MethodPost, pingPath, nil)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := c.do(ctx, req, "ping")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
