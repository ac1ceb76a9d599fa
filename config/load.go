package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	API      APIConfig      `yaml:"api"`
	Account  AccountConfig  `yaml:"account"`
	Store    StoreConfig    `yaml:"store"`
	Engine   EngineConfig   `yaml:"engine"`
	Retry    RetryConfig    `yaml:"retry"`
	Liveness LivenessConfig `yaml:"liveness"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig 订单后端访问配置。
type APIConfig struct {
	BaseURL               string  `yaml:"baseURL"`
	SecurityKey           string  `yaml:"securityKey"`
	Referer               string  `yaml:"referer"`
	RequestTimeoutSeconds int     `yaml:"requestTimeoutSeconds"`
	RateLimit             float64 `yaml:"rateLimit"` // 每秒令牌数
	RateBurst             int     `yaml:"rateBurst"`
}

// AccountConfig 可选的预置凭据；留空则等待控制面注入。
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type StoreConfig struct {
	DataDir string `yaml:"dataDir"`
}

// EngineConfig 主轮询周期与失败升级策略。
type EngineConfig struct {
	CheckIntervalSeconds    int `yaml:"checkIntervalSeconds"`
	RestartBaseDelaySeconds int `yaml:"restartBaseDelaySeconds"`
	MaxRestartDelaySeconds  int `yaml:"maxRestartDelaySeconds"`
	RetryCeiling            int `yaml:"retryCeiling"`
}

// RetryConfig 单次操作内的退避重试。
type RetryConfig struct {
	MaxAttempts      int  `yaml:"maxAttempts"`
	BaseDelaySeconds int  `yaml:"baseDelaySeconds"`
	Jitter           bool `yaml:"jitter"`
}

// LivenessConfig 各监控周期刻意错开，避免恢复尝试同步化。
type LivenessConfig struct {
	HeartbeatSeconds   int `yaml:"heartbeatSeconds"`
	WatchdogSeconds    int `yaml:"watchdogSeconds"`
	WatchdogFactor     int `yaml:"watchdogFactor"`
	HealthProbeSeconds int `yaml:"healthProbeSeconds"`
	KeepAliveSeconds   int `yaml:"keepAliveSeconds"`
}

type NotifyConfig struct {
	ThrottleSeconds int    `yaml:"throttleSeconds"`
	WebhookURL      string `yaml:"webhookURL"`
}

type ServerConfig struct {
	MetricsAddr string `yaml:"metricsAddr"`
	ControlAddr string `yaml:"controlAddr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json 或 console
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("NOTIF_USERNAME"); v != "" {
		cfg.Account.Username = v
	}
	if v := os.Getenv("NOTIF_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}
	if v := os.Getenv("NOTIF_SECURITY_KEY"); v != "" {
		cfg.API.SecurityKey = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.API.RequestTimeoutSeconds <= 0 {
		cfg.API.RequestTimeoutSeconds = 15
	}
	if cfg.API.RateLimit <= 0 {
		cfg.API.RateLimit = 5
	}
	if cfg.API.RateBurst <= 0 {
		cfg.API.RateBurst = 10
	}
	if cfg.Engine.CheckIntervalSeconds <= 0 {
		cfg.Engine.CheckIntervalSeconds = 20
	}
	if cfg.Engine.RestartBaseDelaySeconds <= 0 {
		cfg.Engine.RestartBaseDelaySeconds = 5
	}
	if cfg.Engine.MaxRestartDelaySeconds <= 0 {
		cfg.Engine.MaxRestartDelaySeconds = 300
	}
	if cfg.Engine.RetryCeiling <= 0 {
		cfg.Engine.RetryCeiling = 8
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelaySeconds <= 0 {
		cfg.Retry.BaseDelaySeconds = 5
	}
	if cfg.Liveness.HeartbeatSeconds <= 0 {
		cfg.Liveness.HeartbeatSeconds = 30
	}
	if cfg.Liveness.WatchdogSeconds <= 0 {
		cfg.Liveness.WatchdogSeconds = 25
	}
	if cfg.Liveness.WatchdogFactor <= 0 {
		cfg.Liveness.WatchdogFactor = 3
	}
	if cfg.Liveness.HealthProbeSeconds <= 0 {
		cfg.Liveness.HealthProbeSeconds = 45
	}
	if cfg.Liveness.KeepAliveSeconds <= 0 {
		cfg.Liveness.KeepAliveSeconds = 20
	}
	if cfg.Notify.ThrottleSeconds <= 0 {
		cfg.Notify.ThrottleSeconds = 60
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9100"
	}
	if cfg.Server.ControlAddr == "" {
		cfg.Server.ControlAddr = "127.0.0.1:8753"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Seconds 辅助换算。
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c APIConfig) RequestTimeout() time.Duration { return Seconds(c.RequestTimeoutSeconds) }

func (c EngineConfig) CheckInterval() time.Duration    { return Seconds(c.CheckIntervalSeconds) }
func (c EngineConfig) RestartBaseDelay() time.Duration { return Seconds(c.RestartBaseDelaySeconds) }
func (c EngineConfig) MaxRestartDelay() time.Duration  { return Seconds(c.MaxRestartDelaySeconds) }

func (c RetryConfig) BaseDelay() time.Duration { return Seconds(c.BaseDelaySeconds) }

func (c LivenessConfig) Heartbeat() time.Duration   { return Seconds(c.HeartbeatSeconds) }
func (c LivenessConfig) Watchdog() time.Duration    { return Seconds(c.WatchdogSeconds) }
func (c LivenessConfig) HealthProbe() time.Duration { return Seconds(c.HealthProbeSeconds) }
func (c LivenessConfig) KeepAlive() time.Duration   { return Seconds(c.KeepAliveSeconds) }

func (c NotifyConfig) Throttle() time.Duration { return Seconds(c.ThrottleSeconds) }
