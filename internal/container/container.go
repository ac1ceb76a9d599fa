package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ghazaresan1/notif/config"
	"github.com/ghazaresan1/notif/control"
	"github.com/ghazaresan1/notif/gateway"
	"github.com/ghazaresan1/notif/infrastructure/logger"
	"github.com/ghazaresan1/notif/infrastructure/monitor"
	"github.com/ghazaresan1/notif/internal/engine"
	"github.com/ghazaresan1/notif/liveness"
	"github.com/ghazaresan1/notif/notify"
	"github.com/ghazaresan1/notif/order"
	"github.com/ghazaresan1/notif/retry"
	"github.com/ghazaresan1/notif/session"
	"github.com/ghazaresan1/notif/store"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg *config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor

	// 持久化与后端网关
	store  store.Store
	client *gateway.Client

	// 核心服务
	session  *session.Manager
	notifier *notify.Manager
	poller   *order.Poller
	engine   *engine.Engine
	liveness *liveness.Runner
	control  *control.Server

	// HTTP服务器
	metricsServer *http.Server
	controlServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager

	// onFatal 引擎重试触顶后的升级出口，由宿主传入（通常是退出进程）
	onFatal func(reason string)
}

// New 创建新的Container实例
func New(configPath string, onFatal func(reason string)) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	return &Container{
		cfg:       &cfg,
		lifecycle: NewLifecycleManager(),
		onFatal:   onFatal,
	}, nil
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildStorage(); err != nil {
		return fmt.Errorf("build storage failed: %w", err)
	}

	c.buildGateway()

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	logCfg := logger.Config{
		Level:   c.cfg.Logging.Level,
		Outputs: []string{"stdout"},
		Format:  c.cfg.Logging.Format,
	}

	var err error
	c.logger, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildStorage() error {
	st, err := store.NewSQLiteStore(c.cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	c.store = st
	return nil
}

func (c *Container) buildGateway() {
	c.client = &gateway.Client{
		BaseURL:     c.cfg.API.BaseURL,
		SecurityKey: c.cfg.API.SecurityKey,
		Referer:     c.cfg.API.Referer,
		HTTPClient:  gateway.NewDefaultHTTPClient(),
		Limiter:     gateway.NewTokenBucketLimiter(c.cfg.API.RateLimit, c.cfg.API.RateBurst),
		Metrics:     c.monitor,
		Timeout:     c.cfg.API.RequestTimeout(),
	}

	c.logger.Info("gateway built")
}

func (c *Container) buildCoreServices() error {
	policy := retry.Policy{
		MaxAttempts: c.cfg.Retry.MaxAttempts,
		BaseDelay:   c.cfg.Retry.BaseDelay(),
		MaxDelay:    c.cfg.Engine.MaxRestartDelay(),
		Jitter:      c.cfg.Retry.Jitter,
	}

	c.session = session.NewManager(c.client, c.store, policy, c.monitor, c.logger.Logger)

	channels := []notify.Channel{
		notify.NewLogChannel("log", c.logger.Logger),
	}
	if c.cfg.Notify.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel("webhook", c.cfg.Notify.WebhookURL))
	}
	c.notifier = notify.NewManager(channels, c.cfg.Notify.Throttle())

	c.poller = order.NewPoller(c.client, c.session, c.notifier, policy, c.monitor, c.logger.Logger)

	engCfg := engine.Config{
		CheckInterval:    c.cfg.Engine.CheckInterval(),
		RestartBaseDelay: c.cfg.Engine.RestartBaseDelay(),
		MaxRestartDelay:  c.cfg.Engine.MaxRestartDelay(),
		RetryCeiling:     c.cfg.Engine.RetryCeiling,
	}
	c.engine = engine.New(engCfg, c.session, c.poller, c.monitor, c.logger.Logger, c.onFatal)

	c.buildLiveness()

	c.control = control.NewServer(c.engine, c.logger.Logger)

	c.logger.Info("core services built")
	return nil
}

func (c *Container) buildLiveness() {
	monitors := []liveness.Monitor{
		&liveness.Heartbeat{Sess: c.session, Interval: c.cfg.Liveness.Heartbeat()},
		&liveness.Watchdog{
			Store:    c.store,
			Interval: c.cfg.Liveness.Watchdog(),
			Factor:   c.cfg.Liveness.WatchdogFactor,
		},
		&liveness.HealthProbe{
			API:      c.client,
			Sess:     c.session,
			Interval: c.cfg.Liveness.HealthProbe(),
		},
		&liveness.KeepAlive{
			API:      c.client,
			Hinter:   liveness.SystemdHinter{},
			Interval: c.cfg.Liveness.KeepAlive(),
			Log:      c.logger.Logger,
		},
	}

	onUnhealthy := func(name string, v liveness.Verdict) {
		c.logger.LogLiveness(name, v.Status.String(), map[string]interface{}{"reason": v.Reason})
		c.engine.RestartCycle()
	}
	c.liveness = liveness.NewRunner(monitors, c.store, onUnhealthy, c.monitor, c.logger.Logger)
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle.Register(&funcComponent{
		name:  "session_restore",
		start: c.restoreSession,
	})
	c.lifecycle.Register(c.engine)
	c.lifecycle.Register(c.liveness)
	c.lifecycle.Register(&httpServerComponent{
		name:    "metrics_server",
		handler: c.monitor.Handler(),
		addr:    c.cfg.Server.MetricsAddr,
		logger:  c.logger,
		server:  &c.metricsServer,
	})
	c.lifecycle.Register(&httpServerComponent{
		name:    "control_server",
		handler: c.control.Handler(),
		addr:    c.cfg.Server.ControlAddr,
		logger:  c.logger,
		server:  &c.controlServer,
	})
}

// restoreSession 启动时恢复持久化 token，再按配置注入预置凭据。
// 两步都失败不致命：没有凭据就等控制面注入。
func (c *Container) restoreSession(ctx context.Context) error {
	if err := c.session.Restore(ctx); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logger.LogError(err, map[string]interface{}{"action": "restore_session"})
	}

	if c.cfg.Account.Username != "" {
		creds := session.Credentials{
			Username: c.cfg.Account.Username,
			Password: c.cfg.Account.Password,
		}
		if err := c.engine.OnCredentialsProvided(ctx, creds); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "preset_login"})
		}
	}
	return nil
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	if c.store != nil {
		if cerr := c.store.Close(); cerr != nil {
			c.logger.LogError(cerr, map[string]interface{}{"action": "close_store"})
		}
	}

	if c.logger != nil {
		c.logger.Close()
	}

	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Engine 暴露编排入口，供宿主接控制信号与配置热更新。
func (c *Container) Engine() *engine.Engine { return c.engine }

// Logger 暴露日志器。
func (c *Container) Logger() *logger.Logger { return c.logger }

// Config 返回构建时的配置快照。
func (c *Container) Config() config.AppConfig { return *c.cfg }
