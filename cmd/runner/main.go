package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"github.com/ghazaresan1/notif/config"
	"github.com/ghazaresan1/notif/internal/container"
	"github.com/ghazaresan1/notif/session"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 重试触顶后交由宿主重启整个进程（systemd Restart=always）
	fatal := make(chan string, 1)
	onFatal := func(reason string) {
		select {
		case fatal <- reason:
		default:
		}
	}

	c, err := container.New(*cfgPath, onFatal)
	if err != nil {
		log.Fatalf("初始化容器失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		c.Logger().Warn("sd_notify ready failed", zap.Error(err))
	}

	// 配置热更新：凭据或安全键变化时注入运行中的引擎
	go watchConfig(ctx, *cfgPath, c)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		c.Logger().Info("shutting down", zap.String("signal", sig.String()))
	case reason := <-fatal:
		c.Logger().Error("fatal restart requested", zap.String("reason", reason))
		exitCode = 1
	}

	cancel()
	if err := c.Stop(); err != nil {
		exitCode = 1
	}
	os.Exit(exitCode)
}

func watchConfig(ctx context.Context, path string, c *container.Container) {
	prev := c.Config()
	w := config.Watcher{Path: path}
	err := w.Start(ctx, func(cfg config.AppConfig) {
		if cfg.Account == prev.Account {
			return
		}
		prev = cfg
		c.Logger().Info("config changed, re-injecting credentials")
		creds := session.Credentials{
			Username: cfg.Account.Username,
			Password: cfg.Account.Password,
		}
		if creds.Empty() {
			return
		}
		if err := c.Engine().OnCredentialsProvided(ctx, creds); err != nil {
			c.Logger().LogError(err, map[string]interface{}{"action": "reload_credentials"})
		}
	})
	if err != nil && ctx.Err() == nil {
		c.Logger().LogError(err, map[string]interface{}{"action": "config_watch"})
	}
}
