package config

import (
	"context"
	"os"
	"testing"
	"time"
)

const watchedConfig = `
env: dev
api:
  baseURL: https://api.test
  securityKey: sk
account:
  username: u1
  password: p1
`

func TestWatcherTriggersOnChange(t *testing.T) {
	path := writeTempConfig(t, watchedConfig)

	w := Watcher{Path: path, Cooldown: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan AppConfig, 1)
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case ch <- cfg:
			default:
			}
		})
	}()

	// 给 watcher 一点时间完成目录注册
	time.Sleep(50 * time.Millisecond)
	updated := `
env: dev
api:
  baseURL: https://api.test
  securityKey: sk
account:
  username: u2
  password: p2
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-ch:
		if cfg.Account.Username != "u2" {
			t.Fatalf("callback got stale config: %+v", cfg.Account)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected update callback")
	}
}

func TestWatcherIgnoresBrokenConfig(t *testing.T) {
	path := writeTempConfig(t, watchedConfig)

	w := Watcher{Path: path, Cooldown: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan struct{}, 1)
	go func() {
		_ = w.Start(ctx, func(AppConfig) {
			select {
			case ch <- struct{}{}:
			default:
			}
		})
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(":: not yaml ::"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-ch:
		t.Fatalf("broken config must not trigger callback")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	path := writeTempConfig(t, watchedConfig)

	w := Watcher{Path: path, Cooldown: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, nil) }()
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatalf("watcher did not stop")
	}
}
