package store

import (
	"context"
	"errors"
)

// 约定的键名。各键之间无跨键原子性，读取方应把部分状态当作"需要重新校验"。
const (
	KeyAuthToken      = "auth-token"
	KeyRestaurantInfo = "restaurant-info"
	LivenessPrefix    = "liveness/"
)

var ErrNotFound = errors.New("store: key not found")

// Store 持久化 key->bytes 存储，跨进程重启存活。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
