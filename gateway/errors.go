package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials 凭据或安全键为空，调用方错误，不重试。
	ErrMissingCredentials = errors.New("credentials or security key not set")
	// ErrUnauthorized 业务端点返回 401，轮询方强制刷新一次后重试。
	ErrUnauthorized = errors.New("unauthorized")
)

// TransportError 网络层失败（含超时），可重试。
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError 认证被后端明确拒绝，立即上抛，绝不重试。
type RejectedError struct {
	Status int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("authentication rejected with status %d", e.Status)
}

// ServerError 业务端点非 2xx 且非 401 的响应，可经退避重试。
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned status %d", e.Status)
}

// IsRetryable 判断错误是否值得退避后再试。
func IsRetryable(err error) bool {
	var te *TransportError
	var se *ServerError
	return errors.As(err, &te) || errors.As(err, &se)
}
