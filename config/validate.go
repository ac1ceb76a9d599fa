package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.API.BaseURL == "" {
		return errors.New("api.baseURL is required")
	}
	if _, err := url.ParseRequestURI(cfg.API.BaseURL); err != nil {
		return fmt.Errorf("api.baseURL is not a valid URL: %w", err)
	}
	if cfg.API.SecurityKey == "" {
		return errors.New("api.securityKey is required (or NOTIF_SECURITY_KEY)")
	}
	// 凭据可空：正常路径是通过控制面在运行期注入
	if (cfg.Account.Username == "") != (cfg.Account.Password == "") {
		return errors.New("account.username and account.password must be set together")
	}
	return nil
}
