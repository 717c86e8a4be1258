package repository

import (
	"Teamlink/internal/api/config"
	"time"

	"github.com/go-resty/resty/v2"
)

// NewCollabClient 构造协作方 REST 客户端。
// 协作方（主应用的 API 面）对本服务是黑盒：读接口幂等，写接口尽力而为。
func NewCollabClient(cfg config.CollabConfig) *resty.Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if cfg.TimeoutSec <= 0 {
		timeout = 10 * time.Second
	}

	return resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.ServiceToken).
		SetHeader("Accept", "application/json")
}
