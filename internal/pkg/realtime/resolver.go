package realtime

import (
	"Teamlink/internal/api/config"
	"Teamlink/internal/pkg/consts"
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// ErrRealtimeDisabled 功能未启用或缺少凭证，调用方应静默降级为轮询
var ErrRealtimeDisabled = errors.New("realtime feature disabled")

// Endpoint 解析出的连接参数
type Endpoint struct {
	URL string
	Key string
}

// SocketURL 拼出持久连接地址，http(s) 方案转换为 ws(s)
func (e *Endpoint) SocketURL() (string, error) {
	u, err := url.Parse(e.URL)
	if err != nil {
		return "", errors.Wrap(err, "parse realtime url")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = consts.RealtimeSocketPath
	q := u.Query()
	q.Set("apikey", e.Key)
	q.Set("vsn", consts.RealtimeVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Resolver 连接参数解析器。成功结果记忆化；
// 任何一次失败都会清掉记忆，让后续调用重新发起请求。
type Resolver struct {
	httpClient      *resty.Client
	configURL       string
	expectedBackend string

	mu     sync.Mutex
	cached *Endpoint
}

func NewResolver(cfg config.RealtimeConfig) *Resolver {
	client := resty.New().
		SetTimeout(10 * time.Second)

	return &Resolver{
		httpClient:      client,
		configURL:       cfg.ConfigURL,
		expectedBackend: cfg.ExpectedBackend,
	}
}

// Resolve 返回连接端点。未启用、后端不匹配或缺少凭证都视为未启用。
func (r *Resolver) Resolve(ctx context.Context) (*Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached, nil
	}

	var body struct {
		Enabled bool   `json:"enabled"`
		Backend string `json:"backend"`
		URL     string `json:"url"`
		Key     string `json:"key"`
	}

	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetResult(&body).
		Get(r.configURL)
	if err != nil {
		return nil, errors.Wrap(err, "resolve realtime config")
	}
	if resp.IsError() {
		return nil, errors.Errorf("resolve realtime config: status %d", resp.StatusCode())
	}

	if !body.Enabled || body.Backend != r.expectedBackend || body.URL == "" || body.Key == "" {
		return nil, ErrRealtimeDisabled
	}

	r.cached = &Endpoint{URL: body.URL, Key: body.Key}
	return r.cached, nil
}

// Invalidate 清除记忆化结果，下一次 Resolve 重新请求（用于凭证轮换）
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}
