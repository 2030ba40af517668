// Package service 是外部服务客户端：文本向量（Embedding）服务。
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/metrics"
	"github.com/rushteam/persona/pkg/logging"
)

// EmbeddingConfig 是 Embedding 客户端配置（对应配置文件的 embedding 段）
type EmbeddingConfig struct {
	// Endpoint 完整 URL，例如 http://embedder:8000/embed
	Endpoint string `koanf:"endpoint"`

	ShortTimeout time.Duration `koanf:"short_timeout"`
	LongTimeout  time.Duration `koanf:"long_timeout"`
	// LongTextThreshold 文本字符数超过该值时使用 LongTimeout
	LongTextThreshold int `koanf:"long_text_threshold"`

	// RateLimit 每秒请求数，<= 0 表示不限流
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`

	Breaker BreakerConfig `koanf:"breaker"`
	Auth    AuthConfig    `koanf:"auth"`
}

// BreakerConfig 熔断配置：窗口内请求数达到 MinRequests 且失败率 >= FailureRatio 时熔断
type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// AuthConfig 认证信息
type AuthConfig struct {
	Type     string `koanf:"type"` // "basic", "bearer", "api_key"
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Token    string `koanf:"token"`
	APIKey   string `koanf:"api_key"`
}

// DefaultEmbeddingConfig 返回默认配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Endpoint:          "http://localhost:8000/embed",
		ShortTimeout:      core.DefaultShortTextTimeout,
		LongTimeout:       core.DefaultLongTextTimeout,
		LongTextThreshold: 512,
		Burst:             1,
		Breaker: BreakerConfig{
			MaxRequests:  3,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			MinRequests:  10,
			FailureRatio: 0.6,
		},
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbeddingClient 是 Embedding 服务的 HTTP 客户端，实现 core.EmbeddingService。
//
// 协议：POST {"texts": [text]} -> {"embeddings": [[...]]}，每次只发一条文本，取 embeddings[0]。
// 每次调用都有超时上限（短文本 30s，长文本 60s）；非 2xx、超时、空结果与熔断拒绝
// 都返回 core.ErrEmbeddingUnavailable。
type EmbeddingClient struct {
	cfg        EmbeddingConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[[]float32]
	logger     zerolog.Logger
}

// EmbeddingOption 客户端配置选项
type EmbeddingOption func(*EmbeddingClient)

// WithHTTPClient 设置自定义 HTTP 客户端
func WithHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *EmbeddingClient) {
		e.httpClient = c
	}
}

// WithEmbeddingLogger 设置 logger
func WithEmbeddingLogger(l zerolog.Logger) EmbeddingOption {
	return func(e *EmbeddingClient) {
		e.logger = l
	}
}

// NewEmbeddingClient 创建客户端
func NewEmbeddingClient(cfg EmbeddingConfig, opts ...EmbeddingOption) (*EmbeddingClient, error) {
	if cfg.Endpoint == "" {
		return nil, core.ErrInvalidInput(core.ModuleService, "embedding: endpoint is required")
	}
	def := DefaultEmbeddingConfig()
	if cfg.ShortTimeout <= 0 {
		cfg.ShortTimeout = def.ShortTimeout
	}
	if cfg.LongTimeout <= 0 {
		cfg.LongTimeout = def.LongTimeout
	}
	if cfg.LongTextThreshold <= 0 {
		cfg.LongTextThreshold = def.LongTextThreshold
	}

	c := &EmbeddingClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logging.Component("embedding"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	c.cb = newBreaker("embedding", cfg.Breaker, c.logger)
	return c, nil
}

func newBreaker(name string, cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[[]float32] {
	minRequests := cfg.MinRequests
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	metrics.BreakerState.WithLabelValues(name).Set(0)
	return gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Embed 按文本长度选择超时
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, c.TimeoutFor(text))
}

// EmbedShort 强制使用短文本超时（标题、查询）
func (c *EmbeddingClient) EmbedShort(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, c.cfg.ShortTimeout)
}

// EmbedLong 强制使用长文本超时（正文）
func (c *EmbeddingClient) EmbedLong(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, c.cfg.LongTimeout)
}

// TimeoutFor 返回该文本使用的超时
func (c *EmbeddingClient) TimeoutFor(text string) time.Duration {
	if utf8.RuneCountInString(text) > c.cfg.LongTextThreshold {
		return c.cfg.LongTimeout
	}
	return c.cfg.ShortTimeout
}

func (c *EmbeddingClient) embed(ctx context.Context, text string, timeout time.Duration) ([]float32, error) {
	start := time.Now()
	vec, err := c.cb.Execute(func() ([]float32, error) {
		return c.do(ctx, text, timeout)
	})
	metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		result := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(result).Inc()
		l := logging.Ctx(ctx, c.logger)
		l.Warn().Err(err).Int("text_len", len(text)).Dur("timeout", timeout).Msg("embedding request failed")
		if errors.Is(err, core.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("success").Inc()
	return vec, nil
}

func (c *EmbeddingClient) do(ctx context.Context, text string, timeout time.Duration) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	body, err := json.Marshal(embedRequest{Texts: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding error: status=%d, body=%s", resp.StatusCode, string(snippet))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, errors.New("embedding response has no embeddings")
	}
	return out.Embeddings[0], nil
}

func (c *EmbeddingClient) addAuth(req *http.Request) {
	switch c.cfg.Auth.Type {
	case "basic":
		req.SetBasicAuth(c.cfg.Auth.Username, c.cfg.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+c.cfg.Auth.Token)
	case "api_key":
		req.Header.Set("X-API-Key", c.cfg.Auth.APIKey)
	}
}

var _ core.EmbeddingService = (*EmbeddingClient)(nil)
