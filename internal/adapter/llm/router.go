// Package llm 把 prompt 路由到已配置的各个AI引擎客户端
package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"
	"llm-aeo-tracker/internal/port"

	"golang.org/x/time/rate"
)

type route struct {
	client  port.ProviderClient
	limiter *rate.Limiter
}

// Router 实现了 port.LLMClient 和 port.ProviderSet 接口.
// 每个provider可以有自己的令牌桶限流, 重试策略是共用的.
type Router struct {
	routes map[domain.Provider]route
	retry  config.Retry
	logger *slog.Logger
}

// NewRouter 创建空路由, 使用前先 Register 客户端
func NewRouter(retry config.Retry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		routes: make(map[domain.Provider]route),
		retry:  retry,
		logger: logger,
	}
}

// Register 注册(或替换)provider的客户端. limit 为0表示不限流
func (r *Router) Register(provider domain.Provider, client port.ProviderClient, limit config.RateLimit) {
	rt := route{client: client}
	if limit.RequestsPerSecond > 0 {
		burst := limit.Burst
		if burst <= 0 {
			burst = 1
		}
		rt.limiter = rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), burst)
	}
	r.routes[provider] = rt
}

// Supports provider是否已注册
func (r *Router) Supports(provider domain.Provider) bool {
	_, ok := r.routes[provider]
	return ok
}

// Providers 按固定顺序列出已注册的provider
func (r *Router) Providers() []domain.Provider {
	var out []domain.Provider
	for _, p := range domain.AllProviders {
		if r.Supports(p) {
			out = append(out, p)
		}
	}
	return out
}

// Invoke 发送 prompt. 开启重试时网络错误和限流会重试; 返回的错误都是 *common.ProviderError
func (r *Router) Invoke(ctx context.Context, provider domain.Provider, prompt string) (string, error) {
	rt, ok := r.routes[provider]
	if !ok {
		return "", common.NewProviderError(provider, domain.ErrorKindTransport, errors.New("no client registered"))
	}

	var text string
	attempt := 0
	call := func() error {
		attempt++
		if attempt > 1 {
			r.logger.Debug("retrying provider", "provider", provider, "attempt", attempt)
		}
		if err := r.wait(ctx, provider, rt.limiter); err != nil {
			return err
		}
		out, err := rt.client.Complete(ctx, prompt)
		if err != nil {
			return common.ClassifyProviderError(provider, err)
		}
		text = out
		return nil
	}

	err := common.Do(ctx, call,
		common.WithMaxRetries(r.retry.MaxRetries),
		common.WithInitialDelay(time.Duration(r.retry.InitialDelayMs)*time.Millisecond),
		common.WithRetryIf(common.IsRetryableProviderError),
	)
	if err != nil {
		return "", common.ClassifyProviderError(provider, err)
	}
	return text, nil
}

func (r *Router) wait(ctx context.Context, provider domain.Provider, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return common.ClassifyProviderError(provider, ctxErr)
		}
		// 下一个令牌在截止时间之后才到
		return common.NewProviderError(provider, domain.ErrorKindRateLimited, err)
	}
	return nil
}
