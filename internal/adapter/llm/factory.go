package llm

import (
	"context"
	"fmt"
	"log/slog"

	"llm-aeo-tracker/internal/adapter/anthropic"
	"llm-aeo-tracker/internal/adapter/gemini"
	"llm-aeo-tracker/internal/adapter/openai"
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"
)

// FromConfig 为每个有凭证的provider注册客户端. 没有 API key 的会被跳过,
// 请求它们时在校验阶段就失败, 而不是调用时才失败. 返回的 cleanup 关闭SDK连接.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Router, func(), error) {
	r := NewRouter(cfg.Retry, logger)
	var closers []func() error

	for _, p := range domain.AllProviders {
		key := cfg.APIKeys[p]
		model := cfg.Models[p]
		limit := cfg.RateLimits[p]

		switch p {
		case domain.ProviderChatGPT:
			azure := cfg.AzureOpenAI
			if key == "" && azure.Endpoint == "" {
				continue
			}
			opts := openai.Options{APIKey: key, Model: model}
			if azure.Endpoint != "" {
				opts.Azure = &openai.AzureOptions{Endpoint: azure.Endpoint, APIKey: azure.APIKey, Deployment: azure.Deployment}
			}
			r.Register(p, openai.New(p, opts), limit)

		case domain.ProviderDeepSeek, domain.ProviderPerplexity:
			if key == "" {
				continue
			}
			r.Register(p, openai.New(p, openai.Options{APIKey: key, Model: model}), limit)

		case domain.ProviderClaude:
			if key == "" {
				continue
			}
			r.Register(p, anthropic.New(anthropic.Options{APIKey: key, Model: model}), limit)

		case domain.ProviderGemini:
			if key == "" {
				continue
			}
			client, err := gemini.NewClient(ctx, key, model, nil)
			if err != nil {
				for _, c := range closers {
					_ = c()
				}
				return nil, nil, fmt.Errorf("gemini client: %w", err)
			}
			closers = append(closers, client.Close)
			r.Register(p, client, limit)
		}
	}

	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	return r, cleanup, nil
}
