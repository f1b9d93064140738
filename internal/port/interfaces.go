package port

import (
	"context"

	"llm-aeo-tracker/internal/domain"
)

// LLMClient 向一个AI引擎发送 prompt 并返回回答文本.
// 必须遵守 ctx: 单个provider的超时就是 ctx 的截止时间. 失败返回 *common.ProviderError.
type LLMClient interface {
	Invoke(ctx context.Context, provider domain.Provider, prompt string) (string, error)
}

// ProviderSet 只支持部分provider的客户端实现此接口, 服务层用它拒绝没人能回答的provider
type ProviderSet interface {
	Supports(provider domain.Provider) bool
}

// ProviderClient 单个引擎的补全接口
type ProviderClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LanguageDetector 识别回答语言, 返回小写 ISO 639-1 代码, 不确定时返回 ""
type LanguageDetector interface {
	Detect(text string) string
}

// Repository 存储已完成的分析
type Repository interface {
	Save(ctx context.Context, analysis *domain.Analysis) error
	Get(ctx context.Context, id string) (*domain.Analysis, error)
	// Recent 最新的在前, brand 为空时返回全部
	Recent(ctx context.Context, brand string, limit int) ([]*domain.Analysis, error)
}

// Notifier 把分析摘要推送到群聊
type Notifier interface {
	Notify(ctx context.Context, analysis *domain.Analysis) error
}

// Publisher 把生成的文件放到爬虫能访问的地方
type Publisher interface {
	Publish(ctx context.Context, docs *domain.DocumentSet) error
}

// LLMClientFunc adapts a function to LLMClient.
type LLMClientFunc func(ctx context.Context, provider domain.Provider, prompt string) (string, error)

// Invoke calls f.
func (f LLMClientFunc) Invoke(ctx context.Context, provider domain.Provider, prompt string) (string, error) {
	return f(ctx, provider, prompt)
}

// ProviderClientFunc adapts a function to ProviderClient.
type ProviderClientFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f ProviderClientFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
