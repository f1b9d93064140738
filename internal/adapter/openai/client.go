// Package openai 兼容 OpenAI chat completions API 的引擎: ChatGPT, DeepSeek, Perplexity
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// DefaultBaseURLs 非OpenAI的兼容provider的默认地址
var DefaultBaseURLs = map[domain.Provider]string{
	domain.ProviderDeepSeek:   "https://api.deepseek.com/v1",
	domain.ProviderPerplexity: "https://api.perplexity.ai",
}

// Options 单个provider客户端的配置
type Options struct {
	APIKey  string
	Model   string
	BaseURL string // empty means the provider default
	// Azure 不为空时 ChatGPT 走 Azure OpenAI 部署
	Azure       *AzureOptions
	Temperature *float64
	HTTPClient  *http.Client
}

// AzureOptions Azure OpenAI 部署
type AzureOptions struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

// Client 为兼容OpenAI的provider实现 port.ProviderClient
type Client struct {
	provider    domain.Provider
	client      openai.Client
	model       openai.ChatModel
	temperature *float64
}

// New 创建客户端. SDK自带的重试被关闭, 是否重试由router决定.
func New(provider domain.Provider, opts Options) *Client {
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	model := opts.Model

	if opts.Azure != nil && opts.Azure.Endpoint != "" {
		version := opts.Azure.APIVersion
		if version == "" {
			version = "2024-12-01-preview"
		}
		reqOpts = append(reqOpts,
			azure.WithEndpoint(opts.Azure.Endpoint, version),
			azure.WithAPIKey(opts.Azure.APIKey),
		)
		if opts.Azure.Deployment != "" {
			model = opts.Azure.Deployment
		}
	} else {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
		base := opts.BaseURL
		if base == "" {
			base = DefaultBaseURLs[provider]
		}
		if base != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimSuffix(base, "/")+"/"))
		}
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &Client{
		provider:    provider,
		client:      openai.NewClient(reqOpts...),
		model:       openai.ChatModel(model),
		temperature: opts.Temperature,
	}
}

// Complete 以单条用户消息发送 prompt, 返回第一个choice的文本
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: c.model,
	}
	if c.temperature != nil {
		params.Temperature = openai.Float(*c.temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", common.NewProviderError(c.provider, domain.ErrorKindTransport, errors.New("no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return common.NewProviderError(c.provider, domain.ErrorKindRateLimited, err)
	}
	return common.ClassifyProviderError(c.provider, err)
}
