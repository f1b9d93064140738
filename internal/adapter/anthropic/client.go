// Package anthropic 通过 Anthropic Messages API 查询 Claude
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/domain"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 1024

// Options 客户端配置
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string // 为空时使用SDK默认地址
	MaxTokens   int
	Temperature *float64
	HTTPClient  *http.Client
}

// Client 为 Claude 实现 port.ProviderClient
type Client struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature *float64
}

// New 创建 Claude 客户端. SDK自带的重试被关闭, 是否重试由router决定.
func New(opts Options) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimSuffix(opts.BaseURL, "/")+"/"))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		client:      anthropic.NewClient(reqOpts...),
		model:       anthropic.Model(opts.Model),
		maxTokens:   int64(maxTokens),
		temperature: opts.Temperature,
	}
}

// Complete 以单条用户消息发送 prompt, 拼接回复中的文本块
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.temperature != nil {
		params.Temperature = anthropic.Float(*c.temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", common.NewProviderError(domain.ProviderClaude, domain.ErrorKindTransport, errors.New("no text in response"))
	}
	return sb.String(), nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return common.NewProviderError(domain.ProviderClaude, domain.ErrorKindRateLimited, err)
	}
	return common.ClassifyProviderError(domain.ProviderClaude, err)
}
