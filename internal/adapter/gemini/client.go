package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/domain"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Client 实现了 port.ProviderClient 接口
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewClient 创建 Gemini 客户端. temperature 为 nil 时使用模型默认值.
func NewClient(ctx context.Context, apiKey, modelName string, temperature *float64) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(modelName)
	if temperature != nil {
		model.SetTemperature(float32(*temperature))
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

// Complete 把 prompt 原样发给模型并返回回答文本
func (g *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(err)
	}
	return responseText(resp)
}

// Close 释放底层连接
func (g *Client) Close() error {
	return g.client.Close()
}

// responseText 拼接第一个候选回答里的所有文本片段
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", common.NewProviderError(domain.ProviderGemini, domain.ErrorKindTransport, errors.New("AI 返回内容为空"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", common.NewProviderError(domain.ProviderGemini, domain.ErrorKindTransport, errors.New("AI 返回内容为空"))
	}
	return sb.String(), nil
}

// classify 识别限流错误, REST 和 gRPC 两种传输方式都要处理
func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return common.NewProviderError(domain.ProviderGemini, domain.ErrorKindRateLimited, err)
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return common.NewProviderError(domain.ProviderGemini, domain.ErrorKindRateLimited, err)
	}
	return common.ClassifyProviderError(domain.ProviderGemini, err)
}
