package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/domain"
)

type Notifier struct {
	webhookURL    string
	reportBaseURL string
	client        *http.Client
	maxRetries    int
	retryDelay    time.Duration
}

// NewNotifier reportBaseURL 可以为空, 为空时卡片不带"查看报告"按钮
func NewNotifier(webhook, reportBaseURL string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if webhook == "" {
		logger.Warn("飞书 Webhook 为空，推送功能将无法工作")
	}
	return &Notifier{
		webhookURL:    webhook,
		reportBaseURL: strings.TrimSuffix(reportBaseURL, "/"),
		client:        &http.Client{Timeout: 10 * time.Second},
		maxRetries:    3,
		retryDelay:    500 * time.Millisecond,
	}
}

// Notify 发送飞书卡片消息 (Schema 2.0)
func (n *Notifier) Notify(ctx context.Context, a *domain.Analysis) error {
	if n.webhookURL == "" {
		return common.NewError(common.ErrCodeNotification, "Webhook URL 为空")
	}

	body, err := json.Marshal(n.card(a))
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "编码卡片失败", err)
	}

	// 发送请求 (带重试机制)
	err = common.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, postErr := n.client.Do(req)
		if postErr != nil {
			return postErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("飞书 API 报错: 状态码 %d", resp.StatusCode)
		}
		return nil
	},
		common.WithMaxRetries(n.maxRetries),
		common.WithInitialDelay(n.retryDelay),
	)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "发送请求失败", err)
	}
	return nil
}

func (n *Notifier) card(a *domain.Analysis) map[string]interface{} {
	m := a.Metrics
	title := fmt.Sprintf("AI 可见度报告: %s (%.1f/10)", a.Brand, a.VisibilityScore)

	best := "无"
	if m.BestProvider != nil {
		best = m.BestProvider.DisplayName()
	}
	avg := "未提及"
	if m.AveragePosition > 0 {
		avg = fmt.Sprintf("%.1f", m.AveragePosition)
	}

	var md strings.Builder
	fmt.Fprintf(&md, "**查询:** %s\n", a.Query)
	fmt.Fprintf(&md, "**提及次数:** %d/%d  |  **平均排名:** %s  |  **最佳平台:** %s\n",
		m.TotalMentions, m.ProviderCount, avg, best)
	fmt.Fprintf(&md, "**情感:** 正面 %d / 中性 %d / 负面 %d\n",
		m.Sentiment.Positive, m.Sentiment.Neutral, m.Sentiment.Negative)
	if len(m.FailedProviders) > 0 {
		names := make([]string, 0, len(m.FailedProviders))
		for _, p := range m.FailedProviders {
			names = append(names, p.DisplayName())
		}
		fmt.Fprintf(&md, "**失败平台:** %s\n", strings.Join(names, ", "))
	}
	if len(a.Competitors) > 0 {
		md.WriteString("\n**竞品排名:**\n")
		for _, c := range a.Competitors {
			fmt.Fprintf(&md, "%d. %s (%.1f)\n", c.Rank, c.Name, c.Metrics.VisibilityScore)
		}
	}
	if len(a.Recommendations) > 0 {
		md.WriteString("\n**优化建议:**\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&md, "- [%s] %s: %s\n", r.Priority, r.Title, r.ExpectedImpact)
		}
	}

	elements := []map[string]interface{}{
		{
			"tag":       "markdown",
			"content":   md.String(),
			"text_size": "normal",
		},
	}
	if n.reportBaseURL != "" {
		elements = append(elements, map[string]interface{}{
			"tag": "button",
			"text": map[string]interface{}{
				"tag":     "plain_text",
				"content": "查看报告",
			},
			"type": "primary",
			"behaviors": []map[string]interface{}{
				{
					"type":        "open_url",
					"default_url": n.reportBaseURL + "/api/analyses/" + a.ID,
				},
			},
		})
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": headerColor(a.VisibilityScore),
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements":  elements,
			},
		},
	}
}

func headerColor(score float64) string {
	switch {
	case score >= 7:
		return "green"
	case score >= 4:
		return "orange"
	default:
		return "red"
	}
}
