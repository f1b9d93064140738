package domain

import (
	"fmt"
	"strings"
	"time"
)

// Provider 一个LLM问答引擎
type Provider string

const (
	ProviderChatGPT    Provider = "chatgpt"
	ProviderPerplexity Provider = "perplexity"
	ProviderClaude     Provider = "claude"
	ProviderGemini     Provider = "gemini"
	ProviderDeepSeek   Provider = "deepseek"
)

// AllProviders 固定顺序, 用于默认列表和平局判定
var AllProviders = []Provider{
	ProviderChatGPT,
	ProviderPerplexity,
	ProviderClaude,
	ProviderGemini,
	ProviderDeepSeek,
}

var providerNames = map[Provider]string{
	ProviderChatGPT:    "ChatGPT",
	ProviderPerplexity: "Perplexity",
	ProviderClaude:     "Claude",
	ProviderGemini:     "Gemini",
	ProviderDeepSeek:   "DeepSeek",
}

// ParseProvider 接受ID或显示名, 不区分大小写
func ParseProvider(s string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, p := range AllProviders {
		if string(p) == key {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// DisplayName 展示给用户的名字, 例如 "ChatGPT"
func (p Provider) DisplayName() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return string(p)
}

// Order returns the index of p in AllProviders, or len(AllProviders) for unknown ids.
func (p Provider) Order() int {
	for i, candidate := range AllProviders {
		if candidate == p {
			return i
		}
	}
	return len(AllProviders)
}

// Sentiment 提及处上下文的情感倾向
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Rank orders sentiments so that a higher rank is better.
func (s Sentiment) Rank() int {
	switch s {
	case SentimentPositive:
		return 2
	case SentimentNegative:
		return 0
	default:
		return 1
	}
}

// RecordStatus provider是否返回了回答
type RecordStatus string

const (
	StatusOK    RecordStatus = "ok"
	StatusError RecordStatus = "error"
)

// ErrorKind provider失败的类型
type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindTransport   ErrorKind = "transport"
	ErrorKindRateLimited ErrorKind = "rate_limited"
	ErrorKindCanceled    ErrorKind = "canceled"
)

// MentionRecord 一个provider在一次查询中对品牌的提及情况.
// 没找到品牌(或provider失败)时 Position 为 nil.
type MentionRecord struct {
	Provider       Provider      `json:"provider"`
	RawResponseID  string        `json:"raw_response_id,omitempty"`
	Brand          string        `json:"brand"`
	MatchedSnippet string        `json:"matched_snippet"`
	Position       *int          `json:"position"`
	Sentiment      Sentiment     `json:"sentiment"`
	Occurrences    int           `json:"occurrences"`
	Language       string        `json:"language,omitempty"`
	Status         RecordStatus  `json:"status"`
	ErrorKind      ErrorKind     `json:"error_kind,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	Latency        time.Duration `json:"latency"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Mentioned reports whether the brand was found in the response.
func (r *MentionRecord) Mentioned() bool {
	return r != nil && r.Position != nil
}

// Failed reports whether the provider call did not produce a response.
func (r *MentionRecord) Failed() bool {
	return r != nil && r.Status == StatusError
}

// ProviderResponse MentionRecord 对应的原始回答
type ProviderResponse struct {
	ID       string   `json:"id"`
	Provider Provider `json:"provider"`
	Text     string   `json:"text"`
}

// SentimentBreakdown counts mentions per sentiment.
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// AggregateMetrics 一组 MentionRecord 的汇总指标
type AggregateMetrics struct {
	TotalMentions      int                `json:"total_mentions"`
	AveragePosition    float64            `json:"average_position"`
	BestProvider       *Provider          `json:"best_provider"`
	VisibilityScore    float64            `json:"visibility_score"`
	ProviderCount      int                `json:"provider_count"`
	SucceededProviders int                `json:"succeeded_providers"`
	FailedProviders    []Provider         `json:"failed_providers"`
	Sentiment          SentimentBreakdown `json:"sentiment"`
}

// Priority of a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Category of a recommendation.
type Category string

const (
	CategoryContent      Category = "content"
	CategorySEO          Category = "seo"
	CategoryPresence     Category = "presence"
	CategoryOptimization Category = "optimization"
)

// Recommendation 根据指标得出的一条优化建议
type Recommendation struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Priority       Priority `json:"priority"`
	Category       Category `json:"category"`
	ExpectedImpact string   `json:"expected_impact"`
}

// DocumentSet 生成的爬虫文件
type DocumentSet struct {
	RobotsTxt  string `json:"robots_txt"`
	LLMTxt     string `json:"llm_txt"`
	SitemapXML string `json:"sitemap_xml"`
}

// CompetitorStanding 品牌或竞品在一次查询中的排名
type CompetitorStanding struct {
	Name    string           `json:"name"`
	IsBrand bool             `json:"is_brand"`
	Metrics AggregateMetrics `json:"metrics"`
	Rank    int              `json:"rank"`
}

// Analysis 一次查询的完整结果
type Analysis struct {
	ID              string               `json:"id" gorm:"primaryKey"`
	Brand           string               `json:"brand" gorm:"index"`
	Query           string               `json:"query"`
	VisibilityScore float64              `json:"visibility_score"`
	Records         []*MentionRecord     `json:"records" gorm:"type:jsonb;serializer:json"`
	Metrics         AggregateMetrics     `json:"metrics" gorm:"type:jsonb;serializer:json"`
	Recommendations []Recommendation     `json:"recommendations" gorm:"type:jsonb;serializer:json"`
	Competitors     []CompetitorStanding `json:"competitors,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt       time.Time            `json:"created_at"`
}

// TableName 指定表名
func (Analysis) TableName() string {
	return "analyses"
}
