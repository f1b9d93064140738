// Package recommender 根据汇总指标给出固定顺序的AEO优化建议
package recommender

import (
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"
)

// 规则ID同时也是建议ID
const (
	RuleContentAuthority   = "content-authority"
	RuleBrandDescriptions  = "brand-descriptions"
	RuleDigitalPresence    = "digital-presence"
	RuleNegativePerception = "negative-perception"
)

type rule struct {
	rec     domain.Recommendation
	applies func(m domain.AggregateMetrics, t config.RuleThresholds) bool
}

// 按顺序评估, 所有命中的规则都会输出
var rules = []rule{
	{
		rec: domain.Recommendation{
			ID:             RuleContentAuthority,
			Title:          "Improve Content Authority",
			Description:    "Create more authoritative content that LLMs are likely to reference when discussing your industry.",
			Priority:       domain.PriorityHigh,
			Category:       domain.CategoryContent,
			ExpectedImpact: "+25% mention rate",
		},
		applies: func(m domain.AggregateMetrics, t config.RuleThresholds) bool {
			return m.VisibilityScore < t.VisibilityBelow
		},
	},
	{
		rec: domain.Recommendation{
			ID:             RuleBrandDescriptions,
			Title:          "Optimize Brand Descriptions",
			Description:    "Enhance your public-facing descriptions to include key terms that improve AI model understanding.",
			Priority:       domain.PriorityMedium,
			Category:       domain.CategorySEO,
			ExpectedImpact: "+15% position improvement",
		},
		applies: func(m domain.AggregateMetrics, t config.RuleThresholds) bool {
			return m.AveragePosition > t.PositionAbove
		},
	},
	{
		rec: domain.Recommendation{
			ID:             RuleDigitalPresence,
			Title:          "Increase Digital Presence",
			Description:    "Expand your presence on platforms that AI models frequently crawl for information.",
			Priority:       domain.PriorityMedium,
			Category:       domain.CategoryPresence,
			ExpectedImpact: "+30% visibility",
		},
		applies: func(m domain.AggregateMetrics, _ config.RuleThresholds) bool {
			return m.TotalMentions < m.ProviderCount
		},
	},
	{
		rec: domain.Recommendation{
			ID:             RuleNegativePerception,
			Title:          "Address Negative Perception",
			Description:    "Publish reviews, case studies and clarifications that answer the criticism AI models repeat about your brand.",
			Priority:       domain.PriorityHigh,
			Category:       domain.CategoryOptimization,
			ExpectedImpact: "Fewer negative mentions",
		},
		applies: func(m domain.AggregateMetrics, _ config.RuleThresholds) bool {
			return m.Sentiment.Negative > 0
		},
	},
}

// Engine 用可配置的阈值执行规则表
type Engine struct {
	thresholds config.RuleThresholds
}

// New 创建建议引擎. 阈值为0时使用默认值
func New(thresholds config.RuleThresholds) *Engine {
	defaults := config.Default().Rules
	if thresholds.VisibilityBelow <= 0 {
		thresholds.VisibilityBelow = defaults.VisibilityBelow
	}
	if thresholds.PositionAbove <= 0 {
		thresholds.PositionAbove = defaults.PositionAbove
	}
	return &Engine{thresholds: thresholds}
}

// Recommend 按规则顺序返回所有适用的建议. 空切片(非nil)表示无需优化
func (e *Engine) Recommend(m domain.AggregateMetrics) []domain.Recommendation {
	out := []domain.Recommendation{}
	for _, r := range rules {
		if r.applies(m, e.thresholds) {
			out = append(out, r.rec)
		}
	}
	return out
}
