// Package aggregator 把各provider的提及记录汇总成一组可见度指标
package aggregator

import (
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"
)

// Engine 计算 AggregateMetrics, 除权重外无状态
type Engine struct {
	weights config.VisibilityScoreWeights
}

// New 创建聚合引擎. 权重全为0时使用默认值
func New(weights config.VisibilityScoreWeights) *Engine {
	if weights.MentionWeight+weights.PositionWeight <= 0 {
		weights = config.Default().Weights
	}
	return &Engine{weights: weights}
}

// Aggregate 汇总记录. 忽略 nil; 失败的记录只计入 ProviderCount 和 FailedProviders
func (e *Engine) Aggregate(records []*domain.MentionRecord) domain.AggregateMetrics {
	m := domain.AggregateMetrics{FailedProviders: []domain.Provider{}}

	var best *domain.MentionRecord
	positionSum := 0
	for _, r := range records {
		if r == nil {
			continue
		}
		m.ProviderCount++
		if r.Failed() {
			m.FailedProviders = append(m.FailedProviders, r.Provider)
			continue
		}
		m.SucceededProviders++
		if !r.Mentioned() {
			continue
		}

		m.TotalMentions++
		positionSum += *r.Position
		switch r.Sentiment {
		case domain.SentimentPositive:
			m.Sentiment.Positive++
		case domain.SentimentNegative:
			m.Sentiment.Negative++
		default:
			m.Sentiment.Neutral++
		}
		if better(r, best) {
			best = r
		}
	}

	if m.TotalMentions == 0 {
		return m
	}

	m.AveragePosition = float64(positionSum) / float64(m.TotalMentions)
	provider := best.Provider
	m.BestProvider = &provider
	m.VisibilityScore = e.score(m.TotalMentions, m.AveragePosition, m.ProviderCount)
	return m
}

// better 比较 bestProvider 候选: 排名靠前优先, 其次情感更好, 最后按provider固定顺序
func better(candidate, current *domain.MentionRecord) bool {
	if current == nil {
		return true
	}
	if *candidate.Position != *current.Position {
		return *candidate.Position < *current.Position
	}
	if candidate.Sentiment.Rank() != current.Sentiment.Rank() {
		return candidate.Sentiment.Rank() > current.Sentiment.Rank()
	}
	return candidate.Provider.Order() < current.Provider.Order()
}

func (e *Engine) score(total int, avgPosition float64, providerCount int) float64 {
	limit := e.weights.MentionCap
	if limit <= 0 {
		limit = providerCount
	}
	if limit <= 0 || avgPosition <= 0 {
		return 0
	}

	mentionPart := float64(min(total, limit)) / float64(limit)
	positionPart := 1 / avgPosition

	mw, pw := e.weights.MentionWeight, e.weights.PositionWeight
	s := 10 * (mw*mentionPart + pw*positionPart) / (mw + pw)
	return clamp(s, 0, 10)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
