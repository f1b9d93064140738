package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"llm-aeo-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Is(t *testing.T) {
	validation := ValidationError("brand is required")
	generation := GenerationError("bad domain %q", "x y")
	aggregation := AggregationError("no provider answered")

	assert.ErrorIs(t, validation, ErrValidation)
	assert.ErrorIs(t, fmt.Errorf("submit: %w", validation), ErrValidation)
	assert.ErrorIs(t, generation, ErrGeneration)
	assert.ErrorIs(t, generation, ErrValidation)
	assert.NotErrorIs(t, validation, ErrGeneration)
	assert.ErrorIs(t, aggregation, ErrAggregation)
	assert.NotErrorIs(t, aggregation, ErrValidation)
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "[INVALID_INPUT] brand is required", ValidationError("brand is required").Error())

	wrapped := WrapError(ErrCodeDatabase, "save analysis", errors.New("conn refused"))
	assert.Equal(t, "[DATABASE_ERROR] save analysis: conn refused", wrapped.Error())
	assert.Equal(t, "conn refused", errors.Unwrap(wrapped).Error())
}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: domain.ErrorKindTimeout},
		{name: "canceled", err: context.Canceled, want: domain.ErrorKindCanceled},
		{name: "plain", err: errors.New("connection reset"), want: domain.ErrorKindTransport},
		{name: "already classified", err: NewProviderError(domain.ProviderGemini, domain.ErrorKindRateLimited, nil), want: domain.ErrorKindRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := ClassifyProviderError(domain.ProviderGemini, tt.err)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, domain.ProviderGemini, pe.Provider)
		})
	}

	assert.Nil(t, ClassifyProviderError(domain.ProviderGemini, nil))
}

func TestClassifyProviderError_FillsMissingProvider(t *testing.T) {
	pe := ClassifyProviderError(domain.ProviderClaude, &ProviderError{Kind: domain.ErrorKindRateLimited})
	assert.Equal(t, domain.ProviderClaude, pe.Provider)
	assert.Equal(t, domain.ErrorKindRateLimited, pe.Kind)
}

func TestIsRetryableProviderError(t *testing.T) {
	assert.True(t, IsRetryableProviderError(NewProviderError(domain.ProviderClaude, domain.ErrorKindTransport, nil)))
	assert.True(t, IsRetryableProviderError(NewProviderError(domain.ProviderClaude, domain.ErrorKindRateLimited, nil)))
	assert.False(t, IsRetryableProviderError(NewProviderError(domain.ProviderClaude, domain.ErrorKindTimeout, nil)))
	assert.False(t, IsRetryableProviderError(errors.New("plain")))
}
