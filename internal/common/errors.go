package common

import (
	"context"
	"errors"
	"fmt"

	"llm-aeo-tracker/internal/domain"
)

// AppError 应用级错误结构
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code, so errors.Is(err, ErrValidation) works for any
// validation error. A generation error is also a validation error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code == ErrCodeInvalidInput && e.Code == ErrCodeGeneration
}

// WrapError 包装错误
func WrapError(code, message string, err error) error {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewError 创建新错误
func NewError(code, message string) error {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// 错误码常量
const (
	ErrCodeGitHubAPI    = "GITHUB_API_ERROR"
	ErrCodeDatabase     = "DATABASE_ERROR"
	ErrCodeProvider     = "PROVIDER_ERROR"
	ErrCodeNotification = "NOTIFICATION_ERROR"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeAggregation  = "AGGREGATION_ERROR"
	ErrCodeGeneration   = "GENERATION_ERROR"
	ErrCodeCanceled     = "CANCELED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks.
var (
	ErrValidation  = &AppError{Code: ErrCodeInvalidInput}
	ErrAggregation = &AppError{Code: ErrCodeAggregation}
	ErrGeneration  = &AppError{Code: ErrCodeGeneration}
	ErrCanceled    = &AppError{Code: ErrCodeCanceled}
	ErrNotFound    = &AppError{Code: ErrCodeNotFound}
	ErrDatabase    = &AppError{Code: ErrCodeDatabase}
	ErrPublish     = &AppError{Code: ErrCodeGitHubAPI}
	ErrNotify      = &AppError{Code: ErrCodeNotification}
)

// ValidationError rejects user input before any work is done.
func ValidationError(format string, args ...any) error {
	return NewError(ErrCodeInvalidInput, fmt.Sprintf(format, args...))
}

// GenerationError rejects malformed input to the document generator.
func GenerationError(format string, args ...any) error {
	return NewError(ErrCodeGeneration, fmt.Sprintf(format, args...))
}

// AggregationError is returned when no provider produced a response.
func AggregationError(message string) error {
	return NewError(ErrCodeAggregation, message)
}

// ProviderError is a single provider's failure. It degrades that provider's
// record and never aborts a batch.
type ProviderError struct {
	Provider domain.Provider
	Kind     domain.ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s %s: %v", ErrCodeProvider, e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s] %s %s", ErrCodeProvider, e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError of the given kind.
func NewProviderError(provider domain.Provider, kind domain.ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// ClassifyProviderError maps any error returned while calling a provider to
// a ProviderError. Errors that already carry a kind keep it; context
// deadlines become timeouts, cancellation becomes canceled and everything
// else is a transport failure.
func ClassifyProviderError(provider domain.Provider, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			return NewProviderError(provider, pe.Kind, pe.Err)
		}
		return pe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(provider, domain.ErrorKindTimeout, err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(provider, domain.ErrorKindCanceled, err)
	default:
		return NewProviderError(provider, domain.ErrorKindTransport, err)
	}
}

// IsRetryableProviderError reports whether retrying could help: rate limits
// and transport failures qualify, timeouts and cancellation do not.
func IsRetryableProviderError(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == domain.ErrorKindTransport || pe.Kind == domain.ErrorKindRateLimited
}
