package llm

import (
	"fmt"
	"strings"

	"github.com/zenovak/2100-AAA/internal/types"
)

const (
	ErrCodeAuthFailed      types.ErrorCode = "LLM_AUTH_FAILED"
	ErrCodeRateLimited     types.ErrorCode = "LLM_RATE_LIMITED"
	ErrCodeRequestFailed   types.ErrorCode = "LLM_REQUEST_FAILED"
	ErrCodeUnknownProvider types.ErrorCode = "LLM_UNKNOWN_PROVIDER"
)

// NewAuthError reports a missing or rejected API key for a provider.
func NewAuthError(provider string, cause error) *types.EngineError {
	return types.WrapError(ErrCodeAuthFailed,
		fmt.Sprintf("authentication failed for provider %q", provider), cause)
}

// NewUnknownProviderError reports a provider name the factory does not know.
func NewUnknownProviderError(name string) *types.EngineError {
	return types.NewError(ErrCodeUnknownProvider, fmt.Sprintf("unknown provider %q", name))
}

// TranslateError maps a raw provider error onto an engine error, marking
// rate limits and transient transport failures as retryable.
func TranslateError(provider string, err error) *types.EngineError {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return types.NewRetryableError(ErrCodeRateLimited,
			fmt.Sprintf("provider %s rate limited", provider)).WithCause(err)
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") ||
		strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication"):
		return NewAuthError(provider, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "503"):
		return types.NewRetryableError(ErrCodeRequestFailed,
			fmt.Sprintf("provider %s request failed", provider)).WithCause(err)
	default:
		return types.WrapError(ErrCodeRequestFailed,
			fmt.Sprintf("provider %s request failed", provider), err)
	}
}
