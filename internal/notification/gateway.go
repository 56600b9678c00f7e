// Package notification delivers OTP messages to mobile numbers. Providers
// report structured results; retry decisions are made on the result code,
// never on message text.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"eseva/pkg/platform/retry"
)

//go:generate mockgen -source=gateway.go -destination=mocks/mocks.go -package=mocks Gateway

// Gateway sends a single SMS.
type Gateway interface {
	SendSMS(ctx context.Context, mobile, message string) (ProviderResult, error)
}

// ErrorCode is a provider-neutral failure classification.
type ErrorCode string

const (
	ErrorCodeNone       ErrorCode = ""
	ErrorCodeAuthFailed ErrorCode = "auth_failed"
	// ErrorCodeAuthRetry is a provider signal that its credential session
	// lapsed; the next attempt re-authenticates.
	ErrorCodeAuthRetry      ErrorCode = "auth_retry"
	ErrorCodeInvalidNumber  ErrorCode = "invalid_number"
	ErrorCodeRateLimited    ErrorCode = "rate_limited"
	ErrorCodeUnavailable    ErrorCode = "unavailable"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeRejected       ErrorCode = "rejected"
	ErrorCodeInvalidPayload ErrorCode = "invalid_response"
)

// Retryable reports whether a send failing with this code may succeed on retry.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrorCodeRateLimited, ErrorCodeUnavailable, ErrorCodeTimeout, ErrorCodeAuthRetry:
		return true
	default:
		return false
	}
}

// ProviderResult is the structured outcome of a send attempt.
type ProviderResult struct {
	Success   bool
	ErrorCode ErrorCode
	Message   string
	MessageID string
}

// ProviderError is returned when a send ultimately fails.
type ProviderError struct {
	Result   ProviderResult
	Attempts int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sms provider failure (%s) after %d attempt(s): %s", e.Result.ErrorCode, e.Attempts, e.Result.Message)
}

// RetryingGateway wraps a Gateway with a bounded retry policy.
type RetryingGateway struct {
	next   Gateway
	policy retry.Policy
	logger *slog.Logger
}

func NewRetryingGateway(next Gateway, policy retry.Policy, logger *slog.Logger) *RetryingGateway {
	policy.Retryable = func(err error) bool {
		pe, ok := err.(*ProviderError)
		return ok && pe.Result.ErrorCode.Retryable()
	}
	return &RetryingGateway{next: next, policy: policy, logger: logger}
}

func (g *RetryingGateway) SendSMS(ctx context.Context, mobile, message string) (ProviderResult, error) {
	var result ProviderResult
	err := retry.Do(ctx, g.policy, g.logger, func(ctx context.Context, attempt int) error {
		res, err := g.next.SendSMS(ctx, mobile, message)
		if err != nil {
			// Transport failures surface as unavailable so they are retried.
			res = ProviderResult{ErrorCode: ErrorCodeUnavailable, Message: err.Error()}
		}
		result = res
		if res.Success {
			return nil
		}
		if res.ErrorCode == ErrorCodeNone {
			res.ErrorCode = ErrorCodeRejected
			result = res
		}
		return &ProviderError{Result: res, Attempts: attempt}
	})
	if err != nil {
		if pe, ok := asProviderError(err); ok {
			return result, pe
		}
		return result, err
	}
	return result, nil
}
