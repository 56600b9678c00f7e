package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPConfig configures the bulk-SMS HTTP provider.
type HTTPConfig struct {
	BaseURL  string
	APIKey   string
	SenderID string
	UserID   string
	Password string
	Timeout  time.Duration
}

// HTTPGateway posts form-encoded messages to a bulk-SMS HTTP API that answers
// with a JSON status document.
type HTTPGateway struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

func NewHTTPGateway(cfg HTTPConfig, logger *slog.Logger) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type providerResponse struct {
	Status        string `json:"status"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId"`
}

func (g *HTTPGateway) SendSMS(ctx context.Context, mobile, message string) (ProviderResult, error) {
	start := time.Now()

	form := url.Values{}
	form.Set("userid", g.cfg.UserID)
	form.Set("password", g.cfg.Password)
	form.Set("senderid", g.cfg.SenderID)
	form.Set("msgType", "text")
	form.Set("msg", message)
	form.Set("mobile", mobile)
	form.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return ProviderResult{}, fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if g.cfg.APIKey != "" {
		req.Header.Set("apikey", g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		code := ErrorCodeUnavailable
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			code = ErrorCodeTimeout
		}
		return ProviderResult{ErrorCode: code, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	result := classify(resp.StatusCode, body)

	g.logger.InfoContext(ctx, "sms provider responded",
		"status", resp.StatusCode,
		"success", result.Success,
		"error_code", string(result.ErrorCode),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// classify turns an HTTP status and JSON body into a ProviderResult.
func classify(status int, body []byte) ProviderResult {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ProviderResult{ErrorCode: ErrorCodeAuthFailed, Message: http.StatusText(status)}
	case status == http.StatusTooManyRequests:
		return ProviderResult{ErrorCode: ErrorCodeRateLimited, Message: http.StatusText(status)}
	case status >= 500:
		return ProviderResult{ErrorCode: ErrorCodeUnavailable, Message: http.StatusText(status)}
	}

	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return ProviderResult{ErrorCode: ErrorCodeInvalidPayload, Message: "unparseable provider response"}
	}
	if status >= 200 && status < 300 && strings.EqualFold(pr.Status, "success") {
		return ProviderResult{Success: true, Message: pr.Message, MessageID: pr.TransactionID}
	}
	return ProviderResult{ErrorCode: mapProviderCode(pr.Code), Message: pr.Message}
}

func mapProviderCode(code string) ErrorCode {
	switch strings.ToLower(code) {
	case "auth_failed", "invalid_credentials", "unauthorized":
		return ErrorCodeAuthFailed
	case "auth_retry", "token_expired", "session_expired":
		return ErrorCodeAuthRetry
	case "invalid_number", "invalid_mobile":
		return ErrorCodeInvalidNumber
	case "rate_limited", "throttled":
		return ErrorCodeRateLimited
	case "unavailable", "service_unavailable":
		return ErrorCodeUnavailable
	default:
		return ErrorCodeRejected
	}
}
