package notification

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig configures the Twilio provider.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// messageCreator is the slice of the Twilio API the gateway uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioGateway sends SMS through Twilio's Messages API.
type TwilioGateway struct {
	api    messageCreator
	from   string
	logger *slog.Logger
}

func NewTwilioGateway(cfg TwilioConfig, logger *slog.Logger) *TwilioGateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioGateway{api: client.Api, from: cfg.From, logger: logger}
}

func (g *TwilioGateway) SendSMS(ctx context.Context, mobile, message string) (ProviderResult, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(g.from)
	params.SetTo(mobile)
	params.SetBody(message)

	resp, err := g.api.CreateMessage(params)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) {
			g.logger.WarnContext(ctx, "twilio rejected message",
				"status", restErr.Status,
				"twilio_code", restErr.Code,
			)
			return ProviderResult{ErrorCode: twilioErrorCode(restErr.Status), Message: restErr.Message}, nil
		}
		return ProviderResult{ErrorCode: ErrorCodeUnavailable, Message: err.Error()}, nil
	}

	result := ProviderResult{Success: true}
	if resp != nil && resp.Sid != nil {
		result.MessageID = *resp.Sid
	}
	return result, nil
}

func twilioErrorCode(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorCodeAuthFailed
	case status == http.StatusTooManyRequests:
		return ErrorCodeRateLimited
	case status >= 500:
		return ErrorCodeUnavailable
	case status == http.StatusBadRequest:
		return ErrorCodeInvalidNumber
	default:
		return ErrorCodeRejected
	}
}
