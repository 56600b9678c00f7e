package notification

import (
	"context"
	"log/slog"
)

// LogGateway writes messages to the log instead of sending them. Development only.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) SendSMS(ctx context.Context, mobile, message string) (ProviderResult, error) {
	g.logger.InfoContext(ctx, "sms (log provider)", "mobile", mobile, "message", message)
	return ProviderResult{Success: true, MessageID: "log"}, nil
}
