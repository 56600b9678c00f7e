package notification_test

//go:generate mockgen -source=gateway.go -destination=mocks/mocks.go -package=mocks Gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"eseva/internal/notification"
	"eseva/internal/notification/mocks"
	"eseva/pkg/platform/retry"
)

func newRetrying(t *testing.T, attempts int) (*notification.RetryingGateway, *mocks.MockGateway) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mock := mocks.NewMockGateway(ctrl)
	policy := retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return notification.NewRetryingGateway(mock, policy, logger), mock
}

func TestRetryingGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("success on first attempt sends once", func(t *testing.T) {
		gw, mock := newRetrying(t, 3)
		mock.EXPECT().SendSMS(gomock.Any(), "9876543210", "hello").
			Return(notification.ProviderResult{Success: true, MessageID: "m1"}, nil)

		res, err := gw.SendSMS(ctx, "9876543210", "hello")
		require.NoError(t, err)
		assert.Equal(t, "m1", res.MessageID)
	})

	t.Run("retryable code is retried until success", func(t *testing.T) {
		gw, mock := newRetrying(t, 3)
		gomock.InOrder(
			mock.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(notification.ProviderResult{ErrorCode: notification.ErrorCodeRateLimited}, nil),
			mock.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(notification.ProviderResult{Success: true}, nil),
		)

		_, err := gw.SendSMS(ctx, "9876543210", "hello")
		require.NoError(t, err)
	})

	t.Run("transport errors are retried and bounded", func(t *testing.T) {
		gw, mock := newRetrying(t, 2)
		mock.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(notification.ProviderResult{}, errors.New("dial tcp: refused")).Times(2)

		_, err := gw.SendSMS(ctx, "9876543210", "hello")
		var pe *notification.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, notification.ErrorCodeUnavailable, pe.Result.ErrorCode)
		assert.Equal(t, 2, pe.Attempts)
	})

	t.Run("auth retry gets another attempt", func(t *testing.T) {
		gw, mock := newRetrying(t, 3)
		gomock.InOrder(
			mock.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(notification.ProviderResult{ErrorCode: notification.ErrorCodeAuthRetry, Message: "session expired"}, nil),
			mock.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(notification.ProviderResult{Success: true, MessageID: "m2"}, nil),
		)

		res, err := gw.SendSMS(ctx, "9876543210", "hello")
		require.NoError(t, err)
		assert.Equal(t, "m2", res.MessageID)
	})

	t.Run("auth failure is not retried", func(t *testing.T) {
		gw, mock := newRetrying(t, 5)
		mock.EXPECT().SendSMS(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(notification.ProviderResult{ErrorCode: notification.ErrorCodeAuthFailed, Message: "bad key"}, nil).Times(1)

		_, err := gw.SendSMS(ctx, "9876543210", "hello")
		var pe *notification.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, notification.ErrorCodeAuthFailed, pe.Result.ErrorCode)
	})
}

func TestErrorCodeRetryable(t *testing.T) {
	assert.True(t, notification.ErrorCodeTimeout.Retryable())
	assert.True(t, notification.ErrorCodeUnavailable.Retryable())
	assert.True(t, notification.ErrorCodeAuthRetry.Retryable())
	assert.False(t, notification.ErrorCodeAuthFailed.Retryable())
	assert.False(t, notification.ErrorCodeInvalidNumber.Retryable())
	assert.False(t, notification.ErrorCodeRejected.Retryable())
}
