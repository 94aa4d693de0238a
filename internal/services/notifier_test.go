package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockMailService struct {
	mock.Mock
}

func (m *mockMailService) SendMailToNotifyUser(ctx context.Context, to, subject, body, ctaText, ctaURL string) error {
	args := m.Called(ctx, to, subject, body, ctaText, ctaURL)
	return args.Error(0)
}

func TestMailNotifierSendsCancellation(t *testing.T) {
	mail := new(mockMailService)
	mail.On("SendMailToNotifyUser", mock.Anything, "a@example.com", "Order cancelled",
		"Order ORD-1 was cancelled: payment timeout.", "", "").Return(nil).Once()

	err := NewMailNotifier(mail).Notify(context.Background(), Notification{
		Kind:        NotificationOrderCancelled,
		Email:       "a@example.com",
		OrderNumber: "ORD-1",
		Reason:      "payment timeout",
	})
	require.NoError(t, err)
	mail.AssertExpectations(t)
}

func TestMailNotifierSkipsCustomersWithoutEmail(t *testing.T) {
	mail := new(mockMailService)
	require.NoError(t, NewMailNotifier(mail).Notify(context.Background(), Notification{Kind: NotificationPaymentCompleted}))
	mail.AssertNotCalled(t, "SendMailToNotifyUser")
}

func TestMultiNotifierReachesEveryone(t *testing.T) {
	first := &recordingNotifier{err: errBoom}
	second := &recordingNotifier{}
	multi := MultiNotifier{first, NoopNotifier{}, NewLogNotifier(zap.NewNop()), second}

	err := multi.Notify(context.Background(), Notification{Kind: NotificationPaymentCompleted})
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, first.sent, 1)
	assert.Len(t, second.sent, 1)
}

func TestRedisNotifierChannelAndFailure(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	notifier := NewRedisNotifier(rdb, "notifications:")
	customerID := uuid.MustParse("6f1c1f5e-0a4b-4c1e-9a77-3f1e2d3c4b5a")
	assert.Equal(t, "notifications:6f1c1f5e-0a4b-4c1e-9a77-3f1e2d3c4b5a", notifier.Channel(customerID))

	err := notifier.Notify(context.Background(), Notification{Kind: NotificationOrderCancelled, CustomerID: customerID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish order.cancelled")
}

func TestMailContent(t *testing.T) {
	subject, body := mailContent(Notification{Kind: NotificationPaymentCompleted, OrderNumber: "ORD-9", Amount: 250_000})
	assert.Equal(t, "Payment received", subject)
	assert.Equal(t, "We received your payment of 250000 VND for order ORD-9.", body)

	id := uuid.New()
	_, body = mailContent(Notification{Kind: "other", OrderID: id})
	assert.Contains(t, body, id.String())
}

func TestBuildMessageEncodesSubject(t *testing.T) {
	msg := string(buildMessage("shop <no-reply@shop.example>", "a@example.com", "Đơn hàng đã huỷ", "text", "<p>html</p>"))
	assert.Contains(t, msg, "Subject: =?UTF-8?b?")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8")
	assert.Contains(t, msg, "<p>html</p>")
}
