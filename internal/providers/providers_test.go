package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ship-notification-service/internal/config"
	"ship-notification-service/internal/models"
)

var pushMsg = models.PushMessage{
	Title: "Tàu VN-001 mất kết nối 2 giờ",
	Body:  "Vị trí cuối: 10°45'00.00\"N",
	Data:  map[string]string{"notification_id": "n-1"},
}

type mockSNS struct{ mock.Mock }

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, *params.TargetArn)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func TestSNSTransport_PartialFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	client := &mockSNS{}
	client.On("Publish", mock.Anything, "arn:a").Return(&sns.PublishOutput{}, nil).Once()
	client.On("Publish", mock.Anything, "arn:b").Return(nil, errors.New("EndpointDisabled")).Once()

	tr := &SNSTransport{client: client, logger: logger}
	res, err := tr.SendBatch(context.Background(), pushMsg, []string{"arn:a", "arn:b"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	require.Len(t, res.Results, 2)
	assert.NoError(t, res.Results[0].Err)
	assert.Error(t, res.Results[1].Err)
	assert.Len(t, hook.Entries, 1)
	client.AssertExpectations(t)
}

func TestSNSTransport_AllFailedIsTransportError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	client := &mockSNS{}
	client.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	tr := &SNSTransport{client: client, logger: logger}
	res, err := tr.SendBatch(context.Background(), pushMsg, []string{"arn:a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.Zero(t, res.SuccessCount)
}

func TestSNSMessage_PlatformPayloads(t *testing.T) {
	raw, err := snsMessage(pushMsg)
	require.NoError(t, err)

	var envelope map[string]string
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
	assert.Equal(t, pushMsg.Body, envelope["default"])

	var gcm gcmPayload
	require.NoError(t, json.Unmarshal([]byte(envelope["GCM"]), &gcm))
	assert.Equal(t, pushMsg.Title, gcm.Notification.Title)
	assert.Equal(t, "n-1", gcm.Data["notification_id"])

	var apns apnsPayload
	require.NoError(t, json.Unmarshal([]byte(envelope["APNS"]), &apns))
	assert.Equal(t, pushMsg.Body, apns.APS.Alert.Body)
}

type mockTelegram struct{ mock.Mock }

func (m *mockTelegram) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	args := m.Called(params.ChatID)
	msg, _ := args.Get(0).(*tgmodels.Message)
	return msg, args.Error(1)
}

func TestTelegramTransport_RetriesThenSucceeds(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sender := &mockTelegram{}
	sender.On("SendMessage", int64(42)).Return(nil, errors.New("bad gateway")).Once()
	sender.On("SendMessage", int64(42)).Return(&tgmodels.Message{}, nil).Once()

	tr := newTelegramTransport(sender, 100, logger)
	tr.retryDelay = time.Millisecond

	res, err := tr.SendBatch(context.Background(), pushMsg, []string{"42"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	sender.AssertExpectations(t)
}

func TestTelegramTransport_InvalidChatID(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sender := &mockTelegram{}
	sender.On("SendMessage", int64(7)).Return(&tgmodels.Message{}, nil).Once()

	tr := newTelegramTransport(sender, 100, logger)
	tr.retryDelay = time.Millisecond

	res, err := tr.SendBatch(context.Background(), pushMsg, []string{"not-a-chat", "7"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	require.Len(t, res.Results, 2)
	assert.Error(t, res.Results[0].Err)
	sender.AssertNotCalled(t, "SendMessage", "not-a-chat")
}

func TestTelegramTransport_AllFailed(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sender := &mockTelegram{}
	sender.On("SendMessage", int64(7)).Return(nil, errors.New("forbidden"))

	tr := newTelegramTransport(sender, 100, logger)
	tr.retryDelay = time.Millisecond

	_, err := tr.SendBatch(context.Background(), pushMsg, []string{"7"})
	assert.ErrorIs(t, err, models.ErrTransport)
	sender.AssertNumberOfCalls(t, "SendMessage", 3)
}

func TestLogTransport_AcceptsAll(t *testing.T) {
	logger, hook := test.NewNullLogger()
	res, err := NewLogTransport(logger).SendBatch(context.Background(), pushMsg, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestNew_SelectsDriver(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var cfg config.Config
	cfg.Transport.Driver = "log"
	tr, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogTransport{}, tr)

	cfg.Transport.Driver = "carrier-pigeon"
	_, err = New(context.Background(), cfg, logger)
	assert.Error(t, err)
}
