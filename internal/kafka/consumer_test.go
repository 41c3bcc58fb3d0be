package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ship-notification-service/internal/models"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type mockSubmitter struct{ mock.Mock }

func (m *mockSubmitter) Submit(ctx context.Context, sub models.Submission) (models.Receipt, error) {
	args := m.Called(sub.ClientRequestID)
	return args.Get(0).(models.Receipt), args.Error(1)
}

func encode(t *testing.T, sub models.Submission) []byte {
	t.Helper()
	b, err := json.Marshal(sub)
	require.NoError(t, err)
	return b
}

func validSubmission() models.Submission {
	return models.Submission{
		ClientRequestID: uuid.NewString(),
		ShipCode:        "VN-001",
		OccurredAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		OwnerName:       "Tran Van B",
		OwnerPhone:      "+84987654321",
		Type:            models.TypeMKN2H,
	}
}

func TestConsumer_SubmitsAndCommits(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := &fakeReader{msgs: make(chan kafka.Message, 4)}
	svc := &mockSubmitter{}

	good := validSubmission()
	flaky := validSubmission()
	invalid := validSubmission()
	invalid.Type = "BOGUS"

	svc.On("Submit", good.ClientRequestID).Return(models.Receipt{RequestID: "r1", Status: models.StatusQueued}, nil).Once()
	svc.On("Submit", flaky.ClientRequestID).Return(models.Receipt{}, errors.New("db unavailable")).Once()
	svc.On("Submit", flaky.ClientRequestID).Return(models.Receipt{RequestID: "r2"}, nil).Once()

	r.msgs <- kafka.Message{Offset: 1, Value: encode(t, good)}
	r.msgs <- kafka.Message{Offset: 2, Value: []byte("{not json")}
	r.msgs <- kafka.Message{Offset: 3, Value: encode(t, invalid)}
	r.msgs <- kafka.Message{Offset: 4, Value: encode(t, flaky)}

	c := newConsumer(r, svc, logger)
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	require.Eventually(t, func() bool { return len(r.commits()) == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, []int64{1, 2, 3, 4}, r.commits())
	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "Submit", invalid.ClientRequestID)
}
