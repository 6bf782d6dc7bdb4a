package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	"github.com/jwalitptl/establishment-api/pkg/messaging"
	"github.com/jwalitptl/establishment-api/pkg/metrics"
)

type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockOutboxRepo) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	events, _ := args.Get(0).([]*model.OutboxEvent)
	return events, args.Error(1)
}

func (m *mockOutboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	return m.Called(ctx, id, status, errorMessage, retryAt).Error(0)
}

func (m *mockOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return m.Called(ctx, channel, message).Error(0)
}

func (m *mockBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (m *mockBroker) Close() error { return nil }

var testConfig = OutboxProcessorConfig{
	BatchSize:     10,
	PollInterval:  time.Second,
	RetryAttempts: 3,
	RetryDelay:    time.Second,
	Channel:       "establishments.events",
}

func newTestProcessor(t *testing.T, repo *mockOutboxRepo, broker *mockBroker) *OutboxProcessor {
	p, err := NewOutboxProcessor(repo, broker, testConfig, logger.Nop(), metrics.New("test", nil))
	require.NoError(t, err)
	return p
}

func TestOutboxProcessor_PublishesAndMarksProcessed(t *testing.T) {
	repo, broker := new(mockOutboxRepo), new(mockBroker)
	p := newTestProcessor(t, repo, broker)

	event, err := model.NewOutboxEvent(model.EventClaimSubmitted, map[string]string{"claim_id": "x"})
	require.NoError(t, err)

	repo.On("GetPendingEvents", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	broker.On("Publish", mock.Anything, "establishments.events", messaging.Message{Type: event.EventType, Payload: event.Payload}).Return(nil)
	repo.On("UpdateStatus", mock.Anything, event.ID, model.OutboxStatusProcessed, (*string)(nil), (*time.Time)(nil)).Return(nil)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	repo.AssertExpectations(t)
	broker.AssertExpectations(t)
}

func TestOutboxProcessor_SchedulesRetryWithBackoff(t *testing.T) {
	repo, broker := new(mockOutboxRepo), new(mockBroker)
	p := newTestProcessor(t, repo, broker)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	event, err := model.NewOutboxEvent(model.EventClaimApproved, map[string]string{"claim_id": "x"})
	require.NoError(t, err)
	event.RetryCount = 1

	repo.On("GetPendingEvents", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	repo.On("UpdateStatus", mock.Anything, event.ID, model.OutboxStatusRetry, mock.Anything,
		mock.MatchedBy(func(at *time.Time) bool { return at != nil && at.Equal(now.Add(2*time.Second)) })).
		Return(nil)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	repo.AssertExpectations(t)
}

func TestOutboxProcessor_GivesUpAfterMaxAttempts(t *testing.T) {
	repo, broker := new(mockOutboxRepo), new(mockBroker)
	p := newTestProcessor(t, repo, broker)

	event, err := model.NewOutboxEvent(model.EventClaimRejected, map[string]string{"claim_id": "x"})
	require.NoError(t, err)
	event.RetryCount = 2

	repo.On("GetPendingEvents", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	repo.On("UpdateStatus", mock.Anything, event.ID, model.OutboxStatusFailed, mock.Anything, (*time.Time)(nil)).Return(nil)

	_, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestNewOutboxProcessor_RejectsBadConfig(t *testing.T) {
	cfg := testConfig
	cfg.Channel = ""
	_, err := NewOutboxProcessor(new(mockOutboxRepo), new(mockBroker), cfg, logger.Nop(), metrics.New("test", nil))
	assert.Error(t, err)
}
