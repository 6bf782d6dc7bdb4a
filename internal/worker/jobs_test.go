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
	"github.com/jwalitptl/establishment-api/internal/repository/memory"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Reconcile(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

func TestCleanupJob_DropsExpiredRows(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now()

	subject := uuid.New()
	require.NoError(t, store.Audit().Create(ctx, &model.AuditLog{
		Action: model.AuditActionClaimSubmit, EntityType: model.AuditEntityClaim, EntityID: subject,
		CreatedAt: now.Add(-100 * 24 * time.Hour),
	}))
	require.NoError(t, store.Audit().Create(ctx, &model.AuditLog{
		Action: model.AuditActionClaimApprove, EntityType: model.AuditEntityClaim, EntityID: subject,
		CreatedAt: now.Add(-time.Hour),
	}))

	processed, err := model.NewOutboxEvent(model.EventClaimSubmitted, map[string]string{"claim_id": "a"})
	require.NoError(t, err)
	pending, err := model.NewOutboxEvent(model.EventClaimApproved, map[string]string{"claim_id": "b"})
	require.NoError(t, err)
	require.NoError(t, store.Outbox().Create(ctx, processed))
	require.NoError(t, store.Outbox().UpdateStatus(ctx, processed.ID, model.OutboxStatusProcessed, nil, nil))
	require.NoError(t, store.Outbox().Create(ctx, pending))

	job := NewCleanupJob(store.Audit(), store.Outbox(), 90*24*time.Hour, 24*time.Hour, logger.Nop())
	job.now = func() time.Time { return now.Add(48 * time.Hour) }

	require.NoError(t, job.Run(ctx))

	logs, err := store.Audit().List(ctx, model.AuditEntityClaim, subject)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionClaimApprove, logs[0].Action)

	due, err := store.Outbox().GetPendingEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, due, 1, "only the processed event is purged")
	assert.Equal(t, pending.ID, due[0].ID)
}

func TestCleanupJob_ZeroRetentionKeepsEverything(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	subject := uuid.New()
	require.NoError(t, store.Audit().Create(ctx, &model.AuditLog{
		Action: model.AuditActionInvite, EntityType: model.AuditEntityInvitation, EntityID: subject,
		CreatedAt: time.Now().Add(-1000 * time.Hour),
	}))

	job := NewCleanupJob(store.Audit(), store.Outbox(), 0, 0, logger.Nop())
	require.NoError(t, job.Run(ctx))

	logs, err := store.Audit().List(ctx, model.AuditEntityInvitation, subject)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestReconcileJob(t *testing.T) {
	r := new(mockReconciler)
	r.On("Reconcile", mock.Anything).Return([]uuid.UUID{uuid.New()}, nil).Once()
	r.On("Reconcile", mock.Anything).Return(nil, errors.New("db down")).Once()

	job := NewReconcileJob(r, logger.Nop())
	assert.NoError(t, job.Run(context.Background()))
	assert.EqualError(t, job.Run(context.Background()), "db down")
	r.AssertExpectations(t)
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(logger.Nop())
	err := s.Add("not a cron spec", NewReconcileJob(new(mockReconciler), logger.Nop()))
	assert.Error(t, err)
}

func TestScheduler_RunNowUsesSchedulerContext(t *testing.T) {
	r := new(mockReconciler)
	r.On("Reconcile", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() != nil })).Return(nil, nil).Once()

	s := NewScheduler(logger.Nop())
	require.NoError(t, s.Add("*/5 * * * *", NewReconcileJob(r, logger.Nop())))
	s.Start(context.Background())
	s.Stop()

	assert.NoError(t, s.RunNow(NewReconcileJob(r, logger.Nop())), "a stopped scheduler hands out a cancelled context")
	r.AssertExpectations(t)
}
