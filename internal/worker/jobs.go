package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/repository"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

type AuditCleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) ([]uuid.UUID, error)
}

// CleanupJob drops audit entries and published outbox events past their
// retention.
type CleanupJob struct {
	audit           AuditCleaner
	outbox          repository.OutboxRepository
	auditRetention  time.Duration
	outboxRetention time.Duration
	logger          *logger.Logger
	now             func() time.Time
}

func NewCleanupJob(audit AuditCleaner, outbox repository.OutboxRepository, auditRetention, outboxRetention time.Duration, log *logger.Logger) *CleanupJob {
	return &CleanupJob{
		audit:           audit,
		outbox:          outbox,
		auditRetention:  auditRetention,
		outboxRetention: outboxRetention,
		logger:          log,
		now:             time.Now,
	}
}

func (j *CleanupJob) Name() string { return "retention_cleanup" }

func (j *CleanupJob) Run(ctx context.Context) error {
	now := j.now()

	if j.auditRetention > 0 {
		cutoff := now.Add(-j.auditRetention)
		rows, err := j.audit.Cleanup(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup audit logs: %w", err)
		}
		j.logger.Info("Cleaned up audit logs", "rows", rows, "before", cutoff)
	}

	if j.outboxRetention > 0 {
		cutoff := now.Add(-j.outboxRetention)
		rows, err := j.outbox.DeleteProcessedBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup outbox events: %w", err)
		}
		j.logger.Info("Cleaned up outbox events", "rows", rows, "before", cutoff)
	}
	return nil
}

// ReconcileJob returns establishments stuck in claim_pending to unclaimed.
type ReconcileJob struct {
	claims Reconciler
	logger *logger.Logger
}

func NewReconcileJob(claims Reconciler, log *logger.Logger) *ReconcileJob {
	return &ReconcileJob{claims: claims, logger: log}
}

func (j *ReconcileJob) Name() string { return "claim_reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) error {
	ids, err := j.claims.Reconcile(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		j.logger.Warn("Reset orphaned claim_pending establishments", "count", len(ids))
	}
	return nil
}
