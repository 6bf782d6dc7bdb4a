package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/model"
)

// Sentinel errors shared by every repository implementation.
var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyClaimed = errors.New("establishment already claimed")
	ErrInvalidToken   = errors.New("invitation token invalid, expired or already used")
	ErrNotPending     = errors.New("claim is not pending")
)

// All repository interfaces in one file
type (
	EstablishmentRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Establishment, error)
		List(ctx context.Context, filter *model.EstablishmentFilter) ([]*model.Establishment, int64, error)
		// Each iterates every establishment matching filter, ignoring pagination.
		Each(ctx context.Context, filter *model.EstablishmentFilter, fn func(*model.Establishment) error) error
		Create(ctx context.Context, est *model.Establishment) error
		Counts(ctx context.Context) (*model.PlatformCounts, error)
	}

	StaffRepository interface {
		// ActiveAssignments returns the active assignments of a professional
		// at one establishment.
		ActiveAssignments(ctx context.Context, professionalID, establishmentID uuid.UUID) ([]*model.StaffAssignment, error)
		Memberships(ctx context.Context, professionalID uuid.UUID) ([]*model.Membership, error)
		ListByEstablishment(ctx context.Context, establishmentID uuid.UUID) ([]*model.StaffAssignment, error)
		Upsert(ctx context.Context, staff *model.StaffAssignment) error
		MigrateLegacyAffiliations(ctx context.Context) (*model.LegacyMigrationResult, error)
	}

	ClaimRepository interface {
		// Submit performs the whole claim write atomically.
		Submit(ctx context.Context, sub *model.ClaimSubmission) error
		Decide(ctx context.Context, decision *model.ClaimDecision) (*model.Claim, error)
		Get(ctx context.Context, id uuid.UUID) (*model.Claim, error)
		List(ctx context.Context, status model.ClaimRequestStatus) ([]*model.Claim, error)
		// ResetOrphaned puts claim_pending establishments with no pending
		// claim back to unclaimed and returns their ids.
		ResetOrphaned(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error)
	}

	InvitationRepository interface {
		Create(ctx context.Context, inv *model.Invitation) error
		GetByHash(ctx context.Context, hash []byte) (*model.Invitation, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	// HealthChecker is implemented by stores that can report liveness.
	HealthChecker interface {
		Ping(ctx context.Context) error
	}
)
