package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
	"github.com/jwalitptl/establishment-api/internal/service/audit"
	"github.com/jwalitptl/establishment-api/internal/service/invitation"
	apperrors "github.com/jwalitptl/establishment-api/pkg/errors"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	"github.com/jwalitptl/establishment-api/pkg/metrics"
)

type ClaimServicer interface {
	Submit(ctx context.Context, req *model.SubmitClaimRequest) (*model.Claim, error)
	Approve(ctx context.Context, claimID, adminID uuid.UUID) (*model.Claim, error)
	Reject(ctx context.Context, claimID, adminID uuid.UUID, reason string) (*model.Claim, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Claim, error)
	List(ctx context.Context, status model.ClaimRequestStatus) ([]*model.Claim, error)
	Reconcile(ctx context.Context) ([]uuid.UUID, error)
}

type Config struct {
	// ReconcileGrace is how long an establishment may sit in claim_pending
	// without a pending claim before the sweep resets it.
	ReconcileGrace time.Duration
}

type Service struct {
	claims  repository.ClaimRepository
	outbox  repository.OutboxRepository
	auditor *audit.Service
	metrics *metrics.Metrics
	logger  *logger.Logger
	config  Config
	now     func() time.Time
}

func NewService(
	claims repository.ClaimRepository,
	outbox repository.OutboxRepository,
	auditor *audit.Service,
	metrics *metrics.Metrics,
	logger *logger.Logger,
	config Config,
) *Service {
	return &Service{
		claims:  claims,
		outbox:  outbox,
		auditor: auditor,
		metrics: metrics,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// eventPayload is published for every claim transition.
type eventPayload struct {
	ClaimID         uuid.UUID                `json:"claim_id,omitempty"`
	EstablishmentID uuid.UUID                `json:"establishment_id"`
	ClaimantID      uuid.UUID                `json:"claimant_id,omitempty"`
	Status          model.ClaimRequestStatus `json:"status,omitempty"`
	DecidedBy       *uuid.UUID               `json:"decided_by,omitempty"`
	Reason          string                   `json:"reason,omitempty"`
	At              time.Time                `json:"at"`
}

// Submit records a claim on an unclaimed or rejected establishment. The
// status change, the claim row, the claimant's pending owner assignment,
// the token consumption and the outbox event are written atomically.
func (s *Service) Submit(ctx context.Context, req *model.SubmitClaimRequest) (*model.Claim, error) {
	if req.EstablishmentID == uuid.Nil || req.ClaimantID == uuid.Nil {
		return nil, apperrors.BadRequest("establishment and claimant are required", nil)
	}

	now := s.now()
	claim := &model.Claim{
		ID:              uuid.New(),
		EstablishmentID: req.EstablishmentID,
		ClaimantID:      req.ClaimantID,
		Status:          model.ClaimRequestPending,
		Message:         req.Message,
		CreatedAt:       now,
	}

	event, err := model.NewOutboxEvent(model.EventClaimSubmitted, eventPayload{
		ClaimID:         claim.ID,
		EstablishmentID: claim.EstablishmentID,
		ClaimantID:      claim.ClaimantID,
		Status:          claim.Status,
		At:              now,
	})
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to build event: %w", err))
	}

	sub := &model.ClaimSubmission{
		Claim: claim,
		Staff: &model.StaffAssignment{
			EstablishmentID: req.EstablishmentID,
			ProfessionalID:  req.ClaimantID,
			Role:            model.StaffRoleOwner,
			IsAdmin:         true,
			Status:          model.StaffStatusPending,
			Source:          model.StaffSourceStaff,
			Permissions:     model.OwnerPermissions(),
		},
		SubmitTime: now,
		Event:      event,
	}
	if req.Token != "" {
		sub.TokenHash = invitation.HashToken(req.Token)
	}

	if err := s.claims.Submit(ctx, sub); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("establishment", err)
		case errors.Is(err, repository.ErrAlreadyClaimed):
			s.metrics.ClaimConflicts.Inc()
			return nil, apperrors.Conflict("establishment already claimed", err)
		case errors.Is(err, repository.ErrInvalidToken):
			return nil, apperrors.BadRequest("invitation token is invalid or expired", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to submit claim: %w", err))
	}
	s.metrics.ClaimsSubmitted.Inc()

	s.audit(ctx, req.ClaimantID, model.AuditActionClaimSubmit, claim,
		fmt.Sprintf("claim submitted for establishment %s", claim.EstablishmentID), nil)

	s.logger.WithContext(ctx).Info("Claim submitted",
		"claim_id", claim.ID.String(),
		"establishment_id", claim.EstablishmentID.String(),
		"claimant_id", claim.ClaimantID.String(),
		"with_token", req.Token != "")

	return claim, nil
}

// Approve verifies the establishment and activates the claimant's owner
// assignment.
func (s *Service) Approve(ctx context.Context, claimID, adminID uuid.UUID) (*model.Claim, error) {
	return s.decide(ctx, claimID, adminID, true, "")
}

// Reject returns the establishment to the rejected state, from which it may
// be claimed again, and deactivates the claimant's pending assignment.
func (s *Service) Reject(ctx context.Context, claimID, adminID uuid.UUID, reason string) (*model.Claim, error) {
	return s.decide(ctx, claimID, adminID, false, reason)
}

func (s *Service) decide(ctx context.Context, claimID, adminID uuid.UUID, approve bool, reason string) (*model.Claim, error) {
	current, err := s.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.ClaimRequestPending {
		return nil, apperrors.Conflict("claim is not pending", repository.ErrNotPending)
	}

	now := s.now()
	eventType, status, action, decision := model.EventClaimRejected, model.ClaimRequestRejected, model.AuditActionClaimReject, "rejected"
	if approve {
		eventType, status, action, decision = model.EventClaimApproved, model.ClaimRequestApproved, model.AuditActionClaimApprove, "approved"
	}

	event, err := model.NewOutboxEvent(eventType, eventPayload{
		ClaimID:         current.ID,
		EstablishmentID: current.EstablishmentID,
		ClaimantID:      current.ClaimantID,
		Status:          status,
		DecidedBy:       &adminID,
		Reason:          reason,
		At:              now,
	})
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to build event: %w", err))
	}

	claim, err := s.claims.Decide(ctx, &model.ClaimDecision{
		ClaimID:   claimID,
		AdminID:   adminID,
		Approve:   approve,
		Reason:    reason,
		DecidedAt: now,
		Event:     event,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("claim", err)
		case errors.Is(err, repository.ErrNotPending):
			return nil, apperrors.Conflict("claim is not pending", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to decide claim: %w", err))
	}
	s.metrics.ClaimDecisions.WithLabelValues(decision).Inc()

	s.audit(ctx, adminID, action, claim,
		fmt.Sprintf("claim %s %s", claim.ID, decision),
		map[string]interface{}{"status": map[string]interface{}{"old": current.Status, "new": claim.Status}})

	s.logger.WithContext(ctx).Info("Claim decided",
		"claim_id", claim.ID.String(),
		"establishment_id", claim.EstablishmentID.String(),
		"decision", decision,
		"admin_id", adminID.String())

	return claim, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	claim, err := s.claims.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("claim", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to get claim: %w", err))
	}
	return claim, nil
}

// List returns claims oldest first. An empty status lists every claim.
func (s *Service) List(ctx context.Context, status model.ClaimRequestStatus) ([]*model.Claim, error) {
	switch status {
	case "", model.ClaimRequestPending, model.ClaimRequestApproved, model.ClaimRequestRejected:
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown claim status %q", status), nil)
	}

	claims, err := s.claims.List(ctx, status)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list claims: %w", err))
	}
	return claims, nil
}

// Reconcile resets establishments stuck in claim_pending without a pending
// claim, typically rows written before submissions became transactional.
func (s *Service) Reconcile(ctx context.Context) ([]uuid.UUID, error) {
	now := s.now()
	ids, err := s.claims.ResetOrphaned(ctx, now.Add(-s.config.ReconcileGrace))
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to reset orphaned claims: %w", err))
	}
	if len(ids) == 0 {
		return ids, nil
	}
	s.metrics.ClaimsReconciled.Add(float64(len(ids)))

	for _, id := range ids {
		event, err := model.NewOutboxEvent(model.EventClaimReset, eventPayload{EstablishmentID: id, At: now})
		if err == nil {
			err = s.outbox.Create(ctx, event)
		}
		if err != nil {
			s.logger.Error(err, "Failed to record reset event", "establishment_id", id.String())
		}

		if s.auditor != nil {
			estID := id
			if err := s.auditor.Log(ctx, uuid.Nil, model.AuditActionClaimReset, model.AuditEntityEstablishment, id, &audit.LogOptions{
				EstablishmentID: &estID,
				Message:         fmt.Sprintf("orphaned claim_pending reset on establishment %s", id),
			}); err != nil {
				s.logger.Error(err, "Failed to audit claim reset")
			}
		}
	}

	s.logger.WithContext(ctx).Warn("Reset orphaned pending establishments", "count", len(ids))
	return ids, nil
}

func (s *Service) audit(ctx context.Context, userID uuid.UUID, action string, claim *model.Claim, message string, changes interface{}) {
	if s.auditor == nil {
		return
	}
	estID := claim.EstablishmentID
	if err := s.auditor.Log(ctx, userID, action, model.AuditEntityClaim, claim.ID, &audit.LogOptions{
		EstablishmentID: &estID,
		Changes:         changes,
		Message:         message,
	}); err != nil {
		s.logger.Error(err, "Failed to write audit log", "action", action, "claim_id", claim.ID.String())
	}
}
