package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
)

const claimColumns = `
	id, establishment_id, claimant_id, status, invitation_id, message,
	decided_by, decided_at, decision_reason, created_at`

type claimRepository struct {
	BaseRepository
}

func NewClaimRepository(base BaseRepository) repository.ClaimRepository {
	return &claimRepository{base}
}

// Submit consumes the invitation (if any), moves the establishment to
// claim_pending, records the claim, invalidates the establishment's other
// invitations, adds the pending owner assignment and the outbox event.
// Nothing is written unless every step succeeds.
func (r *claimRepository) Submit(ctx context.Context, sub *model.ClaimSubmission) error {
	claim := sub.Claim

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if len(sub.TokenHash) > 0 {
			invitationID, err := consumeInvitation(ctx, tx, sub)
			if err != nil {
				return err
			}
			claim.InvitationID = &invitationID
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE establishments
			SET claim_status = 'claim_pending', claimed_by = $2, claimed_at = $3, updated_at = $3
			WHERE id = $1 AND claim_status IN ('unclaimed', 'rejected')
		`, claim.EstablishmentID, claim.ClaimantID, sub.SubmitTime)
		if err != nil {
			return fmt.Errorf("failed to mark establishment pending: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if n == 0 {
			return explainUnclaimable(ctx, tx, claim.EstablishmentID)
		}

		if claim.ID == uuid.Nil {
			claim.ID = uuid.New()
		}
		claim.Status = model.ClaimRequestPending
		claim.CreatedAt = sub.SubmitTime

		_, err = tx.ExecContext(ctx, `
			INSERT INTO establishment_claims (
				id, establishment_id, claimant_id, status, invitation_id, message, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, claim.ID, claim.EstablishmentID, claim.ClaimantID, string(claim.Status),
			claim.InvitationID, claim.Message, claim.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrAlreadyClaimed
			}
			return fmt.Errorf("failed to insert claim: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE establishment_invitations SET used_at = $2, used_by = $3
			WHERE establishment_id = $1 AND used_at IS NULL
		`, claim.EstablishmentID, sub.SubmitTime, claim.ClaimantID)
		if err != nil {
			return fmt.Errorf("failed to invalidate invitations: %w", err)
		}

		if sub.Staff != nil {
			if err := insertClaimantStaff(ctx, tx, sub.Staff); err != nil {
				return err
			}
		}

		if sub.Event != nil {
			if err := insertOutboxEvent(ctx, tx, sub.Event); err != nil {
				return err
			}
		}
		return nil
	})
}

func consumeInvitation(ctx context.Context, tx *sqlx.Tx, sub *model.ClaimSubmission) (uuid.UUID, error) {
	var inv model.Invitation
	err := tx.GetContext(ctx, &inv,
		`SELECT `+invitationColumns+` FROM establishment_invitations WHERE token_hash = $1 FOR UPDATE`,
		sub.TokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, repository.ErrInvalidToken
		}
		return uuid.Nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	if inv.EstablishmentID != sub.Claim.EstablishmentID || !inv.Usable(sub.SubmitTime) {
		return uuid.Nil, repository.ErrInvalidToken
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE establishment_invitations SET used_at = $2, used_by = $3 WHERE id = $1`,
		inv.ID, sub.SubmitTime, sub.Claim.ClaimantID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to consume invitation: %w", err)
	}
	return inv.ID, nil
}

// explainUnclaimable tells a missing establishment apart from one that
// cannot be claimed any more.
func explainUnclaimable(ctx context.Context, tx *sqlx.Tx, establishmentID uuid.UUID) error {
	var status string
	err := tx.GetContext(ctx, &status, `SELECT claim_status FROM establishments WHERE id = $1`, establishmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to read establishment: %w", err)
	}
	return repository.ErrAlreadyClaimed
}

func (r *claimRepository) Decide(ctx context.Context, decision *model.ClaimDecision) (*model.Claim, error) {
	var claim model.Claim

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &claim,
			`SELECT `+claimColumns+` FROM establishment_claims WHERE id = $1 FOR UPDATE`, decision.ClaimID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("failed to load claim: %w", err)
		}
		if claim.Status != model.ClaimRequestPending {
			return repository.ErrNotPending
		}

		claim.Status = model.ClaimRequestRejected
		if decision.Approve {
			claim.Status = model.ClaimRequestApproved
		}
		claim.DecidedBy = &decision.AdminID
		claim.DecidedAt = &decision.DecidedAt
		claim.DecisionReason = decision.Reason

		_, err = tx.ExecContext(ctx, `
			UPDATE establishment_claims
			SET status = $2, decided_by = $3, decided_at = $4, decision_reason = $5
			WHERE id = $1
		`, claim.ID, string(claim.Status), decision.AdminID, decision.DecidedAt, decision.Reason)
		if err != nil {
			return fmt.Errorf("failed to update claim: %w", err)
		}

		establishmentQuery := `
			UPDATE establishments
			SET claim_status = 'rejected', claimed_by = NULL, claimed_at = NULL, updated_at = $2
			WHERE id = $1 AND claim_status = 'claim_pending'
		`
		// A rejection only retires the pending owner row the claim created;
		// an assignment the claimant already held stays untouched.
		staffQuery := `
			UPDATE establishment_staff
			SET status = 'inactive', updated_at = $3
			WHERE establishment_id = $1 AND professional_id = $2
			AND status = 'pending' AND role = 'owner'
		`
		if decision.Approve {
			establishmentQuery = `
				UPDATE establishments
				SET claim_status = 'verified', verified_at = $2, updated_at = $2
				WHERE id = $1 AND claim_status = 'claim_pending'
			`
			staffQuery = `
				UPDATE establishment_staff
				SET role = 'owner', is_admin = TRUE, status = 'active',
					can_prescribe = TRUE, can_admit_patients = TRUE, can_manage_staff = TRUE,
					can_manage_inventory = TRUE, can_view_financials = TRUE, updated_at = $3
				WHERE establishment_id = $1 AND professional_id = $2
			`
		}
		if _, err := tx.ExecContext(ctx, establishmentQuery, claim.EstablishmentID, decision.DecidedAt); err != nil {
			return fmt.Errorf("failed to update establishment: %w", err)
		}

		_, err = tx.ExecContext(ctx, staffQuery, claim.EstablishmentID, claim.ClaimantID, decision.DecidedAt)
		if err != nil {
			return fmt.Errorf("failed to update claimant assignment: %w", err)
		}

		if decision.Event != nil {
			if err := insertOutboxEvent(ctx, tx, decision.Event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *claimRepository) Get(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	var claim model.Claim
	if err := r.db.GetContext(ctx, &claim, `SELECT `+claimColumns+` FROM establishment_claims WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return &claim, nil
}

// List returns claims oldest first. An empty status lists every claim.
func (r *claimRepository) List(ctx context.Context, status model.ClaimRequestStatus) ([]*model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM establishment_claims`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	claims := []*model.Claim{}
	if err := r.db.SelectContext(ctx, &claims, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

func (r *claimRepository) ResetOrphaned(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE establishments e
		SET claim_status = 'unclaimed', claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE e.claim_status = 'claim_pending'
		AND COALESCE(e.claimed_at, e.updated_at) < $1
		AND NOT EXISTS (
			SELECT 1 FROM establishment_claims c
			WHERE c.establishment_id = e.id AND c.status = 'pending'
		)
		RETURNING e.id
	`
	ids := []uuid.UUID{}
	if err := r.db.SelectContext(ctx, &ids, query, olderThan); err != nil {
		return nil, fmt.Errorf("failed to reset orphaned claims: %w", err)
	}
	return ids, nil
}
