package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
)

func setupMockDB(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewBaseRepository(sqlx.NewDb(db, "postgres")), mock
}

func newSubmission(t *testing.T) *model.ClaimSubmission {
	event, err := model.NewOutboxEvent(model.EventClaimSubmitted, map[string]string{"k": "v"})
	require.NoError(t, err)

	establishmentID, claimantID := uuid.New(), uuid.New()
	return &model.ClaimSubmission{
		Claim: &model.Claim{EstablishmentID: establishmentID, ClaimantID: claimantID},
		Staff: &model.StaffAssignment{
			EstablishmentID: establishmentID,
			ProfessionalID:  claimantID,
			Role:            model.StaffRoleOwner,
			IsAdmin:         true,
			Status:          model.StaffStatusPending,
			Permissions:     model.OwnerPermissions(),
		},
		SubmitTime: time.Now(),
		Event:      event,
	}
}

func TestClaimRepository_SubmitCommitsAllWrites(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)
	sub := newSubmission(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE establishments").
		WithArgs(sub.Claim.EstablishmentID, sub.Claim.ClaimantID, sub.SubmitTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO establishment_claims").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE establishment_invitations SET used_at .* WHERE establishment_id = \\$1 AND used_at IS NULL").
		WithArgs(sub.Claim.EstablishmentID, sub.SubmitTime, sub.Claim.ClaimantID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO establishment_staff .* WHERE establishment_staff.status = 'inactive'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Submit(context.Background(), sub))
	assert.NotEqual(t, uuid.Nil, sub.Claim.ID)
	assert.Equal(t, model.ClaimRequestPending, sub.Claim.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_SubmitAlreadyClaimedRollsBack(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)
	sub := newSubmission(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE establishments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT claim_status FROM establishments").
		WithArgs(sub.Claim.EstablishmentID).
		WillReturnRows(sqlmock.NewRows([]string{"claim_status"}).AddRow("verified"))
	mock.ExpectRollback()

	err := repo.Submit(context.Background(), sub)
	assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_SubmitUnknownEstablishment(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)
	sub := newSubmission(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE establishments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT claim_status FROM establishments").
		WillReturnRows(sqlmock.NewRows([]string{"claim_status"}))
	mock.ExpectRollback()

	err := repo.Submit(context.Background(), sub)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_SubmitConcurrentInsertIsConflict(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)
	sub := newSubmission(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE establishments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO establishment_claims").WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	err := repo.Submit(context.Background(), sub)
	assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func invitationRows(inv *model.Invitation) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "establishment_id", "token_hash", "created_by", "expires_at", "used_at", "used_by", "created_at",
	}).AddRow(inv.ID.String(), inv.EstablishmentID.String(), inv.TokenHash, inv.CreatedBy.String(),
		inv.ExpiresAt, nil, nil, inv.CreatedAt)
}

func TestClaimRepository_SubmitConsumesInvitation(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)
	sub := newSubmission(t)
	sub.TokenHash = []byte("digest")

	inv := &model.Invitation{
		ID:              uuid.New(),
		EstablishmentID: sub.Claim.EstablishmentID,
		TokenHash:       sub.TokenHash,
		CreatedBy:       uuid.New(),
		ExpiresAt:       sub.SubmitTime.Add(time.Hour),
		CreatedAt:       sub.SubmitTime.Add(-time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM establishment_invitations WHERE token_hash").
		WithArgs(sub.TokenHash).
		WillReturnRows(invitationRows(inv))
	mock.ExpectExec("UPDATE establishment_invitations SET used_at").
		WithArgs(inv.ID, sub.SubmitTime, sub.Claim.ClaimantID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE establishments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO establishment_claims").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE establishment_invitations SET used_at .* WHERE establishment_id = \\$1 AND used_at IS NULL").
		WithArgs(sub.Claim.EstablishmentID, sub.SubmitTime, sub.Claim.ClaimantID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO establishment_staff .* WHERE establishment_staff.status = 'inactive'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Submit(context.Background(), sub))
	require.NotNil(t, sub.Claim.InvitationID)
	assert.Equal(t, inv.ID, *sub.Claim.InvitationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_SubmitRejectsExpiredInvitation(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)
	sub := newSubmission(t)
	sub.TokenHash = []byte("digest")

	inv := &model.Invitation{
		ID:              uuid.New(),
		EstablishmentID: sub.Claim.EstablishmentID,
		TokenHash:       sub.TokenHash,
		CreatedBy:       uuid.New(),
		ExpiresAt:       sub.SubmitTime.Add(-time.Minute),
		CreatedAt:       sub.SubmitTime.Add(-time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM establishment_invitations WHERE token_hash").WillReturnRows(invitationRows(inv))
	mock.ExpectRollback()

	err := repo.Submit(context.Background(), sub)
	assert.ErrorIs(t, err, repository.ErrInvalidToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func claimRows(claim *model.Claim) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "establishment_id", "claimant_id", "status", "invitation_id", "message",
		"decided_by", "decided_at", "decision_reason", "created_at",
	}).AddRow(claim.ID.String(), claim.EstablishmentID.String(), claim.ClaimantID.String(), string(claim.Status), nil,
		claim.Message, nil, nil, "", claim.CreatedAt)
}

func TestClaimRepository_DecideApprove(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)

	pending := &model.Claim{
		ID:              uuid.New(),
		EstablishmentID: uuid.New(),
		ClaimantID:      uuid.New(),
		Status:          model.ClaimRequestPending,
		CreatedAt:       time.Now().Add(-time.Hour),
	}
	decision := &model.ClaimDecision{ClaimID: pending.ID, AdminID: uuid.New(), Approve: true, DecidedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM establishment_claims WHERE id = \\$1 FOR UPDATE").
		WithArgs(pending.ID).
		WillReturnRows(claimRows(pending))
	mock.ExpectExec("UPDATE establishment_claims").
		WithArgs(pending.ID, "approved", decision.AdminID, decision.DecidedAt, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET claim_status = 'verified'").
		WithArgs(pending.EstablishmentID, decision.DecidedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE establishment_staff SET role = 'owner', is_admin = TRUE, status = 'active'").
		WithArgs(pending.EstablishmentID, pending.ClaimantID, decision.DecidedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claim, err := repo.Decide(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimRequestApproved, claim.Status)
	assert.Equal(t, decision.AdminID, *claim.DecidedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_DecideRejectRetiresOnlyPendingOwnerRow(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)

	pending := &model.Claim{
		ID:              uuid.New(),
		EstablishmentID: uuid.New(),
		ClaimantID:      uuid.New(),
		Status:          model.ClaimRequestPending,
		CreatedAt:       time.Now().Add(-time.Hour),
	}
	decision := &model.ClaimDecision{ClaimID: pending.ID, AdminID: uuid.New(), Reason: "no licence", DecidedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM establishment_claims WHERE id").WillReturnRows(claimRows(pending))
	mock.ExpectExec("UPDATE establishment_claims").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET claim_status = 'rejected', claimed_by = NULL").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE establishment_staff SET status = 'inactive'.* AND status = 'pending' AND role = 'owner'").
		WithArgs(pending.EstablishmentID, pending.ClaimantID, decision.DecidedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claim, err := repo.Decide(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimRequestRejected, claim.Status)
	assert.Equal(t, "no licence", claim.DecisionReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_DecideTwiceFails(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)

	decided := &model.Claim{
		ID:              uuid.New(),
		EstablishmentID: uuid.New(),
		ClaimantID:      uuid.New(),
		Status:          model.ClaimRequestApproved,
		CreatedAt:       time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM establishment_claims WHERE id").WillReturnRows(claimRows(decided))
	mock.ExpectRollback()

	_, err := repo.Decide(context.Background(), &model.ClaimDecision{ClaimID: decided.ID, AdminID: uuid.New(), Approve: true})
	assert.ErrorIs(t, err, repository.ErrNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRepository_ResetOrphaned(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewClaimRepository(base)

	orphan := uuid.New()
	cutoff := time.Now().Add(-time.Hour)
	mock.ExpectQuery("UPDATE establishments e").
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(orphan.String()))

	ids, err := repo.ResetOrphaned(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{orphan}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
