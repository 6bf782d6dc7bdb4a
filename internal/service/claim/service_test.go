package claim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
	"github.com/jwalitptl/establishment-api/internal/repository/memory"
	"github.com/jwalitptl/establishment-api/internal/service/audit"
	"github.com/jwalitptl/establishment-api/internal/service/authz"
	"github.com/jwalitptl/establishment-api/internal/service/invitation"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	"github.com/jwalitptl/establishment-api/pkg/metrics"
)

type fixture struct {
	store       *memory.Store
	claims      *Service
	authz       *authz.Service
	invitations *invitation.Service
	est         *model.Establishment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	est := &model.Establishment{
		Name:     "Pharmacie du Rond-Point",
		Type:     "pharmacy",
		Province: "Estuaire",
		City:     "Libreville",
	}
	require.NoError(t, store.Establishments().Create(context.Background(), est))

	m := metrics.New("test", nil)
	auditor := audit.NewService(store.Audit(), nil, logger.Nop())
	return &fixture{
		store:  store,
		claims: NewService(store.Claims(), store.Outbox(), auditor, m, logger.Nop(), Config{ReconcileGrace: time.Hour}),
		authz:  authz.NewService(store.Staff(), logger.Nop()),
		invitations: invitation.NewService(store.Establishments(), store.Invitations(), nil, nil, m, logger.Nop(),
			invitation.Config{BaseURL: "https://sante.ga/claim", TTL: 24 * time.Hour}),
		est: est,
	}
}

func (f *fixture) establishment(t *testing.T) *model.Establishment {
	est, err := f.store.Establishments().Get(context.Background(), f.est.ID)
	require.NoError(t, err)
	return est
}

func (f *fixture) eventTypes(t *testing.T) []string {
	events, err := f.store.Outbox().GetPendingEvents(context.Background(), 0)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

func TestSubmit_MarksPendingAndCreatesOwnerAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	claimant := uuid.New()

	claim, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: claimant, Message: "Je suis le gérant"})
	require.NoError(t, err)
	assert.Equal(t, model.ClaimRequestPending, claim.Status)

	est := f.establishment(t)
	assert.Equal(t, model.ClaimStatusPending, est.ClaimStatus)
	require.NotNil(t, est.ClaimedBy)
	assert.Equal(t, claimant, *est.ClaimedBy)
	assert.NotNil(t, est.ClaimedAt)

	staff, err := f.store.Staff().ListByEstablishment(ctx, f.est.ID)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, claimant, staff[0].ProfessionalID)
	assert.Equal(t, model.StaffStatusPending, staff[0].Status)
	assert.Equal(t, model.StaffRoleOwner, staff[0].Role)
	assert.True(t, staff[0].IsAdmin)
	assert.True(t, staff[0].Permissions.All())

	assert.Equal(t, []string{model.EventClaimSubmitted}, f.eventTypes(t))

	logs, err := f.store.Audit().List(ctx, model.AuditEntityClaim, claim.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionClaimSubmit, logs[0].Action)
}

func TestSubmit_SecondSequentialClaimIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New()})
	require.NoError(t, err)

	_, err = f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New()})
	assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)
}

func TestSubmit_ConcurrentClaimsSucceedExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New()})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)
	}
	assert.Equal(t, 1, succeeded)

	claims, err := f.claims.List(ctx, model.ClaimRequestPending)
	require.NoError(t, err)
	assert.Len(t, claims, 1)

	staff, err := f.store.Staff().ListByEstablishment(ctx, f.est.ID)
	require.NoError(t, err)
	assert.Len(t, staff, 1)
}

func TestSubmit_UnknownEstablishment(t *testing.T) {
	f := newFixture(t)

	_, err := f.claims.Submit(context.Background(), &model.SubmitClaimRequest{EstablishmentID: uuid.New(), ClaimantID: uuid.New()})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSubmit_TokenIsConsumedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.invitations.Issue(ctx, f.est.ID, uuid.New(), false)
	require.NoError(t, err)

	claim, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New(), Token: issued.Token})
	require.NoError(t, err)
	require.NotNil(t, claim.InvitationID)
	assert.Equal(t, issued.InvitationID, *claim.InvitationID)

	_, err = f.invitations.Resolve(ctx, issued.Token)
	assert.ErrorIs(t, err, repository.ErrInvalidToken)

	// Reopen the establishment; the spent token must still be refused.
	_, err = f.claims.Reject(ctx, claim.ID, uuid.New(), "pièces manquantes")
	require.NoError(t, err)
	_, err = f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New(), Token: issued.Token})
	assert.ErrorIs(t, err, repository.ErrInvalidToken)
}

func TestSubmit_InvalidTokenLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New(), Token: "deadbeef"})
	assert.ErrorIs(t, err, repository.ErrInvalidToken)

	assert.Equal(t, model.ClaimStatusUnclaimed, f.establishment(t).ClaimStatus)
	staff, err := f.store.Staff().ListByEstablishment(ctx, f.est.ID)
	require.NoError(t, err)
	assert.Empty(t, staff)
	assert.Empty(t, f.eventTypes(t))
}

func TestSubmit_TokenBoundToAnotherEstablishment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &model.Establishment{Name: "Hôpital de Melen", Type: "hospital", Province: "Estuaire", City: "Libreville"}
	require.NoError(t, f.store.Establishments().Create(ctx, other))
	issued, err := f.invitations.Issue(ctx, other.ID, uuid.New(), false)
	require.NoError(t, err)

	_, err = f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New(), Token: issued.Token})
	assert.ErrorIs(t, err, repository.ErrInvalidToken)
}

func TestClaimToAdminRights_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	claimant, admin := uuid.New(), uuid.New()

	claim, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: claimant})
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusPending, f.establishment(t).ClaimStatus)

	ok, err := f.authz.HasAdminRights(ctx, claimant, f.est.ID)
	require.NoError(t, err)
	assert.False(t, ok, "pending assignment must not grant rights")

	approved, err := f.claims.Approve(ctx, claim.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimRequestApproved, approved.Status)
	require.NotNil(t, approved.DecidedBy)
	assert.Equal(t, admin, *approved.DecidedBy)

	est := f.establishment(t)
	assert.Equal(t, model.ClaimStatusVerified, est.ClaimStatus)
	assert.NotNil(t, est.VerifiedAt)

	ok, err = f.authz.HasAdminRights(ctx, claimant, f.est.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ElementsMatch(t, []string{model.EventClaimSubmitted, model.EventClaimApproved}, f.eventTypes(t))

	_, err = f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New()})
	assert.ErrorIs(t, err, repository.ErrAlreadyClaimed, "verified is terminal")
}

func TestReject_AllowsResubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	claim, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: first})
	require.NoError(t, err)

	rejected, err := f.claims.Reject(ctx, claim.ID, uuid.New(), "justificatif illisible")
	require.NoError(t, err)
	assert.Equal(t, model.ClaimRequestRejected, rejected.Status)
	assert.Equal(t, "justificatif illisible", rejected.DecisionReason)

	est := f.establishment(t)
	assert.Equal(t, model.ClaimStatusRejected, est.ClaimStatus)
	assert.Nil(t, est.ClaimedBy)

	staff, err := f.store.Staff().ListByEstablishment(ctx, f.est.ID)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, model.StaffStatusInactive, staff[0].Status)

	_, err = f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: second})
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusPending, f.establishment(t).ClaimStatus)
}

func (f *fixture) assignment(t *testing.T, professionalID uuid.UUID) model.StaffAssignment {
	t.Helper()
	staff, err := f.store.Staff().ListByEstablishment(context.Background(), f.est.ID)
	require.NoError(t, err)
	for _, a := range staff {
		if a.ProfessionalID == professionalID {
			return *a
		}
	}
	t.Fatalf("no assignment for %s", professionalID)
	return model.StaffAssignment{}
}

func TestSubmit_KeepsExistingMembershipThroughRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := uuid.New()

	require.NoError(t, f.store.Staff().Upsert(ctx, &model.StaffAssignment{
		EstablishmentID: f.est.ID,
		ProfessionalID:  doctor,
		Role:            model.StaffRoleDoctor,
		Department:      "cardiologie",
		Status:          model.StaffStatusActive,
		Permissions:     model.Permissions{CanPrescribe: true},
	}))

	claim, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: doctor})
	require.NoError(t, err)

	a := f.assignment(t, doctor)
	assert.Equal(t, model.StaffStatusActive, a.Status)
	assert.Equal(t, model.StaffRoleDoctor, a.Role)

	_, err = f.claims.Reject(ctx, claim.ID, uuid.New(), "pièces manquantes")
	require.NoError(t, err)

	a = f.assignment(t, doctor)
	assert.Equal(t, model.StaffStatusActive, a.Status)
	assert.Equal(t, model.StaffRoleDoctor, a.Role)
	assert.Equal(t, "cardiologie", a.Department)
	assert.True(t, a.CanPrescribe)
	assert.False(t, a.CanManageStaff)

	memberships, err := f.authz.Memberships(ctx, doctor)
	require.NoError(t, err)
	assert.Len(t, memberships, 1)
}

func TestApprove_PromotesExistingMemberToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	nurse := uuid.New()

	require.NoError(t, f.store.Staff().Upsert(ctx, &model.StaffAssignment{
		EstablishmentID: f.est.ID,
		ProfessionalID:  nurse,
		Role:            model.StaffRoleNurse,
		Status:          model.StaffStatusActive,
	}))

	claim, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: nurse})
	require.NoError(t, err)
	_, err = f.claims.Approve(ctx, claim.ID, uuid.New())
	require.NoError(t, err)

	a := f.assignment(t, nurse)
	assert.Equal(t, model.StaffRoleOwner, a.Role)
	assert.Equal(t, model.StaffStatusActive, a.Status)
	assert.True(t, a.Permissions.All())

	ok, err := f.authz.HasAdminRights(ctx, nurse, f.est.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubmit_InvalidatesOutstandingInvitations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.invitations.Issue(ctx, f.est.ID, uuid.New(), false)
	require.NoError(t, err)
	second, err := f.invitations.Issue(ctx, f.est.ID, uuid.New(), false)
	require.NoError(t, err)

	claim, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New()})
	require.NoError(t, err)

	for _, token := range []string{first.Token, second.Token} {
		_, err = f.invitations.Resolve(ctx, token)
		assert.ErrorIs(t, err, repository.ErrInvalidToken)
	}

	_, err = f.claims.Reject(ctx, claim.ID, uuid.New(), "doublon")
	require.NoError(t, err)

	_, err = f.invitations.Resolve(ctx, second.Token)
	assert.ErrorIs(t, err, repository.ErrInvalidToken)
	_, err = f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New(), Token: first.Token})
	assert.ErrorIs(t, err, repository.ErrInvalidToken)
}

func TestDecide_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New()})
	require.NoError(t, err)
	_, err = f.claims.Approve(ctx, claim.ID, uuid.New())
	require.NoError(t, err)

	_, err = f.claims.Reject(ctx, claim.ID, uuid.New(), "trop tard")
	assert.ErrorIs(t, err, repository.ErrNotPending)

	_, err = f.claims.Approve(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.claims.List(context.Background(), "archived")
	assert.Error(t, err)
}

func TestReconcile_ResetsOrphanedPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.ForceStatus(f.est.ID, model.ClaimStatusPending, time.Now().Add(-2*time.Hour))

	fresh := &model.Establishment{Name: "Clinique Chambrier", Type: "clinic", Province: "Estuaire", City: "Libreville"}
	require.NoError(t, f.store.Establishments().Create(ctx, fresh))
	f.store.ForceStatus(fresh.ID, model.ClaimStatusPending, time.Now())

	ids, err := f.claims.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.est.ID}, ids)

	est := f.establishment(t)
	assert.Equal(t, model.ClaimStatusUnclaimed, est.ClaimStatus)
	assert.Nil(t, est.ClaimedAt)
	assert.Equal(t, []string{model.EventClaimReset}, f.eventTypes(t))

	got, err := f.store.Establishments().Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusPending, got.ClaimStatus, "still inside the grace period")

	// A real pending claim is never reset.
	_, err = f.claims.Submit(ctx, &model.SubmitClaimRequest{EstablishmentID: f.est.ID, ClaimantID: uuid.New()})
	require.NoError(t, err)
	f.claims.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	ids, err = f.claims.Reconcile(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, f.est.ID)
}

func TestSubmit_RequiresIdentifiers(t *testing.T) {
	f := newFixture(t)

	_, err := f.claims.Submit(context.Background(), &model.SubmitClaimRequest{EstablishmentID: f.est.ID})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, repository.ErrAlreadyClaimed))
}
