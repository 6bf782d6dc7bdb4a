package workcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository/memory"
	"github.com/jwalitptl/establishment-api/internal/service/authz"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	"github.com/jwalitptl/establishment-api/pkg/metrics"
)

type fixture struct {
	svc          *Service
	professional uuid.UUID
	est          *model.Establishment
	assignment   *model.StaffAssignment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	est := &model.Establishment{Name: "CHU d'Owendo", Type: "hospital", Province: "Estuaire", City: "Owendo"}
	require.NoError(t, store.Establishments().Create(ctx, est))

	professional := uuid.New()
	assignment := &model.StaffAssignment{
		EstablishmentID: est.ID,
		ProfessionalID:  professional,
		Role:            model.StaffRoleDoctor,
		Department:      "Cardiologie",
		Status:          model.StaffStatusActive,
		Permissions:     model.Permissions{CanPrescribe: true, CanAdmitPatients: true},
	}
	require.NoError(t, store.Staff().Upsert(ctx, assignment))

	svc := NewService(authz.NewService(store.Staff(), logger.Nop()), store.Establishments(),
		NewCacheStore(time.Minute), nil, metrics.New("test", nil), logger.Nop(),
		Config{Secret: "context-secret", TTL: 30 * time.Minute})

	return &fixture{svc: svc, professional: professional, est: est, assignment: assignment}
}

func TestSwitch_RoundTripAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Switch(ctx, f.professional, f.est.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)

	current, err := f.svc.Current(ctx, f.professional)
	require.NoError(t, err)
	assert.Equal(t, f.est.ID, current.EstablishmentID)
	assert.Equal(t, f.est.Name, current.EstablishmentName)
	assert.Equal(t, model.StaffRoleDoctor, current.Role)
	assert.Equal(t, f.assignment.Permissions, current.Permissions)
	assert.Equal(t, "Cardiologie", current.Department)
	assert.False(t, current.IsAdmin)

	require.NoError(t, f.svc.Clear(ctx, f.professional))
	_, err = f.svc.Current(ctx, f.professional)
	assert.ErrorIs(t, err, ErrNoContext)
}

func TestSwitch_RequiresActiveMembership(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Switch(context.Background(), uuid.New(), f.est.ID)
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = f.svc.Switch(context.Background(), f.professional, uuid.New())
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Switch(context.Background(), f.professional, f.est.ID)
	require.NoError(t, err)

	wc, err := f.svc.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, f.professional, wc.ProfessionalID)
	assert.Equal(t, f.est.ID, wc.EstablishmentID)
	assert.Equal(t, f.assignment.Permissions, wc.Permissions)
	assert.Equal(t, "Cardiologie", wc.Department)
}

func TestVerify_RejectsTamperedAndExpired(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Switch(context.Background(), f.professional, f.est.ID)
	require.NoError(t, err)

	other := NewService(nil, nil, NewCacheStore(time.Minute), nil, metrics.New("test", nil), logger.Nop(),
		Config{Secret: "another-secret", TTL: time.Minute})
	_, err = other.Verify(result.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Verify(result.Token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = f.svc.Verify(result.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCacheStore_Expiry(t *testing.T) {
	store := NewCacheStore(time.Minute)
	ctx := context.Background()
	wc := &model.WorkContext{ProfessionalID: uuid.New(), EstablishmentID: uuid.New()}

	require.NoError(t, store.Save(ctx, wc, 10*time.Millisecond))
	got, err := store.Load(ctx, wc.ProfessionalID)
	require.NoError(t, err)
	assert.Equal(t, wc.EstablishmentID, got.EstablishmentID)

	time.Sleep(20 * time.Millisecond)
	_, err = store.Load(ctx, wc.ProfessionalID)
	assert.ErrorIs(t, err, ErrNoContext)
}
