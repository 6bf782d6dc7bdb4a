package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository/memory"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

func newEstablishment(t *testing.T, store *memory.Store) *model.Establishment {
	est := &model.Establishment{Name: "Centre de Santé de Nzeng-Ayong", Type: "health_center", Province: "Estuaire", City: "Libreville"}
	require.NoError(t, store.Establishments().Create(context.Background(), est))
	return est
}

// Both former sources: a staff row with the admin flag and a legacy
// affiliation with an administrative role.
func TestHasAdminRights_AllCombinations(t *testing.T) {
	tests := []struct {
		name        string
		staffAdmin  bool
		legacyAdmin bool
		want        bool
	}{
		{"neither", false, false, false},
		{"staff admin flag only", true, false, true},
		{"legacy administrative role only", false, true, true},
		{"both", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore()
			svc := NewService(store.Staff(), logger.Nop())
			userID := uuid.New()

			staffEst := newEstablishment(t, store)
			legacyEst := newEstablishment(t, store)

			role := model.StaffRoleDoctor
			require.NoError(t, store.Staff().Upsert(ctx, &model.StaffAssignment{
				EstablishmentID: staffEst.ID,
				ProfessionalID:  userID,
				Role:            role,
				IsAdmin:         tt.staffAdmin,
				Status:          model.StaffStatusActive,
			}))

			legacyRole := model.StaffRoleNurse
			if tt.legacyAdmin {
				legacyRole = model.StaffRoleDirector
			}
			store.SeedLegacyAffiliation(model.StaffAssignment{
				EstablishmentID: legacyEst.ID,
				ProfessionalID:  userID,
				Role:            legacyRole,
				Status:          model.StaffStatusActive,
			})
			_, err := svc.MigrateLegacyAffiliations(ctx)
			require.NoError(t, err)

			staffOK, err := svc.HasAdminRights(ctx, userID, staffEst.ID)
			require.NoError(t, err)
			legacyOK, err := svc.HasAdminRights(ctx, userID, legacyEst.ID)
			require.NoError(t, err)

			assert.Equal(t, tt.staffAdmin, staffOK)
			assert.Equal(t, tt.legacyAdmin, legacyOK)
			assert.Equal(t, tt.want, staffOK || legacyOK)
		})
	}
}

func TestHasAdminRights_RequiresActiveStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Staff(), logger.Nop())
	est := newEstablishment(t, store)
	userID := uuid.New()

	for _, status := range []model.StaffStatus{model.StaffStatusPending, model.StaffStatusInactive} {
		require.NoError(t, store.Staff().Upsert(ctx, &model.StaffAssignment{
			EstablishmentID: est.ID,
			ProfessionalID:  userID,
			Role:            model.StaffRoleOwner,
			IsAdmin:         true,
			Status:          status,
		}))
		ok, err := svc.HasAdminRights(ctx, userID, est.ID)
		require.NoError(t, err)
		assert.False(t, ok, status)
	}
}

func TestHasAdminRights_AdministrativeRoleWithoutFlag(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Staff(), logger.Nop())
	est := newEstablishment(t, store)
	userID := uuid.New()

	_, err := svc.AddStaff(ctx, est.ID, &model.AddStaffRequest{ProfessionalID: userID, Role: model.StaffRoleAdministrator})
	require.NoError(t, err)

	ok, err := svc.HasAdminRights(ctx, userID, est.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemberships(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Staff(), logger.Nop())
	est := newEstablishment(t, store)
	other := newEstablishment(t, store)
	userID := uuid.New()

	_, err := svc.AddStaff(ctx, est.ID, &model.AddStaffRequest{ProfessionalID: userID, Role: model.StaffRoleDoctor, Department: "Pédiatrie"})
	require.NoError(t, err)
	require.NoError(t, store.Staff().Upsert(ctx, &model.StaffAssignment{
		EstablishmentID: other.ID, ProfessionalID: userID, Role: model.StaffRoleNurse, Status: model.StaffStatusInactive,
	}))

	memberships, err := svc.Memberships(ctx, userID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, est.ID, memberships[0].EstablishmentID)
	assert.Equal(t, est.Name, memberships[0].EstablishmentName)
	assert.Equal(t, "Pédiatrie", memberships[0].Department)
}

func TestAddStaff_RejectsUnknownRole(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Staff(), logger.Nop())

	_, err := svc.AddStaff(context.Background(), uuid.New(), &model.AddStaffRequest{ProfessionalID: uuid.New(), Role: "janitor"})
	assert.Error(t, err)
}
