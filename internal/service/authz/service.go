// Package authz answers whether a professional may administer an
// establishment, from the single staff assignment table.
package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
	apperrors "github.com/jwalitptl/establishment-api/pkg/errors"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

type Service struct {
	staff  repository.StaffRepository
	logger *logger.Logger
}

func NewService(staff repository.StaffRepository, logger *logger.Logger) *Service {
	return &Service{staff: staff, logger: logger}
}

// ActiveAssignment returns the professional's active assignment at the
// establishment, or nil when there is none.
func (s *Service) ActiveAssignment(ctx context.Context, userID, establishmentID uuid.UUID) (*model.StaffAssignment, error) {
	assignments, err := s.staff.ActiveAssignments(ctx, userID, establishmentID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to load assignments: %w", err))
	}
	for _, a := range assignments {
		if a.Status == model.StaffStatusActive {
			return a, nil
		}
	}
	return nil, nil
}

// HasAdminRights is true when the professional holds an active assignment
// that either carries the admin flag or has an administrative role. Rows
// migrated from the legacy affiliation table keep their role, so both
// sources are covered by the same rule.
func (s *Service) HasAdminRights(ctx context.Context, userID, establishmentID uuid.UUID) (bool, error) {
	assignments, err := s.staff.ActiveAssignments(ctx, userID, establishmentID)
	if err != nil {
		return false, apperrors.Internal(fmt.Errorf("failed to load assignments: %w", err))
	}
	for _, a := range assignments {
		if a.GrantsAdmin() {
			return true, nil
		}
	}
	return false, nil
}

// Memberships lists the establishments the professional can switch to.
func (s *Service) Memberships(ctx context.Context, userID uuid.UUID) ([]*model.Membership, error) {
	memberships, err := s.staff.Memberships(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to load memberships: %w", err))
	}
	return memberships, nil
}

// Staff lists every assignment of an establishment.
func (s *Service) Staff(ctx context.Context, establishmentID uuid.UUID) ([]*model.StaffAssignment, error) {
	staff, err := s.staff.ListByEstablishment(ctx, establishmentID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list staff: %w", err))
	}
	return staff, nil
}

// AddStaff creates or replaces an assignment on behalf of an establishment
// admin. New assignments are active immediately.
func (s *Service) AddStaff(ctx context.Context, establishmentID uuid.UUID, req *model.AddStaffRequest) (*model.StaffAssignment, error) {
	if req.ProfessionalID == uuid.Nil {
		return nil, apperrors.BadRequest("professional_id is required", nil)
	}
	if !req.Role.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown role %q", req.Role), nil)
	}

	staff := &model.StaffAssignment{
		EstablishmentID: establishmentID,
		ProfessionalID:  req.ProfessionalID,
		Role:            req.Role,
		IsAdmin:         req.IsAdmin,
		Department:      req.Department,
		Status:          model.StaffStatusActive,
		Source:          model.StaffSourceStaff,
		Permissions:     req.Permissions,
	}
	if err := s.staff.Upsert(ctx, staff); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to save staff assignment: %w", err))
	}

	s.logger.WithContext(ctx).Info("Staff assignment saved",
		"establishment_id", establishmentID.String(),
		"professional_id", req.ProfessionalID.String(),
		"role", string(req.Role))
	return staff, nil
}

// MigrateLegacyAffiliations copies the legacy affiliation rows into the
// staff table once.
func (s *Service) MigrateLegacyAffiliations(ctx context.Context) (*model.LegacyMigrationResult, error) {
	result, err := s.staff.MigrateLegacyAffiliations(ctx)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to migrate affiliations: %w", err))
	}
	s.logger.Info("Legacy affiliations migrated", "copied", result.Copied, "skipped", result.Skipped)
	return result, nil
}
