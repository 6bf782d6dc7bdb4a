package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
)

const staffColumns = `
	id, establishment_id, professional_id, role, is_admin, department, status, source,
	can_prescribe, can_admit_patients, can_manage_staff, can_manage_inventory,
	can_view_financials, created_at, updated_at`

type staffRepository struct {
	BaseRepository
}

func NewStaffRepository(base BaseRepository) repository.StaffRepository {
	return &staffRepository{base}
}

func (r *staffRepository) ActiveAssignments(ctx context.Context, professionalID, establishmentID uuid.UUID) ([]*model.StaffAssignment, error) {
	query := `SELECT ` + staffColumns + `
		FROM establishment_staff
		WHERE professional_id = $1 AND establishment_id = $2 AND status = 'active'`

	assignments := []*model.StaffAssignment{}
	if err := r.db.SelectContext(ctx, &assignments, query, professionalID, establishmentID); err != nil {
		return nil, fmt.Errorf("failed to get staff assignments: %w", err)
	}
	return assignments, nil
}

func (r *staffRepository) Memberships(ctx context.Context, professionalID uuid.UUID) ([]*model.Membership, error) {
	query := `
		SELECT
			s.id, s.establishment_id, s.professional_id, s.role, s.is_admin, s.department,
			s.status, s.source, s.can_prescribe, s.can_admit_patients, s.can_manage_staff,
			s.can_manage_inventory, s.can_view_financials, s.created_at, s.updated_at,
			e.name AS establishment_name
		FROM establishment_staff s
		JOIN establishments e ON e.id = s.establishment_id
		WHERE s.professional_id = $1 AND s.status = 'active'
		ORDER BY e.name ASC
	`
	memberships := []*model.Membership{}
	if err := r.db.SelectContext(ctx, &memberships, query, professionalID); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return memberships, nil
}

func (r *staffRepository) ListByEstablishment(ctx context.Context, establishmentID uuid.UUID) ([]*model.StaffAssignment, error) {
	query := `SELECT ` + staffColumns + `
		FROM establishment_staff
		WHERE establishment_id = $1
		ORDER BY created_at ASC`

	assignments := []*model.StaffAssignment{}
	if err := r.db.SelectContext(ctx, &assignments, query, establishmentID); err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	return assignments, nil
}

func (r *staffRepository) Upsert(ctx context.Context, staff *model.StaffAssignment) error {
	return upsertStaff(ctx, r.db, staff)
}

// upsertStaff works on the pool or inside a transaction.
func upsertStaff(ctx context.Context, exec sqlx.ExtContext, staff *model.StaffAssignment) error {
	return writeStaff(ctx, exec, staff, "")
}

// insertClaimantStaff adds a claimant's pending owner row. An existing
// assignment is only replaced when it is inactive.
func insertClaimantStaff(ctx context.Context, exec sqlx.ExtContext, staff *model.StaffAssignment) error {
	return writeStaff(ctx, exec, staff, `WHERE establishment_staff.status = 'inactive'`)
}

func writeStaff(ctx context.Context, exec sqlx.ExtContext, staff *model.StaffAssignment, onConflictWhere string) error {
	query := `
		INSERT INTO establishment_staff (
			id, establishment_id, professional_id, role, is_admin, department, status, source,
			can_prescribe, can_admit_patients, can_manage_staff, can_manage_inventory,
			can_view_financials, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (establishment_id, professional_id) DO UPDATE SET
			role = EXCLUDED.role,
			is_admin = EXCLUDED.is_admin,
			department = EXCLUDED.department,
			status = EXCLUDED.status,
			can_prescribe = EXCLUDED.can_prescribe,
			can_admit_patients = EXCLUDED.can_admit_patients,
			can_manage_staff = EXCLUDED.can_manage_staff,
			can_manage_inventory = EXCLUDED.can_manage_inventory,
			can_view_financials = EXCLUDED.can_view_financials,
			updated_at = EXCLUDED.updated_at
	` + onConflictWhere
	now := time.Now()
	if staff.ID == uuid.Nil {
		staff.ID = uuid.New()
		staff.CreatedAt = now
	}
	if staff.Source == "" {
		staff.Source = model.StaffSourceStaff
	}
	staff.UpdatedAt = now

	_, err := exec.ExecContext(ctx, query,
		staff.ID,
		staff.EstablishmentID,
		staff.ProfessionalID,
		string(staff.Role),
		staff.IsAdmin,
		staff.Department,
		string(staff.Status),
		string(staff.Source),
		staff.CanPrescribe,
		staff.CanAdmitPatients,
		staff.CanManageStaff,
		staff.CanManageInventory,
		staff.CanViewFinancials,
		staff.CreatedAt,
		staff.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert staff assignment: %w", err)
	}
	return nil
}

// MigrateLegacyAffiliations copies professional_affiliations into
// establishment_staff once. Rows already present are left untouched.
func (r *staffRepository) MigrateLegacyAffiliations(ctx context.Context) (*model.LegacyMigrationResult, error) {
	result := &model.LegacyMigrationResult{RanAt: time.Now()}

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var total int64
		if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM professional_affiliations`); err != nil {
			return fmt.Errorf("failed to count legacy affiliations: %w", err)
		}

		query := `
			INSERT INTO establishment_staff (
				id, establishment_id, professional_id, role, is_admin, department, status, source,
				can_prescribe, can_admit_patients, can_manage_staff, can_manage_inventory,
				can_view_financials, created_at, updated_at
			)
			SELECT
				gen_random_uuid(),
				pa.establishment_id,
				pa.professional_id,
				CASE WHEN pa.role IN ('owner', 'director', 'administrator', 'doctor', 'nurse',
				                      'pharmacist', 'technician') THEN pa.role ELSE 'staff' END,
				pa.role IN ('owner', 'director', 'administrator'),
				COALESCE(pa.department, ''),
				CASE WHEN pa.status IN ('pending', 'active', 'inactive') THEN pa.status ELSE 'inactive' END,
				'legacy_affiliation',
				COALESCE(pa.can_prescribe, false),
				COALESCE(pa.can_admit_patients, false),
				COALESCE(pa.can_manage_staff, false),
				COALESCE(pa.can_manage_inventory, false),
				COALESCE(pa.can_view_financials, false),
				COALESCE(pa.created_at, NOW()),
				NOW()
			FROM professional_affiliations pa
			ON CONFLICT (establishment_id, professional_id) DO NOTHING
		`
		res, err := tx.ExecContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to copy legacy affiliations: %w", err)
		}
		copied, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		result.Copied = copied
		result.Skipped = total - copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
