package model

import (
	"time"

	"github.com/google/uuid"
)

type StaffRole string

const (
	StaffRoleOwner         StaffRole = "owner"
	StaffRoleDirector      StaffRole = "director"
	StaffRoleAdministrator StaffRole = "administrator"
	StaffRoleDoctor        StaffRole = "doctor"
	StaffRoleNurse         StaffRole = "nurse"
	StaffRolePharmacist    StaffRole = "pharmacist"
	StaffRoleTechnician    StaffRole = "technician"
	StaffRoleStaff         StaffRole = "staff"
)

// Administrative reports whether the role alone grants admin rights.
func (r StaffRole) Administrative() bool {
	switch r {
	case StaffRoleOwner, StaffRoleDirector, StaffRoleAdministrator:
		return true
	}
	return false
}

func (r StaffRole) Valid() bool {
	switch r {
	case StaffRoleOwner, StaffRoleDirector, StaffRoleAdministrator, StaffRoleDoctor,
		StaffRoleNurse, StaffRolePharmacist, StaffRoleTechnician, StaffRoleStaff:
		return true
	}
	return false
}

type StaffStatus string

const (
	StaffStatusPending  StaffStatus = "pending"
	StaffStatusActive   StaffStatus = "active"
	StaffStatusInactive StaffStatus = "inactive"
)

// StaffSource records which table an assignment originally came from.
type StaffSource string

const (
	StaffSourceStaff             StaffSource = "staff"
	StaffSourceLegacyAffiliation StaffSource = "legacy_affiliation"
)

type Permissions struct {
	CanPrescribe       bool `db:"can_prescribe" json:"can_prescribe"`
	CanAdmitPatients   bool `db:"can_admit_patients" json:"can_admit_patients"`
	CanManageStaff     bool `db:"can_manage_staff" json:"can_manage_staff"`
	CanManageInventory bool `db:"can_manage_inventory" json:"can_manage_inventory"`
	CanViewFinancials  bool `db:"can_view_financials" json:"can_view_financials"`
}

// OwnerPermissions is the full permission set granted to a claimant.
func OwnerPermissions() Permissions {
	return Permissions{
		CanPrescribe:       true,
		CanAdmitPatients:   true,
		CanManageStaff:     true,
		CanManageInventory: true,
		CanViewFinancials:  true,
	}
}

func (p Permissions) All() bool {
	return p.CanPrescribe && p.CanAdmitPatients && p.CanManageStaff && p.CanManageInventory && p.CanViewFinancials
}

// StaffAssignment binds a professional to an establishment.
type StaffAssignment struct {
	Base
	EstablishmentID uuid.UUID   `db:"establishment_id" json:"establishment_id"`
	ProfessionalID  uuid.UUID   `db:"professional_id" json:"professional_id"`
	Role            StaffRole   `db:"role" json:"role"`
	IsAdmin         bool        `db:"is_admin" json:"is_admin"`
	Department      string      `db:"department" json:"department,omitempty"`
	Status          StaffStatus `db:"status" json:"status"`
	Source          StaffSource `db:"source" json:"source"`
	Permissions
}

// GrantsAdmin is the admin-rights rule: an active assignment with either the
// admin flag or an administrative role.
func (a *StaffAssignment) GrantsAdmin() bool {
	if a.Status != StaffStatusActive {
		return false
	}
	return a.IsAdmin || a.Role.Administrative()
}

// Membership is an active assignment joined with its establishment name.
type Membership struct {
	StaffAssignment
	EstablishmentName string `db:"establishment_name" json:"establishment_name"`
}

type AddStaffRequest struct {
	ProfessionalID uuid.UUID   `json:"professional_id" binding:"required"`
	Role           StaffRole   `json:"role" binding:"required"`
	IsAdmin        bool        `json:"is_admin"`
	Department     string      `json:"department"`
	Permissions    Permissions `json:"permissions"`
}

// LegacyMigrationResult reports the one-time affiliation copy.
type LegacyMigrationResult struct {
	Copied  int64     `json:"copied"`
	RanAt   time.Time `json:"ran_at"`
	Skipped int64     `json:"skipped"`
}
