package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	EstablishmentID *uuid.UUID      `json:"establishment_id,omitempty" db:"establishment_id"`
	Action          string          `json:"action" db:"action"`
	EntityType      string          `json:"entity_type" db:"entity_type"`
	EntityID        uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes         json.RawMessage `json:"changes,omitempty" db:"changes"`
	Metadata        json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	IPAddress       string          `json:"ip_address" db:"ip_address"`
	UserAgent       string          `json:"user_agent" db:"user_agent"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionClaimSubmit   = "claim_submit"
	AuditActionClaimApprove  = "claim_approve"
	AuditActionClaimReject   = "claim_reject"
	AuditActionClaimReset    = "claim_reset"
	AuditActionInvite        = "invitation_issue"
	AuditActionImport        = "establishment_import"
	AuditActionStaffAdd      = "staff_add"
	AuditActionContextSwitch = "context_switch"

	// Entity types
	AuditEntityEstablishment = "establishment"
	AuditEntityClaim         = "claim"
	AuditEntityInvitation    = "invitation"
	AuditEntityStaff         = "staff"
)

// ActivityEntry is one line of the super-admin activity feed.
type ActivityEntry struct {
	At      time.Time              `json:"at"`
	Level   string                 `json:"level"`
	Action  string                 `json:"action"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// PlatformSnapshot is the cached super-admin dashboard view.
type PlatformSnapshot struct {
	EstablishmentsByStatus map[ClaimStatus]int64 `json:"establishments_by_status"`
	PendingClaims          int64                 `json:"pending_claims"`
	ActiveStaff            int64                 `json:"active_staff"`
	Components             map[string]bool       `json:"components"`
	HostMemoryUsedPercent  float64               `json:"host_memory_used_percent"`
	HostCPUPercent         float64               `json:"host_cpu_percent"`
	RefreshedAt            time.Time             `json:"refreshed_at"`
}

// PlatformCounts is what the repository returns for a snapshot.
type PlatformCounts struct {
	EstablishmentsByStatus map[ClaimStatus]int64
	PendingClaims          int64
	ActiveStaff            int64
}
