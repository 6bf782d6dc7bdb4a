package model

import (
	"time"

	"github.com/google/uuid"
)

// WorkContext is the establishment a professional is currently working in.
type WorkContext struct {
	ProfessionalID    uuid.UUID   `json:"professional_id"`
	EstablishmentID   uuid.UUID   `json:"establishment_id"`
	EstablishmentName string      `json:"establishment_name"`
	Role              StaffRole   `json:"role"`
	IsAdmin           bool        `json:"is_admin"`
	Permissions       Permissions `json:"permissions"`
	Department        string      `json:"department,omitempty"`
	SelectedAt        time.Time   `json:"selected_at"`
}

type SwitchContextResult struct {
	Context   *WorkContext `json:"context"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}
