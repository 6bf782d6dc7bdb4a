package model

import (
	"time"

	"github.com/google/uuid"
)

// Invitation is a single-use claim token bound to one establishment. Only
// the digest of the token is stored.
type Invitation struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	EstablishmentID uuid.UUID  `db:"establishment_id" json:"establishment_id"`
	TokenHash       []byte     `db:"token_hash" json:"-"`
	CreatedBy       uuid.UUID  `db:"created_by" json:"created_by"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt          *time.Time `db:"used_at" json:"used_at,omitempty"`
	UsedBy          *uuid.UUID `db:"used_by" json:"used_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

func (i *Invitation) Usable(now time.Time) bool {
	return i.UsedAt == nil && now.Before(i.ExpiresAt)
}

// IssuedInvitation is returned once to the issuer; the raw token is not
// recoverable afterwards.
type IssuedInvitation struct {
	InvitationID    uuid.UUID `json:"invitation_id"`
	EstablishmentID uuid.UUID `json:"establishment_id"`
	Token           string    `json:"token"`
	URL             string    `json:"url"`
	ExpiresAt       time.Time `json:"expires_at"`
	Emailed         bool      `json:"emailed"`
}
