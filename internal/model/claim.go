package model

import (
	"time"

	"github.com/google/uuid"
)

type ClaimRequestStatus string

const (
	ClaimRequestPending  ClaimRequestStatus = "pending"
	ClaimRequestApproved ClaimRequestStatus = "approved"
	ClaimRequestRejected ClaimRequestStatus = "rejected"
)

type Claim struct {
	ID              uuid.UUID          `db:"id" json:"id"`
	EstablishmentID uuid.UUID          `db:"establishment_id" json:"establishment_id"`
	ClaimantID      uuid.UUID          `db:"claimant_id" json:"claimant_id"`
	Status          ClaimRequestStatus `db:"status" json:"status"`
	InvitationID    *uuid.UUID         `db:"invitation_id" json:"invitation_id,omitempty"`
	Message         string             `db:"message" json:"message,omitempty"`
	DecidedBy       *uuid.UUID         `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt       *time.Time         `db:"decided_at" json:"decided_at,omitempty"`
	DecisionReason  string             `db:"decision_reason" json:"decision_reason,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
}

type SubmitClaimRequest struct {
	EstablishmentID uuid.UUID
	ClaimantID      uuid.UUID
	Token           string
	Message         string
}

// ClaimSubmission is what the repository writes in a single transaction.
type ClaimSubmission struct {
	Claim      *Claim
	Staff      *StaffAssignment
	TokenHash  []byte
	SubmitTime time.Time
	Event      *OutboxEvent
}

// ClaimDecision carries an approval or rejection.
type ClaimDecision struct {
	ClaimID   uuid.UUID
	AdminID   uuid.UUID
	Approve   bool
	Reason    string
	DecidedAt time.Time
	Event     *OutboxEvent
}
