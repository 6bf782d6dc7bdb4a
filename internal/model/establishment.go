package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ClaimStatus string

const (
	ClaimStatusUnclaimed ClaimStatus = "unclaimed"
	ClaimStatusPending   ClaimStatus = "claim_pending"
	ClaimStatusVerified  ClaimStatus = "verified"
	ClaimStatusRejected  ClaimStatus = "rejected"
)

// Claimable reports whether a new claim may be submitted from this status.
// A rejected establishment can be claimed again; verified is terminal.
func (s ClaimStatus) Claimable() bool {
	return s == ClaimStatusUnclaimed || s == ClaimStatusRejected
}

func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusUnclaimed, ClaimStatusPending, ClaimStatusVerified, ClaimStatusRejected:
		return true
	}
	return false
}

type Establishment struct {
	Base
	Name             string         `db:"name" json:"name"`
	Type             string         `db:"type" json:"type"`
	Province         string         `db:"province" json:"province"`
	City             string         `db:"city" json:"city"`
	Neighborhood     string         `db:"neighborhood" json:"neighborhood,omitempty"`
	Address          string         `db:"address" json:"address,omitempty"`
	Phone            string         `db:"phone" json:"phone,omitempty"`
	Email            string         `db:"email" json:"email,omitempty"`
	Latitude         *float64       `db:"latitude" json:"latitude,omitempty"`
	Longitude        *float64       `db:"longitude" json:"longitude,omitempty"`
	Services         pq.StringArray `db:"services" json:"services"`
	Specialties      pq.StringArray `db:"specialties" json:"specialties"`
	Open24h          bool           `db:"open_24h" json:"open_24h"`
	AcceptsInsurance bool           `db:"accepts_insurance" json:"accepts_insurance"`
	ClaimStatus      ClaimStatus    `db:"claim_status" json:"claim_status"`
	ClaimedBy        *uuid.UUID     `db:"claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt        *time.Time     `db:"claimed_at" json:"claimed_at,omitempty"`
	VerifiedAt       *time.Time     `db:"verified_at" json:"verified_at,omitempty"`
}

type EstablishmentFilter struct {
	ClaimStatus ClaimStatus `form:"claim_status"`
	Type        string      `form:"type"`
	Province    string      `form:"province"`
	City        string      `form:"city"`
	Search      string      `form:"search"`
	Pagination
}

// EstablishmentImportRow is one line of a bulk import file.
type EstablishmentImportRow struct {
	Name             string   `validate:"required,max=255"`
	Type             string   `validate:"required,oneof=hospital clinic pharmacy laboratory health_center cabinet"`
	Province         string   `validate:"required"`
	City             string   `validate:"required"`
	Neighborhood     string   `validate:"omitempty"`
	Address          string   `validate:"omitempty"`
	Phone            string   `validate:"omitempty,max=32"`
	Email            string   `validate:"omitempty,email"`
	Latitude         *float64 `validate:"omitempty,latitude"`
	Longitude        *float64 `validate:"omitempty,longitude"`
	Services         []string
	Specialties      []string
	Open24h          bool
	AcceptsInsurance bool
}

type ImportResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors,omitempty"`
}

type ImportError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}
