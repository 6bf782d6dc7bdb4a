package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
)

const invitationColumns = `id, establishment_id, token_hash, created_by, expires_at, used_at, used_by, created_at`

type invitationRepository struct {
	BaseRepository
}

func NewInvitationRepository(base BaseRepository) repository.InvitationRepository {
	return &invitationRepository{base}
}

func (r *invitationRepository) Create(ctx context.Context, inv *model.Invitation) error {
	query := `
		INSERT INTO establishment_invitations (
			id, establishment_id, token_hash, created_by, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.EstablishmentID,
		inv.TokenHash,
		inv.CreatedBy,
		inv.ExpiresAt,
		inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

func (r *invitationRepository) GetByHash(ctx context.Context, hash []byte) (*model.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM establishment_invitations WHERE token_hash = $1`

	var inv model.Invitation
	if err := r.db.GetContext(ctx, &inv, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}
