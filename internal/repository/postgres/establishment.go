package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
)

const establishmentColumns = `
	id, name, type, province, city, neighborhood, address, phone, email,
	latitude, longitude, services, specialties, open_24h, accepts_insurance,
	claim_status, claimed_by, claimed_at, verified_at, created_at, updated_at`

type establishmentRepository struct {
	BaseRepository
}

func NewEstablishmentRepository(base BaseRepository) repository.EstablishmentRepository {
	return &establishmentRepository{base}
}

func (r *establishmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Establishment, error) {
	query := `SELECT ` + establishmentColumns + ` FROM establishments WHERE id = $1`

	var est model.Establishment
	if err := r.db.GetContext(ctx, &est, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get establishment: %w", err)
	}
	return &est, nil
}

// buildFilter returns the WHERE clause and its arguments.
func buildFilter(filter *model.EstablishmentFilter) (string, []interface{}) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter != nil {
		if filter.ClaimStatus != "" {
			add("claim_status = $%d", string(filter.ClaimStatus))
		}
		if filter.Type != "" {
			add("type = $%d", filter.Type)
		}
		if filter.Province != "" {
			add("province = $%d", filter.Province)
		}
		if filter.City != "" {
			add("city = $%d", filter.City)
		}
		if filter.Search != "" {
			add("name ILIKE '%%' || $%d || '%%'", filter.Search)
		}
	}

	return strings.Join(conditions, " AND "), args
}

func (r *establishmentRepository) List(ctx context.Context, filter *model.EstablishmentFilter) ([]*model.Establishment, int64, error) {
	if filter == nil {
		filter = &model.EstablishmentFilter{}
	}
	filter.Normalize()

	where, args := buildFilter(filter)

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM establishments WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count establishments: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM establishments WHERE %s ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d`,
		establishmentColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, filter.Offset())

	establishments := []*model.Establishment{}
	if err := r.db.SelectContext(ctx, &establishments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list establishments: %w", err)
	}
	return establishments, total, nil
}

func (r *establishmentRepository) Each(ctx context.Context, filter *model.EstablishmentFilter, fn func(*model.Establishment) error) error {
	where, args := buildFilter(filter)
	query := `SELECT ` + establishmentColumns + ` FROM establishments WHERE ` + where + ` ORDER BY name ASC, id ASC`

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query establishments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var est model.Establishment
		if err := rows.StructScan(&est); err != nil {
			return fmt.Errorf("failed to scan establishment: %w", err)
		}
		if err := fn(&est); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *establishmentRepository) Create(ctx context.Context, est *model.Establishment) error {
	query := `
		INSERT INTO establishments (
			id, name, type, province, city, neighborhood, address, phone, email,
			latitude, longitude, services, specialties, open_24h, accepts_insurance,
			claim_status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`
	if est.ID == uuid.Nil {
		est.ID = uuid.New()
	}
	if est.ClaimStatus == "" {
		est.ClaimStatus = model.ClaimStatusUnclaimed
	}
	est.CreatedAt = time.Now()
	est.UpdatedAt = est.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		est.ID,
		est.Name,
		est.Type,
		est.Province,
		est.City,
		est.Neighborhood,
		est.Address,
		est.Phone,
		est.Email,
		est.Latitude,
		est.Longitude,
		est.Services,
		est.Specialties,
		est.Open24h,
		est.AcceptsInsurance,
		string(est.ClaimStatus),
		est.CreatedAt,
		est.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("establishment %q already exists: %w", est.Name, err)
		}
		return fmt.Errorf("failed to create establishment: %w", err)
	}
	return nil
}

func (r *establishmentRepository) Counts(ctx context.Context) (*model.PlatformCounts, error) {
	var byStatus []struct {
		Status string `db:"claim_status"`
		Count  int64  `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &byStatus,
		`SELECT claim_status, COUNT(*) AS count FROM establishments GROUP BY claim_status`); err != nil {
		return nil, fmt.Errorf("failed to count establishments: %w", err)
	}

	counts := &model.PlatformCounts{EstablishmentsByStatus: map[model.ClaimStatus]int64{}}
	for _, row := range byStatus {
		counts.EstablishmentsByStatus[model.ClaimStatus(row.Status)] = row.Count
	}

	if err := r.db.GetContext(ctx, &counts.PendingClaims,
		`SELECT COUNT(*) FROM establishment_claims WHERE status = 'pending'`); err != nil {
		return nil, fmt.Errorf("failed to count pending claims: %w", err)
	}
	if err := r.db.GetContext(ctx, &counts.ActiveStaff,
		`SELECT COUNT(*) FROM establishment_staff WHERE status = 'active'`); err != nil {
		return nil, fmt.Errorf("failed to count active staff: %w", err)
	}
	return counts, nil
}
