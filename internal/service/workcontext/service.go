// Package workcontext manages the establishment a professional is currently
// working in. The selection is stored server side and handed to the client
// as a short-lived signed token that request middleware verifies.
package workcontext

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
	"github.com/jwalitptl/establishment-api/internal/service/audit"
	apperrors "github.com/jwalitptl/establishment-api/pkg/errors"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	"github.com/jwalitptl/establishment-api/pkg/metrics"
)

var (
	ErrNotMember    = errors.New("no active assignment at this establishment")
	ErrNoContext    = errors.New("no establishment selected")
	ErrInvalidToken = errors.New("invalid context token")
)

const tokenIssuer = "establishment-context"

// Assignments resolves the professional's active assignment.
type Assignments interface {
	ActiveAssignment(ctx context.Context, userID, establishmentID uuid.UUID) (*model.StaffAssignment, error)
}

type Config struct {
	Secret string
	TTL    time.Duration
}

type contextClaims struct {
	EstablishmentID   uuid.UUID         `json:"eid"`
	EstablishmentName string            `json:"ename"`
	Role              model.StaffRole   `json:"role"`
	IsAdmin           bool              `json:"adm"`
	Permissions       model.Permissions `json:"perms"`
	Department        string            `json:"dept,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	assignments    Assignments
	establishments repository.EstablishmentRepository
	store          Store
	auditor        *audit.Service
	metrics        *metrics.Metrics
	logger         *logger.Logger
	secret         []byte
	ttl            time.Duration
	now            func() time.Time
}

func NewService(
	assignments Assignments,
	establishments repository.EstablishmentRepository,
	store Store,
	auditor *audit.Service,
	metrics *metrics.Metrics,
	logger *logger.Logger,
	config Config,
) *Service {
	return &Service{
		assignments:    assignments,
		establishments: establishments,
		store:          store,
		auditor:        auditor,
		metrics:        metrics,
		logger:         logger,
		secret:         []byte(config.Secret),
		ttl:            config.TTL,
		now:            time.Now,
	}
}

// Switch selects establishmentID as the professional's working context.
func (s *Service) Switch(ctx context.Context, professionalID, establishmentID uuid.UUID) (*model.SwitchContextResult, error) {
	assignment, err := s.assignments.ActiveAssignment(ctx, professionalID, establishmentID)
	if err != nil {
		s.metrics.ContextSwitches.WithLabelValues("error").Inc()
		return nil, err
	}
	if assignment == nil {
		s.metrics.ContextSwitches.WithLabelValues("denied").Inc()
		return nil, apperrors.Forbidden("not a member of this establishment", ErrNotMember)
	}

	est, err := s.establishments.Get(ctx, establishmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("establishment", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to get establishment: %w", err))
	}

	now := s.now()
	wc := &model.WorkContext{
		ProfessionalID:    professionalID,
		EstablishmentID:   est.ID,
		EstablishmentName: est.Name,
		Role:              assignment.Role,
		IsAdmin:           assignment.GrantsAdmin(),
		Permissions:       assignment.Permissions,
		Department:        assignment.Department,
		SelectedAt:        now,
	}

	if err := s.store.Save(ctx, wc, s.ttl); err != nil {
		return nil, apperrors.Internal(err)
	}

	token, expiresAt, err := s.sign(wc)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.metrics.ContextSwitches.WithLabelValues("ok").Inc()

	if s.auditor != nil {
		s.auditor.LogAsync(ctx, professionalID, model.AuditActionContextSwitch, model.AuditEntityEstablishment, est.ID, &audit.LogOptions{
			EstablishmentID: &est.ID,
			Message:         fmt.Sprintf("switched to %s", est.Name),
		})
	}

	s.logger.WithContext(ctx).Debug("Context switched",
		"professional_id", professionalID.String(),
		"establishment_id", est.ID.String())

	return &model.SwitchContextResult{Context: wc, Token: token, ExpiresAt: expiresAt}, nil
}

// Current returns the persisted selection.
func (s *Service) Current(ctx context.Context, professionalID uuid.UUID) (*model.WorkContext, error) {
	wc, err := s.store.Load(ctx, professionalID)
	if err != nil {
		if errors.Is(err, ErrNoContext) {
			return nil, apperrors.NotFound("establishment context", err)
		}
		return nil, apperrors.Internal(err)
	}
	return wc, nil
}

func (s *Service) Clear(ctx context.Context, professionalID uuid.UUID) error {
	if err := s.store.Delete(ctx, professionalID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *Service) sign(wc *model.WorkContext) (string, time.Time, error) {
	expiresAt := wc.SelectedAt.Add(s.ttl)
	claims := contextClaims{
		EstablishmentID:   wc.EstablishmentID,
		EstablishmentName: wc.EstablishmentName,
		Role:              wc.Role,
		IsAdmin:           wc.IsAdmin,
		Permissions:       wc.Permissions,
		Department:        wc.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wc.ProfessionalID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(wc.SelectedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign context token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of a context token and returns the
// snapshot it carries.
func (s *Service) Verify(token string) (*model.WorkContext, error) {
	parsed, err := jwt.ParseWithClaims(token, &contextClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*contextClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	professionalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	wc := &model.WorkContext{
		ProfessionalID:    professionalID,
		EstablishmentID:   claims.EstablishmentID,
		EstablishmentName: claims.EstablishmentName,
		Role:              claims.Role,
		IsAdmin:           claims.IsAdmin,
		Permissions:       claims.Permissions,
		Department:        claims.Department,
	}
	if claims.IssuedAt != nil {
		wc.SelectedAt = claims.IssuedAt.Time
	}
	return wc, nil
}
