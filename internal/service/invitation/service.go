package invitation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
	"github.com/jwalitptl/establishment-api/internal/service/audit"
	apperrors "github.com/jwalitptl/establishment-api/pkg/errors"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	"github.com/jwalitptl/establishment-api/pkg/metrics"
)

const tokenBytes = 32

// Mailer delivers invitation links.
type Mailer interface {
	SendInvitation(to, establishmentName, link string, expiresAt time.Time) error
}

type Config struct {
	BaseURL string
	TTL     time.Duration
}

type Service struct {
	establishments repository.EstablishmentRepository
	invitations    repository.InvitationRepository
	mailer         Mailer
	auditor        *audit.Service
	metrics        *metrics.Metrics
	logger         *logger.Logger
	config         Config
	now            func() time.Time
}

func NewService(
	establishments repository.EstablishmentRepository,
	invitations repository.InvitationRepository,
	mailer Mailer,
	auditor *audit.Service,
	metrics *metrics.Metrics,
	logger *logger.Logger,
	config Config,
) *Service {
	return &Service{
		establishments: establishments,
		invitations:    invitations,
		mailer:         mailer,
		auditor:        auditor,
		metrics:        metrics,
		logger:         logger,
		config:         config,
		now:            time.Now,
	}
}

// HashToken returns the digest stored in place of the raw token.
func HashToken(token string) []byte {
	sum := blake2b.Sum256([]byte(token))
	return sum[:]
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Issue creates a single-use claim token for a claimable establishment. The
// raw token is only ever returned here.
func (s *Service) Issue(ctx context.Context, establishmentID, issuerID uuid.UUID, notify bool) (*model.IssuedInvitation, error) {
	est, err := s.establishments.Get(ctx, establishmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("establishment", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to get establishment: %w", err))
	}
	if !est.ClaimStatus.Claimable() {
		return nil, apperrors.Conflict("establishment already claimed", repository.ErrAlreadyClaimed)
	}

	token, err := newToken()
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to generate token: %w", err))
	}

	inv := &model.Invitation{
		ID:              uuid.New(),
		EstablishmentID: est.ID,
		TokenHash:       HashToken(token),
		CreatedBy:       issuerID,
		ExpiresAt:       s.now().Add(s.config.TTL),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to store invitation: %w", err))
	}
	s.metrics.InvitationsIssued.Inc()

	issued := &model.IssuedInvitation{
		InvitationID:    inv.ID,
		EstablishmentID: est.ID,
		Token:           token,
		URL:             s.link(token),
		ExpiresAt:       inv.ExpiresAt,
	}

	if notify && est.Email != "" && s.mailer != nil {
		if err := s.mailer.SendInvitation(est.Email, est.Name, issued.URL, issued.ExpiresAt); err != nil {
			s.logger.WithContext(ctx).Error(err, "Failed to email invitation",
				"establishment_id", est.ID.String())
		} else {
			issued.Emailed = true
		}
	}

	if s.auditor != nil {
		if err := s.auditor.Log(ctx, issuerID, model.AuditActionInvite, model.AuditEntityInvitation, inv.ID, &audit.LogOptions{
			EstablishmentID: &est.ID,
			Metadata:        map[string]interface{}{"expires_at": inv.ExpiresAt, "emailed": issued.Emailed},
			Message:         fmt.Sprintf("invitation issued for %s", est.Name),
		}); err != nil {
			s.logger.Error(err, "Failed to audit invitation")
		}
	}

	s.logger.WithContext(ctx).Info("Invitation issued",
		"establishment_id", est.ID.String(),
		"invitation_id", inv.ID.String(),
		"expires_at", inv.ExpiresAt)

	return issued, nil
}

func (s *Service) link(token string) string {
	u, err := url.Parse(s.config.BaseURL)
	if err != nil {
		return s.config.BaseURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Resolve returns the establishment a usable token is bound to, as long as
// that establishment can still be claimed.
func (s *Service) Resolve(ctx context.Context, token string) (*model.Establishment, error) {
	if token == "" {
		return nil, apperrors.BadRequest("invitation token is invalid or expired", repository.ErrInvalidToken)
	}

	inv, err := s.invitations.GetByHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.BadRequest("invitation token is invalid or expired", repository.ErrInvalidToken)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to get invitation: %w", err))
	}
	if !inv.Usable(s.now()) {
		return nil, apperrors.BadRequest("invitation token is invalid or expired", repository.ErrInvalidToken)
	}

	est, err := s.establishments.Get(ctx, inv.EstablishmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("establishment", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to get establishment: %w", err))
	}
	if !est.ClaimStatus.Claimable() {
		return nil, apperrors.BadRequest("invitation token is invalid or expired", repository.ErrInvalidToken)
	}
	return est, nil
}
