package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

// ActivityRecorder receives a copy of every audited action for the
// super-admin activity feed.
type ActivityRecorder interface {
	Record(entry model.ActivityEntry)
}

type Service struct {
	repo     repository.AuditRepository
	recorder ActivityRecorder
	logger   *logger.Logger
}

func NewService(repo repository.AuditRepository, recorder ActivityRecorder, logger *logger.Logger) *Service {
	return &Service{repo: repo, recorder: recorder, logger: logger}
}

type LogOptions struct {
	EstablishmentID *uuid.UUID
	Changes         interface{}
	Metadata        interface{}
	IPAddress       string
	UserAgent       string
	// Message is shown in the activity feed.
	Message string
}

// Log creates an audit log entry
func (s *Service) Log(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	if opts == nil {
		opts = &LogOptions{}
	}

	var changes, metadata json.RawMessage
	var err error
	if opts.Changes != nil {
		if changes, err = json.Marshal(opts.Changes); err != nil {
			return fmt.Errorf("failed to marshal audit changes: %w", err)
		}
	}
	if opts.Metadata != nil {
		if metadata, err = json.Marshal(opts.Metadata); err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	// Get IP and User Agent from gin context if not provided in opts
	ipAddress := opts.IPAddress
	userAgent := opts.UserAgent
	if gc, ok := ctx.(*gin.Context); ok && ipAddress == "" {
		ipAddress = gc.ClientIP()
		userAgent = gc.GetHeader("User-Agent")
	}

	entry := &model.AuditLog{
		ID:              uuid.New(),
		UserID:          userID,
		EstablishmentID: opts.EstablishmentID,
		Action:          action,
		EntityType:      entityType,
		EntityID:        entityID,
		Changes:         changes,
		Metadata:        metadata,
		IPAddress:       ipAddress,
		UserAgent:       userAgent,
		CreatedAt:       time.Now(),
	}

	if s.recorder != nil {
		msg := opts.Message
		if msg == "" {
			msg = fmt.Sprintf("%s on %s %s", action, entityType, entityID)
		}
		s.recorder.Record(model.ActivityEntry{
			At:      entry.CreatedAt,
			Level:   "info",
			Action:  action,
			Message: msg,
			Fields: map[string]interface{}{
				"user_id":     userID.String(),
				"entity_type": entityType,
				"entity_id":   entityID.String(),
			},
		})
	}

	return s.repo.Create(ctx, entry)
}

// LogAsync records the entry without blocking the caller. Failures are
// logged and otherwise dropped.
func (s *Service) LogAsync(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	if gc, ok := ctx.(*gin.Context); ok && (opts == nil || opts.IPAddress == "") {
		if opts == nil {
			opts = &LogOptions{}
		}
		opts.IPAddress = gc.ClientIP()
		opts.UserAgent = gc.GetHeader("User-Agent")
		ctx = gc.Request.Context()
	}
	ctx = context.WithoutCancel(ctx)

	go func() {
		if err := s.Log(ctx, userID, action, entityType, entityID, opts); err != nil && s.logger != nil {
			s.logger.Error(err, "Failed to write audit log", "action", action, "entity_id", entityID.String())
		}
	}()
}

func (s *Service) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.List(ctx, entityType, entityID)
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Cleanup(ctx, before)
}
