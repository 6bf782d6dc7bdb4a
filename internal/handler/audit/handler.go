package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/model"
)

type Lister interface {
	List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
}

type Handler struct {
	service Lister
}

func NewHandler(service Lister) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes expects a group already restricted to super-admins.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/:type/:id", h.GetEntityLogs)
		audit.GET("/:type/:id/export", h.ExportEntityLogs)
	}
}

var entityTypes = map[string]bool{
	model.AuditEntityEstablishment: true,
	model.AuditEntityClaim:         true,
	model.AuditEntityInvitation:    true,
	model.AuditEntityStaff:         true,
}

func (h *Handler) entityLogs(c *gin.Context) ([]*model.AuditLog, bool) {
	entityType := c.Param("type")
	if !entityTypes[entityType] {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unknown entity type"))
		return nil, false
	}
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid entity_id"))
		return nil, false
	}

	logs, err := h.service.List(c.Request.Context(), entityType, entityID)
	if err != nil {
		handler.RespondError(c, err)
		return nil, false
	}
	return logs, true
}

func (h *Handler) GetEntityLogs(c *gin.Context) {
	logs, ok := h.entityLogs(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func (h *Handler) ExportEntityLogs(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "json" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unsupported format"))
		return
	}

	logs, ok := h.entityLogs(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("audit_%s_%s.%s", c.Param("type"), time.Now().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	switch format {
	case "csv":
		c.Header("Content-Type", "text/csv; charset=utf-8")
		writer := csv.NewWriter(c.Writer)
		_ = writer.Write([]string{"ID", "User ID", "Establishment ID", "Action", "Entity Type", "Entity ID", "Created At"})
		for _, log := range logs {
			establishmentID := ""
			if log.EstablishmentID != nil {
				establishmentID = log.EstablishmentID.String()
			}
			_ = writer.Write([]string{
				log.ID.String(),
				log.UserID.String(),
				establishmentID,
				log.Action,
				log.EntityType,
				log.EntityID.String(),
				log.CreatedAt.Format(time.RFC3339),
			})
		}
		writer.Flush()
	case "json":
		c.JSON(http.StatusOK, logs)
	}
}
