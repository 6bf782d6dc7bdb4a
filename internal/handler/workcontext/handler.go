package workcontext

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/middleware"
	"github.com/jwalitptl/establishment-api/internal/model"
)

type ContextService interface {
	Switch(ctx context.Context, professionalID, establishmentID uuid.UUID) (*model.SwitchContextResult, error)
	Current(ctx context.Context, professionalID uuid.UUID) (*model.WorkContext, error)
	Clear(ctx context.Context, professionalID uuid.UUID) error
}

type MembershipLister interface {
	Memberships(ctx context.Context, userID uuid.UUID) ([]*model.Membership, error)
}

type Handler struct {
	contexts    ContextService
	memberships MembershipLister
}

func NewHandler(contexts ContextService, memberships MembershipLister) *Handler {
	return &Handler{
		contexts:    contexts,
		memberships: memberships,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	me := r.Group("/me", middleware.NoStore())
	{
		me.GET("/establishments", h.ListMemberships)
		me.GET("/context", h.GetContext)
		me.POST("/context", h.SwitchContext)
		me.DELETE("/context", h.ClearContext)
	}
}

type switchContextRequest struct {
	EstablishmentID uuid.UUID `json:"establishment_id" binding:"required"`
}

func (h *Handler) ListMemberships(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	memberships, err := h.memberships.Memberships(c.Request.Context(), userID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(memberships))
}

func (h *Handler) SwitchContext(c *gin.Context) {
	var req switchContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	userID, _ := middleware.UserID(c)

	result, err := h.contexts.Switch(c.Request.Context(), userID, req.EstablishmentID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.Header(middleware.HeaderEstablishmentContext, result.Token)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) GetContext(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	wc, err := h.contexts.Current(c.Request.Context(), userID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(wc))
}

func (h *Handler) ClearContext(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	if err := h.contexts.Clear(c.Request.Context(), userID); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
