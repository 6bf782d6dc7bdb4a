package invitation

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/middleware"
	"github.com/jwalitptl/establishment-api/internal/model"
)

type Issuer interface {
	Issue(ctx context.Context, establishmentID, issuerID uuid.UUID, notify bool) (*model.IssuedInvitation, error)
	Resolve(ctx context.Context, token string) (*model.Establishment, error)
}

type Handler struct {
	service Issuer
}

func NewHandler(service Issuer) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes mounts token resolution, used by the claim landing
// page before the professional signs in.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/invitations/:token", middleware.NoStore(), h.ResolveInvitation)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	r.POST("/establishments/:id/invitations", auth.RequireSuperAdmin(), middleware.NoStore(), h.IssueInvitation)
}

type issueInvitationRequest struct {
	Notify bool `json:"notify"`
}

func (h *Handler) IssueInvitation(c *gin.Context) {
	establishmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid establishment ID"))
		return
	}

	var req issueInvitationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
	}
	issuerID, _ := middleware.UserID(c)

	issued, err := h.service.Issue(c.Request.Context(), establishmentID, issuerID, req.Notify)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(issued))
}

func (h *Handler) ResolveInvitation(c *gin.Context) {
	est, err := h.service.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"establishment_id": est.ID,
		"name":             est.Name,
		"type":             est.Type,
		"city":             est.City,
		"province":         est.Province,
	}))
}
