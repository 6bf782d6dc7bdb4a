package staff

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/middleware"
	"github.com/jwalitptl/establishment-api/internal/model"
)

type StaffService interface {
	HasAdminRights(ctx context.Context, userID, establishmentID uuid.UUID) (bool, error)
	Staff(ctx context.Context, establishmentID uuid.UUID) ([]*model.StaffAssignment, error)
	AddStaff(ctx context.Context, establishmentID uuid.UUID, req *model.AddStaffRequest) (*model.StaffAssignment, error)
}

type Handler struct {
	service StaffService
}

func NewHandler(service StaffService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	establishments := r.Group("/establishments/:id")
	{
		establishments.GET("/admin-rights", h.GetAdminRights)
		establishments.GET("/staff", auth.RequireAdmin("id"), h.ListStaff)
		establishments.POST("/staff", auth.RequireAdmin("id"), h.AddStaff)
	}
}

// GetAdminRights answers for the caller, or for ?user_id= when the caller
// is a super-admin.
func (h *Handler) GetAdminRights(c *gin.Context) {
	establishmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid establishment ID"))
		return
	}
	userID, _ := middleware.UserID(c)
	if other := c.Query("user_id"); other != "" && middleware.IsSuperAdmin(c) {
		if userID, err = uuid.Parse(other); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
			return
		}
	}

	isAdmin, err := h.service.HasAdminRights(c.Request.Context(), userID, establishmentID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"user_id":          userID,
		"establishment_id": establishmentID,
		"is_admin":         isAdmin,
	}))
}

func (h *Handler) ListStaff(c *gin.Context) {
	establishmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid establishment ID"))
		return
	}

	staff, err := h.service.Staff(c.Request.Context(), establishmentID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(staff))
}

func (h *Handler) AddStaff(c *gin.Context) {
	establishmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid establishment ID"))
		return
	}

	var req model.AddStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	staff, err := h.service.AddStaff(c.Request.Context(), establishmentID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(staff))
}
