package claim

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/middleware"
	"github.com/jwalitptl/establishment-api/internal/model"
	claimService "github.com/jwalitptl/establishment-api/internal/service/claim"
)

type Handler struct {
	service claimService.ClaimServicer
}

func NewHandler(service claimService.ClaimServicer) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts claim submission for any authenticated professional
// and the review queue for super-admins.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	r.POST("/establishments/:id/claims", h.SubmitClaim)

	claims := r.Group("/claims", auth.RequireSuperAdmin())
	{
		claims.GET("", h.ListClaims)
		claims.GET("/:id", h.GetClaim)
		claims.POST("/:id/approve", h.ApproveClaim)
		claims.POST("/:id/reject", h.RejectClaim)
	}
}

type submitClaimRequest struct {
	Token   string `json:"token"`
	Message string `json:"message" binding:"max=2000"`
}

type rejectClaimRequest struct {
	Reason string `json:"reason" binding:"required,max=2000"`
}

func (h *Handler) SubmitClaim(c *gin.Context) {
	establishmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid establishment ID"))
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	var req submitClaimRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
	}

	claim, err := h.service.Submit(c.Request.Context(), &model.SubmitClaimRequest{
		EstablishmentID: establishmentID,
		ClaimantID:      userID,
		Token:           req.Token,
		Message:         req.Message,
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(claim))
}

func (h *Handler) ListClaims(c *gin.Context) {
	status := model.ClaimRequestStatus(c.DefaultQuery("status", string(model.ClaimRequestPending)))
	if status == "all" {
		status = ""
	}

	claims, err := h.service.List(c.Request.Context(), status)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(claims))
}

func (h *Handler) GetClaim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid claim ID"))
		return
	}

	claim, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(claim))
}

func (h *Handler) ApproveClaim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid claim ID"))
		return
	}
	adminID, _ := middleware.UserID(c)

	claim, err := h.service.Approve(c.Request.Context(), id, adminID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(claim))
}

func (h *Handler) RejectClaim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid claim ID"))
		return
	}

	var req rejectClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	adminID, _ := middleware.UserID(c)

	claim, err := h.service.Reject(c.Request.Context(), id, adminID, req.Reason)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(claim))
}
