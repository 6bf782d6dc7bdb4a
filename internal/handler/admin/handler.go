package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/model"
)

type Monitor interface {
	Snapshot(ctx context.Context) (*model.PlatformSnapshot, error)
	Refresh(ctx context.Context) (*model.PlatformSnapshot, error)
	Activity(limit int) []model.ActivityEntry
	ClearActivity()
}

type Handler struct {
	monitor Monitor
}

func NewHandler(monitor Monitor) *Handler {
	return &Handler{monitor: monitor}
}

// RegisterRoutes expects a group already restricted to super-admins.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/metrics", h.GetMetrics)
	r.GET("/activity", h.GetActivity)
	r.DELETE("/activity", h.ClearActivity)
}

// GetMetrics serves the cached snapshot; ?refresh=true recomputes it.
func (h *Handler) GetMetrics(c *gin.Context) {
	var (
		snapshot *model.PlatformSnapshot
		err      error
	)
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		snapshot, err = h.monitor.Refresh(c.Request.Context())
	} else {
		snapshot, err = h.monitor.Snapshot(c.Request.Context())
	}
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(snapshot))
}

func (h *Handler) GetActivity(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid limit"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.monitor.Activity(limit)))
}

func (h *Handler) ClearActivity(c *gin.Context) {
	h.monitor.ClearActivity()
	c.Status(http.StatusNoContent)
}
