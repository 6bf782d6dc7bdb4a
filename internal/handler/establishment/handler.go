package establishment

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/middleware"
	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/service/directory"
)

const maxImportSize = 10 << 20

type Handler struct {
	service directory.DirectoryServicer
}

func NewHandler(service directory.DirectoryServicer) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the directory on an authenticated group. Import is
// restricted to super-admins.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	establishments := r.Group("/establishments")
	{
		establishments.GET("", h.ListEstablishments)
		establishments.GET("/export.csv", h.ExportCSV)
		establishments.POST("/import", auth.RequireSuperAdmin(), middleware.SizeLimit(maxImportSize), h.Import)
		establishments.GET("/:id", h.GetEstablishment)
	}
}

func (h *Handler) ListEstablishments(c *gin.Context) {
	var filter model.EstablishmentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	filter.Pagination.Normalize()

	establishments, total, err := h.service.List(c.Request.Context(), &filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(handler.PagedData{
		Items:    establishments,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}))
}

func (h *Handler) GetEstablishment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid establishment ID"))
		return
	}

	est, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(est))
}

// ExportCSV streams every establishment matching the query filter.
func (h *Handler) ExportCSV(c *gin.Context) {
	var filter model.EstablishmentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	filename := fmt.Sprintf("establishments-%s.csv", time.Now().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := h.service.ExportCSV(c.Request.Context(), &filter, c.Writer); err != nil {
		// Headers are gone; the error is only logged.
		_ = c.Error(err)
	}
}

// Import accepts a CSV either as the raw body or as the multipart field
// "file".
func (h *Handler) Import(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("missing file field"))
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("cannot read uploaded file"))
			return
		}
		defer f.Close()
		body = f
	}

	result, err := h.service.Import(c.Request.Context(), body, userID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}
