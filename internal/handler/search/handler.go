package search

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/middleware"
	"github.com/jwalitptl/establishment-api/internal/search"
)

type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Response, error)
	Analyze(text string) search.Analysis
}

type Handler struct {
	service Searcher
	maxAge  int
}

// NewHandler serves public search; responses may be cached for maxAge seconds.
func NewHandler(service Searcher, maxAge int) *Handler {
	return &Handler{service: service, maxAge: maxAge}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	s := r.Group("/search", middleware.PublicCache(h.maxAge))
	{
		s.GET("", h.Search)
		s.GET("/analyze", h.Analyze)
	}
}

type searchParams struct {
	Q                string   `form:"q" binding:"max=200"`
	Lat              *float64 `form:"lat" binding:"omitempty,latitude"`
	Lng              *float64 `form:"lng" binding:"omitempty,longitude"`
	RadiusKm         float64  `form:"radius_km" binding:"omitempty,gt=0,lte=1000"`
	Types            []string `form:"type"`
	Provinces        []string `form:"province"`
	Cities           []string `form:"city"`
	Services         []string `form:"service"`
	Open24h          bool     `form:"open_24h"`
	AcceptsInsurance bool     `form:"accepts_insurance"`
	Limit            int      `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (h *Handler) Search(c *gin.Context) {
	var params searchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if (params.Lat == nil) != (params.Lng == nil) {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("lat and lng must be given together"))
		return
	}

	q := search.Query{
		Text:     params.Q,
		RadiusKm: params.RadiusKm,
		Limit:    params.Limit,
		Filter: search.Filter{
			Types:            params.Types,
			Provinces:        params.Provinces,
			Cities:           params.Cities,
			Services:         params.Services,
			Open24h:          params.Open24h,
			AcceptsInsurance: params.AcceptsInsurance,
		},
	}
	if params.Lat != nil {
		q.Origin = &search.Point{Lat: *params.Lat, Lng: *params.Lng}
	}

	resp, err := h.service.Search(c.Request.Context(), q)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(resp))
}

func (h *Handler) Analyze(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.Analyze(c.Query("q"))))
}
