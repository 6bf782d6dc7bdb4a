package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is anything whose liveness the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	components map[string]Pinger
}

func NewHealthHandler(components map[string]Pinger) *HealthHandler {
	return &HealthHandler{components: components}
}

func (h *HealthHandler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{
		"status": "alive",
		"time":   time.Now(),
	}))
}

// ReadinessCheck answers 503 when any component fails its ping.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	components := gin.H{}
	ready := true
	for name, p := range h.components {
		if err := p.Ping(ctx); err != nil {
			components[name] = "down"
			ready = false
			continue
		}
		components[name] = "up"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, &Response{
			Status:  "error",
			Message: "not ready",
			Data:    gin.H{"components": components},
		})
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{
		"status":     "ready",
		"components": components,
		"time":       time.Now(),
	}))
}
