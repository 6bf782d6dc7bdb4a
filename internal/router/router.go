package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/establishment-api/internal/handler"
	"github.com/jwalitptl/establishment-api/internal/handler/admin"
	"github.com/jwalitptl/establishment-api/internal/handler/audit"
	"github.com/jwalitptl/establishment-api/internal/handler/claim"
	"github.com/jwalitptl/establishment-api/internal/handler/establishment"
	"github.com/jwalitptl/establishment-api/internal/handler/invitation"
	promhandler "github.com/jwalitptl/establishment-api/internal/handler/prometheus"
	"github.com/jwalitptl/establishment-api/internal/handler/search"
	"github.com/jwalitptl/establishment-api/internal/handler/staff"
	"github.com/jwalitptl/establishment-api/internal/handler/workcontext"
	"github.com/jwalitptl/establishment-api/internal/middleware"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Health         *handler.HealthHandler
	Metrics        *promhandler.Handler
	Establishments *establishment.Handler
	Claims         *claim.Handler
	Invitations    *invitation.Handler
	Staff          *staff.Handler
	WorkContext    *workcontext.Handler
	Search         *search.Handler
	Admin          *admin.Handler
	Audit          *audit.Handler
}

type RouterConfig struct {
	Mode             string
	RequestTimeout   time.Duration
	RateLimitEnabled bool
	RateLimit        middleware.RateLimiterConfig
	CORSConfig       middleware.CORSConfig
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
}

func NewRouter(auth *middleware.AuthMiddleware, handlers Handlers, log *logger.Logger, config RouterConfig) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
	}

	// Add core middlewares
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.ErrorHandler(log),
		handlers.Metrics.Middleware(),
		middleware.Timeout(config.RequestTimeout),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimitEnabled {
		engine.Use(middleware.NewRateLimiter(config.RateLimit).RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", r.handlers.Metrics.Handler())

	api := r.engine.Group("/api/v1")

	// Add version header
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.handlers.Health.RegisterRoutes(api)

	// Public routes
	r.setupPublicRoutes(api)

	// Protected routes
	protected := api.Group("")
	protected.Use(
		r.auth.Authenticate(),
		r.auth.WorkContext(),
	)
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupPublicRoutes(rg *gin.RouterGroup) {
	r.handlers.Search.RegisterRoutes(rg)
	r.handlers.Invitations.RegisterPublicRoutes(rg)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	r.handlers.Establishments.RegisterRoutes(rg, r.auth)
	r.handlers.Claims.RegisterRoutes(rg, r.auth)
	r.handlers.Invitations.RegisterRoutes(rg, r.auth)
	r.handlers.Staff.RegisterRoutes(rg, r.auth)
	r.handlers.WorkContext.RegisterRoutes(rg)

	admin := rg.Group("/admin", r.auth.RequireSuperAdmin(), middleware.NoStore())
	r.handlers.Admin.RegisterRoutes(admin)
	r.handlers.Audit.RegisterRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
