// Package app builds the repositories and services shared by the api,
// worker and portalctl binaries.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/establishment-api/internal/config"
	"github.com/jwalitptl/establishment-api/internal/email"
	"github.com/jwalitptl/establishment-api/internal/handler"
	adminHandler "github.com/jwalitptl/establishment-api/internal/handler/admin"
	auditHandler "github.com/jwalitptl/establishment-api/internal/handler/audit"
	claimHandler "github.com/jwalitptl/establishment-api/internal/handler/claim"
	establishmentHandler "github.com/jwalitptl/establishment-api/internal/handler/establishment"
	invitationHandler "github.com/jwalitptl/establishment-api/internal/handler/invitation"
	promhandler "github.com/jwalitptl/establishment-api/internal/handler/prometheus"
	searchHandler "github.com/jwalitptl/establishment-api/internal/handler/search"
	staffHandler "github.com/jwalitptl/establishment-api/internal/handler/staff"
	workcontextHandler "github.com/jwalitptl/establishment-api/internal/handler/workcontext"
	"github.com/jwalitptl/establishment-api/internal/middleware"
	"github.com/jwalitptl/establishment-api/internal/repository"
	"github.com/jwalitptl/establishment-api/internal/repository/postgres"
	"github.com/jwalitptl/establishment-api/internal/router"
	"github.com/jwalitptl/establishment-api/internal/search"
	"github.com/jwalitptl/establishment-api/internal/service/audit"
	"github.com/jwalitptl/establishment-api/internal/service/authz"
	"github.com/jwalitptl/establishment-api/internal/service/claim"
	"github.com/jwalitptl/establishment-api/internal/service/directory"
	"github.com/jwalitptl/establishment-api/internal/service/invitation"
	"github.com/jwalitptl/establishment-api/internal/service/monitor"
	"github.com/jwalitptl/establishment-api/internal/service/workcontext"
	"github.com/jwalitptl/establishment-api/pkg/auth"
	"github.com/jwalitptl/establishment-api/pkg/logger"
	"github.com/jwalitptl/establishment-api/pkg/messaging/redis"
	"github.com/jwalitptl/establishment-api/pkg/metrics"
)

const metricsNamespace = "establishments"

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *sqlx.DB
	Redis    *goredis.Client
	Broker   *redis.RedisBroker
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Establishments repository.EstablishmentRepository
	Outbox         repository.OutboxRepository

	Tokens      auth.JWTService
	Audit       *audit.Service
	Monitor     *monitor.Service
	Directory   *directory.Service
	Authz       *authz.Service
	Invitations *invitation.Service
	Claims      *claim.Service
	WorkContext *workcontext.Service
	Search      *search.Service

	components map[string]repository.HealthChecker
}

// New connects to Postgres (and Redis when enabled) and wires every
// service. Close releases the connections.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Logger:     log,
		DB:         db,
		Registry:   prometheus.NewRegistry(),
		components: map[string]repository.HealthChecker{},
	}
	a.Metrics = metrics.New(metricsNamespace, a.Registry)

	base := postgres.NewBaseRepository(db)
	a.components["postgres"] = &base

	var contextStore workcontext.Store
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg.Redis.ToBrokerConfig())
		if err != nil {
			db.Close()
			return nil, err
		}
		a.Redis = client
		a.Broker = redis.NewRedisBrokerWithClient(client, &log.ZL)
		a.components["redis"] = a.Broker
		contextStore = workcontext.NewRedisStore(client)
	} else {
		log.Warn("Redis disabled, work contexts are kept in process memory")
		contextStore = workcontext.NewCacheStore(cfg.WorkContext.TTL)
	}

	dict := search.DefaultDictionary()
	if cfg.Search.DictionaryFile != "" {
		if dict, err = search.LoadDictionary(cfg.Search.DictionaryFile); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load search dictionary: %w", err)
		}
	}

	var mailer invitation.Mailer
	if cfg.SMTP.Enabled() {
		mailer = email.NewMailer(cfg.SMTP)
	}

	a.Establishments = postgres.NewEstablishmentRepository(base)
	a.Outbox = postgres.NewOutboxRepository(base)
	staffRepo := postgres.NewStaffRepository(base)
	claimRepo := postgres.NewClaimRepository(base)
	invitationRepo := postgres.NewInvitationRepository(base)
	auditRepo := postgres.NewAuditRepository(base)

	a.Tokens = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry(), cfg.JWT.Issuer)
	a.Monitor = monitor.NewService(a.Establishments, a.components, a.Metrics, log, monitor.Config{
		Interval:  cfg.Monitor.Interval,
		HostStats: cfg.Monitor.HostStats,
	})
	a.Audit = audit.NewService(auditRepo, a.Monitor, log)
	a.Directory = directory.NewService(a.Establishments, a.Audit, log)
	a.Authz = authz.NewService(staffRepo, log)
	a.Invitations = invitation.NewService(a.Establishments, invitationRepo, mailer, a.Audit, a.Metrics, log, invitation.Config{
		BaseURL: cfg.Invitation.BaseURL,
		TTL:     cfg.Invitation.TTL,
	})
	a.Claims = claim.NewService(claimRepo, a.Outbox, a.Audit, a.Metrics, log, claim.Config{
		ReconcileGrace: cfg.Claim.ReconcileGrace,
	})
	a.WorkContext = workcontext.NewService(a.Authz, a.Establishments, contextStore, a.Audit, a.Metrics, log, workcontext.Config{
		Secret: cfg.WorkContext.Secret,
		TTL:    cfg.WorkContext.TTL,
	})
	a.Search = search.NewService(a.Establishments, search.NewMatcher(dict), log)

	return a, nil
}

// Router builds the HTTP surface. HTTP metrics are registered on the app
// registry, so Router must be called at most once.
func (a *App) Router() *router.Router {
	cfg := a.Config

	authMiddleware := middleware.NewAuthMiddleware(a.Tokens, a.Authz, a.WorkContext)
	handlers := router.Handlers{
		Health:         handler.NewHealthHandler(a.HealthCheckers()),
		Metrics:        promhandler.New(metricsNamespace, a.Registry),
		Establishments: establishmentHandler.NewHandler(a.Directory),
		Claims:         claimHandler.NewHandler(a.Claims),
		Invitations:    invitationHandler.NewHandler(a.Invitations),
		Staff:          staffHandler.NewHandler(a.Authz),
		WorkContext:    workcontextHandler.NewHandler(a.WorkContext, a.Authz),
		Search:         searchHandler.NewHandler(a.Search, cfg.Search.CacheMaxAge),
		Admin:          adminHandler.NewHandler(a.Monitor),
		Audit:          auditHandler.NewHandler(a.Audit),
	}

	r := router.NewRouter(authMiddleware, handlers, a.Logger, router.RouterConfig{
		Mode:             cfg.Server.Mode,
		RequestTimeout:   cfg.Server.WriteTimeout,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit: middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		},
		CORSConfig: middleware.CORSConfig{
			AllowOrigins: cfg.CORS.AllowedOrigins,
			AllowMethods: cfg.CORS.AllowedMethods,
			AllowHeaders: cfg.CORS.AllowedHeaders,
		},
	})
	r.Setup()
	return r
}

// HealthCheckers returns the backing stores probed by readiness checks.
func (a *App) HealthCheckers() map[string]handler.Pinger {
	out := make(map[string]handler.Pinger, len(a.components))
	for name, c := range a.components {
		out[name] = c
	}
	return out
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	applied, err := postgres.Migrate(ctx, a.DB)
	if err != nil {
		return err
	}
	for _, name := range applied {
		a.Logger.Info("Migration applied", "name", name)
	}
	return nil
}

func (a *App) Close() {
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Error(err, "Failed to close Redis")
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error(err, "Failed to close database")
	}
}
