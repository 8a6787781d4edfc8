package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/domainlink/internal/config"
	handoffdomain "github.com/smallbiznis/domainlink/internal/handoff/domain"
	mappingdomain "github.com/smallbiznis/domainlink/internal/mapping/domain"
	obsmetrics "github.com/smallbiznis/domainlink/internal/observability/metrics"
	"github.com/smallbiznis/domainlink/internal/ratelimit"
	"github.com/smallbiznis/domainlink/internal/resolver"
	"github.com/smallbiznis/domainlink/internal/session"
	"github.com/smallbiznis/domainlink/internal/site"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	mappingSvc    mappingdomain.Service
	handoffSvc    handoffdomain.Service
	resolver      *resolver.Resolver
	sessions      *session.Manager
	settings      site.Settings
	metrics       *obsmetrics.Metrics
	redeemLimiter *ratelimit.TokenBucket
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	MappingSvc mappingdomain.Service
	HandoffSvc handoffdomain.Service
	Resolver   *resolver.Resolver
	Sessions   *session.Manager
	Settings   site.Settings

	Metrics       *obsmetrics.Metrics    `optional:"true"`
	RedeemLimiter *ratelimit.TokenBucket `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		mappingSvc:    p.MappingSvc,
		handoffSvc:    p.HandoffSvc,
		resolver:      p.Resolver,
		sessions:      p.Sessions,
		settings:      p.Settings,
		metrics:       p.Metrics,
		redeemLimiter: p.RedeemLimiter,
	}

	svc.registerHandoffRoutes()
	svc.registerAPIRoutes()
	svc.registerSiteRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHandoffRoutes() {
	handoff := s.engine.Group("/handoff", s.TenantContext())

	handoff.GET("/start", s.StartHandoffLogin)
	handoff.GET(trimHandoffPrefix(handoffdomain.LoadPath), s.LoadHandoff)
	handoff.GET(trimHandoffPrefix(handoffdomain.RedeemPath), s.RedeemHandoff)
	handoff.GET("/logout", s.Logout)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.TenantContext())

	api.GET("/resolve", s.ResolveHost)

	tenants := api.Group("/tenants/:tenant_id")
	{
		tenants.GET("/domains", s.ListDomainMappings)
		tenants.POST("/domains", s.CreateDomainMapping)
		tenants.PATCH("/domains/:id", s.UpdateDomainMapping)
		tenants.DELETE("/domains/:id", s.DeleteDomainMapping)
		tenants.GET("/admin-url", s.AdminURL)
	}

	api.POST("/handoff-hash/rotate", s.RotateHandoffHash)
}

// registerSiteRoutes installs the catch-all front-of-site path. The engine
// only decides where traffic belongs; the page itself is the platform's.
func (s *Server) registerSiteRoutes() {
	tenantCtx := s.TenantContext()
	canonical := s.CanonicalHost()

	s.engine.NoRoute(tenantCtx, canonical, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"host": c.Request.Host,
			"path": c.Request.URL.Path,
		})
	})
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.ListenAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func trimHandoffPrefix(path string) string {
	const prefix = "/handoff"
	return path[len(prefix):]
}
