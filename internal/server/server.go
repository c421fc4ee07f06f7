// Package server exposes the scoring pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/sievehq/sieve/internal/audit/domain"
	"github.com/sievehq/sieve/internal/casemgr"
	"github.com/sievehq/sieve/internal/config"
	"github.com/sievehq/sieve/internal/decision"
	obsmetrics "github.com/sievehq/sieve/internal/observability/metrics"
	"github.com/sievehq/sieve/internal/ratelimit"
	scoringdomain "github.com/sievehq/sieve/internal/scoring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type ServerParam struct {
	fx.In

	Engine    *gin.Engine
	Config    config.Config
	Log       *zap.Logger
	Scoring   scoringdomain.Service
	Decisions *decision.Service
	Cases     *casemgr.Service
	Audit     auditdomain.Service
	Limiter   *ratelimit.ScoreLimiter `optional:"true"`
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	scoring   scoringdomain.Service
	decisions *decision.Service
	cases     *casemgr.Service
	audit     auditdomain.Service
	limiter   *ratelimit.ScoreLimiter
}

func NewServer(p ServerParam) *Server {
	s := &Server{
		engine:    p.Engine,
		cfg:       p.Config,
		log:       p.Log.Named("http.server"),
		scoring:   p.Scoring,
		decisions: p.Decisions,
		cases:     p.Cases,
		audit:     p.Audit,
		limiter:   p.Limiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	authed := s.engine.Group("/", s.AuthRequired())

	authed.POST("/scoreInvoice", s.limiter.Middleware(), s.scoreInvoice)
	authed.GET("/invoice/:invoice_id/decision", s.getDecision)
	authed.POST("/case/:case_id/disposition", s.disposeCase)
	authed.GET("/audit", s.listAudit)
}
