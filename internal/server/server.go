package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	auditdomain "github.com/smallbiznis/mrpledger/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"github.com/smallbiznis/mrpledger/internal/config"
	inventorydomain "github.com/smallbiznis/mrpledger/internal/inventory/domain"
	monitordomain "github.com/smallbiznis/mrpledger/internal/monitor/domain"
	"github.com/smallbiznis/mrpledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/mrpledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mrpledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/mrpledger/internal/observability/tracing"
	"github.com/smallbiznis/mrpledger/internal/ratelimit"
	requirementdomain "github.com/smallbiznis/mrpledger/internal/requirement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	catalogSvc     catalogdomain.Service
	requirementSvc requirementdomain.Service
	inventorySvc   inventorydomain.Service
	alertSvc       alertdomain.Service
	monitorSvc     monitordomain.Service
	auditSvc       auditdomain.Service
	obsMetrics     *obsmetrics.Metrics
	limiter        *ratelimit.MutationLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	CatalogSvc     catalogdomain.Service
	RequirementSvc requirementdomain.Service
	InventorySvc   inventorydomain.Service
	AlertSvc       alertdomain.Service
	MonitorSvc     monitordomain.Service
	AuditSvc       auditdomain.Service        `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics        `optional:"true"`
	Limiter        *ratelimit.MutationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		catalogSvc:     p.CatalogSvc,
		requirementSvc: p.RequirementSvc,
		inventorySvc:   p.InventorySvc,
		alertSvc:       p.AlertSvc,
		monitorSvc:     p.MonitorSvc,
		auditSvc:       p.AuditSvc,
		obsMetrics:     p.ObsMetrics,
		limiter:        p.Limiter,
	}

	svc.registerHealthRoutes()
	svc.RegisterAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/healthz", s.Health)
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")
	write := s.MutationRateLimit()

	// -------- Catalog --------
	api.GET("/parts", s.ListParts)
	api.GET("/parts/:part_number", s.GetPart)

	// -------- Requirements --------
	api.POST("/schedules/:id/requirements/calculate", s.CalculateRequirements)
	api.POST("/schedules/:id/requirements", write, s.CreateMaterialRequirements)
	api.GET("/schedules/:id/requirements", s.ListRequirements)
	api.POST("/requirements/run", write, s.RunRequirements)
	api.POST("/requirements/allocate", s.AllocateAcrossSchedules)

	// -------- Inventory ledger --------
	api.POST("/schedules/:id/complete", write, s.CompleteSchedule)
	api.POST("/inventory/movements", write, s.RecordMovement)
	api.POST("/inventory/receipts", write, s.ReceiveInventory)
	api.POST("/inventory/:part_number/adjust", write, s.AdjustInventory)
	api.GET("/inventory/:part_number/history", s.GetInventoryHistory)
	api.GET("/inventory/:part_number/verify", s.VerifyLedger)

	// -------- Alerts --------
	api.GET("/alerts", s.ListAlerts)
	api.POST("/alerts", write, s.CreateAlert)
	api.GET("/alerts/:id", s.GetAlert)
	api.POST("/alerts/:id/resolve", write, s.ResolveAlert)
	api.POST("/alerts/:id/dismiss", write, s.DismissAlert)
	api.POST("/alerts/checks/cost-variance", write, s.CheckCostVariance)
	api.POST("/alerts/checks/quality", write, s.CheckQuality)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

func (s *Server) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{"status": status, "version": s.cfg.AppVersion})
}
