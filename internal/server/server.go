package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	alertdomain "github.com/saurav5380/apicompass/internal/alert/domain"
	auditdomain "github.com/saurav5380/apicompass/internal/audit/domain"
	budgetdomain "github.com/saurav5380/apicompass/internal/budget/domain"
	"github.com/saurav5380/apicompass/internal/clock"
	"github.com/saurav5380/apicompass/internal/config"
	connectiondomain "github.com/saurav5380/apicompass/internal/connection/domain"
	entitlementdomain "github.com/saurav5380/apicompass/internal/entitlement/domain"
	insightdomain "github.com/saurav5380/apicompass/internal/insight/domain"
	projectiondomain "github.com/saurav5380/apicompass/internal/projection/domain"
	"github.com/saurav5380/apicompass/internal/scheduler"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	genID          *snowflake.Node
	clock          clock.Clock
	usageSvc       usagedomain.Service
	projectionSvc  projectiondomain.Service
	budgetSvc      budgetdomain.Service
	alertSvc       alertdomain.Service
	insightSvc     insightdomain.Service
	entitlementSvc entitlementdomain.Service
	connRepo       connectiondomain.Repository
	auditSvc       auditdomain.Service
	claims         scheduler.ClaimStore
	sealer         *connectiondomain.AuthSealer
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	GenID          *snowflake.Node
	Clock          clock.Clock
	UsageSvc       usagedomain.Service
	ProjectionSvc  projectiondomain.Service
	BudgetSvc      budgetdomain.Service
	AlertSvc       alertdomain.Service
	InsightSvc     insightdomain.Service
	EntitlementSvc entitlementdomain.Service
	ConnRepo       connectiondomain.Repository
	AuditSvc       auditdomain.Service
	Claims         scheduler.ClaimStore `optional:"true"`
}

func NewServer(p ServerParams) (*Server, error) {
	sealer, err := connectiondomain.NewAuthSealer(p.Cfg.AuthEncryptionKey)
	if err != nil {
		return nil, err
	}

	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		genID:          p.GenID,
		clock:          p.Clock,
		usageSvc:       p.UsageSvc,
		projectionSvc:  p.ProjectionSvc,
		budgetSvc:      p.BudgetSvc,
		alertSvc:       p.AlertSvc,
		insightSvc:     p.InsightSvc,
		entitlementSvc: p.EntitlementSvc,
		connRepo:       p.ConnRepo,
		auditSvc:       p.AuditSvc,
		claims:         p.Claims,
		sealer:         sealer,
	}

	svc.registerAPIRoutes()

	return svc, nil
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.OrgContext())

	usage := api.Group("/usage")
	usage.POST("/ingest", s.IngestUsage)
	usage.GET("/projections", s.GetProjections)
	usage.GET("/tips", s.GetTips)

	metrics := api.Group("/metrics")
	metrics.GET("/overview", s.GetOverview)
	metrics.GET("/trends", s.GetTrends)

	budgets := api.Group("/budgets")
	budgets.GET("", s.ListBudgets)
	budgets.PUT("", s.UpsertBudget)
	budgets.DELETE("/:id", s.DeleteBudget)

	alerts := api.Group("/alerts")
	alerts.GET("/events", s.ListAlertEvents)

	connections := api.Group("/connections")
	connections.GET("", s.ListConnections)
	connections.POST("", s.CreateConnection)
	connections.DELETE("/:id", s.RevokeConnection)

	api.GET("/audit", s.ListAuditLogs)
}
