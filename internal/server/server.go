package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking"
	bookingdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/booking/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/catalog"
	catalogdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/catalog/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger"
	ledgerdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ledger/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/observability"
	obsmiddleware "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/observability/logger"
	obsmetrics "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/observability/metrics"
	obstracing "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/observability/tracing"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment"
	paymentdomain "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/payment/domain"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/pricing"
	"github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/ratelimit"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	catalog.Module,
	pricing.Module,
	booking.Module,
	ledger.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
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

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
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

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	catalogSvc catalogdomain.Catalog
	bookingSvc bookingdomain.Lifecycle
	paymentSvc paymentdomain.Orchestrator
	ledgerSvc  ledgerdomain.Ledger
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	CatalogSvc catalogdomain.Catalog
	BookingSvc bookingdomain.Lifecycle
	PaymentSvc paymentdomain.Orchestrator
	LedgerSvc  ledgerdomain.Ledger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		catalogSvc: p.CatalogSvc,
		bookingSvc: p.BookingSvc,
		paymentSvc: p.PaymentSvc,
		ledgerSvc:  p.LedgerSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Services --------
	api.GET("/services", s.ListServices)
	api.POST("/services", s.CreateService)
	api.GET("/services/:id", s.GetServiceByID)
	api.PATCH("/services/:id", s.UpdateService)
	api.POST("/services/:id/deactivate", s.DeactivateService)

	// -------- Bookings --------
	api.POST("/bookings", s.CreateBooking)
	api.GET("/bookings/:id", s.GetBookingStatus)
	api.POST("/bookings/:id/approve", s.ApproveBooking)
	api.POST("/bookings/:id/reject", s.RejectBooking)
	api.POST("/bookings/:id/start", s.StartBooking)
	api.POST("/bookings/:id/cancel", s.CancelBooking)

	// -------- Payments --------
	api.POST("/bookings/:id/payments/:phase", s.InitiateBookingPayment)
	api.GET("/bookings/:id/transactions", s.ListBookingTransactions)
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}
