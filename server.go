package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/kitchen_backend/config"
	"github.com/mmdatafocus/kitchen_backend/fanout"
	"github.com/mmdatafocus/kitchen_backend/middlewares"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/payment"
	"github.com/mmdatafocus/kitchen_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPort = "4000"
	serviceName = "kitchen-backend"
)

type application struct {
	Engine  *workflow.OrderEngine
	Fanout  *fanout.Router
	Logger  *logrus.Logger
	DB      func() *gorm.DB
	Redis   func() *redis.Client
	Origins []string

	ready atomic.Bool
}

// checkOrigin applies the CORS allowlist to websocket upgrades.
func (app *application) checkOrigin(r *http.Request) bool {
	if len(app.Origins) == 0 {
		return !config.IsProduction()
	}
	origin := r.Header.Get("Origin")
	for _, o := range app.Origins {
		if o == origin {
			return true
		}
	}
	return false
}

func (app *application) routes() *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())

	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/health", health)
	r.GET("/healthz", health)

	// Until dependencies are wired every other route answers 503.
	r.Use(func(c *gin.Context) {
		if !app.ready.Load() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service starting"})
			return
		}
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	if config.IsProduction() {
		if len(app.Origins) == 0 {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowOrigins = app.Origins
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PATCH", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	if rl := rateLimiterFromEnv(app.Redis()); rl != nil {
		r.Use(rl.RateLimitMiddleware)
	}
	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(app.Logger))
	r.Use(gin.Recovery())

	staff := middlewares.RequireRole(models.UserRoleAdmin, models.UserRoleStaff)
	admin := middlewares.RequireRole(models.UserRoleAdmin)

	api := r.Group("/api")
	{
		api.POST("/orders", createOrderHandler(app.Engine))
		api.GET("/orders", getOrdersHandler(app.Engine))
		api.POST("/orders/:id/verify-payment", verifyPaymentHandler(app.Engine))
		api.PATCH("/orders/:id/status", staff, updateOrderStatusHandler(app.Engine))
		api.PATCH("/orders/:id/payment-status", staff, updatePaymentStatusHandler(app.Engine))

		inventory := api.Group("/inventory", staff)
		inventory.GET("/low-stock", lowStockHandler(app.Engine))
		inventory.POST("/bulk-update", bulkUpdateStockHandler(app.Engine))
		inventory.GET("/history/:productId", stockHistoryHandler(app.Engine))
		inventory.GET("/history/:productId/export", stockHistoryExportHandler(app.Engine))

		api.GET("/admin/stats", admin, orderStatsHandler(app.Engine))
	}
	r.POST("/internal/ops/outbox/replay", admin, func(c *gin.Context) { outboxReplayHandler(app.DB())(c) })

	ws := fanout.NewHandler(app.Fanout, app.Logger, app.checkOrigin)
	r.GET("/ws", gin.WrapH(ws))

	r.NoRoute(customNotFoundHandler)
	return r
}

// rateLimiterFromEnv builds the optional per-IP limiter.
// RATE_LIMIT_ENABLED=true, RATE_LIMIT_MAX_REQUESTS (600), RATE_LIMIT_WINDOW_SECONDS (60).
func rateLimiterFromEnv(client *redis.Client) *middlewares.RateLimiter {
	if client == nil || !strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		return nil
	}
	limit := int64(600)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	windowSec := int64(60)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			windowSec = n
		}
	}
	return middlewares.NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
}

func newPaymentGateway(logger *logrus.Logger) payment.Gateway {
	if config.PaymentGatewayName() != "STRIPE" || config.StripeSecretKey() == "" {
		logger.WithFields(logrus.Fields{"field": "payment"}).Warn("no payment gateway configured; only CASH orders are accepted")
		return nil
	}
	return payment.NewStripeGateway(config.StripeAPIURL(), config.StripeSecretKey())
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	shutdownTracer, err := config.InitTracer(sigCtx, serviceName)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "telemetry"}).Warn("tracing disabled: " + err.Error())
	}

	router := fanout.NewRouter(logger)
	app := &application{
		Fanout:  router,
		Logger:  logger,
		DB:      config.GetDB,
		Redis:   config.GetRedisDB,
		Origins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
	// Filled in once the database is up; the readiness gate covers the gap.
	app.Engine = &workflow.OrderEngine{}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: app.routes(),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	workers, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	if rdb := config.GetRedisDB(); rdb != nil {
		relay := fanout.NewRedisRelay(rdb, config.FanoutRedisChannel(), router, logger)
		router.SetRelay(relay)
		go func() {
			if err := relay.Run(workers); err != nil && workers.Err() == nil {
				logger.WithFields(logrus.Fields{"field": "fanout"}).Error("redis relay stopped: " + err.Error())
			}
		}()
	}

	engine := workflow.NewOrderEngine(db, newPaymentGateway(logger), router, logger)
	engine.Locker = config.GetRedisLock()
	*app.Engine = *engine

	var eventPublisher *config.OrderEventPublisher
	if topic := config.OrderEventsTopic(); topic != "" {
		client, err := config.GetPubSubClient(workers)
		if err == nil {
			eventPublisher, err = config.NewOrderEventPublisher(workers, client, topic)
		}
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "outbox"}).Error("order events stay queued; publisher unavailable: " + err.Error())
		} else {
			go workflow.NewOutboxDispatcher(db, eventPublisher, logger).Run(workers)
		}
	}

	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := min(time.Second*time.Duration(1<<min(attempt, 5)), 30*time.Second)
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	app.ready.Store(true)
	logger.WithFields(logrus.Fields{"info": "Connection Established"}).Info("listening on :", port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelWorkers()
	if eventPublisher != nil {
		eventPublisher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(shutdownCtx)
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
