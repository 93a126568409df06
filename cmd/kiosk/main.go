package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shc-library/kiosk-agent/config"
	"github.com/shc-library/kiosk-agent/internal/cache"
	"github.com/shc-library/kiosk-agent/internal/handlers"
	"github.com/shc-library/kiosk-agent/internal/libraryapi"
	"github.com/shc-library/kiosk-agent/internal/middleware"
	"github.com/shc-library/kiosk-agent/internal/services"
	"github.com/shc-library/kiosk-agent/pkg/httpclient"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"github.com/shc-library/kiosk-agent/pkg/metrics"
	"github.com/shc-library/kiosk-agent/pkg/notifier"
	"github.com/shc-library/kiosk-agent/pkg/profiling"
	"github.com/shc-library/kiosk-agent/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// registerKioskRoutes registers the routes the kiosk front-end drives
func registerKioskRoutes(
	group *gin.RouterGroup,
	generalRateLimiter, flowRateLimiter *middleware.RateLimiter,
	flowHandler *handlers.FlowHandler,
	connectionHandler *handlers.ConnectionHandler,
	activityHandler *handlers.ActivityHandler,
	logsHandler *handlers.LogsHandler,
) {
	flowGroup := group.Group("", flowRateLimiter.Middleware(), middleware.BodySizeLimitMiddleware(16*1024))
	flowHandler.RegisterRoutes(flowGroup)

	group.GET("/connection", generalRateLimiter.Middleware(), connectionHandler.GetStatus)
	group.POST("/connection/check", flowRateLimiter.Middleware(), connectionHandler.Check)
	group.GET("/activity", generalRateLimiter.Middleware(), activityHandler.GetRecent)
	group.POST("/logs", generalRateLimiter.Middleware(), middleware.BodySizeLimitMiddleware(middleware.DefaultMaxBodySize), logsHandler.ReceiveFrontendLogs)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting library kiosk agent",
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Server.AppEnv),
		zap.String("kiosk_id", cfg.Kiosk.ID),
		zap.String("library_api", cfg.LibraryAPI.BaseURL),
	)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize distributed tracing
	tracerShutdown, err := tracing.InitTracer(cfg.Observability, cfg.Server.AppEnv)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(ctx); shutdownErr != nil {
			logger.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	// Continuous profiling is opt-in
	stopProfiler, err := profiling.InitProfiler(cfg.Profiling, cfg.Observability, cfg.Server.AppEnv)
	if err != nil {
		logger.Error("Failed to start profiler, continuing without it", zap.Error(err))
	} else {
		defer stopProfiler()
	}

	metrics.RecordInfrastructureMetrics(rootCtx)

	// Library API client, shared by every component
	libraryClient, err := libraryapi.NewClient(cfg.LibraryAPI.BaseURL, httpclient.NewStandardClient(), cfg.LibraryAPITimeout())
	if err != nil {
		logger.Fatal("Failed to create library API client", zap.Error(err))
	}

	// Successful toggles feed the activity cache and, if configured, the MQTT broadcast
	activityCache := cache.NewActivityCache(cfg.ActivityTTL())
	listeners := []services.ToggleListener{activityCache.Record}

	if cfg.MQTT.BrokerURL != "" {
		mqttNotifier, mqttErr := notifier.NewMQTTNotifier(rootCtx, cfg.MQTT, cfg.Kiosk.ID)
		if mqttErr != nil {
			logger.Error("MQTT broadcast disabled", zap.Error(mqttErr))
		} else {
			defer mqttNotifier.Close()
			listeners = append(listeners, mqttNotifier.Notify)
			logger.Info("Broadcasting sign-in/out events", zap.String("topic", mqttNotifier.Topic()))
		}
	}

	signInFlow := services.NewSignInFlow(libraryClient, cfg.Kiosk.ID, listeners...)

	connectionMonitor := services.NewConnectionMonitor(libraryClient, cfg.ConnectionCheckInterval())
	connectionMonitor.Start(rootCtx)
	defer connectionMonitor.Stop()

	// Initialize handlers
	var shuttingDown atomic.Bool
	healthHandler := handlers.NewHealthHandler(func() bool { return !shuttingDown.Load() })
	flowHandler := handlers.NewFlowHandler(signInFlow)
	connectionHandler := handlers.NewConnectionHandler(connectionMonitor)
	activityHandler := handlers.NewActivityHandler(activityCache)
	logsHandler := handlers.NewLogsHandler(cfg.Logging.Dir)
	defer func() {
		if closeErr := logsHandler.Close(); closeErr != nil {
			logger.Error("Failed to close kiosk UI log", zap.Error(closeErr))
		}
	}()

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	router.Use(middleware.ObservabilityMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// The kiosk UI is served from its own origin on the same device
	allowedOrigins := cfg.Server.AllowedOrigins
	if cfg.IsDevelopment() {
		allowedOrigins = append(allowedOrigins, "http://localhost:8081", "http://127.0.0.1:8081", "http://localhost:19006")
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "traceparent", "tracestate"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	// Flow actions are human-paced; anything faster is a stuck key or a script
	generalRateLimiter := middleware.NewRateLimiter(rootCtx, 50, 100)
	flowRateLimiter := middleware.NewRateLimiter(rootCtx, 5, 10)

	// Operational endpoints
	api := router.Group("/api")
	api.GET("/healthcheck", generalRateLimiter.Middleware(), healthHandler.Healthcheck)
	api.GET("/metrics", generalRateLimiter.Middleware(), gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	registerKioskRoutes(v1, generalRateLimiter, flowRateLimiter, flowHandler, connectionHandler, activityHandler, logsHandler)

	if cfg.DiagnosticsEnabled() {
		diagnostics := services.NewDiagnosticsService(libraryClient, cfg.LibraryAPI.BaseURL, cfg.Kiosk.DiagnosticsStudentID)
		handlers.NewDiagnosticsHandler(diagnostics, gin.H{
			"kioskId":                 cfg.Kiosk.ID,
			"baseUrl":                 cfg.LibraryAPI.BaseURL,
			"timeoutMs":               cfg.LibraryAPITimeout().Milliseconds(),
			"connectionCheckInterval": cfg.ConnectionCheckInterval().String(),
			"diagnosticsStudentId":    cfg.Kiosk.DiagnosticsStudentID,
			"environment":             cfg.Server.AppEnv,
		}).RegisterRoutes(v1.Group("", flowRateLimiter.Middleware()))
		logger.Warn("Diagnostics endpoints enabled", zap.String("student_id", cfg.Kiosk.DiagnosticsStudentID))
	}

	// Create HTTP server; WriteTimeout leaves room for a status lookup plus a toggle
	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2*cfg.LibraryAPITimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shuttingDown.Store(true)

	// A submission in flight can take a full client timeout to finish
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LibraryAPITimeout()+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
