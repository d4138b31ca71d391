// Package server wires configuration, storage, and services into the
// sentinel HTTP API.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/nmelo/sentinel/internal/advisor"
	"github.com/nmelo/sentinel/internal/appeals"
	"github.com/nmelo/sentinel/internal/auth"
	"github.com/nmelo/sentinel/internal/config"
	"github.com/nmelo/sentinel/internal/fraud"
	"github.com/nmelo/sentinel/internal/health"
	"github.com/nmelo/sentinel/internal/logging"
	"github.com/nmelo/sentinel/internal/metrics"
	"github.com/nmelo/sentinel/internal/ratelimit"
	"github.com/nmelo/sentinel/internal/realtime"
	"github.com/nmelo/sentinel/internal/security"
	"github.com/nmelo/sentinel/internal/traces"
	"github.com/nmelo/sentinel/internal/validation"
	"github.com/nmelo/sentinel/internal/verify"
	"github.com/nmelo/sentinel/internal/wallet"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	wallet      *wallet.Service
	fraud       *fraud.Service
	fraudTimer  *fraud.Timer
	appeals     *appeals.Service
	verify      *verify.Service
	authMgr     *auth.Manager
	authHandler *auth.Handler
	realtimeHub *realtime.Hub
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry

	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	shutdownTraces func(context.Context) error
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		fraudStore  fraud.Store
		walletStore wallet.Store
		appealStore appeals.Store
		authStore   auth.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		fraudStore = fraud.NewPostgresStore(db)
		walletStore = wallet.NewPostgresStore(db)
		appealStore = appeals.NewPostgresStore(db)
		authStore = auth.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		fraudStore = fraud.NewMemoryStore()
		walletStore = wallet.NewMemoryStore()
		appealStore = appeals.NewMemoryStore()
		authStore = auth.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.wallet = wallet.NewService(walletStore)
	s.authMgr = auth.NewManager(authStore)
	s.authHandler = auth.NewHandler(s.authMgr)
	s.realtimeHub = realtime.NewHub(s.logger)

	// Advisory adapter. Stays disabled unless explicitly configured, so
	// decisions fall back to rules-only scoring.
	adapter := advisor.Disabled()
	if cfg.AdvisorEnabled {
		// Development allows localhost advisors; production does not.
		if cfg.IsProduction() {
			if err := security.ValidateEndpointURL(cfg.AdvisorURL); err != nil {
				return nil, fmt.Errorf("advisor URL rejected: %w", err)
			}
		}
		advOpts := []advisor.Option{advisor.WithTimeout(cfg.AdvisorTimeout)}
		if cfg.AdvisorBudget > 0 {
			advOpts = append(advOpts, advisor.WithBudget(ratelimit.New(ratelimit.Config{
				RequestsPerMinute: cfg.AdvisorBudget,
				BurstSize:         cfg.AdvisorBudget,
				CleanupInterval:   time.Minute,
			})))
		}
		adapter = advisor.NewHTTPAdapter(cfg.AdvisorURL, cfg.AdvisorAPIKey, s.logger, advOpts...)
		s.logger.Info("advisory service enabled",
			"url", advisorHost(cfg.AdvisorURL),
			"timeout", cfg.AdvisorTimeout,
		)
	}

	s.fraud = fraud.NewService(fraudStore, s.wallet, s.logger,
		fraud.WithHoldingPeriod(cfg.HoldingPeriod),
		fraud.WithAdvisor(adapter),
		fraud.WithNotifier(s.realtimeHub),
	)
	s.fraudTimer = fraud.NewTimer(s.fraud, cfg.TimerInterval, s.logger)
	s.appeals = appeals.NewService(appealStore, s.fraud, s.logger)
	s.verify = verify.NewService(fraudStore, s.logger, verify.TrustConfig{HalfLife: cfg.TrustHalfLife})

	s.setupHealthChecks()

	// Setup router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// setupHealthChecks registers subsystem probes used by /healthz.
func (s *Server) setupHealthChecks() {
	s.checks = health.NewRegistry()

	if s.db != nil {
		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	s.checks.Register("wallet", func(ctx context.Context) health.Status {
		if _, err := s.wallet.Balance(ctx, wallet.SuspenseAccount); err != nil {
			return health.Status{Name: "wallet", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "wallet", Healthy: true}
	})
}

// maskDSN hides credentials in a database URL for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "(unparseable)"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.Redacted()
}

// advisorHost returns just the host portion of the advisor URL for logging,
// keeping any path-embedded tokens out of log output.
func advisorHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "(unparseable)"
	}
	return u.Host
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPS * 60,
		BurstSize:         s.cfg.RateLimitRPS,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/livez", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Live decision feed page
	s.router.GET("/feed", feedPageHandler)

	// WebSocket for real-time decision streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :id URL params on all v1 routes (no-op when param absent).
	// User IDs and generated resource IDs share the same character set.
	v1.Use(validation.UserIDParamMiddleware("id"))

	// Public API info
	v1.GET("/", s.infoHandler)
	v1.GET("/auth/info", s.authHandler.Info)

	// Authenticated routes
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr))
	protected.Use(auth.RequireAuth(s.authMgr))

	s.fraud.RegisterRoutes(protected)
	s.appeals.RegisterRoutes(protected)
	s.verify.RegisterRoutes(protected)

	// API key management
	protected.GET("/auth/keys", s.authHandler.ListKeys)
	protected.POST("/auth/keys", s.authHandler.CreateKey)
	protected.DELETE("/auth/keys/:id", s.authHandler.RevokeKey)
	protected.GET("/auth/me", s.authHandler.GetCurrentUser)

	// Wallet introspection for the authenticated user
	protected.GET("/wallet/balance", s.walletBalanceHandler)
	protected.GET("/wallet/history", s.walletHistoryHandler)

	// Admin routes
	admin := v1.Group("/admin")
	admin.Use(auth.Middleware(s.authMgr))
	admin.Use(auth.RequireAdmin(s.authMgr))

	s.fraud.RegisterAdminRoutes(admin)
	s.appeals.RegisterAdminRoutes(admin)
	s.verify.RegisterAdminRoutes(admin)

	admin.GET("/realtime/stats", s.realtimeStatsHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse is the /healthz payload
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Sentinel",
		"description": "Real-time fraud risk decisioning for payment transactions",
		"version":     "0.1.0",
	})
}

func (s *Server) walletBalanceHandler(c *gin.Context) {
	ctx := c.Request.Context()
	userID := auth.UserID(c)

	balance, err := s.wallet.Balance(ctx, userID)
	if err != nil {
		logging.L(ctx).Error("failed to get balance", "error", err, "user", userID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve wallet balance",
		})
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (s *Server) walletHistoryHandler(c *gin.Context) {
	ctx := c.Request.Context()
	userID := auth.UserID(c)

	entries, err := s.wallet.History(ctx, userID, 100)
	if err != nil {
		logging.L(ctx).Error("failed to get wallet history", "error", err, "user", userID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "history_error",
			"message": "Failed to retrieve wallet history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  userID,
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) realtimeStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when OTLP endpoint unset)
	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Error("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start auto-approval timer
	s.fraudTimer.Start()

	// Database metrics collector
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop auto-approval timer
	s.fraudTimer.Stop()
	s.logger.Info("auto-approval timer stopped")

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
