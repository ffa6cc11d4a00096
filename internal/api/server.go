package api

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ASKEROS1449/router-auto-connect/internal/config"
	"github.com/ASKEROS1449/router-auto-connect/internal/engine"
	"github.com/ASKEROS1449/router-auto-connect/internal/journal"
	"github.com/ASKEROS1449/router-auto-connect/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"
)

type Server struct {
	config      *config.Config
	engine      *engine.Engine
	journal     *journal.Manager
	metrics     *metrics.Collector
	router      *gin.Engine
	httpServer  *http.Server
	rateLimiter *RateLimiter
}

type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	rps := float64(requestsPerMinute) / 60.0
	burst := requestsPerMinute / 10 // Allow bursts
	if burst < 1 {
		// A zero burst rejects every request outright.
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = limiter

	return limiter
}

func NewServer(cfg *config.Config, eng *engine.Engine, journalMgr *journal.Manager,
	metricsCollector *metrics.Collector) *Server {

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:      cfg,
		engine:      eng,
		journal:     journalMgr,
		metrics:     metricsCollector,
		router:      router,
		rateLimiter: NewRateLimiter(cfg.API.RateLimitPerMinute),
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	// Public endpoints
	s.router.GET("/health", s.handleHealth)

	// Metrics endpoint (usually scraped by Prometheus)
	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Protected endpoints
	protected := s.router.Group("/")
	if s.config.API.EnableAPIKeyAuth {
		protected.Use(s.authMiddleware())
	}
	if s.config.API.EnableIPRateLimit {
		protected.Use(s.rateLimitMiddleware())
	}

	protected.POST("/v1/navigation-event", s.handleNavigationEvent)
	protected.GET("/stat", s.handleStat)
	protected.GET("/journal", s.handleJournal)
	protected.POST("/reload", s.handleReload)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.API.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.config.API.Addr)
	if err != nil {
		return err
	}
	if s.config.API.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.config.API.MaxConnections)
	}

	log.Infof("Starting API server on %s", s.config.API.Addr)
	return s.httpServer.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Middleware

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   statusCode,
			"duration": duration.Milliseconds(),
			"ip":       c.ClientIP(),
		}).Info("API request")
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		if s.metrics == nil {
			return
		}

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		s.metrics.RecordAPIRequest(method, path, status)
		s.metrics.RecordAPIDuration(method, path, duration)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	expectedKey := os.Getenv(s.config.API.APIKeyEnv)
	if expectedKey == "" {
		log.Warn("API key not set in environment, authentication disabled")
	}

	return func(c *gin.Context) {
		if expectedKey == "" {
			c.Next()
			return
		}

		// Check header first
		apiKey := c.GetHeader("X-Api-Key")
		if apiKey == "" {
			// Check query parameter
			apiKey = c.Query("key")
		}

		if apiKey != expectedKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or missing API key",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := s.rateLimiter.GetLimiter(ip)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Handlers

type navigationEventRequest struct {
	NavContext string `json:"nav_context" binding:"required"`
	URL        string `json:"url" binding:"required"`
	MainFrame  *bool  `json:"main_frame"`
}

type navigationEventResponse struct {
	Action    string `json:"action"`
	TargetURL string `json:"target_url,omitempty"`
	Reason    string `json:"reason"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// handleNavigationEvent is the host's onBeforeMainFrameNavigate hook:
// the delivered event comes in, a redirect command (or no-op) goes out.
func (s *Server) handleNavigationEvent(c *gin.Context) {
	var req navigationEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "nav_context and url are required",
		})
		return
	}

	mainFrame := true
	if req.MainFrame != nil {
		mainFrame = *req.MainFrame
	}

	decision := s.engine.HandleNavigation(c.Request.Context(), req.NavContext, req.URL, mainFrame)

	resp := navigationEventResponse{
		Action: "suppress",
		Reason: decision.Reason,
	}
	if decision.Redirect {
		resp.Action = "redirect"
		resp.TargetURL = decision.TargetURL
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStat(c *gin.Context) {
	stats := s.journal.GetStats()
	snap := s.journal.Get()

	response := gin.H{
		"total_events":     stats.TotalEvents,
		"total_redirects":  stats.TotalRedirects,
		"total_suppressed": stats.TotalSuppressed,
		"updated":          snap.Updated.Format(time.RFC3339),
	}
	if !stats.LastDecisionTime.IsZero() {
		response["last_decision"] = stats.LastDecisionTime.Format(time.RFC3339)
	}
	if len(stats.SuppressedByReason) > 0 {
		response["suppressed_by_reason"] = stats.SuppressedByReason
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleJournal(c *gin.Context) {
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid limit parameter",
			})
			return
		}
		limit = n
	}

	entries := s.journal.GetEntries(limit)
	c.JSON(http.StatusOK, gin.H{
		"total":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleReload(c *gin.Context) {
	log.Info("Manual config reload triggered via API")

	if err := s.config.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}
	// Reconfigure from a locked copy so a concurrent Reload cannot be
	// observed mid-swap.
	if err := s.engine.Reconfigure(s.config.Clone()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Config reloaded",
	})
}
