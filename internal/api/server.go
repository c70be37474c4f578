package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gamma-trading-bot/config"
	"gamma-trading-bot/internal/auth"
	"gamma-trading-bot/internal/cache"
	"gamma-trading-bot/internal/logging"
	"gamma-trading-bot/internal/touch"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// TrackerSource yields the touch tracker for a symbol, nil when the symbol
// is not configured
type TrackerSource func(symbol string) *touch.Tracker

// Server serves the analysis outputs over HTTP: cached market state and
// recommendations, level touch history, and manual touch entry for levels
// observed away from the tick stream.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	states      *cache.MarketStateCache
	trackers    TrackerSource
	jwtManager  *auth.JWTManager
	authCfg     config.AuthConfig
	rateLimiter *RateLimiter
	logger      *logging.Logger
	startedAt   time.Time
}

// NewServer creates the API server
func NewServer(cfg config.ServerConfig, authCfg config.AuthConfig, states *cache.MarketStateCache, trackers TrackerSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	switch cfg.AllowedOrigins {
	case "", "*":
		corsConfig.AllowAllOrigins = true
	default:
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		states:      states,
		trackers:    trackers,
		jwtManager:  auth.NewJWTManager(authCfg.JWTSecret, authCfg.AccessTokenDuration),
		authCfg:     authCfg,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logging.Default().WithComponent("api"),
		startedAt:   time.Now(),
	}
	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.POST("/api/v1/auth/login", s.rateLimit("login", 10), s.handleLogin)

	authed := s.router.Group("/api/v1")
	authed.Use(auth.Middleware(s.jwtManager))
	{
		authed.GET("/state/:symbol", s.handleState)
		authed.GET("/recommendation/:symbol", s.handleRecommendation)
		authed.GET("/exposure/:symbol", s.handleExposure)
		authed.GET("/levels/:symbol", s.handleLevels)
		authed.GET("/levels/:symbol/probability", s.handleProbability)
		authed.POST("/levels/:symbol/touches", s.handleRecordTouch)
		authed.POST("/levels/:symbol/outcomes", s.handleRecordOutcome)
	}
}

// rateLimit wraps one endpoint with its own request allowance
func (s *Server) rateLimit(key string, perMinute int) gin.HandlerFunc {
	limiter := NewRateLimiter(perMinute, time.Minute)
	return func(c *gin.Context) {
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Start runs the HTTP server until it fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("api server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
