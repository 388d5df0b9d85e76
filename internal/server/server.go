// Package server exposes the trade simulator over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	appconfig "tradesim/config"
	"tradesim/internal/marketdata"
	"tradesim/internal/simulator"
	"tradesim/logger"
)

// requiredParams are the request fields /api/simulate refuses to guess.
var requiredParams = []string{"exchange", "asset", "orderType", "quantity", "volatility", "feeTier"}

// Server wires the simulation endpoint, health check and middleware onto a
// gin engine.
type Server struct {
	cfg       *appconfig.Config
	sim       *simulator.Simulator
	cache     *marketdata.Cache
	connected func() bool
	httpSrv   *http.Server
	log       *logger.Log
}

// NewServer builds the HTTP server. connected reports feed connectivity for
// the health endpoint.
func NewServer(cfg *appconfig.Config, sim *simulator.Simulator, cache *marketdata.Cache, connected func() bool) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		sim:       sim,
		cache:     cache,
		connected: connected,
		log:       logger.GetLogger(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestID())
	engine.Use(s.rateLimit())

	engine.POST("/api/simulate", s.handleSimulate)
	engine.GET("/healthz", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving in the background and shuts down when ctx ends.
func (s *Server) Start(ctx context.Context) {
	log := s.log.WithComponent("http_server")
	go func() {
		log.WithField("address", s.cfg.Server.Address).Info("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http server shutdown error")
		} else {
			log.Info("http server stopped")
		}
	}()
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.Server.RequestsPerSecond), s.cfg.Server.Burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// simulateResponse is the simulation result plus the request round-trip time.
type simulateResponse struct {
	simulator.Result
	BackendRequestProcessingTimeMS float64 `json:"backendRequestProcessingTimeMs"`
}

func (s *Server) handleSimulate(c *gin.Context) {
	start := time.Now()
	log := s.log.WithComponent("http_server").WithFields(logger.Fields{
		"request_id": c.GetString("request_id"),
		"remote":     c.ClientIP(),
	})

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		log.WithError(err).Error("invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in request body"})
		return
	}

	for _, param := range requiredParams {
		if _, ok := body[param]; !ok {
			log.WithField("param", param).Error("missing required parameter")
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Missing required parameter: %s", param)})
			return
		}
	}

	req, err := buildRequest(body)
	if err != nil {
		log.WithError(err).Error("invalid request values")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.WithFields(logger.Fields{"asset": req.Asset, "quantity": req.QuantityUSD}).Info("received simulation request")
	result := s.sim.Simulate(req)

	c.JSON(http.StatusOK, simulateResponse{
		Result:                         result,
		BackendRequestProcessingTimeMS: float64(time.Since(start).Nanoseconds()) / 1e6,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"feedConnected": s.connected(),
		"symbols":       s.cache.SymbolCount(),
	})
}

// buildRequest coerces the loosely-typed request body into a simulation
// request. Numeric fields accept both JSON numbers and numeric strings.
func buildRequest(body map[string]any) (simulator.Request, error) {
	quantity, err := numericField(body, "quantity")
	if err != nil {
		return simulator.Request{}, err
	}
	volatility, err := numericField(body, "volatility")
	if err != nil {
		return simulator.Request{}, err
	}

	return simulator.Request{
		Exchange:    stringField(body, "exchange", "OKX"),
		Asset:       stringField(body, "asset", "BTC-USDT"),
		OrderType:   stringField(body, "orderType", "market"),
		QuantityUSD: quantity,
		Volatility:  volatility,
		FeeTier:     stringField(body, "feeTier", "VIP0"),
	}, nil
}

func stringField(body map[string]any, key, fallback string) string {
	if v, ok := body[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func numericField(body map[string]any, key string) (float64, error) {
	switch v := body[key].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s is not numeric", key)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %s is not numeric", key)
	}
}
