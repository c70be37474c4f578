package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gamma-trading-bot/internal/auth"
	"gamma-trading-bot/internal/touch"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if req.Username != s.authCfg.OperatorUser || !auth.VerifyPassword(s.authCfg.OperatorPassword, req.Password) {
		s.logger.Warn("failed login attempt", "username", req.Username, "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidCredentials.Error()})
		return
	}

	token, err := s.jwtManager.GenerateToken(auth.OperatorClaims{Username: req.Username})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, auth.LoginResponse{
		AccessToken: token,
		ExpiresIn:   s.jwtManager.TokenDuration(),
		TokenType:   "Bearer",
	})
}

func (s *Server) handleState(c *gin.Context) {
	symbol := c.Param("symbol")
	state := s.states.State(c.Request.Context(), symbol)
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis available for " + symbol})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleRecommendation(c *gin.Context) {
	symbol := c.Param("symbol")
	rec := s.states.Recommendation(c.Request.Context(), symbol)
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recommendation available for " + symbol})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleExposure(c *gin.Context) {
	symbol := c.Param("symbol")
	state := s.states.State(c.Request.Context(), symbol)
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis available for " + symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":     state.Symbol,
		"timestamp":  state.Timestamp,
		"price":      state.UnderlyingPrice,
		"exposure":   state.Exposure,
		"key_levels": state.KeyLevels,
	})
}

func (s *Server) handleLevels(c *gin.Context) {
	symbol := c.Param("symbol")
	tracker := s.trackers(symbol)
	if tracker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
		return
	}

	ctx := c.Request.Context()
	levels, err := tracker.Levels(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stats := make([]*touch.LevelStats, 0, len(levels))
	for _, lvl := range levels {
		st, err := tracker.Stats(ctx, lvl)
		if err != nil || st == nil {
			continue
		}
		stats = append(stats, st)
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "levels": stats})
}

func (s *Server) handleProbability(c *gin.Context) {
	symbol := c.Param("symbol")
	tracker := s.trackers(symbol)
	if tracker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
		return
	}

	level, err := strconv.ParseFloat(c.Query("level"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "level query parameter required"})
		return
	}

	prob, err := tracker.ProbabilityOf(c.Request.Context(), level)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prob)
}

type recordTouchRequest struct {
	Level           float64 `json:"level" binding:"required"`
	Price           float64 `json:"price" binding:"required"`
	VolumeConfirmed bool    `json:"volume_confirmed"`
}

// handleRecordTouch lets the operator log a touch seen off-stream, e.g. from
// a chart during an outage
func (s *Server) handleRecordTouch(c *gin.Context) {
	symbol := c.Param("symbol")
	tracker := s.trackers(symbol)
	if tracker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
		return
	}

	var req recordTouchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := tracker.RecordTouch(c.Request.Context(), req.Price, req.Level, req.VolumeConfirmed, "")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, event)
}

type recordOutcomeRequest struct {
	Level          float64 `json:"level" binding:"required"`
	Held           *bool   `json:"held" binding:"required"`
	SubsequentMove float64 `json:"subsequent_move"`
}

func (s *Server) handleRecordOutcome(c *gin.Context) {
	symbol := c.Param("symbol")
	tracker := s.trackers(symbol)
	if tracker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
		return
	}

	var req recordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := tracker.RecordOutcome(c.Request.Context(), req.Level, *req.Held, req.SubsequentMove)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, touch.ErrNoTouchHistory) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
