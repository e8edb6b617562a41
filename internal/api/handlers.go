package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"market-advisor-bot/internal/factors"
)

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := gin.H{}

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			status = "degraded"
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}
	checks["monitor"] = map[bool]string{true: "running", false: "stopped"}[s.monitor.IsRunning()]

	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"uptime":  time.Since(s.startedAt).String(),
		"checks":  checks,
		"clients": s.hub.GetClientCount(),
	})
}

// handleStatus returns the monitor's cycle status
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Status())
}

// handleRecommendation returns the most recent recommendation
func (s *Server) handleRecommendation(c *gin.Context) {
	rec := s.state.Latest()
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recommendation yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recommendation": rec,
		"signal":         rec.Signal.String(),
	})
}

// handleFeatureSet returns the factors behind the latest recommendation
func (s *Server) handleFeatureSet(c *gin.Context) {
	fs, ok := s.state.Features()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no feature set yet"})
		return
	}

	out := make([]gin.H, 0, factors.NumKinds)
	for k := factors.Kind(0); k < factors.NumKinds; k++ {
		f := fs.Factor(k)
		entry := gin.H{
			"kind":      k.String(),
			"name":      f.Name,
			"available": f.Available,
			"direction": f.Direction.String(),
			"evidence":  f.Evidence,
		}
		if f.Available {
			entry["value"] = f.Value
		}
		if f.Prices != nil {
			entry["prices"] = f.Prices
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"captured_at": fs.CapturedAt,
		"factors":     out,
	})
}

// handleHistory returns recent recommendation history from the database
func (s *Server) handleHistory(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history persistence is disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	records, err := s.repo.GetRecentRecommendations(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"history": records,
	})
}

// handleSources returns per-source circuit breaker state for the data feeds
func (s *Server) handleSources(c *gin.Context) {
	if s.sources == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no data client attached"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": s.sources.SourceStats(),
	})
}
