package handlers

import (
	"net/http"
	"runtime"
	"time"

	"behavior-backend/internal/database"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var startedAt = time.Now()

// Health answers as long as the process serves requests.
func (h *Handler) Health(c *gin.Context) {
	respondOK(c, "ok", gin.H{"status": "UP", "service": "behavior-backend"})
}

// DetectorHealth proxies the Detector's health endpoint.
func (h *Handler) DetectorHealth(c *gin.Context) {
	body, err := h.Detector.Health(c.Request.Context())
	if err != nil {
		h.logger.Warn("detector health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    http.StatusServiceUnavailable,
			"message": "Detector unavailable",
			"error":   err.Error(),
		})
		return
	}
	respondOK(c, "ok", gin.H{"status": "UP", "detector": body})
}

// Status reports the database and Detector state together.
func (h *Handler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "UP"
	if err := database.Ping(ctx, h.DB); err != nil {
		h.logger.Warn("database ping failed", zap.Error(err))
		dbStatus = "DOWN"
	}
	detectorStatus := "UP"
	if _, err := h.Detector.Health(ctx); err != nil {
		detectorStatus = "DOWN"
	}

	overall := "UP"
	if dbStatus != "UP" || detectorStatus != "UP" {
		overall = "DEGRADED"
	}
	respondOK(c, "ok", gin.H{
		"status":     overall,
		"database":   dbStatus,
		"detector":   detectorStatus,
		"uptime":     time.Since(startedAt).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
	})
}
