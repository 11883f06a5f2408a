// Package handlers exposes the HTTP API with gin.
package handlers

import (
	"path/filepath"
	"strings"
	"time"

	"behavior-backend/internal/alerts"
	"behavior-backend/internal/auth"
	"behavior-backend/internal/detector"
	"behavior-backend/internal/dispatcher"
	"behavior-backend/internal/logger"
	"behavior-backend/internal/notify"
	"behavior-backend/internal/stats"
	"behavior-backend/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	DB         *gorm.DB
	Users      *store.UserStore
	Records    *store.RecordStore
	Zones      *store.ZoneStore
	Dispatcher *dispatcher.Dispatcher
	Alerts     *alerts.Pipeline
	Stats      *stats.Aggregator
	Detector   *detector.Client
	Issuer     *auth.Issuer
	Gate       *auth.Gate
	WS         *notify.WSHandler

	APIBasePath    string
	UploadDir      string
	AssetDir       string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Handler holds the dependencies shared by every route.
type Handler struct {
	Deps
	logger *zap.Logger
}

// NewRouter builds the engine with CORS, request logging and the token gate
// in front of every route.
func NewRouter(d Deps) *gin.Engine {
	h := &Handler{Deps: d, logger: d.Logger.With(zap.String("component", "http"))}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(d.Logger))
	r.Use(cors.New(corsConfig(d.AllowedOrigins)))
	r.Use(d.Gate.Middleware())

	api := r.Group("/" + strings.Trim(d.APIBasePath, "/"))

	// public
	api.POST("/auth/login", h.Login)
	api.GET("/auth/validate", h.ValidateToken)
	api.GET("/health", h.Health)
	api.GET("/health/detector", h.DetectorHealth)
	api.GET("/health/status", h.Status)
	api.Static("/visualizations", filepath.Join(d.AssetDir, "visualizations"))
	api.Static("/snapshots", filepath.Join(d.AssetDir, "snapshots"))

	protected := api.Group("")
	protected.Use(auth.RequireIdentity())

	detections := protected.Group("/detections")
	detections.POST("/upload", h.UploadDetection)
	detections.GET("/user/:userId", h.ListDetections)
	detections.GET("/statistics/global", h.GlobalStatistics)
	detections.GET("/statistics/:userId", h.UserStatistics)
	detections.GET("/export/:userId", h.ExportDetections)
	detections.DELETE("/batch", h.BatchDeleteDetections)
	detections.GET("/:id", h.GetDetection)
	detections.GET("/:id/behaviors", h.GetBehaviors)
	detections.DELETE("/:id", h.DeleteDetection)

	alertGroup := protected.Group("/alerts")
	alertGroup.POST("/notify", h.NotifyAlert)
	alertGroup.GET("/user/:userId", h.ListAlerts)
	alertGroup.GET("/user/:userId/unhandled", h.UnhandledAlerts)
	alertGroup.GET("/user/:userId/range", h.AlertsInRange)
	alertGroup.GET("/user/:userId/unread-count", h.UnreadCount)
	alertGroup.PUT("/user/:userId/read-all", h.MarkAllRead)
	alertGroup.GET("/statistics/:userId", h.AlertStatistics)
	alertGroup.GET("/export/:userId", h.ExportAlerts)
	alertGroup.DELETE("/batch", h.BatchDeleteAlerts)
	alertGroup.PUT("/:id/handle", h.HandleAlert)
	alertGroup.PUT("/:id/read", h.MarkAlertRead)
	alertGroup.DELETE("/:id", h.DeleteAlert)

	zones := protected.Group("/zones")
	zones.POST("", h.CreateZone)
	zones.GET("/user/:userId", h.ListZones)
	zones.GET("/user/:userId/active", h.ListActiveZones)
	zones.GET("/:id", h.GetZone)
	zones.PUT("/:id", h.UpdateZone)
	zones.PUT("/:id/toggle", h.ToggleZone)
	zones.DELETE("/:id", h.DeleteZone)

	if d.WS != nil {
		// the handler resolves identity itself so a token query parameter works
		api.GET("/ws", d.WS.Handle)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowOriginFunc = func(string) bool { return true }
			return cfg
		}
	}
	if len(origins) == 0 {
		// cors rejects an empty allow-list, so refuse every cross-origin request explicitly
		cfg.AllowOriginFunc = func(string) bool { return false }
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// callerOwner returns the owner id of the authenticated caller.
func callerOwner(c *gin.Context) uint {
	id, _ := auth.IdentityFrom(c)
	return id.OwnerID
}

func callerSubject(c *gin.Context) string {
	id, _ := auth.IdentityFrom(c)
	return id.Subject
}
