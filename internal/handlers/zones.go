package handlers

import (
	"encoding/json"
	"strings"

	"behavior-backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

var zoneShapes = map[string]bool{"RECTANGLE": true, "POLYGON": true, "CIRCLE": true}

// ZoneRequest creates or replaces a detection zone. Omitted flags default to
// true and an omitted level to MEDIUM on create; on update they keep their value.
type ZoneRequest struct {
	UserID      uint            `json:"user_id"`
	ZoneName    string          `json:"zone_name" binding:"required"`
	ZoneType    string          `json:"zone_type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Shape       string          `json:"shape"`
	IsActive    *bool           `json:"is_active"`
	EnableAlert *bool           `json:"enable_alert"`
	AlertLevel  string          `json:"alert_level"`
	Description string          `json:"description"`
	CameraID    string          `json:"camera_id"`
	ImageWidth  *int            `json:"image_width"`
	ImageHeight *int            `json:"image_height"`
}

// apply copies the request onto z, returning a message when a field is invalid.
func (r *ZoneRequest) apply(z *models.DetectionZone) string {
	shape := strings.ToUpper(strings.TrimSpace(r.Shape))
	if shape != "" && !zoneShapes[shape] {
		return "shape must be one of RECTANGLE, POLYGON, CIRCLE"
	}
	level := strings.ToUpper(strings.TrimSpace(r.AlertLevel))
	if level != "" && !models.ValidAlertLevel(level) {
		return "alert_level must be one of LOW, MEDIUM, HIGH, CRITICAL"
	}
	if len(r.Coordinates) > 0 && !json.Valid(r.Coordinates) {
		return "coordinates must be valid JSON"
	}

	z.ZoneName = strings.TrimSpace(r.ZoneName)
	z.ZoneType = strings.ToUpper(strings.TrimSpace(r.ZoneType))
	z.Shape = shape
	if level != "" {
		z.AlertLevel = level
	}
	z.Description = r.Description
	z.CameraID = r.CameraID
	z.ImageWidth = r.ImageWidth
	z.ImageHeight = r.ImageHeight
	if len(r.Coordinates) > 0 {
		z.Coordinates = datatypes.JSON(r.Coordinates)
	}
	if r.IsActive != nil {
		z.IsActive = *r.IsActive
	}
	if r.EnableAlert != nil {
		z.EnableAlert = *r.EnableAlert
	}
	return ""
}

// CreateZone adds a zone for user_id, or for the caller when omitted.
func (h *Handler) CreateZone(c *gin.Context) {
	var req ZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	z := &models.DetectionZone{UserID: req.UserID, IsActive: true, EnableAlert: true, AlertLevel: models.LevelMedium}
	if z.UserID == 0 {
		z.UserID = callerOwner(c)
	}
	if z.UserID == 0 {
		badRequest(c, "user_id is required")
		return
	}
	if msg := req.apply(z); msg != "" {
		badRequest(c, msg)
		return
	}
	if err := h.Zones.Create(c.Request.Context(), z); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Zone created", z)
}

// UpdateZone replaces a zone's settings. The owner never changes.
func (h *Handler) UpdateZone(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req ZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	z, err := h.Zones.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg := req.apply(z); msg != "" {
		badRequest(c, msg)
		return
	}
	if err := h.Zones.Save(ctx, z); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Zone updated", z)
}

// GetZone returns one zone.
func (h *Handler) GetZone(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	z, err := h.Zones.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", z)
}

func (h *Handler) ListZones(c *gin.Context)       { h.listZones(c, false) }
func (h *Handler) ListActiveZones(c *gin.Context) { h.listZones(c, true) }

func (h *Handler) listZones(c *gin.Context, activeOnly bool) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	list, err := h.Zones.ByOwner(c.Request.Context(), owner, activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", list)
}

// ToggleZone flips a zone between active and inactive.
func (h *Handler) ToggleZone(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	z, err := h.Zones.Toggle(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Zone toggled", z)
}

// DeleteZone removes a zone.
func (h *Handler) DeleteZone(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.Zones.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Zone deleted", gin.H{"id": id})
}
