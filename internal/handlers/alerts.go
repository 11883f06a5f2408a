package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"behavior-backend/internal/alerts"

	"github.com/gin-gonic/gin"
)

// NotifyAlertRequest is the alert ingest payload. Producers send the owner as
// user_id or owner_id, and detail_data as an object or a JSON-encoded string.
type NotifyAlertRequest struct {
	UserID       uint            `json:"user_id"`
	OwnerID      uint            `json:"owner_id"`
	RecordID     uint            `json:"record_id"`
	AlertType    string          `json:"alert_type"`
	AlertLevel   string          `json:"alert_level"`
	Confidence   *float64        `json:"confidence"`
	Description  string          `json:"description"`
	DetailData   json.RawMessage `json:"detail_data"`
	SnapshotPath string          `json:"snapshot_path"`
	DeriveLevel  bool            `json:"derive_level"`
}

// HandleAlertRequest marks an alert handled; both fields are optional.
type HandleAlertRequest struct {
	HandledBy  string `json:"handled_by"`
	HandleNote string `json:"handle_note"`
}

// NotifyAlert ingests an alert raised by the Detector.
func (h *Handler) NotifyAlert(c *gin.Context) {
	var req NotifyAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Confidence == nil {
		badRequest(c, "confidence is required")
		return
	}
	detail, err := normalizeDetail(req.DetailData)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	owner := req.UserID
	if owner == 0 {
		owner = req.OwnerID
	}

	a, err := h.Alerts.Create(c.Request.Context(), alerts.CreateInput{
		OwnerID:      owner,
		RecordID:     req.RecordID,
		AlertType:    req.AlertType,
		AlertLevel:   req.AlertLevel,
		Confidence:   *req.Confidence,
		Description:  req.Description,
		DetailData:   detail,
		SnapshotPath: req.SnapshotPath,
		DeriveLevel:  req.DeriveLevel,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Alert created", a)
}

// normalizeDetail unwraps a JSON-encoded string so the stored detail is
// always a JSON document. null and "" become empty.
func normalizeDetail(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("detail_data is not valid JSON")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("detail_data is not valid JSON")
	}
	return json.RawMessage(s), nil
}

// ListAlerts pages through an owner's alerts, newest first.
func (h *Handler) ListAlerts(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	page, ok := pageQuery(c)
	if !ok {
		return
	}
	list, total, err := h.Alerts.List(c.Request.Context(), owner, page)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", gin.H{
		"content": list,
		"total":   total,
		"page":    page.Page,
		"size":    page.Size,
	})
}

// UnhandledAlerts lists an owner's open alerts.
func (h *Handler) UnhandledAlerts(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	list, err := h.Alerts.Unhandled(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", list)
}

// AlertsInRange lists an owner's alerts created between start and end.
func (h *Handler) AlertsInRange(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	start, err := parseQueryTime(c.Query("start"))
	if err != nil {
		badRequest(c, "Invalid start parameter")
		return
	}
	end, err := parseQueryTime(c.Query("end"))
	if err != nil {
		badRequest(c, "Invalid end parameter")
		return
	}
	list, err := h.Alerts.InRange(c.Request.Context(), owner, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", list)
}

var queryTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseQueryTime accepts RFC 3339 or a local date-time without zone.
func parseQueryTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range queryTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t.Local(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}

// UnreadCount counts an owner's unread alerts.
func (h *Handler) UnreadCount(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	n, err := h.Alerts.UnreadCount(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", gin.H{"count": n})
}

// MarkAllRead marks every alert of an owner as read.
func (h *Handler) MarkAllRead(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	n, err := h.Alerts.MarkAllRead(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "All alerts marked as read", gin.H{"updated": n})
}

// HandleAlert marks an alert handled. handled_by defaults to the caller.
func (h *Handler) HandleAlert(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req HandleAlertRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if strings.TrimSpace(req.HandledBy) == "" {
		if v := c.Query("handledBy"); v != "" {
			req.HandledBy = v
		} else {
			req.HandledBy = callerSubject(c)
		}
	}
	if req.HandleNote == "" {
		req.HandleNote = c.Query("handleNote")
	}

	a, err := h.Alerts.Handle(c.Request.Context(), id, req.HandledBy, req.HandleNote)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Alert handled", a)
}

// MarkAlertRead marks one alert as read.
func (h *Handler) MarkAlertRead(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.Alerts.MarkRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Alert marked as read", gin.H{"id": id})
}

// AlertStatistics counts an owner's alerts by handled state.
func (h *Handler) AlertStatistics(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	s, err := h.Alerts.Statistics(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", s)
}

// ExportAlerts downloads an owner's alerts as xlsx.
func (h *Handler) ExportAlerts(c *gin.Context) {
	owner, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	data, err := h.Stats.ExportAlerts(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	sendWorkbook(c, fmt.Sprintf("alerts_user_%d.xlsx", owner), data)
}

// DeleteAlert removes an alert and its snapshot.
func (h *Handler) DeleteAlert(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.Alerts.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Alert deleted", gin.H{"id": id})
}

// BatchDeleteAlerts deletes each id independently and reports failures per id.
func (h *Handler) BatchDeleteAlerts(c *gin.Context) {
	ids, ok := bindIDs(c)
	if !ok {
		return
	}
	res := h.Alerts.BatchDelete(c.Request.Context(), ids)
	respondOK(c, batchMessage(res), res)
}
