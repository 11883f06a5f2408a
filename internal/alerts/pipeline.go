// Package alerts persists abnormal-behavior alerts and announces them on the
// notification bus. Persistence always comes first; publication is
// best-effort and never rolls a write back.
package alerts

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/metrics"
	"behavior-backend/internal/models"
	"behavior-backend/internal/notify"
	"behavior-backend/internal/store"
	"behavior-backend/internal/utils"

	"go.uber.org/zap"
)

// ActionHandled marks the event published when an alert is handled.
const ActionHandled = "handled"

// Store is the alert persistence the pipeline needs.
type Store interface {
	Create(ctx context.Context, a *models.Alert) error
	Get(ctx context.Context, id uint) (*models.Alert, error)
	ListByOwner(ctx context.Context, ownerID uint, page store.Page) ([]models.Alert, int64, error)
	AllByOwner(ctx context.Context, ownerID uint) ([]models.Alert, error)
	Unhandled(ctx context.Context, ownerID uint) ([]models.Alert, error)
	InRange(ctx context.Context, ownerID uint, start, end time.Time) ([]models.Alert, error)
	UnreadCount(ctx context.Context, ownerID uint) (int64, error)
	CountByOwner(ctx context.Context, ownerID uint) (store.AlertCounts, error)
	MarkHandled(ctx context.Context, id uint, handledBy string, note *string, at time.Time) (*models.Alert, error)
	MarkRead(ctx context.Context, id uint) error
	MarkAllRead(ctx context.Context, ownerID uint) (int64, error)
	Delete(ctx context.Context, id uint) (*models.Alert, error)
}

// Publisher delivers an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Event is the payload published for alert changes: the alert's fields plus
// an optional action.
type Event struct {
	Action string `json:"action,omitempty"`
	*models.Alert
}

// CreateInput is an alert as reported by the Detector or another producer.
type CreateInput struct {
	OwnerID      uint
	RecordID     uint
	AlertType    string
	AlertLevel   string
	Confidence   float64
	Description  string
	DetailData   json.RawMessage
	SnapshotPath string
	DeriveLevel  bool // derive a missing level from confidence instead of defaulting to MEDIUM
}

// Statistics summarises one owner's alerts.
type Statistics struct {
	TotalAlerts     int64 `json:"total_alerts"`
	UnhandledAlerts int64 `json:"unhandled_alerts"`
	HandledAlerts   int64 `json:"handled_alerts"`
}

// Pipeline is the alert service.
type Pipeline struct {
	store    Store
	bus      Publisher
	assetDir string
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New returns a pipeline. assetDir is where relative snapshot paths live.
func New(s Store, bus Publisher, assetDir string, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		store:    s,
		bus:      bus,
		assetDir: assetDir,
		logger:   logger.With(zap.String("component", "alert_pipeline")),
		metrics:  m,
		now:      time.Now,
	}
}

// DeriveLevel maps a detection confidence to an alert level.
func DeriveLevel(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return models.LevelCritical
	case confidence >= 0.75:
		return models.LevelHigh
	case confidence >= 0.6:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

func (in CreateInput) validate() (*models.Alert, error) {
	const op = "alerts.create"
	if in.OwnerID == 0 {
		return nil, apperr.Validation(op, "user_id is required")
	}
	alertType := strings.TrimSpace(in.AlertType)
	if alertType == "" {
		return nil, apperr.Validation(op, "alert_type is required")
	}
	if math.IsNaN(in.Confidence) || in.Confidence < 0 || in.Confidence > 1 {
		return nil, apperr.Validation(op, "confidence must be between 0 and 1")
	}

	level := strings.ToUpper(strings.TrimSpace(in.AlertLevel))
	switch {
	case level == "" && in.DeriveLevel:
		level = DeriveLevel(in.Confidence)
	case level == "":
		level = models.LevelMedium
	case !models.ValidAlertLevel(level):
		return nil, apperr.Validation(op, "alert_level must be one of LOW, MEDIUM, HIGH, CRITICAL")
	}

	detail := in.DetailData
	if len(detail) == 0 {
		detail = json.RawMessage("{}")
	}
	if !json.Valid(detail) {
		return nil, apperr.Validation(op, "detail_data must be valid JSON")
	}

	a := &models.Alert{
		UserID:      in.OwnerID,
		RecordID:    in.RecordID,
		AlertType:   alertType,
		AlertLevel:  level,
		Confidence:  in.Confidence,
		Description: in.Description,
		DetailData:  []byte(detail),
	}
	if in.SnapshotPath != "" {
		path := in.SnapshotPath
		a.SnapshotPath = &path
	}
	return a, nil
}

// Create validates and persists an alert, then publishes it to the owner's
// topic and the broadcast topic.
func (p *Pipeline) Create(ctx context.Context, in CreateInput) (*models.Alert, error) {
	a, err := in.validate()
	if err != nil {
		return nil, err
	}
	if err := p.store.Create(ctx, a); err != nil {
		return nil, err
	}
	p.metrics.AlertCreated(a.AlertLevel)
	p.logger.Info("alert created",
		zap.Uint("alert_id", a.ID),
		zap.Uint("user_id", a.UserID),
		zap.String("alert_type", a.AlertType),
		zap.String("alert_level", a.AlertLevel),
	)

	ev := Event{Alert: a}
	p.publish(ctx, notify.OwnerTopic(a.UserID), ev)
	p.publish(ctx, notify.BroadcastTopic, ev)
	return a, nil
}

// Handle marks an alert handled and tells the owner's topic.
func (p *Pipeline) Handle(ctx context.Context, id uint, handledBy, note string) (*models.Alert, error) {
	handledBy = strings.TrimSpace(handledBy)
	if handledBy == "" {
		return nil, apperr.Validation("alerts.handle", "handled_by is required")
	}
	var notePtr *string
	if note != "" {
		notePtr = &note
	}

	a, err := p.store.MarkHandled(ctx, id, handledBy, notePtr, p.now())
	if err != nil {
		return nil, err
	}
	p.metrics.AlertHandled()
	p.logger.Info("alert handled", zap.Uint("alert_id", id), zap.String("handled_by", handledBy))

	p.publish(ctx, notify.OwnerTopic(a.UserID), Event{Action: ActionHandled, Alert: a})
	return a, nil
}

func (p *Pipeline) publish(ctx context.Context, topic string, ev Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, topic, ev); err != nil {
		p.logger.Warn("alert publication failed",
			zap.String("topic", topic),
			zap.Uint("alert_id", ev.ID),
			zap.Error(err),
		)
	}
}

// MarkRead flags one alert as read.
func (p *Pipeline) MarkRead(ctx context.Context, id uint) error {
	return p.store.MarkRead(ctx, id)
}

// MarkAllRead flags every alert of the owner as read and returns how many changed.
func (p *Pipeline) MarkAllRead(ctx context.Context, ownerID uint) (int64, error) {
	return p.store.MarkAllRead(ctx, ownerID)
}

// Delete removes the alert's snapshot file, best-effort, then the alert.
func (p *Pipeline) Delete(ctx context.Context, id uint) error {
	a, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.SnapshotPath != nil {
		path, err := utils.ResolveLocalPath(*a.SnapshotPath, p.assetDir)
		if err != nil {
			p.logger.Warn("snapshot not removed", zap.Uint("alert_id", id), zap.Error(err))
		}
		utils.RemoveFilesBestEffort(p.logger, path)
	}
	if _, err := p.store.Delete(ctx, id); err != nil {
		return err
	}
	p.logger.Info("alert deleted", zap.Uint("alert_id", id))
	return nil
}

// BatchDelete deletes each id independently and reports per-id failures.
func (p *Pipeline) BatchDelete(ctx context.Context, ids []uint) store.BatchResult {
	return store.RunBatch(ids, func(id uint) error { return p.Delete(ctx, id) })
}

// Get loads one alert.
func (p *Pipeline) Get(ctx context.Context, id uint) (*models.Alert, error) {
	return p.store.Get(ctx, id)
}

// List pages through an owner's alerts, newest first.
func (p *Pipeline) List(ctx context.Context, ownerID uint, page store.Page) ([]models.Alert, int64, error) {
	return p.store.ListByOwner(ctx, ownerID, page)
}

// All returns every alert of an owner, newest first.
func (p *Pipeline) All(ctx context.Context, ownerID uint) ([]models.Alert, error) {
	return p.store.AllByOwner(ctx, ownerID)
}

// Unhandled lists an owner's open alerts.
func (p *Pipeline) Unhandled(ctx context.Context, ownerID uint) ([]models.Alert, error) {
	return p.store.Unhandled(ctx, ownerID)
}

// InRange lists an owner's alerts created between start and end inclusive.
func (p *Pipeline) InRange(ctx context.Context, ownerID uint, start, end time.Time) ([]models.Alert, error) {
	if end.Before(start) {
		return nil, apperr.Validation("alerts.range", "end must not be before start")
	}
	return p.store.InRange(ctx, ownerID, start, end)
}

// UnreadCount counts an owner's unread alerts.
func (p *Pipeline) UnreadCount(ctx context.Context, ownerID uint) (int64, error) {
	return p.store.UnreadCount(ctx, ownerID)
}

// Statistics counts an owner's alerts by handled state.
func (p *Pipeline) Statistics(ctx context.Context, ownerID uint) (Statistics, error) {
	c, err := p.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{
		TotalAlerts:     c.Total,
		UnhandledAlerts: c.Unhandled,
		HandledAlerts:   c.Total - c.Unhandled,
	}, nil
}
