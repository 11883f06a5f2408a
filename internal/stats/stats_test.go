package stats

import (
	"bytes"
	"context"
	"testing"
	"time"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/database/dbtest"
	"behavior-backend/internal/models"
	"behavior-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	records *store.RecordStore
	alerts  *store.AlertStore
	agg     *Aggregator
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{
		db:      db,
		records: store.NewRecordStore(db),
		alerts:  store.NewAlertStore(db),
		now:     time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local),
	}
	f.agg = NewAggregator(f.records, f.alerts)
	f.agg.now = func() time.Time { return f.now }
	return f
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

// record creates a record for owner at createdAt. A nil outcome leaves it
// PROCESSING.
func (f *fixture) record(t *testing.T, owner uint, createdAt time.Time, outcome *store.Completion) *models.DetectionRecord {
	t.Helper()
	ctx := context.Background()
	rec := &models.DetectionRecord{UserID: owner, SourceType: models.SourceImage, MediaPath: strPtr("uploads/a.jpg")}
	require.NoError(t, f.records.Create(ctx, rec))
	if outcome != nil {
		require.NoError(t, f.records.Complete(ctx, rec.ID, *outcome))
	}
	require.NoError(t, f.db.Model(&models.DetectionRecord{}).Where("id = ?", rec.ID).Update("created_at", createdAt).Error)
	return rec
}

func abnormal(kind string, conf float64) *store.Completion {
	return &store.Completion{HasAbnormal: true, BehaviorType: strPtr(kind), Confidence: floatPtr(conf), Raw: []byte(`{}`)}
}

func normal(conf float64) *store.Completion {
	return &store.Completion{HasAbnormal: false, Confidence: floatPtr(conf), Raw: []byte(`{}`)}
}

func TestUserStatistics(t *testing.T) {
	f := newFixture(t)
	day := func(back int, hour int) time.Time {
		return time.Date(2026, 3, 10-back, hour, 0, 0, 0, time.Local)
	}

	f.record(t, 1, day(0, 9), abnormal("FALL", 0.9))
	f.record(t, 1, day(0, 10), normal(0.5))
	f.record(t, 1, day(1, 23), abnormal("FIGHT", 0.7))
	f.record(t, 1, day(6, 0), nil)
	f.record(t, 1, day(10, 12), abnormal("FALL", 0.8))
	f.record(t, 1, day(40, 12), normal(0.6))
	f.record(t, 2, day(0, 9), abnormal("FALL", 0.99))

	s, err := f.agg.UserStatistics(context.Background(), 1)
	require.NoError(t, err)

	assert.EqualValues(t, 6, s.TotalRecords)
	assert.EqualValues(t, 3, s.AbnormalRecords)
	assert.EqualValues(t, 3, s.NormalRecords)
	assert.Equal(t, map[string]int64{"FALL": 2, "FIGHT": 1, "ABNORMAL_POSE": 0}, s.BehaviorTypeStats)

	assert.Equal(t, 5, s.Confidence.Count)
	assert.InDelta(t, 0.7, s.Confidence.Mean, 1e-9)
	assert.Equal(t, 0.5, s.Confidence.Min)
	assert.Equal(t, 0.9, s.Confidence.Max)

	require.Len(t, s.Trend7Days, 7)
	require.Len(t, s.Trend30Days, 30)
	assert.Equal(t, "03/04", s.Trend7Days[0].Date)
	assert.Equal(t, "03/10", s.Trend7Days[6].Date)
	assert.Equal(t, DayBucket{Date: "03/10", TotalCount: 2, AbnormalCount: 1, NormalCount: 1}, s.Trend7Days[6])
	assert.Equal(t, DayBucket{Date: "03/09", TotalCount: 1, AbnormalCount: 1, NormalCount: 0}, s.Trend7Days[5])
	assert.Equal(t, DayBucket{Date: "03/04", TotalCount: 1, AbnormalCount: 0, NormalCount: 1}, s.Trend7Days[0])

	assert.Equal(t, "02/09", s.Trend30Days[0].Date)
	var total int64
	for _, b := range s.Trend30Days {
		total += b.TotalCount
	}
	assert.EqualValues(t, 5, total, "the record from 40 days ago falls outside the window")
	assert.Equal(t, s.Trend30Days[23:], s.Trend7Days)
}

func TestUserStatistics_Empty(t *testing.T) {
	f := newFixture(t)

	s, err := f.agg.UserStatistics(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, s.TotalRecords)
	assert.Equal(t, map[string]int64{"FALL": 0, "ABNORMAL_POSE": 0, "FIGHT": 0}, s.BehaviorTypeStats)
	assert.Zero(t, s.Confidence.Count)
	for _, b := range s.Trend30Days {
		assert.Zero(t, b.TotalCount)
	}
}

func TestTrend_Validation(t *testing.T) {
	f := newFixture(t)
	for _, days := range []int{0, -1, maxTrendDays + 1} {
		_, err := f.agg.Trend(context.Background(), 1, days)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "days=%d", days)
	}

	b, err := f.agg.Trend(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, "03/10", b[0].Date)
}

func TestGlobalStatistics(t *testing.T) {
	f := newFixture(t)
	f.record(t, 1, f.now, abnormal("FALL", 0.9))
	f.record(t, 1, f.now, normal(0.3))
	f.record(t, 2, f.now, abnormal("FIGHT", 0.8))
	f.record(t, 3, f.now, nil)

	g, err := f.agg.GlobalStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GlobalStatistics{TotalRecords: 4, AbnormalRecords: 2, NormalRecords: 2, TotalUsers: 3}, *g)
}

func TestExportRecords(t *testing.T) {
	f := newFixture(t)
	f.record(t, 1, f.now, abnormal("FALL", 0.9))
	f.record(t, 1, f.now, nil)
	f.record(t, 2, f.now, normal(0.1))

	data, err := f.agg.ExportRecords(context.Background(), 1)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Detection Records")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, recordExportHeader, rows[0])

	var statuses []string
	for _, r := range rows[1:] {
		statuses = append(statuses, r[2])
	}
	assert.ElementsMatch(t, []string{models.StatusCompleted, models.StatusProcessing}, statuses)
}

func TestExportAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.alerts.Create(ctx, &models.Alert{UserID: 5, AlertType: "FALL", AlertLevel: models.LevelHigh, Confidence: 0.8, DetailData: []byte(`{}`)}))
	require.NoError(t, f.alerts.Create(ctx, &models.Alert{UserID: 6, AlertType: "FIGHT", AlertLevel: models.LevelLow, DetailData: []byte(`{}`)}))

	data, err := f.agg.ExportAlerts(ctx, 5)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Alerts")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, alertExportHeader, rows[0])
	assert.Equal(t, "FALL", rows[1][2])
	assert.Equal(t, models.LevelHigh, rows[1][3])
	assert.Equal(t, "No", rows[1][6])

	empty, err := f.agg.ExportAlerts(ctx, 99)
	require.NoError(t, err)
	wb2, err := excelize.OpenReader(bytes.NewReader(empty))
	require.NoError(t, err)
	defer wb2.Close()
	rows, err = wb2.GetRows("Alerts")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}
