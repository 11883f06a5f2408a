// Package stats derives per-owner and global statistics from detection
// records and alerts, and renders them as spreadsheets.
package stats

import (
	"context"
	"time"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/models"
	"behavior-backend/internal/store"
	"behavior-backend/internal/utils"

	"golang.org/x/sync/errgroup"
)

// Behavior types that always appear in behavior_type_stats.
var seededBehaviorTypes = []string{"FALL", "ABNORMAL_POSE", "FIGHT"}

const (
	maxTrendDays = 365
	dayLabel     = "01/02"
)

// Records is the record-side query surface the aggregator reads.
type Records interface {
	CountByOwner(ctx context.Context, ownerID uint) (store.Counts, error)
	CountAll(ctx context.Context) (store.Counts, error)
	DistinctOwners(ctx context.Context) (int64, error)
	BehaviorTypeCounts(ctx context.Context, ownerID uint) (map[string]int64, error)
	Confidences(ctx context.Context, ownerID uint) ([]*float64, error)
	StampsSince(ctx context.Context, ownerID uint, since time.Time) ([]store.Stamp, error)
	AllByOwner(ctx context.Context, ownerID uint) ([]models.DetectionRecord, error)
}

// Alerts is the alert-side query surface used for export.
type Alerts interface {
	AllByOwner(ctx context.Context, ownerID uint) ([]models.Alert, error)
}

// DayBucket counts one calendar day of records.
type DayBucket struct {
	Date          string `json:"date"`
	TotalCount    int64  `json:"total_count"`
	AbnormalCount int64  `json:"abnormal_count"`
	NormalCount   int64  `json:"normal_count"`
}

// UserStatistics is the statistics view of one owner.
type UserStatistics struct {
	TotalRecords      int64            `json:"total_records"`
	AbnormalRecords   int64            `json:"abnormal_records"`
	NormalRecords     int64            `json:"normal_records"`
	BehaviorTypeStats map[string]int64 `json:"behavior_type_stats"`
	Confidence        utils.Summary    `json:"confidence_stats"`
	Trend7Days        []DayBucket      `json:"trend_7_days"`
	Trend30Days       []DayBucket      `json:"trend_30_days"`
}

// GlobalStatistics spans every owner.
type GlobalStatistics struct {
	TotalRecords    int64 `json:"total_records"`
	AbnormalRecords int64 `json:"abnormal_records"`
	NormalRecords   int64 `json:"normal_records"`
	TotalUsers      int64 `json:"total_users"`
}

// Aggregator computes statistics. It holds no state of its own.
type Aggregator struct {
	records Records
	alerts  Alerts
	now     func() time.Time
}

// NewAggregator returns an aggregator over the given stores.
func NewAggregator(records Records, alerts Alerts) *Aggregator {
	return &Aggregator{records: records, alerts: alerts, now: time.Now}
}

// UserStatistics gathers the owner's counts, confidence summary and trends.
// Records that have not finished count toward the total but not as abnormal.
func (a *Aggregator) UserStatistics(ctx context.Context, ownerID uint) (*UserStatistics, error) {
	out := &UserStatistics{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := a.records.CountByOwner(gctx, ownerID)
		if err != nil {
			return err
		}
		out.TotalRecords = c.Total
		out.AbnormalRecords = c.Abnormal
		out.NormalRecords = c.Total - c.Abnormal
		return nil
	})
	g.Go(func() error {
		types, err := a.records.BehaviorTypeCounts(gctx, ownerID)
		if err != nil {
			return err
		}
		merged := make(map[string]int64, len(types)+len(seededBehaviorTypes))
		for _, t := range seededBehaviorTypes {
			merged[t] = 0
		}
		for t, n := range types {
			merged[t] = n
		}
		out.BehaviorTypeStats = merged
		return nil
	})
	g.Go(func() error {
		confs, err := a.records.Confidences(gctx, ownerID)
		if err != nil {
			return err
		}
		out.Confidence = utils.Summarize(confs)
		return nil
	})
	g.Go(func() error {
		// one query covers both windows
		month, err := a.Trend(gctx, ownerID, 30)
		if err != nil {
			return err
		}
		out.Trend30Days = month
		out.Trend7Days = month[len(month)-7:]
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Trend buckets the owner's records per local calendar day over the last
// days days, today included, oldest first.
func (a *Aggregator) Trend(ctx context.Context, ownerID uint, days int) ([]DayBucket, error) {
	if days < 1 || days > maxTrendDays {
		return nil, apperr.Validation("stats.trend", "days must be between 1 and %d", maxTrendDays)
	}

	now := a.now()
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	since := today.AddDate(0, 0, -(days - 1))

	stamps, err := a.records.StampsSince(ctx, ownerID, since)
	if err != nil {
		return nil, err
	}

	buckets := make([]DayBucket, days)
	for i := range buckets {
		buckets[i].Date = since.AddDate(0, 0, i).Format(dayLabel)
	}
	for _, s := range stamps {
		t := s.CreatedAt.In(loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		idx := int(day.Sub(since).Hours()+12) / 24
		if idx < 0 || idx >= days {
			continue
		}
		b := &buckets[idx]
		b.TotalCount++
		if s.HasAbnormal != nil && *s.HasAbnormal {
			b.AbnormalCount++
		}
	}
	for i := range buckets {
		buckets[i].NormalCount = buckets[i].TotalCount - buckets[i].AbnormalCount
	}
	return buckets, nil
}

// GlobalStatistics counts records and distinct owners across the system.
func (a *Aggregator) GlobalStatistics(ctx context.Context) (*GlobalStatistics, error) {
	c, err := a.records.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	users, err := a.records.DistinctOwners(ctx)
	if err != nil {
		return nil, err
	}
	return &GlobalStatistics{
		TotalRecords:    c.Total,
		AbnormalRecords: c.Abnormal,
		NormalRecords:   c.Total - c.Abnormal,
		TotalUsers:      users,
	}, nil
}
