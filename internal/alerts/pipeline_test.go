package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/database/dbtest"
	"behavior-backend/internal/models"
	"behavior-backend/internal/notify"
	"behavior-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	pipeline *Pipeline
	bus      *notify.Bus
	store    *store.AlertStore
	assetDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewAlertStore(dbtest.Open(t))
	bus := notify.NewBus(16, zap.NewNop(), nil)
	dir := t.TempDir()
	return &fixture{
		pipeline: New(s, bus, dir, zap.NewNop(), nil),
		bus:      bus,
		store:    s,
		assetDir: dir,
	}
}

func drain(sub *notify.Subscription) []notify.Message {
	var out []notify.Message
	for {
		select {
		case msg := <-sub.C():
			out = append(out, msg)
		case <-time.After(30 * time.Millisecond):
			return out
		}
	}
}

func decode(t *testing.T, msg notify.Message) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &m))
	return m
}

func TestCreate_PublishesToOwnerAndBroadcast(t *testing.T) {
	f := newFixture(t)
	ownerSub := f.bus.Subscribe(notify.OwnerTopic(7))
	allSub := f.bus.Subscribe(notify.BroadcastTopic)
	otherSub := f.bus.Subscribe(notify.OwnerTopic(8))

	a, err := f.pipeline.Create(context.Background(), CreateInput{OwnerID: 7, AlertType: "FALL", Confidence: 0.95})
	require.NoError(t, err)
	assert.Equal(t, models.LevelMedium, a.AlertLevel)
	assert.False(t, a.IsRead)
	assert.False(t, a.IsHandled)
	assert.JSONEq(t, `{}`, string(a.DetailData))

	ownerMsgs := drain(ownerSub)
	allMsgs := drain(allSub)
	require.Len(t, ownerMsgs, 1)
	require.Len(t, allMsgs, 1)
	assert.Empty(t, drain(otherSub))

	for _, msg := range []notify.Message{ownerMsgs[0], allMsgs[0]} {
		ev := decode(t, msg)
		assert.EqualValues(t, a.ID, ev["id"])
		assert.InDelta(t, 0.95, ev["confidence"], 1e-9)
		assert.Equal(t, "FALL", ev["alert_type"])
		assert.NotContains(t, ev, "action")
	}

	stored, err := f.store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "FALL", stored.AlertType)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	sub := f.bus.Subscribe(notify.BroadcastTopic)

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"no owner", CreateInput{AlertType: "FALL"}},
		{"no type", CreateInput{OwnerID: 1, AlertType: "  "}},
		{"bad level", CreateInput{OwnerID: 1, AlertType: "FALL", AlertLevel: "URGENT"}},
		{"confidence range", CreateInput{OwnerID: 1, AlertType: "FALL", Confidence: 1.5}},
		{"bad detail", CreateInput{OwnerID: 1, AlertType: "FALL", DetailData: json.RawMessage(`{oops`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline.Create(context.Background(), tt.in)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
	assert.Empty(t, drain(sub), "rejected alerts are never published")
}

func TestCreate_Levels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.pipeline.Create(ctx, CreateInput{OwnerID: 1, AlertType: "FALL", AlertLevel: "high"})
	require.NoError(t, err)
	assert.Equal(t, models.LevelHigh, a.AlertLevel)

	a, err = f.pipeline.Create(ctx, CreateInput{OwnerID: 1, AlertType: "FALL", Confidence: 0.92, DeriveLevel: true})
	require.NoError(t, err)
	assert.Equal(t, models.LevelCritical, a.AlertLevel)

	a, err = f.pipeline.Create(ctx, CreateInput{OwnerID: 1, AlertType: "FALL", Confidence: 0.92, AlertLevel: "LOW", DeriveLevel: true})
	require.NoError(t, err)
	assert.Equal(t, models.LevelLow, a.AlertLevel, "explicit level wins")
}

func TestDeriveLevel(t *testing.T) {
	tests := []struct {
		conf float64
		want string
	}{
		{0.95, models.LevelCritical},
		{0.9, models.LevelCritical},
		{0.8, models.LevelHigh},
		{0.75, models.LevelHigh},
		{0.6, models.LevelMedium},
		{0.59, models.LevelLow},
		{0, models.LevelLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveLevel(tt.conf), "confidence %v", tt.conf)
	}
}

func TestHandle_PublishesToOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.pipeline.Create(ctx, CreateInput{OwnerID: 7, AlertType: "FALL", Confidence: 0.8})
	require.NoError(t, err)

	ownerSub := f.bus.Subscribe(notify.OwnerTopic(7))
	allSub := f.bus.Subscribe(notify.BroadcastTopic)

	handled, err := f.pipeline.Handle(ctx, a.ID, "admin1", "resolved")
	require.NoError(t, err)
	assert.True(t, handled.IsHandled)
	assert.Equal(t, "admin1", *handled.HandledBy)
	assert.Equal(t, "resolved", *handled.HandleNote)
	require.NotNil(t, handled.HandledAt)

	ownerMsgs := drain(ownerSub)
	require.Len(t, ownerMsgs, 1)
	ev := decode(t, ownerMsgs[0])
	assert.Equal(t, ActionHandled, ev["action"])
	assert.EqualValues(t, a.ID, ev["id"])
	assert.Equal(t, "admin1", ev["handled_by"])
	assert.Empty(t, drain(allSub))
}

func TestHandle_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Handle(ctx, 1, " ", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.pipeline.Handle(ctx, 404, "admin", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMarkRead_DoesNotPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.pipeline.Create(ctx, CreateInput{OwnerID: 2, AlertType: "FALL"})
	require.NoError(t, err)
	_, err = f.pipeline.Create(ctx, CreateInput{OwnerID: 2, AlertType: "FIGHT"})
	require.NoError(t, err)

	sub := f.bus.Subscribe(notify.OwnerTopic(2), notify.BroadcastTopic)
	require.NoError(t, f.pipeline.MarkRead(ctx, a.ID))
	n, err := f.pipeline.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	changed, err := f.pipeline.MarkAllRead(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)
	assert.Empty(t, drain(sub))

	got, err := f.pipeline.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.False(t, got.IsHandled)
}

func TestDelete_RemovesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap := filepath.Join(f.assetDir, "snapshots", "FALL_1.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(snap), 0o755))
	require.NoError(t, os.WriteFile(snap, []byte("jpg"), 0o644))

	a, err := f.pipeline.Create(ctx, CreateInput{OwnerID: 1, AlertType: "FALL", SnapshotPath: "snapshots/FALL_1.jpg"})
	require.NoError(t, err)
	b, err := f.pipeline.Create(ctx, CreateInput{OwnerID: 1, AlertType: "FALL", SnapshotPath: "snapshots/missing.jpg"})
	require.NoError(t, err)

	require.NoError(t, f.pipeline.Delete(ctx, a.ID))
	_, statErr := os.Stat(snap)
	assert.True(t, os.IsNotExist(statErr))

	// a missing snapshot never blocks deletion
	require.NoError(t, f.pipeline.Delete(ctx, b.ID))

	assert.True(t, apperr.Is(f.pipeline.Delete(ctx, a.ID), apperr.KindNotFound))
}

func TestDelete_KeepsFilesOutsideAssetDir(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sibling := t.TempDir()
	victim := filepath.Join(sibling, "victim.txt")
	require.NoError(t, os.WriteFile(victim, []byte("keep"), 0o644))

	for _, ref := range []string{
		"../" + filepath.Base(sibling) + "/victim.txt",
		victim,
		"http://detector/../" + filepath.Base(sibling) + "/victim.txt",
	} {
		a, err := f.pipeline.Create(ctx, CreateInput{OwnerID: 1, AlertType: "FALL", SnapshotPath: ref})
		require.NoError(t, err)

		require.NoError(t, f.pipeline.Delete(ctx, a.ID), ref)
		assert.FileExists(t, victim, ref)
		assert.True(t, apperr.Is(f.pipeline.Delete(ctx, a.ID), apperr.KindNotFound))
	}
}

func TestBatchDelete_ContinuesOnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.pipeline.Create(ctx, CreateInput{OwnerID: 1, AlertType: "FALL"})
	require.NoError(t, err)
	b, err := f.pipeline.Create(ctx, CreateInput{OwnerID: 1, AlertType: "FALL"})
	require.NoError(t, err)

	res := f.pipeline.BatchDelete(ctx, []uint{a.ID, 999, b.ID})
	assert.Equal(t, []uint{a.ID, b.ID}, res.Deleted)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, uint(999), res.Failed[0].ID)
	assert.Contains(t, res.Failed[0].Error, "not found")
}

func TestQueriesAndStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.pipeline.Create(ctx, CreateInput{OwnerID: 3, AlertType: "FALL"})
	require.NoError(t, err)
	_, err = f.pipeline.Create(ctx, CreateInput{OwnerID: 3, AlertType: "FIGHT"})
	require.NoError(t, err)
	_, err = f.pipeline.Handle(ctx, a.ID, "admin", "")
	require.NoError(t, err)

	stats, err := f.pipeline.Statistics(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, Statistics{TotalAlerts: 2, UnhandledAlerts: 1, HandledAlerts: 1}, stats)

	open, err := f.pipeline.Unhandled(ctx, 3)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "FIGHT", open[0].AlertType)

	_, err = f.pipeline.InRange(ctx, 3, time.Now(), time.Now().Add(-time.Hour))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	inRange, err := f.pipeline.InRange(ctx, 3, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, inRange, 2)

	page, total, err := f.pipeline.List(ctx, 3, store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, page, 2)
}

type brokenBus struct{ calls int }

func (b *brokenBus) Publish(context.Context, string, any) error {
	b.calls++
	return errors.New("bus down")
}

func TestCreate_PublicationFailureKeepsAlert(t *testing.T) {
	s := store.NewAlertStore(dbtest.Open(t))
	bus := &brokenBus{}
	p := New(s, bus, t.TempDir(), zap.NewNop(), nil)

	a, err := p.Create(context.Background(), CreateInput{OwnerID: 1, AlertType: "FALL"})
	require.NoError(t, err)
	assert.Equal(t, 2, bus.calls)

	_, err = s.Get(context.Background(), a.ID)
	assert.NoError(t, err)
}
