package store

import (
	"context"
	"testing"
	"time"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/database/dbtest"
	"behavior-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlert(t *testing.T, s *AlertStore, owner uint) *models.Alert {
	t.Helper()
	a := &models.Alert{UserID: owner, AlertType: "FALL", AlertLevel: models.LevelMedium, Confidence: 0.9}
	require.NoError(t, s.Create(context.Background(), a))
	return a
}

func TestAlertStore_HandleSetsFieldsTogether(t *testing.T) {
	s := NewAlertStore(dbtest.Open(t))
	ctx := context.Background()
	a := newAlert(t, s, 7)

	at := time.Now().Truncate(time.Second)
	got, err := s.MarkHandled(ctx, a.ID, "admin1", strPtr("resolved"), at)
	require.NoError(t, err)
	assert.True(t, got.IsHandled)
	assert.False(t, got.IsRead)
	assert.Equal(t, "admin1", *got.HandledBy)
	assert.Equal(t, "resolved", *got.HandleNote)
	require.NotNil(t, got.HandledAt)
	assert.True(t, at.Equal(*got.HandledAt))

	_, err = s.MarkHandled(ctx, 404, "admin1", nil, at)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAlertStore_ReadFlags(t *testing.T) {
	s := NewAlertStore(dbtest.Open(t))
	ctx := context.Background()
	a1 := newAlert(t, s, 7)
	newAlert(t, s, 7)
	newAlert(t, s, 7)
	newAlert(t, s, 8)

	require.NoError(t, s.MarkRead(ctx, a1.ID))
	n, err := s.UnreadCount(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	changed, err := s.MarkAllRead(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, changed)

	n, err = s.UnreadCount(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.UnreadCount(ctx, 8)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.Get(ctx, a1.ID)
	require.NoError(t, err)
	assert.False(t, got.IsHandled, "read must not touch handled")

	assert.True(t, apperr.Is(s.MarkRead(ctx, 999), apperr.KindNotFound))
}

func TestAlertStore_Queries(t *testing.T) {
	s := NewAlertStore(dbtest.Open(t))
	ctx := context.Background()
	a1 := newAlert(t, s, 7)
	a2 := newAlert(t, s, 7)
	_, err := s.MarkHandled(ctx, a1.ID, "admin", nil, time.Now())
	require.NoError(t, err)

	unhandled, err := s.Unhandled(ctx, 7)
	require.NoError(t, err)
	require.Len(t, unhandled, 1)
	assert.Equal(t, a2.ID, unhandled[0].ID)

	counts, err := s.CountByOwner(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, AlertCounts{Total: 2, Unhandled: 1}, counts)

	inRange, err := s.InRange(ctx, 7, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, inRange, 2)
	inRange, err = s.InRange(ctx, 7, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, inRange)

	page, total, err := s.ListByOwner(ctx, 7, Page{Size: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, a2.ID, page[0].ID)
}

func TestAlertStore_Delete(t *testing.T) {
	s := NewAlertStore(dbtest.Open(t))
	ctx := context.Background()
	a := newAlert(t, s, 1)

	deleted, err := s.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)

	_, err = s.Delete(ctx, a.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
