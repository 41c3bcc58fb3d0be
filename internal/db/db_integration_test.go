//go:build integration

package db

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ship-notification-service/internal/models"
)

// Run with: TEST_DATABASE_DSN=postgres://... go test -tags integration ./internal/db/
// The tables are truncated before every test.

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	d, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	ctx := context.Background()
	require.NoError(t, d.Migrate(ctx))
	_, err = d.Pool.Exec(ctx, `TRUNCATE notification_records, notifications, incidents RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return d
}

func incident(t *testing.T, d *DB, family string) string {
	t.Helper()
	inc := &models.Incident{ShipCode: "VN-001", Family: family, Type: "MKN_2H", StartedAt: base, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, d.CreateIncident(context.Background(), inc))
	return inc.ID
}

func insert(t *testing.T, d *DB, id string, created time.Time, typ models.NotificationType, mutate func(n *models.Notification)) {
	t.Helper()
	n := &models.Notification{
		ID:              id,
		ClientRequestID: "c-" + id,
		RequestID:       "r-" + id,
		ShipCode:        "VN-001",
		OccurredAt:      created,
		Type:            typ,
		Status:          models.StatusQueued,
		MaxRetry:        3,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	if mutate != nil {
		mutate(n)
	}
	require.NoError(t, d.CreateNotification(context.Background(), n))
}

func statusOf(t *testing.T, d *DB, id string) models.Status {
	t.Helper()
	n, err := d.GetNotification(context.Background(), id)
	require.NoError(t, err)
	return n.Status
}

func TestCreateNotification_ErrorMapping(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	insert(t, d, "a", base, models.TypeNormal, nil)

	dup := &models.Notification{ID: "b", ClientRequestID: "c-a", RequestID: "r-b", ShipCode: "VN-001",
		OccurredAt: base, Type: models.TypeNormal, Status: models.StatusQueued, CreatedAt: base, UpdatedAt: base}
	assert.ErrorIs(t, d.CreateNotification(ctx, dup), models.ErrConflict)

	_, err := d.GetNotification(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSweepDuplicates_WindowRanking(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	inc := incident(t, d, models.FamilyMKN)
	bnd := incident(t, d, models.FamilyBoundary)
	link := func(n *models.Notification) { n.IncidentID = &inc }
	boundary := func(n *models.Notification) { n.BoundaryIncidentID = &bnd }

	insert(t, d, "old", base, models.TypeMKN2H, link)
	insert(t, d, "new", base.Add(time.Minute), models.TypeMKN2H, link)
	insert(t, d, "other-type", base, models.TypeMKN5H, link)
	insert(t, d, "near-old", base, models.TypeNearBorder, boundary)
	insert(t, d, "near-new", base.Add(time.Minute), models.TypeNearBorder, boundary)
	insert(t, d, "standalone-1", base, models.TypeMKN2H, nil)
	insert(t, d, "standalone-2", base.Add(time.Minute), models.TypeMKN2H, nil)

	swept, err := d.SweepDuplicates(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, swept)

	assert.Equal(t, models.StatusDuplicate, statusOf(t, d, "old"))
	assert.Equal(t, models.StatusDuplicate, statusOf(t, d, "near-old"))
	for _, id := range []string{"new", "other-type", "near-new", "standalone-1", "standalone-2"} {
		assert.Equal(t, models.StatusQueued, statusOf(t, d, id), id)
	}

	swept, err = d.SweepDuplicates(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestListDispatchable_WinnersAndDueRetries(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	inc := incident(t, d, models.FamilyMKN)
	link := func(n *models.Notification) { n.IncidentID = &inc }
	now := base.Add(time.Hour)
	due := now.Add(-time.Minute)

	insert(t, d, "old", base, models.TypeMKN2H, link)
	insert(t, d, "new", base.Add(time.Minute), models.TypeMKN2H, link)
	insert(t, d, "standalone", base.Add(2*time.Minute), models.TypeNormal, nil)
	insert(t, d, "retry", base, models.TypeNormal, func(n *models.Notification) {
		n.Status, n.RetryCount, n.NextRetryAt = models.StatusFailed, 1, &due
	})
	insert(t, d, "terminal", base, models.TypeNormal, func(n *models.Notification) {
		n.Status, n.RetryCount = models.StatusFailed, 3
	})

	ids := func(ns []models.Notification) []string {
		out := make([]string, 0, len(ns))
		for _, n := range ns {
			out = append(out, n.ID)
		}
		return out
	}

	got, err := d.ListDispatchable(ctx, now, false, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "standalone"}, ids(got))

	got, err = d.ListDispatchable(ctx, now, true, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"retry", "new", "standalone"}, ids(got))
}

func TestClaimForSending_SingleWinner(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	insert(t, d, "a", base, models.TypeNormal, nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := d.ClaimForSending(ctx, "a", models.StatusQueued)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	assert.Equal(t, models.StatusSending, statusOf(t, d, "a"))

	next := base.Add(2 * time.Minute)
	require.NoError(t, d.MarkFailed(ctx, "a", models.FailureNetworkError, 1, &next, base))
	assert.ErrorIs(t, d.MarkFailed(ctx, "a", models.FailureNetworkError, 2, nil, base), models.ErrConflict)
	assert.ErrorIs(t, d.MarkSent(ctx, "a", base), models.ErrConflict)

	n, err := d.GetNotification(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	assert.Equal(t, models.FailureNetworkError, n.FailureReason)
}

func TestAdvisoryLease_Exclusive(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	first, second := NewAdvisoryLease(d, 424242), NewAdvisoryLease(d, 424242)

	release, ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release, ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}
