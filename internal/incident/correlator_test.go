package incident

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ship-notification-service/internal/catalog"
	"ship-notification-service/internal/dedup"
	"ship-notification-service/internal/memstore"
	"ship-notification-service/internal/models"
)

var t0 = time.Date(2026, 5, 10, 1, 0, 0, 0, time.UTC)

func newCorrelator(t *testing.T) (*Correlator, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	logger, _ := test.NewNullLogger()
	d := dedup.New(st, catalog.New(catalog.Defaults), logger)
	c := New(st, st, d, logger)
	c.now = func() time.Time { return t0.Add(time.Hour) }
	return c, st
}

func alert(typ models.NotificationType, at time.Time) *models.Notification {
	return &models.Notification{ShipCode: "VN-001", Type: typ, OccurredAt: at}
}

func TestCorrelate_MKNChainSharesIncident(t *testing.T) {
	c, st := newCorrelator(t)
	ctx := context.Background()

	first := alert(models.TypeMKN6H, t0)
	_, err := c.Correlate(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, first.IncidentID)
	assert.Equal(t, models.StatusQueued, first.Status)

	second := alert(models.TypeMKN8D, t0.Add(time.Minute))
	_, err = c.Correlate(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, second.IncidentID)
	assert.Equal(t, *first.IncidentID, *second.IncidentID)
	assert.Equal(t, models.StatusQueued, second.Status)

	inc, err := st.GetIncident(ctx, *first.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, string(models.TypeMKN8D), inc.Type)
	assert.Equal(t, t0, inc.StartedAt)
	assert.True(t, inc.Open())
}

func TestCorrelate_NonEscalatingIsDuplicate(t *testing.T) {
	c, st := newCorrelator(t)
	ctx := context.Background()

	_, err := c.Correlate(ctx, alert(models.TypeMKN6H, t0))
	require.NoError(t, err)

	same := alert(models.TypeMKN6H, t0.Add(time.Minute))
	_, err = c.Correlate(ctx, same)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDuplicate, same.Status)

	lower := alert(models.TypeMKN2H, t0.Add(2*time.Minute))
	_, err = c.Correlate(ctx, lower)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDuplicate, lower.Status)

	inc, err := st.GetIncident(ctx, *same.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, string(models.TypeMKN2H), inc.Type, "the incident follows the last correlated alert")
}

func TestCorrelate_EscalationComparesAgainstLastAlert(t *testing.T) {
	c, st := newCorrelator(t)
	ctx := context.Background()

	first := alert(models.TypeMKN8D, t0)
	_, err := c.Correlate(ctx, first)
	require.NoError(t, err)

	down := alert(models.TypeMKN2H, t0.Add(time.Minute))
	_, err = c.Correlate(ctx, down)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDuplicate, down.Status)

	inc, err := st.GetIncident(ctx, *first.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, string(models.TypeMKN2H), inc.Type)

	up := alert(models.TypeMKN5H, t0.Add(2*time.Minute))
	_, err = c.Correlate(ctx, up)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, up.Status)

	inc, err = st.GetIncident(ctx, *first.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, string(models.TypeMKN5H), inc.Type)
}

func TestCorrelate_ReconnectClosesIncidents(t *testing.T) {
	c, st := newCorrelator(t)
	ctx := context.Background()

	first := alert(models.TypeMKN6H, t0)
	_, err := c.Correlate(ctx, first)
	require.NoError(t, err)

	knl := alert(models.TypeKNL, t0.Add(2*time.Minute))
	boundary, err := c.Correlate(ctx, knl)
	require.NoError(t, err)
	assert.False(t, boundary)
	assert.Nil(t, knl.IncidentID)
	assert.Equal(t, models.StatusQueued, knl.Status)

	inc, err := st.GetIncident(ctx, *first.IncidentID)
	require.NoError(t, err)
	require.NotNil(t, inc.ResolvedAt)
	assert.Equal(t, t0.Add(2*time.Minute), *inc.ResolvedAt)

	// the next alert opens a fresh incident
	next := alert(models.TypeMKN2H, t0.Add(time.Hour))
	_, err = c.Correlate(ctx, next)
	require.NoError(t, err)
	assert.NotEqual(t, *first.IncidentID, *next.IncidentID)
	assert.Equal(t, models.StatusQueued, next.Status)
}

func TestCorrelate_BoundaryAlwaysOpensNewIncident(t *testing.T) {
	c, st := newCorrelator(t)
	ctx := context.Background()

	var ids []string
	for i, code := range []string{models.BoundaryNear, models.BoundaryCrossed, models.BoundaryCrossed} {
		n := alert(models.TypeNormal, t0.Add(time.Duration(i)*time.Minute))
		n.BoundaryStatusCode = code
		boundary, err := c.Correlate(ctx, n)
		require.NoError(t, err)
		assert.True(t, boundary)
		require.NotNil(t, n.BoundaryIncidentID)
		ids = append(ids, *n.BoundaryIncidentID)
	}
	assert.Len(t, map[string]bool{ids[0]: true, ids[1]: true, ids[2]: true}, 3)

	near, err := st.GetIncident(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.IncidentBoundaryNear, near.Type)
	crossed, err := st.GetIncident(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.IncidentBoundaryCrossed, crossed.Type)
}

func TestCorrelate_InsideBoundaryIgnored(t *testing.T) {
	c, _ := newCorrelator(t)
	n := alert(models.TypeNormal, t0)
	n.BoundaryStatusCode = models.BoundaryInside
	boundary, err := c.Correlate(context.Background(), n)
	require.NoError(t, err)
	assert.False(t, boundary)
	assert.True(t, n.Standalone())
}

func TestResolveByReport(t *testing.T) {
	c, st := newCorrelator(t)
	ctx := context.Background()

	n := alert(models.TypeMKN6H, t0)
	n.ClientRequestID, n.RequestID = "c1", "r1"
	_, err := c.Correlate(ctx, n)
	require.NoError(t, err)
	require.NoError(t, st.CreateNotification(ctx, n))

	inc, err := c.ResolveByReport(ctx, n.ID, t0.Add(90*time.Minute+20*time.Second))
	require.NoError(t, err)
	require.NotNil(t, inc)
	require.NotNil(t, inc.ResolvedAt)
	assert.Equal(t, t0.Add(time.Hour), *inc.ResolvedAt)
	require.NotNil(t, inc.ResponseMinutesFromBaseline)
	assert.Equal(t, 90, *inc.ResponseMinutesFromBaseline)

	// a second report leaves the resolved incident untouched
	again, err := c.ResolveByReport(ctx, n.ID, t0.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 90, *again.ResponseMinutesFromBaseline)
}

func TestResolveByReport_NoIncident(t *testing.T) {
	c, st := newCorrelator(t)
	ctx := context.Background()
	n := alert(models.TypeNormal, t0)
	n.ClientRequestID, n.RequestID = "c1", "r1"
	require.NoError(t, st.CreateNotification(ctx, n))

	inc, err := c.ResolveByReport(ctx, n.ID, t0)
	require.NoError(t, err)
	assert.Nil(t, inc)

	_, err = c.ResolveByReport(ctx, "missing", t0)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResponseMinutes(t *testing.T) {
	assert.Equal(t, 0, ResponseMinutes(t0, t0.Add(-time.Hour)))
	assert.Equal(t, 2, ResponseMinutes(t0, t0.Add(90*time.Second)))
	assert.Equal(t, 1, ResponseMinutes(t0, t0.Add(89*time.Second)))
}
