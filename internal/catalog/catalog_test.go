package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ship-notification-service/internal/memstore"
	"ship-notification-service/internal/models"
)

func TestLoad_SeedsDefaults(t *testing.T) {
	st := memstore.New()
	c, err := Load(context.Background(), st)
	require.NoError(t, err)

	defs, err := st.ListTypeDefinitions(context.Background())
	require.NoError(t, err)
	assert.Len(t, defs, len(Defaults))
	assert.Equal(t, 3, c.Priority(models.TypeMKN6H))
}

func TestLoad_KeepsStoredOverrides(t *testing.T) {
	st := memstore.New()
	require.NoError(t, st.UpsertTypeDefinition(context.Background(), models.TypeDefinition{
		Type: models.TypeMKN2H, Title: "custom", Priority: 9,
	}))

	c, err := Load(context.Background(), st)
	require.NoError(t, err)
	d, ok := c.Lookup(models.TypeMKN2H)
	require.True(t, ok)
	assert.Equal(t, "custom", d.Title)
	assert.Equal(t, 9, d.Priority)
}

func TestDefaults_MKNEscalates(t *testing.T) {
	c := New(Defaults)
	tiers := []models.NotificationType{models.TypeMKN2H, models.TypeMKN5H, models.TypeMKN6H, models.TypeMKN8D, models.TypeMKN10D}
	for i := 1; i < len(tiers); i++ {
		assert.Greater(t, c.Priority(tiers[i]), c.Priority(tiers[i-1]), tiers[i])
	}
	assert.Equal(t, 0, c.Priority("UNKNOWN"))
}

func TestCatalog_ConcurrentReadsAfterLoad(t *testing.T) {
	c, err := Load(context.Background(), memstore.New())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, d := range Defaults {
				got, ok := c.Lookup(d.Type)
				assert.True(t, ok)
				assert.Equal(t, d.Priority, got.Priority)
			}
		}()
	}
	wg.Wait()
}
