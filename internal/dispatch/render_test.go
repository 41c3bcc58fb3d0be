package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ship-notification-service/internal/catalog"
	"ship-notification-service/internal/models"
)

func TestRender_Template(t *testing.T) {
	r := NewRenderer(catalog.New(catalog.Defaults), LoadLocation("Asia/Ho_Chi_Minh"), "AG-01")
	lat, lng := 10.5, 107.25
	title, body := r.Render(models.Notification{
		ShipCode:   "VN-002",
		Type:       models.TypeCrossBorder,
		OccurredAt: time.Date(2026, 1, 2, 17, 30, 0, 0, time.UTC),
		Lat:        &lat,
		Lng:        &lng,
		Content:    "kiem tra ngay",
	})
	assert.Equal(t, "Tàu VN-002 vượt ranh giới", title)
	assert.Equal(t, "Tàu VN-002 đã vượt ranh giới vùng biển lúc 00:30 03/01/2026 tại 10°30'00.00\"N, 107°15'00.00\"E. kiem tra ngay", body)
}

func TestRender_FallsBackToContent(t *testing.T) {
	r := NewRenderer(catalog.New(nil), time.UTC, "")
	title, body := r.Render(models.Notification{Type: models.TypeMKN2H, Content: "raw text"})
	assert.Equal(t, "MKN_2H", title)
	assert.Equal(t, "raw text", body)
}

func TestRender_MissingCoordinates(t *testing.T) {
	r := NewRenderer(catalog.New(catalog.Defaults), time.UTC, "")
	_, body := r.Render(models.Notification{ShipCode: "VN-003", Type: models.TypeNearBorder})
	assert.Contains(t, body, "tại -, -")
}

func TestLoadLocation_Fallback(t *testing.T) {
	loc := LoadLocation("Not/AZone")
	_, offset := time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 7*3600, offset)
}
