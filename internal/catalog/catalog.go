// Package catalog holds the notification-type catalog: per-type priority,
// title and message template.
package catalog

import (
	"context"
	"fmt"

	"ship-notification-service/internal/models"
)

// Defaults seeds an empty catalog. MKN tiers escalate strictly by priority.
var Defaults = []models.TypeDefinition{
	{Type: models.TypeNormal, Priority: 0, Title: "Thông báo tàu {ship_code}",
		Template: "{content}"},
	{Type: models.TypeMKN2H, Priority: 1, Title: "Tàu {ship_code} mất kết nối 2 giờ",
		Template: "Tàu {ship_code} (chủ tàu {owner_name}, {owner_phone}) mất kết nối từ {time}. Vị trí cuối: {lat}, {lng}. {content}"},
	{Type: models.TypeMKN5H, Priority: 2, Title: "Tàu {ship_code} mất kết nối 5 giờ",
		Template: "Tàu {ship_code} (chủ tàu {owner_name}, {owner_phone}) mất kết nối từ {time}. Vị trí cuối: {lat}, {lng}. {content}"},
	{Type: models.TypeMKN6H, Priority: 3, Title: "Tàu {ship_code} mất kết nối 6 giờ",
		Template: "Tàu {ship_code} (chủ tàu {owner_name}, {owner_phone}) mất kết nối từ {time}. Vị trí cuối: {lat}, {lng}. Liên hệ đại lý {agent_code}. {content}"},
	{Type: models.TypeMKN8D, Priority: 4, Title: "Tàu {ship_code} mất kết nối 8 ngày",
		Template: "Tàu {ship_code} (chủ tàu {owner_name}, {owner_phone}) mất kết nối từ {time}. Vị trí cuối: {lat}, {lng}. Liên hệ đại lý {agent_code}. {content}"},
	{Type: models.TypeMKN10D, Priority: 5, Title: "Tàu {ship_code} mất kết nối 10 ngày",
		Template: "Tàu {ship_code} (chủ tàu {owner_name}, {owner_phone}) mất kết nối từ {time}. Vị trí cuối: {lat}, {lng}. Liên hệ đại lý {agent_code}. {content}"},
	{Type: models.TypeKNL, Priority: 0, Title: "Tàu {ship_code} đã kết nối lại",
		Template: "Tàu {ship_code} đã kết nối lại lúc {time}. {content}"},
	{Type: models.TypeNearBorder, Priority: 6, Title: "Tàu {ship_code} gần ranh giới",
		Template: "Tàu {ship_code} đang ở gần ranh giới vùng biển lúc {time} tại {lat}, {lng}. {content}"},
	{Type: models.TypeCrossBorder, Priority: 7, Title: "Tàu {ship_code} vượt ranh giới",
		Template: "Tàu {ship_code} đã vượt ranh giới vùng biển lúc {time} tại {lat}, {lng}. {content}"},
}

type store interface {
	ListTypeDefinitions(ctx context.Context) ([]models.TypeDefinition, error)
	UpsertTypeDefinition(ctx context.Context, def models.TypeDefinition) error
}

// Catalog is a snapshot of the notification_types table taken at startup.
// It is never written after Load returns, so it is safe for concurrent reads.
type Catalog struct {
	defs map[models.NotificationType]models.TypeDefinition
}

// New returns a catalog holding defs.
func New(defs []models.TypeDefinition) *Catalog {
	c := &Catalog{defs: make(map[models.NotificationType]models.TypeDefinition, len(defs))}
	for _, d := range defs {
		c.defs[d.Type] = d
	}
	return c
}

// Load reads the catalog from the store, seeding Defaults for any missing type.
func Load(ctx context.Context, s store) (*Catalog, error) {
	defs, err := s.ListTypeDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification catalog: %w", err)
	}
	c := New(defs)
	for _, d := range Defaults {
		if _, ok := c.defs[d.Type]; ok {
			continue
		}
		if err := s.UpsertTypeDefinition(ctx, d); err != nil {
			return nil, fmt.Errorf("failed to seed notification type %s: %w", d.Type, err)
		}
		c.defs[d.Type] = d
	}
	return c, nil
}

// Lookup returns the catalog entry for t.
func (c *Catalog) Lookup(t models.NotificationType) (models.TypeDefinition, bool) {
	d, ok := c.defs[t]
	return d, ok
}

// Priority returns the priority of t, or 0 when t is not catalogued.
func (c *Catalog) Priority(t models.NotificationType) int {
	d, _ := c.Lookup(t)
	return d.Priority
}
