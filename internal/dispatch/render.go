package dispatch

import (
	"strings"
	"time"

	"ship-notification-service/internal/models"
	"ship-notification-service/pkg/geo"
)

const timeLayout = "15:04 02/01/2006"

type typeLookup interface {
	Lookup(t models.NotificationType) (models.TypeDefinition, bool)
}

// Renderer substitutes notification fields into catalog templates.
type Renderer struct {
	catalog   typeLookup
	loc       *time.Location
	agentCode string
}

func NewRenderer(catalog typeLookup, loc *time.Location, agentCode string) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{catalog: catalog, loc: loc, agentCode: agentCode}
}

// LoadLocation resolves a zone name, falling back to UTC+7 when tzdata is unavailable.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}

// Render returns the title and body for n. Without a template the body is the raw content.
func (r *Renderer) Render(n models.Notification) (title, body string) {
	def, ok := r.catalog.Lookup(n.Type)
	replacer := r.replacer(n)

	title = string(n.Type)
	if ok && def.Title != "" {
		title = replacer.Replace(def.Title)
	}
	if !ok || def.Template == "" {
		return title, n.Content
	}
	return title, strings.TrimSpace(replacer.Replace(def.Template))
}

func (r *Renderer) replacer(n models.Notification) *strings.Replacer {
	lat, lng := "-", "-"
	if n.Lat != nil {
		lat = geo.Lat(*n.Lat)
	}
	if n.Lng != nil {
		lng = geo.Lng(*n.Lng)
	}
	agent := n.AgentCode
	if agent == "" {
		agent = r.agentCode
	}
	return strings.NewReplacer(
		"{ship_code}", n.ShipCode,
		"{time}", n.OccurredAt.In(r.loc).Format(timeLayout),
		"{lat}", lat,
		"{lng}", lng,
		"{owner_name}", n.OwnerName,
		"{owner_phone}", n.OwnerPhone,
		"{content}", n.Content,
		"{agent_code}", agent,
	)
}
