package models

// TypeDefinition is a notification-type catalog entry.
type TypeDefinition struct {
	Type     NotificationType `json:"type"`
	Title    string           `json:"title"`
	Template string           `json:"template"`
	Priority int              `json:"priority"`
}
