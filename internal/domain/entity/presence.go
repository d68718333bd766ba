package entity

import "time"

// PresenceEntry is the live connection currently representing a user. Never persisted.
type PresenceEntry struct {
	UserID       string    `json:"user_id"`
	UserRole     string    `json:"user_role,omitempty"`
	ConnectionID string    `json:"connection_id"`
	ConnectedAt  time.Time `json:"connected_at"`
}
