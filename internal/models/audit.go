package models

import "time"

// Audit levels.
const (
	AuditLevelInfo    = "INFO"
	AuditLevelWarning = "WARNING"
	AuditLevelSevere  = "SEVERE"
)

// AuditEvent is an append-only security event. Channel identifies the client
// that triggered the event, typically an IP address or a university ID.
type AuditEvent struct {
	ID        string    `db:"id" json:"id"`
	Level     string    `db:"level" json:"level"`
	Message   string    `db:"message" json:"message"`
	Channel   string    `db:"channel" json:"channel"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
