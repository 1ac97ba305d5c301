// Package domain contains shared entities.
package domain

import "time"

// Platform identifies the downstream chat platform an integration targets.
// Used for headers and logging only; delivery is platform-agnostic.
type Platform string

// Known platforms.
const (
	PlatformMattermost Platform = "mattermost"
	PlatformSlack      Platform = "slack"
	PlatformDiscord    Platform = "discord"
	PlatformTeams      Platform = "teams"
	PlatformGeneric    Platform = "generic"
)

// Integration describes a configured outbound webhook target.
type Integration struct {
	ID          string    `json:"id"`
	TenantID    *string   `json:"tenant_id,omitempty"`
	Platform    Platform  `json:"platform"`
	Name        string    `json:"name"`
	WebhookURL  string    `json:"webhook_url"`
	ContentType string    `json:"content_type"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
