// internal/models/integration.go
package models

import "time"

// Integration platforms other than review platforms
const (
	PlatformZapier     = "zapier"
	PlatformQuickBooks = "quickbooks"
)

// Integration statuses
const (
	IntegrationConnected    = "connected"
	IntegrationError        = "error"
	IntegrationDisconnected = "disconnected"
)

// Integration is a business's connection to one external system.
type Integration struct {
	ID                  string     `json:"id"`
	BusinessID          string     `json:"business_id"`
	Platform            string     `json:"platform"`
	Credential          string     `json:"-"`
	Secret              string     `json:"-"`
	ExternalRef         string     `json:"external_ref,omitempty"` // e.g. Google place id
	Status              string     `json:"status"`
	Cursor              string     `json:"cursor,omitempty"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
}

// Usable reports whether the integration can be used for a fetch.
func (i *Integration) Usable() bool {
	return i != nil && i.Status == IntegrationConnected && i.Credential != ""
}
