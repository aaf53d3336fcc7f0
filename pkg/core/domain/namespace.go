package domain

import "time"

// Namespace groups shortcodes for a tenant. Name is globally unique and stored lowercased.
type Namespace struct {
	ID             string    `json:"namespace_id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Permissions checked by the management API.
const (
	PermURLRead        = "url:read"
	PermURLWrite       = "url:write"
	PermAnalyticsRead  = "analytics:read"
	PermNamespaceEdit  = "namespace:write"
	PermNamespaceAdmin = "namespace:admin"
	PermCacheAdmin     = "cache:admin"
)
