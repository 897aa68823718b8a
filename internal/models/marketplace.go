package models

import (
	"encoding/json"
	"time"
)

// Marketplace identifies an external commerce system target
type Marketplace string

const (
	MarketplaceVinted Marketplace = "vinted" // Plugin-bridged: traffic proxied through a browser extension
	MarketplaceEbay   Marketplace = "ebay"   // Direct API
	MarketplaceEtsy   Marketplace = "etsy"   // Direct API
)

// IsValidMarketplace returns true for a known marketplace
func IsValidMarketplace(m Marketplace) bool {
	switch m {
	case MarketplaceVinted, MarketplaceEbay, MarketplaceEtsy:
		return true
	}
	return false
}

// IsBridged returns true if the marketplace is reached via the plugin bridge
func (m Marketplace) IsBridged() bool {
	return m == MarketplaceVinted
}

// Action codes shared across marketplaces
const (
	ActionPublish    = "publish"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionSync       = "sync"
	ActionSyncOrders = "sync_orders"
)

// ActionType is reference data identifying an action declared in the
// registry. Stored in the shared schema, never per tenant.
type ActionType struct {
	ID          string      `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Marketplace Marketplace `json:"marketplace"`
}

// MarketplaceConnection tracks per-tenant connectivity to a marketplace.
// Credentials is an opaque handle: an oauth2 token blob for direct
// marketplaces, unused for bridged ones (the extension holds the session).
type MarketplaceConnection struct {
	TenantID    string          `json:"tenant_id"`
	Marketplace Marketplace     `json:"marketplace"`
	IsConnected bool            `json:"is_connected"`
	Credentials json.RawMessage `json:"credentials,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ConnectionKey builds the shared-store key for a connection record
func ConnectionKey(tenantID string, marketplace Marketplace) string {
	return tenantID + ":" + string(marketplace)
}
