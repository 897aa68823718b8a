// -----------------------------------------------------------------------
// Plugin bridge wire types - requests proxied through the extension
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
)

// DefaultPluginTimeoutSecs is the default deadline for a bridge request
const DefaultPluginTimeoutSecs = 60

// PluginRequest is an HTTP-like request handed to the browser extension
// for execution inside the user's logged-in session.
type PluginRequest struct {
	RequestID   string            `json:"request_id"`
	TenantID    string            `json:"tenant_id"`
	Method      string            `json:"method"` // GET, POST, PUT, DELETE
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
	TimeoutSecs int               `json:"timeout_s"`
	Description string            `json:"description,omitempty"`
}

// PluginResponse is the extension's report for a completed request
type PluginResponse struct {
	RequestID string            `json:"request_id"`
	Success   bool              `json:"success"`
	Status    int               `json:"status,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// NewPluginRequest builds a bridge request with a fresh correlation ID
func NewPluginRequest(tenantID, method, path, description string, body json.RawMessage) *PluginRequest {
	return &PluginRequest{
		RequestID:   NewRequestID(),
		TenantID:    tenantID,
		Method:      method,
		Path:        path,
		Body:        body,
		TimeoutSecs: DefaultPluginTimeoutSecs,
		Description: description,
	}
}

// Validate validates the bridge request
func (r *PluginRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("request ID is required")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	switch r.Method {
	case "GET", "POST", "PUT", "DELETE":
	default:
		return fmt.Errorf("unsupported method: %s", r.Method)
	}
	if r.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
