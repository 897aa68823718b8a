package interfaces

import (
	"context"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// PluginBridge correlates HTTP-like requests sent to the browser extension
// with their responses. Delivery prefers a live push socket and falls back
// to extension long-polling.
type PluginBridge interface {
	// Do submits a request and blocks until the extension reports a
	// response or the request deadline passes. Returns ErrSessionLost when
	// the tenant's session is disconnected, ErrChannelSaturated when the
	// tenant's pending queue is full and ErrTimeout on deadline expiry.
	Do(ctx context.Context, req *models.PluginRequest) (*models.PluginResponse, error)

	// Poll is the long-poll entry point: it blocks up to timeout waiting
	// for deliverable requests and returns them, or an empty slice at the
	// deadline. The boolean reports whether any requests are still
	// awaiting a report.
	Poll(ctx context.Context, tenantID string, timeoutSecs int) ([]*models.PluginRequest, bool, error)

	// Report completes the pending request matching the response's
	// request_id. Duplicate reports for the same ID are no-ops.
	Report(ctx context.Context, tenantID string, resp *models.PluginResponse) error

	// NotifyDisconnect marks the tenant's bridged session as lost, fails
	// all in-flight requests with ErrSessionLost and refuses new ones
	// until reconnection. Idempotent.
	NotifyDisconnect(ctx context.Context, tenantID string) error

	// NotifyReconnect re-enables the tenant's bridged session
	NotifyReconnect(ctx context.Context, tenantID string) error
}
