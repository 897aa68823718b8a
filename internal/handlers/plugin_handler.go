package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/bridge"
	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/facade"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// PluginHandler serves the browser extension channel: long-polling for
// work, reporting results and the push websocket
type PluginHandler struct {
	facade  *facade.Service
	sockets *bridge.SocketManager
	config  *common.BridgeConfig
	logger  arbor.ILogger
}

// NewPluginHandler creates a plugin handler
func NewPluginHandler(f *facade.Service, sockets *bridge.SocketManager, config *common.BridgeConfig, logger arbor.ILogger) *PluginHandler {
	return &PluginHandler{
		facade:  f,
		sockets: sockets,
		config:  config,
		logger:  logger,
	}
}

// PollTasksHandler handles GET /api/plugin/tasks. The request blocks up
// to the timeout waiting for deliverable requests; an empty list tells
// the extension to poll again after next_poll_interval_ms.
func (h *PluginHandler) PollTasksHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	timeoutSecs := QueryInt(r, "timeout", 0)
	requests, hasPending, err := h.facade.PollPluginTasks(r.Context(), tenantID, timeoutSecs)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if requests == nil {
		requests = []*models.PluginRequest{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":                 requests,
		"has_pending_tasks":     hasPending,
		"next_poll_interval_ms": h.config.PollIntervalMs,
	})
}

// ReportResultHandler handles POST /api/plugin/tasks/{id}/result
func (h *PluginHandler) ReportResultHandler(w http.ResponseWriter, r *http.Request, requestID string) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	var resp models.PluginResponse
	if !DecodeJSON(w, r, &resp) {
		return
	}
	if resp.RequestID == "" {
		resp.RequestID = requestID
	}
	if resp.RequestID != requestID {
		WriteError(w, http.StatusBadRequest, "Request ID in body does not match path")
		return
	}

	if err := h.facade.ReportPluginResult(r.Context(), tenantID, &resp); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// NotifyDisconnectHandler handles POST /api/vinted/notify-disconnect.
// The extension calls this when it detects the marketplace session died.
func (h *PluginHandler) NotifyDisconnectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	if err := h.facade.NotifyPluginDisconnect(r.Context(), tenantID); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// SocketHandler handles GET /ws/plugin, the push channel upgrade
func (h *PluginHandler) SocketHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}
	h.sockets.HandleConnection(w, r, tenantID)
}
