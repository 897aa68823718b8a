package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/facade"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// ConnectionHandler serves marketplace connection routes
type ConnectionHandler struct {
	facade *facade.Service
	logger arbor.ILogger
}

// NewConnectionHandler creates a connection handler
func NewConnectionHandler(f *facade.Service, logger arbor.ILogger) *ConnectionHandler {
	return &ConnectionHandler{facade: f, logger: logger}
}

// ConnectionsHandler handles GET and PUT on /api/connections
func (h *ConnectionHandler) ConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPut, http.MethodPost:
		h.save(w, r)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *ConnectionHandler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	conns, err := h.facade.ListConnections(r.Context(), tenantID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"connections": conns})
}

func (h *ConnectionHandler) save(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantID(w, r)
	if !ok {
		return
	}

	var conn models.MarketplaceConnection
	if !DecodeJSON(w, r, &conn) {
		return
	}
	conn.TenantID = tenantID

	if err := h.facade.SaveConnection(r.Context(), &conn); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, conn)
}

// ActionTypesHandler handles GET /api/actions
func (h *ConnectionHandler) ActionTypesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	types, err := h.facade.ListActionTypes(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"actions": types})
}
