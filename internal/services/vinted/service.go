package vinted

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
	"github.com/matthiasrib29/StoFlow-sub015/internal/registry"
)

// Service implements the bridged marketplace actions. Every API call is
// proxied through the tenant's browser extension, which executes it
// inside the logged-in session.
type Service struct {
	bridge interfaces.PluginBridge
	config *common.VintedConfig
	logger arbor.ILogger
}

// NewService creates the vinted action service
func NewService(bridge interfaces.PluginBridge, config *common.VintedConfig, logger arbor.ILogger) *Service {
	return &Service{
		bridge: bridge,
		config: config,
		logger: logger,
	}
}

// Handlers returns the action handlers this service registers
func (s *Service) Handlers() []*registry.Handler {
	return []*registry.Handler{
		{
			Marketplace:    models.MarketplaceVinted,
			ActionCode:     models.ActionPublish,
			Name:           "Publish product to Vinted",
			RequiredInputs: []string{"product_id", "title", "price"},
			Tasks: []registry.TaskSpec{
				{Description: "build listing payload", Type: models.TaskTypeDB, Run: s.buildListingPayload},
				{Description: "create listing", Type: models.TaskTypePluginHTTP, Run: s.createListing},
				{Description: "verify listing", Type: models.TaskTypePluginHTTP, Run: s.verifyListing},
			},
		},
		{
			Marketplace:    models.MarketplaceVinted,
			ActionCode:     models.ActionUpdate,
			Name:           "Update Vinted listing",
			RequiredInputs: []string{"product_id", "listing_id"},
			Tasks: []registry.TaskSpec{
				{Description: "build listing payload", Type: models.TaskTypeDB, Run: s.buildListingPayload},
				{Description: "update listing", Type: models.TaskTypePluginHTTP, Run: s.updateListing},
			},
		},
		{
			Marketplace:    models.MarketplaceVinted,
			ActionCode:     models.ActionDelete,
			Name:           "Delete Vinted listing",
			RequiredInputs: []string{"listing_id"},
			Tasks: []registry.TaskSpec{
				{Description: "delete listing", Type: models.TaskTypePluginHTTP, Run: s.deleteListing},
			},
		},
		{
			Marketplace: models.MarketplaceVinted,
			ActionCode:  models.ActionSync,
			Name:        "Sync Vinted listings",
			Tasks: []registry.TaskSpec{
				{Description: "fetch remote listings", Type: models.TaskTypePluginHTTP, Run: s.fetchListings},
			},
		},
		{
			Marketplace: models.MarketplaceVinted,
			ActionCode:  models.ActionSyncOrders,
			Name:        "Sync Vinted orders",
			Tasks: []registry.TaskSpec{
				{Description: "fetch remote orders", Type: models.TaskTypePluginHTTP, Run: s.fetchOrders},
			},
		},
	}
}

// call proxies one API call through the plugin bridge and maps the
// reported status onto the error taxonomy. A 401/403 means the session
// cookie died, which is terminal for the job.
func (s *Service) call(ctx context.Context, job *models.Job, method, path, description string, body interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode payload: %s", models.ErrInvalidInput, err.Error())
		}
		raw = encoded
	}

	req := models.NewPluginRequest(job.TenantID, method, path, description, raw)
	resp, err := s.bridge.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		switch resp.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, fmt.Errorf("%w: vinted session rejected the call (status %d)", models.ErrSessionLost, resp.Status)
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: vinted throttled the call", models.ErrRateLimited)
		case 0:
			return nil, fmt.Errorf("%w: %s", models.ErrUpstreamFailure, resp.Error)
		default:
			return nil, fmt.Errorf("%w: status %d: %s", models.ErrUpstreamFailure, resp.Status, resp.Error)
		}
	}
	return resp.Data, nil
}

// buildListingPayload normalizes the job input into the listing body
// used by the subsequent API tasks
func (s *Service) buildListingPayload(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"title":       job.InputData["title"],
		"price":       job.InputData["price"],
		"description": job.InputData["description"],
		"currency":    "EUR",
	}
	if photos, ok := job.InputData["photos"]; ok {
		payload["photos"] = photos
	}
	return map[string]interface{}{"listing_payload": payload}, nil
}

func (s *Service) createListing(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	payload, ok := job.ResultData["listing_payload"]
	if !ok {
		return nil, fmt.Errorf("%w: listing payload missing from earlier step", models.ErrInvariantViolation)
	}

	data, err := s.call(ctx, job, "POST", "/api/v2/items", "create listing for "+job.ProductID, payload)
	if err != nil {
		return nil, err
	}

	var created struct {
		Item struct {
			ID json.Number `json:"id"`
		} `json:"item"`
	}
	if err := json.Unmarshal(data, &created); err != nil || created.Item.ID == "" {
		return nil, fmt.Errorf("%w: create response missing item id", models.ErrUpstreamFailure)
	}
	return map[string]interface{}{"listing_id": created.Item.ID.String()}, nil
}

func (s *Service) verifyListing(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	listingID, err := stringValue(job.ResultData, "listing_id")
	if err != nil {
		return nil, err
	}

	_, err = s.call(ctx, job, "GET", "/api/v2/items/"+listingID, "verify listing "+listingID, nil)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"verified": true}, nil
}

func (s *Service) updateListing(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	listingID, err := stringValue(job.InputData, "listing_id")
	if err != nil {
		return nil, err
	}

	payload := job.ResultData["listing_payload"]
	_, err = s.call(ctx, job, "PUT", "/api/v2/items/"+listingID, "update listing "+listingID, payload)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"listing_id": listingID, "updated": true}, nil
}

func (s *Service) deleteListing(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	listingID, err := stringValue(job.InputData, "listing_id")
	if err != nil {
		return nil, err
	}

	_, err = s.call(ctx, job, "DELETE", "/api/v2/items/"+listingID, "delete listing "+listingID, nil)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": true}, nil
}

func (s *Service) fetchListings(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	data, err := s.call(ctx, job, "GET", "/api/v2/wardrobe/items?per_page=100", "fetch wardrobe listings", nil)
	if err != nil {
		return nil, err
	}

	var wardrobe struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &wardrobe); err != nil {
		return nil, fmt.Errorf("%w: unreadable wardrobe response", models.ErrUpstreamFailure)
	}
	return map[string]interface{}{
		"remote_count": len(wardrobe.Items),
		"items":        wardrobe.Items,
	}, nil
}

func (s *Service) fetchOrders(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	data, err := s.call(ctx, job, "GET", "/api/v2/my_orders?status=all", "fetch orders", nil)
	if err != nil {
		return nil, err
	}

	var orders struct {
		Orders []json.RawMessage `json:"my_orders"`
	}
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("%w: unreadable orders response", models.ErrUpstreamFailure)
	}
	return map[string]interface{}{"order_count": len(orders.Orders), "orders": orders.Orders}, nil
}

// stringValue reads a required string from a result or input map
func stringValue(data map[string]interface{}, key string) (string, error) {
	v, ok := data[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", models.ErrInvalidInput, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", models.ErrInvalidInput, key)
	}
	return s, nil
}
