package ebay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/httpclient"
	"github.com/matthiasrib29/StoFlow-sub015/internal/interfaces"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
	"github.com/matthiasrib29/StoFlow-sub015/internal/registry"
)

// Service implements the eBay actions over the Sell API. Calls are made
// directly by the orchestrator with the tenant's OAuth token.
type Service struct {
	connections interfaces.ConnectionStorage
	config      *common.EbayConfig
	logger      arbor.ILogger
}

// NewService creates the ebay action service
func NewService(connections interfaces.ConnectionStorage, config *common.EbayConfig, logger arbor.ILogger) *Service {
	return &Service{
		connections: connections,
		config:      config,
		logger:      logger,
	}
}

// Handlers returns the action handlers this service registers
func (s *Service) Handlers() []*registry.Handler {
	return []*registry.Handler{
		{
			Marketplace:    models.MarketplaceEbay,
			ActionCode:     models.ActionPublish,
			Name:           "Publish product to eBay",
			RequiredInputs: []string{"product_id", "sku", "title", "price"},
			Tasks: []registry.TaskSpec{
				{Description: "create inventory item", Type: models.TaskTypeDirectHTTP, Run: s.createInventoryItem},
				{Description: "create offer", Type: models.TaskTypeDirectHTTP, Run: s.createOffer},
				{Description: "publish offer", Type: models.TaskTypeDirectHTTP, Run: s.publishOffer},
			},
		},
		{
			Marketplace:    models.MarketplaceEbay,
			ActionCode:     models.ActionUpdate,
			Name:           "Update eBay listing",
			RequiredInputs: []string{"sku"},
			Tasks: []registry.TaskSpec{
				{Description: "update inventory item", Type: models.TaskTypeDirectHTTP, Run: s.createInventoryItem},
			},
		},
		{
			Marketplace:    models.MarketplaceEbay,
			ActionCode:     models.ActionDelete,
			Name:           "End eBay listing",
			RequiredInputs: []string{"offer_id"},
			Tasks: []registry.TaskSpec{
				{Description: "withdraw offer", Type: models.TaskTypeDirectHTTP, Run: s.withdrawOffer},
			},
		},
		{
			Marketplace: models.MarketplaceEbay,
			ActionCode:  models.ActionSync,
			Name:        "Sync eBay inventory",
			Tasks: []registry.TaskSpec{
				{Description: "fetch inventory items", Type: models.TaskTypeDirectHTTP, Run: s.fetchInventory},
			},
		},
		{
			Marketplace: models.MarketplaceEbay,
			ActionCode:  models.ActionSyncOrders,
			Name:        "Sync eBay orders",
			Tasks: []registry.TaskSpec{
				{Description: "fetch orders", Type: models.TaskTypeDirectHTTP, Run: s.fetchOrders},
			},
		},
	}
}

// client builds an authenticated API client for the job's tenant. A
// missing or disconnected eBay connection fails the job terminally.
func (s *Service) client(ctx context.Context, tenantID string) (*httpclient.Client, error) {
	conn, err := s.connections.GetConnection(ctx, tenantID, models.MarketplaceEbay)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: tenant %s has no ebay connection", models.ErrSessionLost, tenantID)
	}
	if err != nil {
		return nil, err
	}
	if !conn.IsConnected {
		return nil, fmt.Errorf("%w: tenant %s ebay connection is disabled", models.ErrSessionLost, tenantID)
	}

	var token oauth2.Token
	if err := json.Unmarshal(conn.Credentials, &token); err != nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: tenant %s ebay credentials are unreadable", models.ErrSessionLost, tenantID)
	}

	timeout := common.ParseDuration(s.config.RequestTimeout, 0)
	return httpclient.NewWithToken(ctx, s.config.BaseURL, timeout, &token, s.logger), nil
}

func (s *Service) createInventoryItem(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	sku, err := stringValue(job.InputData, "sku")
	if err != nil {
		return nil, err
	}

	item := map[string]interface{}{
		"product": map[string]interface{}{
			"title":       job.InputData["title"],
			"description": job.InputData["description"],
		},
		"availability": map[string]interface{}{
			"shipToLocationAvailability": map[string]interface{}{"quantity": 1},
		},
	}
	if _, err := client.Do(ctx, "PUT", "/sell/inventory/v1/inventory_item/"+sku, item); err != nil {
		return nil, err
	}
	return map[string]interface{}{"sku": sku}, nil
}

func (s *Service) createOffer(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	sku, err := stringValue(job.InputData, "sku")
	if err != nil {
		return nil, err
	}

	offer := map[string]interface{}{
		"sku":           sku,
		"marketplaceId": "EBAY_FR",
		"format":        "FIXED_PRICE",
		"pricingSummary": map[string]interface{}{
			"price": map[string]interface{}{"value": job.InputData["price"], "currency": "EUR"},
		},
	}
	data, err := client.Do(ctx, "POST", "/sell/inventory/v1/offer", offer)
	if err != nil {
		return nil, err
	}

	var created struct {
		OfferID string `json:"offerId"`
	}
	if err := json.Unmarshal(data, &created); err != nil || created.OfferID == "" {
		return nil, fmt.Errorf("%w: offer response missing offerId", models.ErrUpstreamFailure)
	}
	return map[string]interface{}{"offer_id": created.OfferID}, nil
}

func (s *Service) publishOffer(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	offerID, err := stringValue(job.ResultData, "offer_id")
	if err != nil {
		return nil, err
	}

	data, err := client.Do(ctx, "POST", "/sell/inventory/v1/offer/"+offerID+"/publish", nil)
	if err != nil {
		return nil, err
	}

	var published struct {
		ListingID string `json:"listingId"`
	}
	if err := json.Unmarshal(data, &published); err == nil && published.ListingID != "" {
		return map[string]interface{}{"listing_id": published.ListingID}, nil
	}
	return map[string]interface{}{"published": true}, nil
}

func (s *Service) withdrawOffer(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	offerID, err := stringValue(job.InputData, "offer_id")
	if err != nil {
		return nil, err
	}

	if _, err := client.Do(ctx, "POST", "/sell/inventory/v1/offer/"+offerID+"/withdraw", nil); err != nil {
		return nil, err
	}
	return map[string]interface{}{"withdrawn": true}, nil
}

func (s *Service) fetchInventory(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	data, err := client.Do(ctx, "GET", "/sell/inventory/v1/inventory_item?limit=100", nil)
	if err != nil {
		return nil, err
	}

	var page struct {
		InventoryItems []json.RawMessage `json:"inventoryItems"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("%w: unreadable inventory response", models.ErrUpstreamFailure)
	}
	return map[string]interface{}{"item_count": len(page.InventoryItems), "items": page.InventoryItems}, nil
}

func (s *Service) fetchOrders(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	data, err := client.Do(ctx, "GET", "/sell/fulfillment/v1/order?limit=50", nil)
	if err != nil {
		return nil, err
	}

	var page struct {
		Orders []json.RawMessage `json:"orders"`
		Total  int               `json:"total"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("%w: unreadable orders response", models.ErrUpstreamFailure)
	}
	return map[string]interface{}{"order_count": len(page.Orders), "orders": page.Orders}, nil
}

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
