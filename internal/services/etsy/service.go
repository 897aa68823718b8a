package etsy

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

// Service implements the Etsy actions over the Open API v3 with the
// tenant's OAuth token
type Service struct {
	connections interfaces.ConnectionStorage
	config      *common.EtsyConfig
	logger      arbor.ILogger
}

// NewService creates the etsy action service
func NewService(connections interfaces.ConnectionStorage, config *common.EtsyConfig, logger arbor.ILogger) *Service {
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
			Marketplace:    models.MarketplaceEtsy,
			ActionCode:     models.ActionPublish,
			Name:           "Publish product to Etsy",
			RequiredInputs: []string{"product_id", "shop_id", "title", "price"},
			Tasks: []registry.TaskSpec{
				{Description: "create draft listing", Type: models.TaskTypeDirectHTTP, Run: s.createDraftListing},
				{Description: "activate listing", Type: models.TaskTypeDirectHTTP, Run: s.activateListing},
			},
		},
		{
			Marketplace:    models.MarketplaceEtsy,
			ActionCode:     models.ActionUpdate,
			Name:           "Update Etsy listing",
			RequiredInputs: []string{"shop_id", "listing_id"},
			Tasks: []registry.TaskSpec{
				{Description: "update listing", Type: models.TaskTypeDirectHTTP, Run: s.updateListing},
			},
		},
		{
			Marketplace:    models.MarketplaceEtsy,
			ActionCode:     models.ActionDelete,
			Name:           "Delete Etsy listing",
			RequiredInputs: []string{"listing_id"},
			Tasks: []registry.TaskSpec{
				{Description: "delete listing", Type: models.TaskTypeDirectHTTP, Run: s.deleteListing},
			},
		},
		{
			Marketplace:    models.MarketplaceEtsy,
			ActionCode:     models.ActionSync,
			Name:           "Sync Etsy listings",
			RequiredInputs: []string{"shop_id"},
			Tasks: []registry.TaskSpec{
				{Description: "fetch shop listings", Type: models.TaskTypeDirectHTTP, Run: s.fetchListings},
			},
		},
	}
}

func (s *Service) client(ctx context.Context, tenantID string) (*httpclient.Client, error) {
	conn, err := s.connections.GetConnection(ctx, tenantID, models.MarketplaceEtsy)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: tenant %s has no etsy connection", models.ErrSessionLost, tenantID)
	}
	if err != nil {
		return nil, err
	}
	if !conn.IsConnected {
		return nil, fmt.Errorf("%w: tenant %s etsy connection is disabled", models.ErrSessionLost, tenantID)
	}

	var token oauth2.Token
	if err := json.Unmarshal(conn.Credentials, &token); err != nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: tenant %s etsy credentials are unreadable", models.ErrSessionLost, tenantID)
	}

	timeout := common.ParseDuration(s.config.RequestTimeout, 0)
	return httpclient.NewWithToken(ctx, s.config.BaseURL, timeout, &token, s.logger), nil
}

func (s *Service) createDraftListing(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	shopID, err := stringValue(job.InputData, "shop_id")
	if err != nil {
		return nil, err
	}

	listing := map[string]interface{}{
		"title":       job.InputData["title"],
		"description": job.InputData["description"],
		"price":       job.InputData["price"],
		"quantity":    1,
		"state":       "draft",
	}
	data, err := client.Do(ctx, "POST", "/application/shops/"+shopID+"/listings", listing)
	if err != nil {
		return nil, err
	}

	var created struct {
		ListingID json.Number `json:"listing_id"`
	}
	if err := json.Unmarshal(data, &created); err != nil || created.ListingID == "" {
		return nil, fmt.Errorf("%w: listing response missing listing_id", models.ErrUpstreamFailure)
	}
	return map[string]interface{}{"listing_id": created.ListingID.String()}, nil
}

func (s *Service) activateListing(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	shopID, err := stringValue(job.InputData, "shop_id")
	if err != nil {
		return nil, err
	}
	listingID, err := stringValue(job.ResultData, "listing_id")
	if err != nil {
		return nil, err
	}

	patch := map[string]interface{}{"state": "active"}
	if _, err := client.Do(ctx, "PUT", "/application/shops/"+shopID+"/listings/"+listingID, patch); err != nil {
		return nil, err
	}
	return map[string]interface{}{"activated": true}, nil
}

func (s *Service) updateListing(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	shopID, err := stringValue(job.InputData, "shop_id")
	if err != nil {
		return nil, err
	}
	listingID, err := stringValue(job.InputData, "listing_id")
	if err != nil {
		return nil, err
	}

	patch := map[string]interface{}{
		"title":       job.InputData["title"],
		"description": job.InputData["description"],
		"price":       job.InputData["price"],
	}
	if _, err := client.Do(ctx, "PUT", "/application/shops/"+shopID+"/listings/"+listingID, patch); err != nil {
		return nil, err
	}
	return map[string]interface{}{"listing_id": listingID, "updated": true}, nil
}

func (s *Service) deleteListing(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	listingID, err := stringValue(job.InputData, "listing_id")
	if err != nil {
		return nil, err
	}

	if _, err := client.Do(ctx, "DELETE", "/application/listings/"+listingID, nil); err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": true}, nil
}

func (s *Service) fetchListings(ctx context.Context, job *models.Job, task *models.Task) (map[string]interface{}, error) {
	client, err := s.client(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	shopID, err := stringValue(job.InputData, "shop_id")
	if err != nil {
		return nil, err
	}

	data, err := client.Do(ctx, "GET", "/application/shops/"+shopID+"/listings?limit=100", nil)
	if err != nil {
		return nil, err
	}

	var page struct {
		Count   int               `json:"count"`
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("%w: unreadable listings response", models.ErrUpstreamFailure)
	}
	return map[string]interface{}{"remote_count": page.Count, "listings": page.Results}, nil
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
