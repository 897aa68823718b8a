package dispatcher

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// RateGate enforces per-tenant marketplace caps at claim time. Bridged
// marketplaces carry a per-minute job cap, direct marketplaces a daily
// call budget. A rejected claim leaves the job pending; it is retried on
// a later poll round without consuming a retry.
type RateGate struct {
	config *common.MarketplacesConfig

	mu        sync.Mutex
	perMinute map[string]*rate.Limiter
	daily     map[string]*dailyBucket
}

// dailyBucket counts claims against a per-day budget. The date rolls
// over lazily on first use after midnight UTC.
type dailyBucket struct {
	date string
	used int
}

// NewRateGate creates a rate gate from the marketplace configuration
func NewRateGate(config *common.MarketplacesConfig) *RateGate {
	return &RateGate{
		config:    config,
		perMinute: make(map[string]*rate.Limiter),
		daily:     make(map[string]*dailyBucket),
	}
}

func gateKey(tenantID string, marketplace models.Marketplace) string {
	return tenantID + ":" + string(marketplace)
}

// Allow consumes one unit of the tenant's budget for the marketplace.
// Returns false when the cap is exhausted.
func (g *RateGate) Allow(tenantID string, marketplace models.Marketplace) bool {
	switch marketplace {
	case models.MarketplaceVinted:
		return g.allowPerMinute(tenantID, marketplace, g.config.Vinted.JobsPerMinute)
	case models.MarketplaceEbay:
		return g.allowDaily(tenantID, marketplace, g.config.Ebay.CallsPerDay)
	case models.MarketplaceEtsy:
		return g.allowDaily(tenantID, marketplace, g.config.Etsy.CallsPerDay)
	}
	return false
}

func (g *RateGate) allowPerMinute(tenantID string, marketplace models.Marketplace, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}

	g.mu.Lock()
	key := gateKey(tenantID, marketplace)
	limiter, ok := g.perMinute[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		g.perMinute[key] = limiter
	}
	g.mu.Unlock()

	return limiter.Allow()
}

func (g *RateGate) allowDaily(tenantID string, marketplace models.Marketplace, perDay int) bool {
	if perDay <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	today := time.Now().UTC().Format("2006-01-02")
	key := gateKey(tenantID, marketplace)
	bucket, ok := g.daily[key]
	if !ok || bucket.date != today {
		bucket = &dailyBucket{date: today}
		g.daily[key] = bucket
	}

	if bucket.used >= perDay {
		return false
	}
	bucket.used++
	return true
}

// Remaining reports the unused daily budget for a direct marketplace.
// Per-minute marketplaces return -1, their budget refills continuously.
func (g *RateGate) Remaining(tenantID string, marketplace models.Marketplace) int {
	var perDay int
	switch marketplace {
	case models.MarketplaceEbay:
		perDay = g.config.Ebay.CallsPerDay
	case models.MarketplaceEtsy:
		perDay = g.config.Etsy.CallsPerDay
	default:
		return -1
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	today := time.Now().UTC().Format("2006-01-02")
	bucket, ok := g.daily[gateKey(tenantID, marketplace)]
	if !ok || bucket.date != today {
		return perDay
	}
	if bucket.used >= perDay {
		return 0
	}
	return perDay - bucket.used
}
