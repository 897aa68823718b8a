package models

import (
	"time"
)

// DailyStats is the idempotent per-day aggregate keyed by
// (tenant, action, marketplace, date). Created lazily on the first
// terminal transition of a matching job, updated in place thereafter.
type DailyStats struct {
	TenantID    string      `json:"tenant_id"`
	ActionCode  string      `json:"action_code"`
	Marketplace Marketplace `json:"marketplace"`
	Date        string      `json:"date"` // "2006-01-02"

	SuccessCount  int     `json:"success_count"`
	FailureCount  int     `json:"failure_count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// StatsKey builds the store key for a daily stats row
func StatsKey(tenantID, actionCode string, marketplace Marketplace, date string) string {
	return tenantID + ":" + actionCode + ":" + string(marketplace) + ":" + date
}

// StatsDate formats a timestamp into the aggregate's date bucket
func StatsDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Record folds one terminal outcome into the aggregate. The average
// duration is a running mean weighted by the prior count.
func (s *DailyStats) Record(succeeded bool, duration time.Duration) {
	prior := s.SuccessCount + s.FailureCount
	if succeeded {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	ms := float64(duration.Milliseconds())
	s.AvgDurationMs = (s.AvgDurationMs*float64(prior) + ms) / float64(prior+1)
}
