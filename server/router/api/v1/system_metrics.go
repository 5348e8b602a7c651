package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/agrisense/plugin/cache"
	"github.com/hrygo/agrisense/server/internal/observability"
)

// MetricsOverviewResponse represents the overview response of system metrics
type MetricsOverviewResponse struct {
	TotalRequests int64                                      `json:"total_requests"`
	ErrorCount    int64                                      `json:"error_count"`
	SuccessRate   float64                                    `json:"success_rate"`
	P50LatencyMs  int64                                      `json:"p50_latency_ms"`
	P95LatencyMs  int64                                      `json:"p95_latency_ms"`
	Decisions     map[string]int64                           `json:"decisions"`
	Upstream      map[string]*observability.UpstreamSnapshot `json:"upstream"`
	Cache         *cache.Stats                               `json:"cache,omitempty"`
	ActiveClients int                                        `json:"active_clients"`
}

// GetMetricsOverview returns the counters collected since the process started.
// GET /api/v1/metrics
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	snap := s.Metrics.Snapshot()
	resp := MetricsOverviewResponse{
		TotalRequests: snap.RequestTotal,
		ErrorCount:    snap.RequestFailed,
		SuccessRate:   snap.SuccessRate(),
		P50LatencyMs:  snap.LatencyP50Ms,
		P95LatencyMs:  snap.LatencyP95Ms,
		Decisions:     snap.Decisions,
		Upstream:      snap.Upstream,
		ActiveClients: s.RateLimiter.Len(),
	}
	if s.Cache != nil {
		stats := s.Cache.Stats()
		resp.Cache = &stats
	}
	return respond(c, http.StatusOK, "Metrics overview", resp)
}
