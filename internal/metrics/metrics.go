package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_searches_total",
			Help: "Searches by answer source and outcome",
		},
		[]string{"source", "outcome"}, // local|provider|none , ok|invalid|quota|unreachable|...
	)

	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_provider_calls_total",
			Help: "Outbound provider calls by operation and classified status",
		},
		[]string{"op", "status"}, // textsearch|details , ok|zero_results|unreachable|...
	)

	PlaceUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_place_upserts_total",
			Help: "Place merge results",
		},
		[]string{"result"}, // inserted|existing|failed
	)

	RatingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_ratings_total",
			Help: "Rating submissions by action",
		},
		[]string{"action"}, // created|updated|rejected
	)

	QuotaUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discovery_quota_used",
			Help: "Provider calls recorded in the quota ledger",
		},
	)

	SearchEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discovery_search_events_dropped_total",
			Help: "Search events not delivered to the analytics store",
		},
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			SearchesTotal,
			ProviderCallsTotal,
			PlaceUpsertsTotal,
			RatingsTotal,
			QuotaUsed,
			SearchEventsDropped,
		)
	})
}
