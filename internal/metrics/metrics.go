// Package metrics exposes the Prometheus collectors of the discovery service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GeocodeRequests counts reverse geocode lookups by outcome (cache, upstream, failure, rejected)
	GeocodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_geocode_requests_total",
		Help: "Reverse geocode lookups by outcome",
	}, []string{"outcome"})

	// DiscoveryQueries counts location matching queries by outcome (ok, empty, unavailable)
	DiscoveryQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_location_queries_total",
		Help: "Property lookups by candidate place names",
	}, []string{"outcome"})

	DiscoveryQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "discovery_location_query_duration_seconds",
		Help:    "Latency of batched location lookups",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	})

	// EngagementEvents counts engagement writes by kind and outcome
	EngagementEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_engagement_events_total",
		Help: "Engagement events by kind and outcome",
	}, []string{"kind", "outcome"})

	EngagementQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "discovery_engagement_queue_depth",
		Help: "Engagement events waiting to be applied",
	})

	// Feeds counts assembled feeds by audience (anonymous, personalized, fallback)
	Feeds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_feeds_total",
		Help: "Assembled recommendation feeds by audience",
	}, []string{"audience"})

	AutocompleteRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_autocomplete_requests_total",
		Help: "Autocomplete lookups",
	})

	AutocompleteIndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "discovery_autocomplete_index_size",
		Help: "Number of area names held by the autocomplete index",
	})
)
