package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AdsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adzone_ads_served_total",
		Help: "Ads returned by the selection endpoint.",
	}, []string{"zone"})

	AdsNoFill = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adzone_ads_no_fill_total",
		Help: "Selection requests that found no eligible ad.",
	}, []string{"zone"})

	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adzone_events_recorded_total",
		Help: "Tracking events durably appended, by type and origin.",
	}, []string{"type", "origin"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adzone_events_rejected_total",
		Help: "Tracking events rejected before the append, by reason.",
	}, []string{"reason"})
)

// Handler serves the registry scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
