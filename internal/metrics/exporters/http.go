// Package exporters serves the camera metrics.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves every metric registered with the default registry,
// the promauto camera metrics among them, in text or OpenMetrics form.
// Scrapes are counted in promhttp_metric_handler_requests_total.
func HTTPHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			// A camera removed mid-scrape must not fail the whole scrape.
			ErrorHandling: promhttp.ContinueOnError,
		}),
	)
}
