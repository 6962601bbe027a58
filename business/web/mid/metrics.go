package mid

import (
	"context"
	"net/http"

	"github.com/powledger/node/foundation/metrics"
	"github.com/powledger/node/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
)

var requests = metrics.Auto().NewCounterVec(prometheus.CounterOpts{
	Name: "node_http_requests_total",
	Help: "Number of http requests handled by method",
}, []string{"method"})

var requestErrors = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_http_errors_total",
	Help: "Number of http requests that returned an error",
})

var panics = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_http_panics_total",
	Help: "Number of panics recovered while handling http requests",
})

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Increment the request and errors counters.
			requests.WithLabelValues(r.Method).Inc()
			if err != nil {
				requestErrors.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
