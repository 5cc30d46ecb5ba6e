package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InstrumentTransport wraps next so every upstream round trip is counted by
// status code and method, and in-flight requests are tracked. A nil next
// uses http.DefaultTransport.
func InstrumentTransport(provider string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	counter := UpstreamRequestsTotal.MustCurryWith(prometheus.Labels{"provider": provider})
	return promhttp.InstrumentRoundTripperInFlight(UpstreamInFlight,
		promhttp.InstrumentRoundTripperCounter(counter, next),
	)
}
