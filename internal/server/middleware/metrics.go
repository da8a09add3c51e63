package middleware

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/tradedvm/internal/metrics"
)

// Instrument records request count and latency for one route. route is the
// mux pattern, so path parameters do not explode label cardinality.
func Instrument(m *metrics.Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)
			next.ServeHTTP(rw, r)
			m.ObserveHTTP(r.Method, route, rw.status, time.Since(start))
		})
	}
}
