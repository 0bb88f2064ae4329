package middleware

import (
	"net/http"
	"time"

	"github.com/pantrynav/pantrynav/internal/metrics"
)

// Metrics records request count and latency per route pattern. Using the
// pattern keeps path parameters out of label values.
func Metrics(recorder metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			recorder.ObserveAPIRequest(routePattern(r), rec.status, time.Since(start))
		})
	}
}
