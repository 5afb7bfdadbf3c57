package middleware

import (
	"net/http"
	"time"

	"github.com/trendhive/storefront-backend/pkg/metrics"
)

func Metrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			m.IncInFlight()
			defer m.DecInFlight()

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			// The route pattern is only populated after chi has matched, so
			// the lookup happens on the way out.
			m.ObserveRequest(r.Method, routePattern(r), rec.status, time.Since(start))
		})
	}
}
