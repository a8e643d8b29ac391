package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns an HTTP handler serving path with the registry contents.
// Other paths return 404.
func (r *Registry) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry}))
	return r.countRequests(mux)
}

func (r *Registry) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, req)
		r.scrapesTotal.WithLabelValues(req.URL.Path, statusToString(rw.statusCode)).Inc()
	})
}
