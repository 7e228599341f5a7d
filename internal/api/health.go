package api

import (
	"net/http"
	"time"
)

// HealthHandler reports liveness and whether the cache tier is attached.
// The durable store is deliberately not probed here: redirects must keep
// serving from cache during a database incident, so a store outage is not a
// liveness failure.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	cache := "disabled"
	if s.Links != nil && s.Links.CacheAvailable() {
		cache = "ok"
	}

	s.finish(endpoint, method, http.StatusOK, start)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"cache":  cache,
	})
}
