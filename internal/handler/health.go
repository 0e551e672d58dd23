package handler

import "net/http"

// HandleHealth returns a liveness probe handler that reports the backend.
//
// HTTP: GET /healthz
func HandleHealth(backend string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"backend": backend,
		})
	}
}
