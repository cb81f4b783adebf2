package api

import "net/http"

// Health implements the liveness endpoint. It deliberately touches no
// remote state.
func (s *ApiService) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
