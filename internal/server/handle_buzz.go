package server

import "net/http"

type BuzzRequest struct {
	PlayerID string `json:"playerId"`
}

// handleBuzz always answers 200 for a well-formed request; rejected buzzes
// come back as success=false with a null position.
func handleBuzz(store SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BuzzRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		writeJSON(w, http.StatusOK, store.Buzz(req.PlayerID))
	}
}
