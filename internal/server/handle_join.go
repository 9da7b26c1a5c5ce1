package server

import (
	"errors"
	"net/http"

	"github.com/playperu/buzzer/internal/buzzer"
)

type JoinRequest struct {
	Team buzzer.Team `json:"team" enum:"Alpha,Bravo,Charlie,Delta"`
	Name string      `json:"name"`
}

type JoinResponse struct {
	Success bool          `json:"success"`
	Player  buzzer.Player `json:"player"`
}

type LeaveRequest struct {
	PlayerID string `json:"playerId"`
}

type LeaveResponse struct {
	Success bool `json:"success"`
}

func handleJoin(store SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		player, err := store.Join(req.Team, req.Name)
		var verr *buzzer.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, JoinResponse{Success: true, Player: player})
	}
}

func handleLeave(store SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LeaveRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		writeJSON(w, http.StatusOK, LeaveResponse{Success: store.Leave(req.PlayerID)})
	}
}
