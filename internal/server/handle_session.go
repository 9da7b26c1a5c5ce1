package server

import (
	"net/http"

	"github.com/playperu/buzzer/internal/buzzer"
)

const (
	ActionCreate         = "create"
	ActionStartAccepting = "start-accepting"
	ActionStopAccepting  = "stop-accepting"
	ActionReset          = "reset"
)

type SessionActionRequest struct {
	Action string `json:"action" enum:"create,start-accepting,stop-accepting,reset"`
}

func handleSessionState(store SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.State())
	}
}

func handleSessionAction(store SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SessionActionRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var state buzzer.Session
		switch req.Action {
		case ActionCreate:
			state = store.Create()
		case ActionStartAccepting:
			state = store.StartAccepting()
		case ActionStopAccepting:
			state = store.StopAccepting()
		case ActionReset:
			state = store.Reset()
		default:
			writeError(w, http.StatusBadRequest, "invalid action")
			return
		}

		writeJSON(w, http.StatusOK, state)
	}
}
