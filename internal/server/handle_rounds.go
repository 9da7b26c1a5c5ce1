package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/buzzer/internal/archive"
	"github.com/playperu/buzzer/internal/buzzer"
)

type RoundsResponse struct {
	Rounds []buzzer.Round `json:"rounds"`
}

func handleListRounds(logger *slog.Logger, rounds RoundLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rounds == nil {
			writeError(w, http.StatusNotFound, archive.ErrDisabled.Error())
			return
		}

		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		list, err := rounds.List(r.Context(), limit)
		if errors.Is(err, archive.ErrDisabled) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			logger.Error("listing rounds", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if list == nil {
			list = []buzzer.Round{}
		}

		writeJSON(w, http.StatusOK, RoundsResponse{Rounds: list})
	}
}
