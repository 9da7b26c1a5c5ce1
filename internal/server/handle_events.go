package server

import (
	"fmt"
	"net/http"

	"github.com/playperu/buzzer/internal/broadcast"
)

// handleEvents streams session snapshots as Server-Sent Events. Heartbeats
// are SSE comments so clients never mistake them for state.
func handleEvents(hub ViewerHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		v := hub.Attach()
		defer hub.Detach(v)

		for {
			select {
			case <-r.Context().Done():
				return
			case msg, ok := <-v.Messages():
				if !ok {
					return
				}

				var err error
				switch msg.Kind {
				case broadcast.KindSnapshot:
					_, err = fmt.Fprintf(w, "data: %s\n\n", msg.Data)
				case broadcast.KindHeartbeat:
					_, err = fmt.Fprint(w, ": heartbeat\n\n")
				}
				if err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
