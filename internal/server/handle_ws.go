package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/buzzer/internal/broadcast"
)

const wsWriteTimeout = 5 * time.Second

// handleWSEvents pushes session snapshots as text frames. Heartbeats become
// ping frames. Anything the client sends is discarded.
func handleWSEvents(logger *slog.Logger, hub ViewerHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())

		v := hub.Attach()
		defer hub.Detach(v)

		for {
			select {
			case <-ctx.Done():
				logger.Debug("websocket viewer gone", "error", ctx.Err())
				return
			case msg, ok := <-v.Messages():
				if !ok {
					conn.Close(websocket.StatusTryAgainLater, "viewer dropped")
					return
				}
				if err := writeWS(ctx, conn, msg); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}

func writeWS(ctx context.Context, conn *websocket.Conn, msg broadcast.Message) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	if msg.Kind == broadcast.KindHeartbeat {
		return conn.Ping(ctx)
	}
	return conn.Write(ctx, websocket.MessageText, msg.Data)
}
