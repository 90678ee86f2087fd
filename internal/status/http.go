package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds one WebSocket write so a stuck client cannot pin its
// handler goroutine.
const writeTimeout = 5 * time.Second

// Register mounts the status endpoints on mux:
//
//   - GET /status       WebSocket stream, one JSON [Signal] per text message
//   - GET /status.json  the latest signal, 204 before the first transition
func Register(mux *http.ServeMux, b *Bus) {
	mux.Handle("GET /status", StreamHandler(b))
	mux.Handle("GET /status.json", SnapshotHandler(b))
}

// SnapshotHandler serves the latest signal as JSON.
func SnapshotHandler(b *Bus) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sig, ok := b.Last()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sig)
	})
}

// StreamHandler upgrades the request to a WebSocket and streams every signal
// until the client disconnects or the request context ends. Messages sent by
// the client are ignored.
func StreamHandler(b *Bus) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			slog.Debug("status: websocket accept failed", "err", err)
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		signals, cancel := b.Subscribe(DefaultBuffer)
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case sig, ok := <-signals:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "bus closed")
					return
				}
				if err := writeSignal(ctx, conn, sig); err != nil {
					slog.Debug("status: websocket write failed", "err", err)
					return
				}
			}
		}
	})
}

func writeSignal(ctx context.Context, conn *websocket.Conn, sig Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
