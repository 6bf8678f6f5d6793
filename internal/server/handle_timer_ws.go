package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/playhall/arcadepass/internal/countdown"
)

// handleTimerWS pushes the same TimerUpdate stream as the SSE endpoint over
// a WebSocket, for game clients that already hold a socket open.
func handleTimerWS(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mgr := managerFrom(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
		defer cancel()

		// Write-only stream: CloseRead surfaces client disconnects through
		// the context.
		ctx = conn.CloseRead(ctx)

		ch := make(chan countdown.TimerState, 8)
		unsub := mgr.SubscribeTimer(func(st countdown.TimerState) {
			select {
			case ch <- st:
			default:
			}
		})
		defer unsub()

		// First frame is an authoritative resync.
		snap, _ := mgr.Snapshot()
		if err := writeWS(ctx, conn, timerUpdate(snap.Timer)); err != nil {
			logger.Debug("websocket write failed", "error", err)
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case st := <-ch:
				if err := writeWS(ctx, conn, timerUpdate(st)); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}

func writeWS(ctx context.Context, conn *websocket.Conn, upd TimerUpdate) error {
	data, _ := json.Marshal(upd)
	return conn.Write(ctx, websocket.MessageText, data)
}
