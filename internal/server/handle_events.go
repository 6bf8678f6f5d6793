package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/playhall/arcadepass/internal/countdown"
)

// TimerUpdate is the authoritative resync message pushed to clients on every
// timer transition. Clients render it directly; they never run their own
// countdown.
type TimerUpdate struct {
	Type             string `json:"type"`
	RemainingSeconds int    `json:"remainingSeconds"`
	IsExpired        bool   `json:"isExpired"`
}

func timerUpdate(st countdown.TimerState) TimerUpdate {
	return TimerUpdate{
		Type:             "TIMER_UPDATE",
		RemainingSeconds: st.RemainingSeconds,
		IsExpired:        st.Expired,
	}
}

func handleTimerEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		mgr := managerFrom(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		// Buffered so a slow consumer drops intermediate ticks instead of
		// blocking the engine's fan-out.
		ch := make(chan countdown.TimerState, 8)
		unsub := mgr.SubscribeTimer(func(st countdown.TimerState) {
			select {
			case ch <- st:
			default:
			}
		})
		defer unsub()

		// Immediate resync so the client has an authoritative value before
		// the first tick arrives.
		snap, _ := mgr.Snapshot()
		writeSSE(w, flusher, timerUpdate(snap.Timer))

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case st := <-ch:
				writeSSE(w, flusher, timerUpdate(st))
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, upd TimerUpdate) {
	data, _ := json.Marshal(upd)
	fmt.Fprintf(w, "event: timer\ndata: %s\n\n", data)
	flusher.Flush()
}
