package server

import (
	"net/http"

	"github.com/playhall/arcadepass/internal/countdown"
	"github.com/playhall/arcadepass/internal/session"
)

// PlayResponse is what an admitted game client renders on entry.
type PlayResponse struct {
	Route            string              `json:"route"`
	Session          session.GameSession `json:"session"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	RemainingDisplay string              `json:"remainingDisplay"`
}

// handlePlay serves a protected experience route. It only runs after the
// guard has admitted the request, so the session is known-active here.
func handlePlay() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, _ := managerFrom(r).Snapshot()
		writeJSON(w, http.StatusOK, PlayResponse{
			Route:            gameRoute(r),
			Session:          snap.Session,
			RemainingSeconds: snap.Timer.RemainingSeconds,
			RemainingDisplay: countdown.Format(snap.Timer.RemainingSeconds),
		})
	}
}
