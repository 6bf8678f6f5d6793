package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playhall/arcadepass/internal/policy"
	"github.com/playhall/arcadepass/internal/session"
)

// guardGame protects game experience routes. Every denial is a 303 redirect
// to a kiosk screen, never an error page: no session or an expired timer
// sends the player back to the card scanner, a mismatched game type sends
// them to the wrong-game screen. The redirect carries enough query context
// for the screen to explain itself.
func guardGame(policies policy.Source, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := gameRoute(r)

			snap, ok := managerFrom(r).Snapshot()
			if !ok || !snap.Session.IsActive || snap.Timer.Expired || snap.Timer.RemainingSeconds <= 0 {
				// Remaining time is recomputed from the wall clock here, so a
				// request racing the expiry tick is still denied.
				redirectScan(w, r, route)
				return
			}

			pol, err := policies.ByName(r.Context(), snap.Session.GameTypeID)
			if errors.Is(err, policy.ErrNotFound) {
				redirectWrongGame(w, r, snap.Session.GameTypeID, route, snap, "policy-not-found")
				return
			}
			if err != nil {
				// Fail closed. A broken policy source must not admit anyone.
				logger.Error("policy lookup failed", "game_type", snap.Session.GameTypeID, "error", err)
				redirectScan(w, r, route)
				return
			}

			if !pol.Allows(route) {
				redirectWrongGame(w, r, snap.Session.GameTypeID, route, snap, "route-not-allowed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func gameRoute(r *http.Request) string {
	return chi.URLParam(r, "route")
}

func redirectScan(w http.ResponseWriter, r *http.Request, route string) {
	q := url.Values{"fromGame": {route}}
	http.Redirect(w, r, "/scan?"+q.Encode(), http.StatusSeeOther)
}

func redirectWrongGame(w http.ResponseWriter, r *http.Request, expected, route string, snap session.Snapshot, reason string) {
	q := url.Values{
		"expected": {expected},
		"route":    {route},
		"active":   {strconv.FormatBool(snap.Session.IsActive)},
		"expired":  {strconv.FormatBool(snap.Timer.Expired)},
		"reason":   {reason},
	}
	http.Redirect(w, r, "/wrong-game?"+q.Encode(), http.StatusSeeOther)
}
