package server

import (
	"context"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/playhall/arcadepass/internal/session"
)

type ctxKey int

const ctxKeyManager ctxKey = iota

var deviceRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// deviceMiddleware resolves {device} to its session manager and stores it
// in the request context.
func deviceMiddleware(reg *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			device := chi.URLParam(r, "device")
			if !deviceRE.MatchString(device) {
				writeError(w, http.StatusNotFound, "unknown device")
				return
			}

			mgr := reg.Get(r.Context(), device)
			ctx := context.WithValue(r.Context(), ctxKeyManager, mgr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireSession guards routes outside the protected experience set: they
// only need some session to exist for the device, active or not.
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := managerFrom(r).Snapshot(); !ok {
			writeError(w, http.StatusUnauthorized, "no session for this device")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func managerFrom(r *http.Request) *session.Manager {
	return r.Context().Value(ctxKeyManager).(*session.Manager)
}
