package server

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playhall/arcadepass/internal/policy"
)

func addRoutes(r chi.Router, logger *slog.Logger, db *sql.DB, policies *policy.SQLiteStore, reg *Registry, kvPing Pinger) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("ArcadePass API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, db, kvPing))

	// Kiosk routes — {device} resolved by deviceMiddleware.
	r.Route("/api/{device}", func(r chi.Router) {
		r.Use(deviceMiddleware(reg))

		r.Post("/session/start", handleSessionStart())
		r.Get("/session", handleSessionState())
		r.Delete("/session", handleSessionClear())

		// The rest requires an existing session, active or ended.
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/session/score", handleScoreUpdate())
			r.Post("/session/end", handleSessionEnd())
			r.Get("/session/events", handleTimerEvents())
			r.Get("/session/ws", handleTimerWS(logger))
		})

		// Game experiences sit behind the access guard.
		r.Route("/play/{route}", func(r chi.Router) {
			r.Use(guardGame(policies, logger))
			r.Get("/", handlePlay())
		})
	})

	// Admin auth — shared DB.
	r.Post("/api/admin/login", handleAdminLogin(db))
	r.Post("/api/admin/logout", handleAdminLogout(db))
	r.Get("/api/admin/me", handleAdminMe(db))

	// Admin policies — require admin auth.
	r.Route("/api/admin/policies", func(r chi.Router) {
		r.Use(adminAuthMiddleware(db))
		r.Get("/", handleAdminListPolicies(policies))
		r.Post("/", handleAdminCreatePolicy(policies))
		r.Get("/{id}", handleAdminGetPolicy(policies))
		r.Put("/{id}", handleAdminUpdatePolicy(policies))
		r.Delete("/{id}", handleAdminDeletePolicy(policies))
	})
}
