package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is the liveness check implemented by the key-value store. A nil
// Pinger means the dependency is not configured and is reported as disabled
// rather than failing the check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse maps dependency names to their status.
type HealthResponse map[string]string

func handleHealth(logger *slog.Logger, db *sql.DB, kvPing Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := HealthResponse{"sqlite": "ok"}
		status := http.StatusOK

		if err := db.PingContext(ctx); err != nil {
			logger.Error("health check failed", "name", "sqlite", "error", err)
			checks["sqlite"] = "error"
			status = http.StatusServiceUnavailable
		}

		if kvPing == nil {
			checks["redis"] = "disabled"
		} else if err := kvPing.Ping(ctx); err != nil {
			logger.Error("health check failed", "name", "redis", "error", err)
			checks["redis"] = "error"
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}

		writeJSON(w, status, checks)
	}
}
