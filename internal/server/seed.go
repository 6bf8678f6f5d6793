package server

import (
	"context"
	"database/sql"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/playhall/arcadepass/internal/policy"
)

// Seed creates the default game-type policies and, when configured, the
// initial admin account. Idempotent: existing rows are left alone.
func Seed(ctx context.Context, logger *slog.Logger, db *sql.DB, policies *policy.SQLiteStore, adminEmail, adminPassword string) error {
	defaults := map[string][]string{
		"TRIVIA":              {"trivia-game"},
		"EMOJI":               {"emoji-game"},
		"TRUTH-OR-DARE":       {"truth-or-dare"},
		"ROCK-PAPER-SCISSORS": {"rock-paper-scissors"},
	}

	existing, err := policies.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		for name, routes := range defaults {
			if _, err := policies.Create(ctx, name, routes); err != nil {
				return err
			}
		}
		logger.Info("default policies created", "count", len(defaults))
	}

	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins WHERE email = ?`, adminEmail).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO admins (email, password_hash) VALUES (?, ?)
	`, adminEmail, string(hash)); err != nil {
		return err
	}
	logger.Info("admin account created", "email", adminEmail)
	return nil
}
