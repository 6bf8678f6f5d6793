package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SQLiteStore persists policies in the shared SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// ByName looks a policy up by game-type name. The name column collates
// NOCASE, so "trivia" and "TRIVIA" resolve to the same row.
func (s *SQLiteStore) ByName(ctx context.Context, name string) (Policy, error) {
	var p Policy
	var routesJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, allowed_routes FROM policies WHERE name = ?
	`, name).Scan(&p.ID, &p.Name, &routesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Policy{}, ErrNotFound
	}
	if err != nil {
		return Policy{}, err
	}
	if err := json.Unmarshal([]byte(routesJSON), &p.AllowedRoutes); err != nil {
		return Policy{}, fmt.Errorf("decoding allowed routes for %q: %w", name, err)
	}
	return p, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Policy, error) {
	var p Policy
	var routesJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, allowed_routes FROM policies WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &routesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Policy{}, ErrNotFound
	}
	if err != nil {
		return Policy{}, err
	}
	if err := json.Unmarshal([]byte(routesJSON), &p.AllowedRoutes); err != nil {
		return Policy{}, fmt.Errorf("decoding allowed routes for %q: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, allowed_routes FROM policies ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		var p Policy
		var routesJSON string
		if err := rows.Scan(&p.ID, &p.Name, &routesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(routesJSON), &p.AllowedRoutes); err != nil {
			return nil, fmt.Errorf("decoding allowed routes for %q: %w", p.Name, err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (s *SQLiteStore) Create(ctx context.Context, name string, allowedRoutes []string) (Policy, error) {
	if allowedRoutes == nil {
		allowedRoutes = []string{}
	}
	routesJSON, _ := json.Marshal(allowedRoutes)
	p := Policy{
		ID:            uuid.NewString(),
		Name:          name,
		AllowedRoutes: allowedRoutes,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (id, name, allowed_routes) VALUES (?, ?, ?)
	`, p.ID, p.Name, string(routesJSON))
	if err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id, name string, allowedRoutes []string) (Policy, error) {
	if allowedRoutes == nil {
		allowedRoutes = []string{}
	}
	routesJSON, _ := json.Marshal(allowedRoutes)
	res, err := s.db.ExecContext(ctx, `
		UPDATE policies
		SET name = ?, allowed_routes = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?
	`, name, string(routesJSON), id)
	if err != nil {
		return Policy{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Policy{}, err
	}
	if n == 0 {
		return Policy{}, ErrNotFound
	}
	return Policy{ID: id, Name: name, AllowedRoutes: allowedRoutes}, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
