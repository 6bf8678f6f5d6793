package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playhall/arcadepass/internal/policy"
)

// AdminPolicyRequest is the request body for creating or updating an access
// policy.
type AdminPolicyRequest struct {
	Name          string   `json:"name"`
	AllowedRoutes []string `json:"allowedRoutes"`
}

func handleAdminListPolicies(policies *policy.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := policies.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if list == nil {
			list = []policy.Policy{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleAdminGetPolicy(policies *policy.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := policies.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, policy.ErrNotFound) {
			writeError(w, http.StatusNotFound, "policy not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleAdminCreatePolicy(policies *policy.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminPolicyRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		p, err := policies.Create(r.Context(), req.Name, req.AllowedRoutes)
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "a policy with this name already exists")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleAdminUpdatePolicy(policies *policy.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminPolicyRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		p, err := policies.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.AllowedRoutes)
		if errors.Is(err, policy.ErrNotFound) {
			writeError(w, http.StatusNotFound, "policy not found")
			return
		}
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "a policy with this name already exists")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleAdminDeletePolicy(policies *policy.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := policies.Delete(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, policy.ErrNotFound) {
			writeError(w, http.StatusNotFound, "policy not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// isUniqueViolation detects SQLite UNIQUE constraint failures without tying
// the handlers to a driver-specific error type.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
