package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/playhall/arcadepass/internal/countdown"
	"github.com/playhall/arcadepass/internal/session"
)

// StartSessionRequest is the request body for POST /api/{device}/session/start.
type StartSessionRequest struct {
	GameTypeID      string `json:"gameTypeId"`
	PlayerName      string `json:"playerName"`
	DurationSeconds int    `json:"durationSeconds"`
}

// ScoreUpdateRequest is the request body for POST /api/{device}/session/score.
// Stage and Streak are optional; absent fields keep their current values.
type ScoreUpdateRequest struct {
	Score  int  `json:"score"`
	Stage  *int `json:"stage"`
	Streak *int `json:"streak"`
}

// EndSessionRequest is the request body for POST /api/{device}/session/end.
type EndSessionRequest struct {
	FinalScore *int `json:"finalScore"`
}

func handleSessionStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req.GameTypeID = strings.TrimSpace(req.GameTypeID)
		req.PlayerName = strings.TrimSpace(req.PlayerName)
		if req.GameTypeID == "" || req.PlayerName == "" {
			writeError(w, http.StatusBadRequest, "gameTypeId and playerName are required")
			return
		}

		d := time.Duration(req.DurationSeconds) * time.Second
		snap, err := managerFrom(r).Start(r.Context(), req.GameTypeID, req.PlayerName, d)
		if errors.Is(err, countdown.ErrInvalidDuration) {
			writeError(w, http.StatusBadRequest, "durationSeconds must be positive")
			return
		}
		if errors.Is(err, session.ErrSessionActive) {
			writeError(w, http.StatusConflict, "a session is already active")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

func handleSessionState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, _ := managerFrom(r).Snapshot()
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleScoreUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScoreUpdateRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		// A no-op when no session is active: score updates racing expiry
		// are expected and dropped silently.
		managerFrom(r).UpdateScore(r.Context(), req.Score, req.Stage, req.Streak)
		snap, _ := managerFrom(r).Snapshot()
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleSessionEnd() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EndSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		snap := managerFrom(r).End(r.Context(), req.FinalScore)
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleSessionClear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		managerFrom(r).Clear(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}
