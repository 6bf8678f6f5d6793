package session

import (
	"time"

	"github.com/playhall/arcadepass/internal/countdown"
)

// GameSession is one player's timed grant to play, from card scan to
// expiry or explicit end. Only the Manager mutates it; everything else
// reads snapshots.
type GameSession struct {
	ID              string     `json:"id"`
	PlayerID        string     `json:"playerId"`
	PlayerName      string     `json:"playerName"`
	GameTypeID      string     `json:"gameTypeId"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	DurationSeconds int        `json:"durationSeconds"`
	IsActive        bool       `json:"isActive"`
	Score           int        `json:"score"`
	Stage           int        `json:"stage"`
	Streak          int        `json:"streak"`
}

// Status is derived from session and timer state, never stored.
type Status string

const (
	StatusNone     Status = "none"
	StatusActive   Status = "active"
	StatusExpiring Status = "expiring"
	StatusEnded    Status = "ended"
)

// Snapshot is the read-only view handed to the guard and the UI.
type Snapshot struct {
	Session GameSession          `json:"session"`
	Status  Status               `json:"status"`
	Timer   countdown.TimerState `json:"timer"`
}

// Result is the score report delivered to the remote scoring service.
type Result struct {
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId"`
	Score      int    `json:"score"`
	Stage      int    `json:"stage"`
	SessionID  string `json:"sessionId"`
	Streak     int    `json:"streak"`
	GameTypeID string `json:"gameTypeId"`
}

// sessionRecord is the persisted form, alongside (but independent of) the
// engine's own timer record.
type sessionRecord struct {
	Session       GameSession `json:"session"`
	RemainingTime int         `json:"remainingTime"`
	IsTimerActive bool        `json:"isTimerActive"`
	IsExpired     bool        `json:"isExpired"`
	Timestamp     int64       `json:"timestamp"`
}
