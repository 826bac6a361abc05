package service

import (
	"time"

	"github.com/wricardo/duelhall/game/archive"
	"github.com/wricardo/duelhall/game/rules"
	"github.com/wricardo/duelhall/game/session"
)

// Options tunes coordinator behaviour
type Options struct {
	// DistinctDisconnect finishes an abandoned session with reason
	// "abandoned" instead of "resignation".
	DistinctDisconnect bool

	// Archive receives a record of every finished session. Nil disables it.
	Archive archive.Archive

	// Coin decides side assignment: true gives the first seated player the
	// First side. Defaults to a fair random coin.
	Coin func() bool

	// Now defaults to time.Now
	Now func() time.Time

	// MaxMoveLength bounds move input; zero means 64 bytes.
	MaxMoveLength int
}

// JoinResult reports where a join left the player
type JoinResult struct {
	SessionID uint64         `json:"session_id"`
	Status    session.Status `json:"status"`
	Side      rules.Side     `json:"side"`
}

// LeaveResult reports the effect of a leave. SessionID is zero when the
// player was not seated.
type LeaveResult struct {
	SessionID uint64           `json:"session_id,omitempty"`
	Outcome   *session.Outcome `json:"outcome,omitempty"`
}

// MoveResult describes an accepted move
type MoveResult struct {
	SessionID  uint64           `json:"session_id"`
	Move       string           `json:"move"`
	NewState   rules.State      `json:"new_state"`
	Position   string           `json:"position,omitempty"`
	Side       rules.Side       `json:"side"`
	Turn       rules.Side       `json:"turn"`
	MoveNumber int              `json:"move_number"`
	Outcome    *session.Outcome `json:"outcome,omitempty"`
}

// Stats is a point-in-time count of coordinator activity
type Stats struct {
	Engine        string `json:"engine"`
	Players       int    `json:"players"`
	Forming       int    `json:"forming"`
	Active        int    `json:"active"`
	Started       uint64 `json:"started"`
	Finished      uint64 `json:"finished"`
	MovesApplied  uint64 `json:"moves_applied"`
	MovesRejected uint64 `json:"moves_rejected"`
}
