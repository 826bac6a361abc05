package session

import (
	"time"

	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/rules"
)

// Event type names as they appear on the wire
const (
	EventSessionStarted  = "session_started"
	EventMoveApplied     = "move_applied"
	EventMoveRejected    = "move_rejected"
	EventSessionFinished = "session_finished"
)

// Event is an outbound notification payload
type Event interface {
	EventType() string
}

// Intent addresses one event to one player. Transitions return intents
// instead of delivering them so they can be tested without a transport.
type Intent struct {
	To    player.ID
	Event Event
}

// SessionStarted tells a seat that its session is active
type SessionStarted struct {
	SessionID    uint64      `json:"session_id"`
	Engine       string      `json:"engine"`
	Side         rules.Side  `json:"assigned_side"`
	OpponentID   player.ID   `json:"opponent_id"`
	OpponentName string      `json:"opponent_name"`
	InitialState rules.State `json:"initial_state"`
	Position     string      `json:"position,omitempty"`
	Turn         rules.Side  `json:"turn"`
	StartedAt    time.Time   `json:"-"`
}

func (SessionStarted) EventType() string { return EventSessionStarted }

// MoveApplied is broadcast to both seats after an accepted move
type MoveApplied struct {
	SessionID  uint64      `json:"session_id"`
	Move       string      `json:"move"`
	NewState   rules.State `json:"new_state"`
	Position   string      `json:"position,omitempty"`
	AppliedBy  rules.Side  `json:"applied_by_side"`
	Turn       rules.Side  `json:"turn"`
	MoveNumber int         `json:"move_number"`
}

func (MoveApplied) EventType() string { return EventMoveApplied }

// MoveRejected goes to the submitting player only
type MoveRejected struct {
	SessionID uint64 `json:"session_id,omitempty"`
	Move      string `json:"move"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
}

func (MoveRejected) EventType() string { return EventMoveRejected }

// SessionFinished is broadcast when a session reaches its terminal state
type SessionFinished struct {
	SessionID uint64
	Outcome   Outcome
}

func (SessionFinished) EventType() string { return EventSessionFinished }
