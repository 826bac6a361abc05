// Package archive stores a record of every finished session.
package archive

import (
	"errors"
	"time"

	"github.com/wricardo/duelhall/game/rules"
	"github.com/wricardo/duelhall/game/session"
)

var ErrRecordNotFound = errors.New("match record not found")

// Archive defines the interface for persisting finished matches
type Archive interface {
	// Record persists a finished match
	Record(rec *MatchRecord) error

	// Load retrieves a match record by session ID
	Load(id uint64) (*MatchRecord, error)

	// ListAll returns the IDs of all archived matches, ascending
	ListAll() ([]uint64, error)

	// Exists checks if a match record exists
	Exists(id uint64) bool
}

// MatchRecord represents the JSON structure of an archived match
type MatchRecord struct {
	SessionID  uint64          `json:"session_id"`
	Engine     string          `json:"engine"`
	Seats      []session.Seat  `json:"seats"`
	Moves      int             `json:"moves"`
	FinalState rules.State     `json:"final_state"`
	Outcome    session.Outcome `json:"outcome"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// View presents the record in the same shape as a live session summary
func (r *MatchRecord) View() session.View {
	v := session.View{
		ID:        r.SessionID,
		Engine:    r.Engine,
		Status:    session.Finished,
		Seats:     append([]session.Seat(nil), r.Seats...),
		State:     r.FinalState,
		Moves:     r.Moves,
		CreatedAt: r.CreatedAt,
	}
	outcome := r.Outcome
	v.Outcome = &outcome
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		v.StartedAt = &t
	}
	if !r.FinishedAt.IsZero() {
		t := r.FinishedAt
		v.FinishedAt = &t
	}
	return v
}
