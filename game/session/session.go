package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/rules"
)

// Capacity is the fixed number of seats in a session
const Capacity = 2

// Terminal reasons produced by the session itself rather than the engine
const (
	ReasonResignation = "resignation"
	ReasonAbandoned   = "abandoned"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session is full")
	ErrNotForming      = errors.New("session is not accepting players")
	ErrNotActive       = errors.New("session is not active")
	ErrFinished        = errors.New("session is finished")
	ErrNotSeated       = errors.New("player is not seated in this session")
	ErrAlreadySeated   = errors.New("player is already seated in this session")
	ErrOutOfTurn       = errors.New("not this side's turn")
)

// Status is the lifecycle phase of a session
type Status int

const (
	Forming Status = iota
	Active
	Finished
)

func (s Status) String() string {
	switch s {
	case Forming:
		return "forming"
	case Active:
		return "active"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "forming":
		*s = Forming
	case "active":
		*s = Active
	case "finished":
		*s = Finished
	default:
		return fmt.Errorf("unknown session status %q", name)
	}
	return nil
}

// Seat binds one player to a side. Side is zero until the session starts.
type Seat struct {
	Player player.ID  `json:"player_id"`
	Name   string     `json:"name"`
	Side   rules.Side `json:"side"`
}

// Outcome is the terminal classification of a finished session. Winner is
// zero for a draw.
type Outcome struct {
	Kind     rules.ResultKind `json:"kind"`
	Winner   rules.Side       `json:"winner_side"`
	WinnerID player.ID        `json:"winner_id,omitempty"`
	Reason   string           `json:"reason"`
}

// Decisive reports whether the outcome names a winner
func (o Outcome) Decisive() bool {
	return o.Kind == rules.Decisive
}

// Session is one pairing of two players. All methods other than ID and
// CreatedAt require the caller to hold the session lock.
type Session struct {
	ID        uint64
	CreatedAt time.Time

	mu         sync.Mutex
	engine     rules.Engine
	status     Status
	seats      []Seat
	turn       rules.Side
	state      rules.State
	position   string
	moves      int
	outcome    *Outcome
	startedAt  time.Time
	finishedAt time.Time
	closed     bool
}

func newSession(id uint64, engine rules.Engine) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		engine:    engine,
		status:    Forming,
		seats:     make([]Seat, 0, Capacity),
	}
}

// Lock acquires the session's serialization lock
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's serialization lock
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) Status() Status { return s.status }
func (s *Session) Turn() rules.Side { return s.turn }
func (s *Session) State() rules.State { return s.state }
func (s *Session) Position() string { return s.position }
func (s *Session) Engine() rules.Engine { return s.engine }
func (s *Session) Moves() int { return s.moves }
func (s *Session) Closed() bool { return s.closed }
func (s *Session) Full() bool { return len(s.seats) >= Capacity }
func (s *Session) SeatCount() int { return len(s.seats) }
func (s *Session) StartedAt() time.Time { return s.startedAt }
func (s *Session) FinishedAt() time.Time { return s.finishedAt }

// Outcome returns the terminal outcome, or nil while not Finished
func (s *Session) Outcome() *Outcome {
	if s.outcome == nil {
		return nil
	}
	o := *s.outcome
	return &o
}

// Seats returns a copy of the seat list
func (s *Session) Seats() []Seat {
	return append([]Seat(nil), s.seats...)
}

// SeatOf returns the seat held by id
func (s *Session) SeatOf(id player.ID) (Seat, bool) {
	for _, seat := range s.seats {
		if seat.Player == id {
			return seat, true
		}
	}
	return Seat{}, false
}

// Occupy places a player in the next free seat of a Forming session
func (s *Session) Occupy(id player.ID, name string) error {
	switch {
	case s.closed || s.status == Finished:
		return ErrFinished
	case s.status != Forming:
		return ErrNotForming
	case s.Full():
		return ErrSessionFull
	}
	if _, ok := s.SeatOf(id); ok {
		return ErrAlreadySeated
	}
	s.seats = append(s.seats, Seat{Player: id, Name: name})
	return nil
}

// Activate assigns sides and starts play. firstTakesFirst decides the single
// permutation: true gives seat 0 the First side. Each seat receives its own
// SessionStarted intent.
func (s *Session) Activate(firstTakesFirst bool, now time.Time) ([]Intent, error) {
	if s.status != Forming {
		return nil, ErrNotForming
	}
	if !s.Full() {
		return nil, fmt.Errorf("activate with %d of %d seats", len(s.seats), Capacity)
	}

	if firstTakesFirst {
		s.seats[0].Side, s.seats[1].Side = rules.First, rules.Second
	} else {
		s.seats[0].Side, s.seats[1].Side = rules.Second, rules.First
	}
	s.turn = rules.First
	s.state = s.engine.Initial()
	s.position = rules.Describe(s.engine, s.state)
	s.status = Active
	s.startedAt = now

	intents := make([]Intent, 0, Capacity)
	for i, seat := range s.seats {
		opp := s.seats[1-i]
		intents = append(intents, Intent{
			To: seat.Player,
			Event: SessionStarted{
				SessionID:    s.ID,
				Engine:       s.engine.Name(),
				Side:         seat.Side,
				OpponentID:   opp.Player,
				OpponentName: opp.Name,
				InitialState: s.state,
				Position:     s.position,
				Turn:         s.turn,
				StartedAt:    now,
			},
		})
	}
	return intents, nil
}

// Vacate removes id's seat and reports whether the session was Active
func (s *Session) Vacate(id player.ID) (wasActive bool, err error) {
	if s.closed || s.status == Finished {
		return false, ErrFinished
	}
	for i, seat := range s.seats {
		if seat.Player == id {
			wasActive = s.status == Active
			s.seats = append(s.seats[:i], s.seats[i+1:]...)
			return wasActive, nil
		}
	}
	return false, ErrNotSeated
}

// CheckTurn returns id's side if it may move now
func (s *Session) CheckTurn(id player.ID) (rules.Side, error) {
	seat, ok := s.SeatOf(id)
	switch {
	case s.closed || s.status == Finished:
		return 0, ErrFinished
	case !ok:
		return 0, ErrNotSeated
	case s.status != Active:
		return 0, ErrNotActive
	case seat.Side != s.turn:
		return seat.Side, ErrOutOfTurn
	}
	return seat.Side, nil
}

// Advance commits an accepted move and flips the turn. Both seats receive a
// MoveApplied intent.
func (s *Session) Advance(side rules.Side, move string, next rules.State) ([]Intent, error) {
	if s.status != Active {
		return nil, ErrNotActive
	}
	if side != s.turn {
		return nil, ErrOutOfTurn
	}

	s.state = next
	s.position = rules.Describe(s.engine, next)
	s.turn = side.Other()
	s.moves++

	ev := MoveApplied{
		SessionID:  s.ID,
		Move:       move,
		NewState:   next,
		Position:   s.position,
		AppliedBy:  side,
		Turn:       s.turn,
		MoveNumber: s.moves,
	}
	return s.broadcast(ev), nil
}

// Finish moves the session to its terminal state exactly once. Every seat
// still present receives a SessionFinished intent.
func (s *Session) Finish(outcome Outcome, now time.Time) ([]Intent, error) {
	if s.closed || s.status == Finished {
		return nil, ErrFinished
	}
	if outcome.Decisive() && outcome.WinnerID == "" {
		for _, seat := range s.seats {
			if seat.Side == outcome.Winner {
				outcome.WinnerID = seat.Player
			}
		}
	}

	s.status = Finished
	s.outcome = &outcome
	s.finishedAt = now
	return s.broadcast(SessionFinished{SessionID: s.ID, Outcome: outcome}), nil
}

// OutcomeFor maps an engine result to a session outcome. The winner of a
// decisive result is the side that is not to move in the terminal position.
func OutcomeFor(result rules.Result, toMove rules.Side) Outcome {
	if result.Kind == rules.Decisive {
		return Outcome{Kind: rules.Decisive, Winner: toMove.Other(), Reason: result.Reason}
	}
	return Outcome{Kind: rules.Draw, Reason: result.Reason}
}

func (s *Session) broadcast(ev Event) []Intent {
	intents := make([]Intent, 0, len(s.seats))
	for _, seat := range s.seats {
		intents = append(intents, Intent{To: seat.Player, Event: ev})
	}
	return intents
}

// close detaches every seat and marks the session unusable
func (s *Session) close(detach func(player.ID, uint64)) {
	for _, seat := range s.seats {
		if detach != nil {
			detach(seat.Player, s.ID)
		}
	}
	s.seats = s.seats[:0]
	s.closed = true
}

// View is a point-in-time summary of a session
type View struct {
	ID         uint64      `json:"id"`
	Engine     string      `json:"engine"`
	Status     Status      `json:"status"`
	Seats      []Seat      `json:"seats"`
	Turn       rules.Side  `json:"turn"`
	State      rules.State `json:"state"`
	Position   string      `json:"position,omitempty"`
	Moves      int         `json:"moves"`
	Outcome    *Outcome    `json:"outcome,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// View summarizes the session
func (s *Session) View() View {
	v := View{
		ID:        s.ID,
		Engine:    s.engine.Name(),
		Status:    s.status,
		Seats:     s.Seats(),
		Turn:      s.turn,
		State:     s.state,
		Position:  s.position,
		Moves:     s.moves,
		Outcome:   s.Outcome(),
		CreatedAt: s.CreatedAt,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		v.StartedAt = &t
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		v.FinishedAt = &t
	}
	return v
}

// Summary is the JSON encoding of View. Two summaries are byte-identical
// exactly when nothing observable about the session changed.
func (s *Session) Summary() ([]byte, error) {
	return json.Marshal(s.View())
}
