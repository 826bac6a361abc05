package rules

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrUnknownEngine = errors.New("unknown rules engine")
)

// Side identifies a seat within a two-player session
type Side int

const (
	First Side = iota + 1
	Second
)

// Other returns the opposing side
func (s Side) Other() Side {
	switch s {
	case First:
		return Second
	case Second:
		return First
	}
	return s
}

// Valid reports whether s is First or Second
func (s Side) Valid() bool {
	return s == First || s == Second
}

func (s Side) String() string {
	switch s {
	case First:
		return "first"
	case Second:
		return "second"
	}
	return "none"
}

// MarshalJSON encodes the side as its lowercase name
func (s Side) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts "first", "second" or null
func (s *Side) UnmarshalJSON(data []byte) error {
	var name *string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if name == nil {
		*s = 0
		return nil
	}
	switch *name {
	case "first":
		*s = First
	case "second":
		*s = Second
	default:
		return fmt.Errorf("unknown side %q", *name)
	}
	return nil
}

// State is an engine-defined encoding of a game position. It is immutable:
// applying a move returns a new State and never alters the old one.
type State string

// ResultKind classifies a position
type ResultKind int

const (
	Ongoing ResultKind = iota
	Decisive
	Draw
)

func (k ResultKind) String() string {
	switch k {
	case Decisive:
		return "decisive"
	case Draw:
		return "draw"
	}
	return "ongoing"
}

// MarshalJSON encodes the kind as its name
func (k ResultKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts "ongoing", "decisive" or "draw"
func (k *ResultKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "ongoing":
		*k = Ongoing
	case "decisive":
		*k = Decisive
	case "draw":
		*k = Draw
	default:
		return fmt.Errorf("unknown result kind %q", name)
	}
	return nil
}

// Result is the engine's verdict on a position. Reason names the terminating
// condition ("checkmate", "stalemate", ...) and is empty while Ongoing.
type Result struct {
	Kind   ResultKind
	Reason string
}

// Terminal reports whether the game is over
func (r Result) Terminal() bool {
	return r.Kind != Ongoing
}

// Engine validates moves and classifies positions for one game type
type Engine interface {
	// Name returns the catalog name of the engine
	Name() string

	// Initial returns the starting position
	Initial() State

	// ApplyMove returns the position after side plays move. A rejected move
	// yields an error wrapping ErrIllegalMove and leaves state untouched.
	ApplyMove(state State, side Side, move string) (State, error)

	// Outcome classifies state
	Outcome(state State) Result
}

// Describer is implemented by engines that can render a state in a
// client-friendly notation, such as FEN for chess
type Describer interface {
	Describe(state State) string
}

// Describe renders state with engine's Describer. It returns "" when engine
// has none or the Describer panics.
func Describe(engine Engine, state State) (desc string) {
	d, ok := engine.(Describer)
	if !ok {
		return ""
	}
	defer func() {
		if recover() != nil {
			desc = ""
		}
	}()
	return d.Describe(state)
}

// IllegalMove builds a rejection error carrying a human-readable reason
func IllegalMove(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalMove, fmt.Sprintf(format, args...))
}
