// Package chess adapts github.com/notnil/chess to the rules.Engine contract.
//
// A State is the game's move list in UCI notation separated by single
// spaces, starting from the standard position; the empty State is the
// initial position. Keeping the full move list (rather than a FEN) lets the
// engine detect repetition draws. First plays White.
//
// Moves may be submitted in UCI ("e2e4", "e7e8q") or SAN ("Nf3"); the
// stored form is always UCI.
package chess

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
	"github.com/wricardo/duelhall/game/rules"
)

const Name = "chess"

func init() {
	rules.Register(Name, func() rules.Engine { return New() })
}

// Engine implements rules.Engine for standard chess
type Engine struct{}

// New creates a chess engine
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return Name
}

func (e *Engine) Initial() rules.State {
	return ""
}

func (e *Engine) ApplyMove(state rules.State, side rules.Side, move string) (rules.State, error) {
	game, err := replay(state)
	if err != nil {
		return state, rules.IllegalMove("corrupt game state: %v", err)
	}
	if game.Outcome() != chess.NoOutcome {
		return state, rules.IllegalMove("game is over")
	}
	if colorOf(side) != game.Position().Turn() {
		return state, rules.IllegalMove("%s is not to move", side)
	}

	mv, err := decode(game, strings.TrimSpace(move))
	if err != nil {
		return state, err
	}

	uci := chess.UCINotation{}.Encode(game.Position(), mv)
	if err := game.Move(mv); err != nil {
		return state, rules.IllegalMove("%s: %v", move, err)
	}

	if state == "" {
		return rules.State(uci), nil
	}
	return state + rules.State(" "+uci), nil
}

func (e *Engine) Outcome(state rules.State) rules.Result {
	game, err := replay(state)
	if err != nil {
		return rules.Result{Kind: rules.Ongoing}
	}

	switch game.Outcome() {
	case chess.WhiteWon, chess.BlackWon:
		return rules.Result{Kind: rules.Decisive, Reason: reason(game.Method())}
	case chess.Draw:
		return rules.Result{Kind: rules.Draw, Reason: reason(game.Method())}
	}

	// Threefold repetition and the fifty-move rule are claimable rather than
	// automatic in notnil/chess; a session has no claim step, so they end it.
	for _, m := range game.EligibleDraws() {
		if m == chess.ThreefoldRepetition || m == chess.FiftyMoveRule {
			return rules.Result{Kind: rules.Draw, Reason: reason(m)}
		}
	}
	return rules.Result{Kind: rules.Ongoing}
}

// Describe renders state as FEN. A malformed state renders as "".
func (e *Engine) Describe(state rules.State) string {
	fen, err := FEN(state)
	if err != nil {
		return ""
	}
	return fen
}

// FEN returns the Forsyth-Edwards notation of state
func FEN(state rules.State) (string, error) {
	game, err := replay(state)
	if err != nil {
		return "", err
	}
	return game.FEN(), nil
}

// LegalMoves lists the UCI moves available to the side to move
func LegalMoves(state rules.State) ([]string, error) {
	game, err := replay(state)
	if err != nil {
		return nil, err
	}
	if game.Outcome() != chess.NoOutcome {
		return nil, nil
	}

	valid := game.ValidMoves()
	moves := make([]string, 0, len(valid))
	for _, mv := range valid {
		moves = append(moves, chess.UCINotation{}.Encode(game.Position(), mv))
	}
	return moves, nil
}

func replay(state rules.State) (*chess.Game, error) {
	game := chess.NewGame(chess.UseNotation(chess.UCINotation{}))
	for i, mv := range strings.Fields(string(state)) {
		if err := game.MoveStr(mv); err != nil {
			return nil, fmt.Errorf("move %d (%s): %w", i+1, mv, err)
		}
	}
	return game, nil
}

// decode resolves move against the legal moves of the current position,
// trying UCI first and SAN second.
func decode(game *chess.Game, move string) (*chess.Move, error) {
	if move == "" {
		return nil, rules.IllegalMove("empty move")
	}

	pos := game.Position()
	parsed, err := chess.UCINotation{}.Decode(pos, move)
	if err != nil {
		parsed, err = chess.AlgebraicNotation{}.Decode(pos, move)
		if err != nil {
			return nil, rules.IllegalMove("cannot parse %q", move)
		}
	}

	for _, mv := range game.ValidMoves() {
		if mv.S1() == parsed.S1() && mv.S2() == parsed.S2() && mv.Promo() == parsed.Promo() {
			return mv, nil
		}
	}
	return nil, rules.IllegalMove("%s is not legal in this position", move)
}

func colorOf(side rules.Side) chess.Color {
	if side == rules.First {
		return chess.White
	}
	return chess.Black
}

func reason(m chess.Method) string {
	switch m {
	case chess.Checkmate:
		return "checkmate"
	case chess.Stalemate:
		return "stalemate"
	case chess.InsufficientMaterial:
		return "insufficient-material"
	case chess.ThreefoldRepetition:
		return "threefold-repetition"
	case chess.FivefoldRepetition:
		return "fivefold-repetition"
	case chess.FiftyMoveRule:
		return "fifty-move-rule"
	case chess.SeventyFiveMoveRule:
		return "seventy-five-move-rule"
	case chess.Resignation:
		return "resignation"
	case chess.DrawOffer:
		return "draw-offer"
	}
	return strings.ToLower(m.String())
}
