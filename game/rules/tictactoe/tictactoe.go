// Package tictactoe is a 3x3 noughts and crosses rules engine.
//
// A State is nine characters, row-major, each '.', 'X' or 'O'. First plays
// X. Moves are cell indexes "0" through "8".
package tictactoe

import (
	"strconv"
	"strings"

	"github.com/wricardo/duelhall/game/rules"
)

const (
	Name = "tictactoe"

	empty  = '.'
	cross  = 'X'
	naught = 'O'
)

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

func init() {
	rules.Register(Name, func() rules.Engine { return New() })
}

// Engine implements rules.Engine for tic-tac-toe
type Engine struct{}

// New creates a tic-tac-toe engine
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return Name
}

func (e *Engine) Initial() rules.State {
	return rules.State(strings.Repeat(string(empty), 9))
}

func (e *Engine) ApplyMove(state rules.State, side rules.Side, move string) (rules.State, error) {
	board, err := parse(state)
	if err != nil {
		return state, err
	}
	if winner(board) != 0 || full(board) {
		return state, rules.IllegalMove("game is over")
	}
	if toMove(board) != side {
		return state, rules.IllegalMove("%s is not to move", side)
	}

	idx, err := strconv.Atoi(strings.TrimSpace(move))
	if err != nil || idx < 0 || idx > 8 {
		return state, rules.IllegalMove("cell %q out of range 0-8", move)
	}
	if board[idx] != empty {
		return state, rules.IllegalMove("cell %d is occupied", idx)
	}

	next := []byte(board)
	next[idx] = mark(side)
	return rules.State(next), nil
}

func (e *Engine) Outcome(state rules.State) rules.Result {
	board, err := parse(state)
	if err != nil {
		return rules.Result{Kind: rules.Ongoing}
	}
	if winner(board) != 0 {
		return rules.Result{Kind: rules.Decisive, Reason: "three-in-a-row"}
	}
	if full(board) {
		return rules.Result{Kind: rules.Draw, Reason: "board-full"}
	}
	return rules.Result{Kind: rules.Ongoing}
}

// LegalMoves lists the empty cells of state, or nothing once the game is over
func LegalMoves(state rules.State) ([]string, error) {
	board, err := parse(state)
	if err != nil {
		return nil, err
	}
	if winner(board) != 0 {
		return nil, nil
	}
	var moves []string
	for i := 0; i < len(board); i++ {
		if board[i] == empty {
			moves = append(moves, strconv.Itoa(i))
		}
	}
	return moves, nil
}

func parse(state rules.State) (string, error) {
	board := string(state)
	if len(board) != 9 {
		return "", rules.IllegalMove("malformed board %q", board)
	}
	for i := 0; i < len(board); i++ {
		if board[i] != empty && board[i] != cross && board[i] != naught {
			return "", rules.IllegalMove("malformed board %q", board)
		}
	}
	return board, nil
}

func mark(side rules.Side) byte {
	if side == rules.First {
		return cross
	}
	return naught
}

func toMove(board string) rules.Side {
	if strings.Count(board, string(cross)) > strings.Count(board, string(naught)) {
		return rules.Second
	}
	return rules.First
}

func winner(board string) byte {
	for _, l := range lines {
		if board[l[0]] != empty && board[l[0]] == board[l[1]] && board[l[1]] == board[l[2]] {
			return board[l[0]]
		}
	}
	return 0
}

func full(board string) bool {
	return !strings.ContainsRune(board, empty)
}
