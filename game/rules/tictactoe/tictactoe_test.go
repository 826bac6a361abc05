package tictactoe

import (
	"errors"
	"strings"
	"testing"

	"github.com/wricardo/duelhall/game/rules"
)

func play(t *testing.T, e *Engine, moves ...string) rules.State {
	t.Helper()
	state := e.Initial()
	side := rules.First
	for _, m := range moves {
		next, err := e.ApplyMove(state, side, m)
		if err != nil {
			t.Fatalf("move %s by %s rejected: %v", m, side, err)
		}
		state = next
		side = side.Other()
	}
	return state
}

func TestEngine_ApplyMove(t *testing.T) {
	e := New()

	t.Run("places mark for side", func(t *testing.T) {
		state, err := e.ApplyMove(e.Initial(), rules.First, "4")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state != "....X...." {
			t.Errorf("Expected ....X...., got %s", state)
		}
	})

	tests := []struct {
		name  string
		state rules.State
		side  rules.Side
		move  string
	}{
		{"out of range", e.Initial(), rules.First, "9"},
		{"not a number", e.Initial(), rules.First, "center"},
		{"occupied cell", "....X....", rules.Second, "4"},
		{"wrong side", "....X....", rules.First, "0"},
		{"malformed board", "XO", rules.First, "0"},
		{"game already won", "XXXOO....", rules.Second, "8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := e.ApplyMove(tt.state, tt.side, tt.move)
			if !errors.Is(err, rules.ErrIllegalMove) {
				t.Fatalf("Expected ErrIllegalMove, got %v", err)
			}
			if next != tt.state {
				t.Errorf("Expected state to be unchanged, got %s", next)
			}
		})
	}
}

func TestEngine_Outcome(t *testing.T) {
	e := New()

	t.Run("ongoing", func(t *testing.T) {
		if got := e.Outcome(play(t, e, "0", "4")); got.Terminal() {
			t.Errorf("Expected ongoing, got %v", got)
		}
	})

	t.Run("row win", func(t *testing.T) {
		got := e.Outcome(play(t, e, "0", "3", "1", "4", "2"))
		if got.Kind != rules.Decisive || got.Reason != "three-in-a-row" {
			t.Errorf("Expected decisive three-in-a-row, got %+v", got)
		}
	})

	t.Run("draw", func(t *testing.T) {
		got := e.Outcome(play(t, e, "0", "1", "2", "4", "3", "5", "7", "6", "8"))
		if got.Kind != rules.Draw || got.Reason != "board-full" {
			t.Errorf("Expected draw board-full, got %+v", got)
		}
	})
}

func TestLegalMoves(t *testing.T) {
	e := New()

	moves, err := LegalMoves(play(t, e, "0", "4"))
	if err != nil {
		t.Fatalf("LegalMoves failed: %v", err)
	}
	if strings.Join(moves, ",") != "1,2,3,5,6,7,8" {
		t.Errorf("Expected 1,2,3,5,6,7,8, got %v", moves)
	}

	moves, err = LegalMoves(play(t, e, "0", "3", "1", "4", "2"))
	if err != nil {
		t.Fatalf("LegalMoves failed: %v", err)
	}
	if len(moves) != 0 {
		t.Errorf("Expected no moves after a win, got %v", moves)
	}

	if _, err := LegalMoves("XO"); err == nil {
		t.Error("Expected error for malformed board")
	}
}

func TestRegistered(t *testing.T) {
	eng, err := rules.Lookup("TicTacToe")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if eng.Name() != Name {
		t.Errorf("Expected %s, got %s", Name, eng.Name())
	}
}
