package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/wricardo/duelhall/game/archive"
	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/rules"
	"github.com/wricardo/duelhall/game/rules/chess"
	"github.com/wricardo/duelhall/game/rules/tictactoe"
	"github.com/wricardo/duelhall/game/service"
	"github.com/wricardo/duelhall/game/session"
)

// RecordingDispatcher captures every intent in dispatch order
type RecordingDispatcher struct {
	mu      sync.Mutex
	intents []session.Intent
}

func (d *RecordingDispatcher) Dispatch(intents []session.Intent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intents = append(d.intents, intents...)
}

func (d *RecordingDispatcher) For(id player.ID) []session.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	var events []session.Event
	for _, in := range d.intents {
		if in.To == id {
			events = append(events, in.Event)
		}
	}
	return events
}

func (d *RecordingDispatcher) Count(id player.ID, eventType string) int {
	n := 0
	for _, ev := range d.For(id) {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

// MockEngine lets tests script rules behaviour
type MockEngine struct {
	ApplyMoveFunc func(state rules.State, side rules.Side, move string) (rules.State, error)
	OutcomeFunc   func(state rules.State) rules.Result
}

func (m *MockEngine) Name() string         { return "mock" }
func (m *MockEngine) Initial() rules.State { return "" }

func (m *MockEngine) ApplyMove(state rules.State, side rules.Side, move string) (rules.State, error) {
	if m.ApplyMoveFunc != nil {
		return m.ApplyMoveFunc(state, side, move)
	}
	return state + rules.State(move+";"), nil
}

func (m *MockEngine) Outcome(state rules.State) rules.Result {
	if m.OutcomeFunc != nil {
		return m.OutcomeFunc(state)
	}
	return rules.Result{Kind: rules.Ongoing}
}

type harness struct {
	players  *player.Registry
	pool     *session.Pool
	coord    service.Coordinator
	dispatch *RecordingDispatcher
	conns    int
}

func newHarness(t *testing.T, engine rules.Engine, opts service.Options) *harness {
	t.Helper()
	players := player.NewRegistry(0)
	pool := session.NewPool(engine, players)
	rec := &RecordingDispatcher{}
	return &harness{
		players:  players,
		pool:     pool,
		coord:    service.NewCoordinator(players, pool, rec, opts),
		dispatch: rec,
	}
}

func (h *harness) connect(t *testing.T, handle string) player.ID {
	t.Helper()
	p, err := h.coord.Connect(context.Background(), player.Handle(handle))
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", handle, err)
	}
	return p.ID
}

// pair connects and seats two players. With a coin that always returns true
// the first player plays First.
func (h *harness) pair(t *testing.T) (first, second player.ID, sessionID uint64) {
	t.Helper()
	ctx := context.Background()
	h.conns++
	first = h.connect(t, fmt.Sprintf("pair-%d-a", h.conns))
	second = h.connect(t, fmt.Sprintf("pair-%d-b", h.conns))

	if _, err := h.coord.RequestJoin(ctx, first); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	res, err := h.coord.RequestJoin(ctx, second)
	if err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	if res.Status != session.Active {
		t.Fatalf("Expected active session after second join, got %s", res.Status)
	}
	return first, second, res.SessionID
}

func (h *harness) summary(t *testing.T, id uint64) []byte {
	t.Helper()
	s, err := h.pool.Get(id)
	if err != nil {
		t.Fatalf("Failed to get session %d: %v", id, err)
	}
	s.Lock()
	defer s.Unlock()
	data, err := s.Summary()
	if err != nil {
		t.Fatalf("Failed to summarize session: %v", err)
	}
	return data
}

func alwaysFirst() bool { return true }

func TestConcurrentJoins(t *testing.T) {
	h := newHarness(t, tictactoe.New(), service.Options{})
	ctx := context.Background()

	const n = 50
	ids := make([]player.ID, n)
	for i := range ids {
		ids[i] = h.connect(t, fmt.Sprintf("conn-%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id player.ID) {
			defer wg.Done()
			if _, err := h.coord.RequestJoin(ctx, id); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Join failed: %v", err)
	}

	views, _ := h.coord.ListSessions(ctx)
	if len(views) != n/2 {
		t.Fatalf("Expected %d sessions, got %d", n/2, len(views))
	}
	seen := make(map[player.ID]uint64)
	for _, v := range views {
		if v.Status != session.Active {
			t.Errorf("Session %d: expected active, got %s", v.ID, v.Status)
		}
		if len(v.Seats) != 2 {
			t.Fatalf("Session %d: expected 2 seats, got %d", v.ID, len(v.Seats))
		}
		if v.Seats[0].Side == v.Seats[1].Side || !v.Seats[0].Side.Valid() || !v.Seats[1].Side.Valid() {
			t.Errorf("Session %d: expected one First and one Second seat, got %+v", v.ID, v.Seats)
		}
		for _, seat := range v.Seats {
			if prev, dup := seen[seat.Player]; dup {
				t.Errorf("Player %s seated in sessions %d and %d", seat.Player, prev, v.ID)
			}
			seen[seat.Player] = v.ID
		}
	}

	for _, id := range ids {
		if got := h.dispatch.Count(id, session.EventSessionStarted); got != 1 {
			t.Errorf("Player %s: expected 1 session_started, got %d", id, got)
		}
	}

	stats := h.coord.Stats(ctx)
	if stats.Forming != 0 || stats.Active != n/2 {
		t.Errorf("Expected 0 forming and %d active sessions, got %d and %d", n/2, stats.Forming, stats.Active)
	}
	if stats.Started != n/2 {
		t.Errorf("Expected %d started sessions, got %d", n/2, stats.Started)
	}
}

func TestJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("First join forms a session", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{})
		id := h.connect(t, "c1")

		res, err := h.coord.RequestJoin(ctx, id)
		if err != nil {
			t.Fatalf("Failed to join: %v", err)
		}
		if res.Status != session.Forming {
			t.Errorf("Expected forming, got %s", res.Status)
		}
		if res.Side.Valid() {
			t.Errorf("Expected no side before start, got %s", res.Side)
		}
		if got := len(h.dispatch.For(id)); got != 0 {
			t.Errorf("Expected no events for a forming session, got %d", got)
		}
	})

	t.Run("Join while seated returns current seat", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst})
		first, _, sid := h.pair(t)

		res, err := h.coord.RequestJoin(ctx, first)
		if err != nil {
			t.Fatalf("Repeat join failed: %v", err)
		}
		if res.SessionID != sid || res.Side != rules.First {
			t.Errorf("Expected seat in session %d as first, got %+v", sid, res)
		}
		if got := h.pool.Count(); got != 1 {
			t.Errorf("Expected 1 session, got %d", got)
		}
	})

	t.Run("Session started carries opponent and initial state", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst})
		first, second, sid := h.pair(t)

		events := h.dispatch.For(second)
		if len(events) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(events))
		}
		started, ok := events[0].(session.SessionStarted)
		if !ok {
			t.Fatalf("Expected SessionStarted, got %T", events[0])
		}
		if started.SessionID != sid || started.Side != rules.Second || started.OpponentID != first {
			t.Errorf("Unexpected session_started: %+v", started)
		}
		if started.InitialState != tictactoe.New().Initial() || started.Turn != rules.First {
			t.Errorf("Expected initial board with first to move, got %q %s", started.InitialState, started.Turn)
		}
	})

	t.Run("Unknown player", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{})
		_, err := h.coord.RequestJoin(ctx, "nobody")
		if !errors.Is(err, service.ErrValidation) {
			t.Errorf("Expected ErrValidation, got %v", err)
		}
	})

	t.Run("Oldest waiting session fills first", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{})
		a := h.connect(t, "a")
		b := h.connect(t, "b")
		c := h.connect(t, "c")

		ra, _ := h.coord.RequestJoin(ctx, a)
		// a leaves so its session is gone; b forms a new one
		h.coord.RequestLeave(ctx, a)
		rb, _ := h.coord.RequestJoin(ctx, b)
		rc, _ := h.coord.RequestJoin(ctx, c)

		if rb.SessionID == ra.SessionID {
			t.Errorf("Expected a fresh session id after the first was destroyed")
		}
		if rc.SessionID != rb.SessionID || rc.Status != session.Active {
			t.Errorf("Expected c to join b's session %d, got %+v", rb.SessionID, rc)
		}
	})
}

func TestLeave(t *testing.T) {
	ctx := context.Background()

	t.Run("Leaving an active session resigns it", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst})
		first, second, sid := h.pair(t)

		res, err := h.coord.RequestLeave(ctx, first)
		if err != nil {
			t.Fatalf("Leave failed: %v", err)
		}
		if res.SessionID != sid || res.Outcome == nil {
			t.Fatalf("Expected outcome for session %d, got %+v", sid, res)
		}

		if got := h.dispatch.Count(first, session.EventSessionFinished); got != 0 {
			t.Errorf("Leaver should not receive session_finished, got %d", got)
		}
		events := h.dispatch.For(second)
		finished, ok := events[len(events)-1].(session.SessionFinished)
		if !ok {
			t.Fatalf("Expected SessionFinished, got %T", events[len(events)-1])
		}
		if finished.Outcome.Kind != rules.Decisive || finished.Outcome.Winner != rules.Second {
			t.Errorf("Expected decisive win for second, got %+v", finished.Outcome)
		}
		if finished.Outcome.WinnerID != second || finished.Outcome.Reason != session.ReasonResignation {
			t.Errorf("Expected resignation won by %s, got %+v", second, finished.Outcome)
		}

		if h.pool.Count() != 0 {
			t.Errorf("Expected session destroyed, %d remain", h.pool.Count())
		}
		for _, id := range []player.ID{first, second} {
			p, _ := h.players.Lookup(id)
			if p.SessionID() != 0 {
				t.Errorf("Player %s still bound to session %d", id, p.SessionID())
			}
		}
	})

	t.Run("Leave is idempotent", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{})
		first, second, _ := h.pair(t)

		if _, err := h.coord.RequestLeave(ctx, first); err != nil {
			t.Fatalf("Leave failed: %v", err)
		}
		before := len(h.dispatch.For(second))

		res, err := h.coord.RequestLeave(ctx, first)
		if err != nil {
			t.Fatalf("Second leave failed: %v", err)
		}
		if res.SessionID != 0 || res.Outcome != nil {
			t.Errorf("Expected no-op leave, got %+v", res)
		}
		if after := len(h.dispatch.For(second)); after != before {
			t.Errorf("Expected no new events, got %d", after-before)
		}
		if stats := h.coord.Stats(ctx); stats.Finished != 1 {
			t.Errorf("Expected 1 finished session, got %d", stats.Finished)
		}
	})

	t.Run("Leaving a forming session destroys it", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{})
		id := h.connect(t, "solo")
		h.coord.RequestJoin(ctx, id)

		res, err := h.coord.RequestLeave(ctx, id)
		if err != nil {
			t.Fatalf("Leave failed: %v", err)
		}
		if res.SessionID == 0 || res.Outcome != nil {
			t.Errorf("Expected vacated forming session without outcome, got %+v", res)
		}
		if forming, active := h.pool.Counts(); forming != 0 || active != 0 {
			t.Errorf("Expected empty pool, got %d forming %d active", forming, active)
		}
	})

	t.Run("Leave before any join", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{})
		id := h.connect(t, "idle")
		res, err := h.coord.RequestLeave(ctx, id)
		if err != nil || res.SessionID != 0 {
			t.Errorf("Expected no-op, got %+v %v", res, err)
		}
	})
}

func TestSubmitMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Out of turn leaves session unchanged", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst})
		_, second, sid := h.pair(t)
		before := h.summary(t, sid)

		_, err := h.coord.SubmitMove(ctx, second, "4")
		if !errors.Is(err, service.ErrOutOfTurn) {
			t.Fatalf("Expected ErrOutOfTurn, got %v", err)
		}
		if service.Code(err) != "out_of_turn" {
			t.Errorf("Expected code out_of_turn, got %s", service.Code(err))
		}
		if after := h.summary(t, sid); !bytes.Equal(before, after) {
			t.Errorf("Summary changed:\nbefore %s\nafter  %s", before, after)
		}
	})

	t.Run("Accepted move is broadcast", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst})
		first, second, sid := h.pair(t)

		res, err := h.coord.SubmitMove(ctx, first, " 4 ")
		if err != nil {
			t.Fatalf("Move failed: %v", err)
		}
		if res.NewState != "....X...." || res.Turn != rules.Second || res.MoveNumber != 1 {
			t.Errorf("Unexpected move result: %+v", res)
		}
		for _, id := range []player.ID{first, second} {
			events := h.dispatch.For(id)
			applied, ok := events[len(events)-1].(session.MoveApplied)
			if !ok {
				t.Fatalf("Expected MoveApplied for %s, got %T", id, events[len(events)-1])
			}
			if applied.SessionID != sid || applied.Move != "4" || applied.AppliedBy != rules.First {
				t.Errorf("Unexpected move_applied: %+v", applied)
			}
		}
	})

	t.Run("Decisive outcome ends the session", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst})
		first, second, _ := h.pair(t)

		script := []struct {
			who  player.ID
			move string
		}{
			{first, "0"}, {second, "3"}, {first, "1"}, {second, "4"}, {first, "2"},
		}
		var last *service.MoveResult
		for _, step := range script {
			res, err := h.coord.SubmitMove(ctx, step.who, step.move)
			if err != nil {
				t.Fatalf("Move %s failed: %v", step.move, err)
			}
			last = res
		}
		if last.Outcome == nil || last.Outcome.Winner != rules.First || last.Outcome.Reason != "three-in-a-row" {
			t.Fatalf("Expected first to win by three-in-a-row, got %+v", last.Outcome)
		}

		for _, id := range []player.ID{first, second} {
			if got := h.dispatch.Count(id, session.EventSessionFinished); got != 1 {
				t.Errorf("Player %s: expected 1 session_finished, got %d", id, got)
			}
		}

		_, err := h.coord.SubmitMove(ctx, second, "5")
		if !errors.Is(err, service.ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState after finish, got %v", err)
		}
		if h.pool.Count() != 0 {
			t.Errorf("Expected finished session destroyed")
		}
	})

	t.Run("Draw outcome", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst})
		first, second, _ := h.pair(t)

		moves := []string{"0", "1", "2", "4", "3", "5", "7", "6", "8"}
		var last *service.MoveResult
		for i, m := range moves {
			who := first
			if i%2 == 1 {
				who = second
			}
			res, err := h.coord.SubmitMove(ctx, who, m)
			if err != nil {
				t.Fatalf("Move %s failed: %v", m, err)
			}
			last = res
		}
		if last.Outcome == nil || last.Outcome.Kind != rules.Draw || last.Outcome.Winner.Valid() {
			t.Fatalf("Expected draw with no winner, got %+v", last.Outcome)
		}
		if last.Outcome.Reason != "board-full" {
			t.Errorf("Expected board-full, got %s", last.Outcome.Reason)
		}
	})

	t.Run("Rules rejection", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst})
		first, _, sid := h.pair(t)
		before := h.summary(t, sid)

		_, err := h.coord.SubmitMove(ctx, first, "9")
		if !errors.Is(err, service.ErrRulesRejected) {
			t.Fatalf("Expected ErrRulesRejected, got %v", err)
		}
		var rejected *service.RejectedError
		if !errors.As(err, &rejected) || !strings.Contains(rejected.Reason, "out of range") {
			t.Errorf("Expected out of range reason, got %v", err)
		}
		if after := h.summary(t, sid); !bytes.Equal(before, after) {
			t.Errorf("Summary changed after rejection")
		}
		if stats := h.coord.Stats(ctx); stats.MovesRejected != 1 || stats.MovesApplied != 0 {
			t.Errorf("Unexpected stats: %+v", stats)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst})
		first, _, _ := h.pair(t)

		for _, move := range []string{"", "   ", strings.Repeat("a", 65)} {
			if _, err := h.coord.SubmitMove(ctx, first, move); !errors.Is(err, service.ErrValidation) {
				t.Errorf("Move %q: expected ErrValidation, got %v", move, err)
			}
		}
		if _, err := h.coord.SubmitMove(ctx, "ghost", "1"); !errors.Is(err, service.ErrValidation) {
			t.Errorf("Expected ErrValidation for unknown player, got %v", err)
		}
	})

	t.Run("Invalid state", func(t *testing.T) {
		h := newHarness(t, tictactoe.New(), service.Options{})
		idle := h.connect(t, "idle")
		if _, err := h.coord.SubmitMove(ctx, idle, "1"); !errors.Is(err, service.ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState for unseated player, got %v", err)
		}

		h.coord.RequestJoin(ctx, idle)
		if _, err := h.coord.SubmitMove(ctx, idle, "1"); !errors.Is(err, service.ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState in forming session, got %v", err)
		}
	})

	t.Run("Panicking engine is contained", func(t *testing.T) {
		engine := &MockEngine{
			ApplyMoveFunc: func(state rules.State, side rules.Side, move string) (rules.State, error) {
				if move == "boom" {
					panic("engine fault")
				}
				return state + rules.State(move), nil
			},
		}
		h := newHarness(t, engine, service.Options{Coin: alwaysFirst})
		first, _, sid := h.pair(t)
		before := h.summary(t, sid)

		_, err := h.coord.SubmitMove(ctx, first, "boom")
		var rejected *service.RejectedError
		if !errors.As(err, &rejected) || rejected.Reason != service.ReasonInternalError {
			t.Fatalf("Expected internal-error rejection, got %v", err)
		}
		if after := h.summary(t, sid); !bytes.Equal(before, after) {
			t.Errorf("Summary changed after engine panic")
		}
		if _, err := h.coord.SubmitMove(ctx, first, "ok"); err != nil {
			t.Errorf("Session should remain playable, got %v", err)
		}
	})

	t.Run("Panicking outcome leaves session unchanged", func(t *testing.T) {
		engine := &MockEngine{
			OutcomeFunc: func(state rules.State) rules.Result {
				panic("outcome fault")
			},
		}
		h := newHarness(t, engine, service.Options{Coin: alwaysFirst})
		first, _, sid := h.pair(t)
		before := h.summary(t, sid)

		if _, err := h.coord.SubmitMove(ctx, first, "x"); !errors.Is(err, service.ErrRulesRejected) {
			t.Fatalf("Expected ErrRulesRejected, got %v", err)
		}
		if after := h.summary(t, sid); !bytes.Equal(before, after) {
			t.Errorf("Summary changed after outcome panic")
		}
	})
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		distinct bool
		reason   string
	}{
		{"Default reason", false, session.ReasonResignation},
		{"Distinct reason", true, session.ReasonAbandoned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst, DistinctDisconnect: tt.distinct})
			first, second, _ := h.pair(t)

			if err := h.coord.HandleDisconnect(ctx, first); err != nil {
				t.Fatalf("Disconnect failed: %v", err)
			}

			events := h.dispatch.For(second)
			finished, ok := events[len(events)-1].(session.SessionFinished)
			if !ok {
				t.Fatalf("Expected SessionFinished, got %T", events[len(events)-1])
			}
			if finished.Outcome.WinnerID != second || finished.Outcome.Reason != tt.reason {
				t.Errorf("Expected %s won by %s, got %+v", tt.reason, second, finished.Outcome)
			}
			if h.players.Count() != 1 {
				t.Errorf("Expected 1 player left, got %d", h.players.Count())
			}
			if _, err := h.coord.RequestJoin(ctx, first); !errors.Is(err, service.ErrValidation) {
				t.Errorf("Expected ErrValidation for disconnected player, got %v", err)
			}
			if err := h.coord.HandleDisconnect(ctx, first); err != nil {
				t.Errorf("Repeat disconnect should be ignored, got %v", err)
			}
		})
	}

	t.Run("Racing moves and disconnects", func(t *testing.T) {
		h := newHarness(t, &MockEngine{}, service.Options{})
		const pairs = 20

		var wg sync.WaitGroup
		var all []player.ID
		for i := 0; i < pairs; i++ {
			a, b, _ := h.pair(t)
			all = append(all, a, b)
			for _, id := range []player.ID{a, b} {
				wg.Add(1)
				go func(id player.ID) {
					defer wg.Done()
					for j := 0; j < 10; j++ {
						h.coord.SubmitMove(ctx, id, "m")
					}
				}(id)
			}
			wg.Add(1)
			go func(id player.ID) {
				defer wg.Done()
				h.coord.HandleDisconnect(ctx, id)
			}(a)
		}
		wg.Wait()

		if h.pool.Count() != 0 {
			t.Errorf("Expected every session finished, %d remain", h.pool.Count())
		}
		for _, id := range all {
			if got := h.dispatch.Count(id, session.EventSessionFinished); got > 1 {
				t.Errorf("Player %s received %d session_finished events", id, got)
			}
		}
		if stats := h.coord.Stats(ctx); stats.Finished != pairs {
			t.Errorf("Expected %d finished sessions, got %d", pairs, stats.Finished)
		}
	})
}

// movesApplied returns the MoveApplied events id received for session sid,
// in dispatch order
func (d *RecordingDispatcher) movesApplied(id player.ID, sid uint64) []session.MoveApplied {
	var moves []session.MoveApplied
	for _, ev := range d.For(id) {
		if mv, ok := ev.(session.MoveApplied); ok && mv.SessionID == sid {
			moves = append(moves, mv)
		}
	}
	return moves
}

// race runs fns concurrently, released together
func race(fns ...func()) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		go func(fn func()) {
			defer wg.Done()
			<-start
			fn()
		}(fn)
	}
	close(start)
	wg.Wait()
}

func TestSimultaneousMoves(t *testing.T) {
	ctx := context.Background()
	const rounds = 200

	t.Run("Both seats submit at once", func(t *testing.T) {
		h := newHarness(t, &MockEngine{}, service.Options{Coin: alwaysFirst})

		for i := 0; i < rounds; i++ {
			first, second, sid := h.pair(t)

			var firstErr, secondErr error
			race(
				func() { _, firstErr = h.coord.SubmitMove(ctx, first, "a") },
				func() { _, secondErr = h.coord.SubmitMove(ctx, second, "b") },
			)

			if firstErr != nil {
				t.Fatalf("Round %d: expected First's move to be accepted, got %v", i, firstErr)
			}
			if secondErr != nil && !errors.Is(secondErr, service.ErrOutOfTurn) {
				t.Fatalf("Round %d: expected Second to succeed or get ErrOutOfTurn, got %v", i, secondErr)
			}

			moves := h.dispatch.movesApplied(first, sid)
			want := 1
			if secondErr == nil {
				want = 2
			}
			if len(moves) != want {
				t.Fatalf("Round %d: expected %d applied moves, got %d", i, want, len(moves))
			}
			for n, mv := range moves {
				expected := rules.First
				if n%2 == 1 {
					expected = rules.Second
				}
				if mv.AppliedBy != expected || mv.MoveNumber != n+1 {
					t.Fatalf("Round %d: move %d applied by %s as #%d, expected %s as #%d", i, n, mv.AppliedBy, mv.MoveNumber, expected, n+1)
				}
			}

			h.coord.HandleDisconnect(ctx, first)
			h.coord.HandleDisconnect(ctx, second)
		}
	})

	t.Run("Duplicate submissions from the seat to move", func(t *testing.T) {
		h := newHarness(t, &MockEngine{}, service.Options{Coin: alwaysFirst})

		for i := 0; i < rounds; i++ {
			first, second, sid := h.pair(t)

			errs := make([]error, 2)
			race(
				func() { _, errs[0] = h.coord.SubmitMove(ctx, first, "a") },
				func() { _, errs[1] = h.coord.SubmitMove(ctx, first, "a") },
			)

			accepted := 0
			for _, err := range errs {
				switch {
				case err == nil:
					accepted++
				case !errors.Is(err, service.ErrOutOfTurn):
					t.Fatalf("Round %d: expected ErrOutOfTurn for the losing duplicate, got %v", i, err)
				}
			}
			if accepted != 1 {
				t.Fatalf("Round %d: expected exactly one accepted move, got %d", i, accepted)
			}
			if moves := h.dispatch.movesApplied(second, sid); len(moves) != 1 || moves[0].AppliedBy != rules.First {
				t.Fatalf("Round %d: expected one move by First, got %+v", i, moves)
			}

			h.coord.HandleDisconnect(ctx, first)
			h.coord.HandleDisconnect(ctx, second)
		}
	})

	t.Run("Move races a leave", func(t *testing.T) {
		h := newHarness(t, &MockEngine{}, service.Options{Coin: alwaysFirst})

		for i := 0; i < rounds; i++ {
			first, second, sid := h.pair(t)

			var moveErr, leaveErr error
			race(
				func() { _, moveErr = h.coord.SubmitMove(ctx, first, "a") },
				func() { _, leaveErr = h.coord.RequestLeave(ctx, second) },
			)

			if leaveErr != nil {
				t.Fatalf("Round %d: leave failed: %v", i, leaveErr)
			}
			if moveErr != nil && !errors.Is(moveErr, service.ErrInvalidState) {
				t.Fatalf("Round %d: expected move to succeed or get ErrInvalidState, got %v", i, moveErr)
			}
			if got := h.dispatch.Count(first, session.EventSessionFinished); got != 1 {
				t.Fatalf("Round %d: expected exactly one session_finished for the remaining seat, got %d", i, got)
			}
			if _, err := h.pool.Get(sid); !errors.Is(err, session.ErrSessionNotFound) {
				t.Fatalf("Round %d: expected session %d destroyed, got %v", i, sid, err)
			}
			if _, err := h.coord.SubmitMove(ctx, first, "b"); !errors.Is(err, service.ErrInvalidState) {
				t.Fatalf("Round %d: expected ErrInvalidState after finish, got %v", i, err)
			}

			h.coord.HandleDisconnect(ctx, first)
			h.coord.HandleDisconnect(ctx, second)
		}
	})
}

func TestChessPosition(t *testing.T) {
	const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

	h := newHarness(t, chess.New(), service.Options{Coin: alwaysFirst})
	ctx := context.Background()
	first, second, sid := h.pair(t)

	for _, id := range []player.ID{first, second} {
		started, ok := h.dispatch.For(id)[0].(session.SessionStarted)
		if !ok {
			t.Fatalf("Expected SessionStarted first for %s", id)
		}
		if started.InitialState != "" || started.Position != startFEN {
			t.Errorf("Expected start position %s, got state %q position %q", startFEN, started.InitialState, started.Position)
		}
	}

	res, err := h.coord.SubmitMove(ctx, first, "e4")
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq"
	if res.NewState != "e2e4" || !strings.HasPrefix(res.Position, afterE4) {
		t.Errorf("Unexpected move result: state %q position %q", res.NewState, res.Position)
	}

	moves := h.dispatch.movesApplied(second, sid)
	if len(moves) != 1 || moves[0].Position != res.Position {
		t.Errorf("Expected move_applied to carry position %q, got %+v", res.Position, moves)
	}

	v, err := h.coord.Snapshot(ctx, sid)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if v.Position != res.Position {
		t.Errorf("Expected snapshot position %q, got %q", res.Position, v.Position)
	}
}

func TestSideAssignmentFairness(t *testing.T) {
	h := newHarness(t, tictactoe.New(), service.Options{})
	ctx := context.Background()

	const pairings = 200
	firstJoinerFirst := 0
	for i := 0; i < pairings; i++ {
		a, b, sid := h.pair(t)
		v, err := h.coord.Snapshot(ctx, sid)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if v.Seats[0].Player != a {
			t.Fatalf("Expected seat 0 to be the first joiner")
		}
		if v.Seats[0].Side == rules.First {
			firstJoinerFirst++
		}
		h.coord.HandleDisconnect(ctx, a)
		h.coord.HandleDisconnect(ctx, b)
	}

	ratio := float64(firstJoinerFirst) / pairings
	if ratio < 0.35 || ratio > 0.65 {
		t.Errorf("Expected first joiner to get First in 35%%-65%% of pairings, got %.2f", ratio)
	}
}

func TestDisplayName(t *testing.T) {
	h := newHarness(t, tictactoe.New(), service.Options{})
	ctx := context.Background()
	a := h.connect(t, "a")
	b := h.connect(t, "b")

	name, err := h.coord.SetDisplayName(ctx, a, "  alice ")
	if err != nil {
		t.Fatalf("SetDisplayName failed: %v", err)
	}
	if name != "alice" {
		t.Errorf("Expected trimmed name alice, got %q", name)
	}
	if _, err := h.coord.SetDisplayName(ctx, a, "   "); !errors.Is(err, service.ErrValidation) {
		t.Errorf("Expected ErrValidation for blank name, got %v", err)
	}

	h.coord.RequestJoin(ctx, a)
	h.coord.RequestJoin(ctx, b)

	events := h.dispatch.For(b)
	started := events[0].(session.SessionStarted)
	if started.OpponentName != "alice" {
		t.Errorf("Expected opponent name alice, got %q", started.OpponentName)
	}
	started = h.dispatch.For(a)[0].(session.SessionStarted)
	if started.OpponentName != player.DefaultName {
		t.Errorf("Expected default opponent name, got %q", started.OpponentName)
	}
}

func TestArchive(t *testing.T) {
	fa, err := archive.NewFileArchive(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	h := newHarness(t, tictactoe.New(), service.Options{Coin: alwaysFirst, Archive: fa})
	ctx := context.Background()

	first, second, sid := h.pair(t)
	h.coord.SubmitMove(ctx, first, "4")
	h.coord.RequestLeave(ctx, second)

	rec, err := fa.Load(sid)
	if err != nil {
		t.Fatalf("Expected archived record: %v", err)
	}
	if len(rec.Seats) != 2 || rec.Moves != 1 || rec.FinalState != "....X...." {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if rec.Outcome.WinnerID != first || rec.Outcome.Reason != session.ReasonResignation {
		t.Errorf("Unexpected outcome: %+v", rec.Outcome)
	}

	v, err := h.coord.Snapshot(ctx, sid)
	if err != nil {
		t.Fatalf("Snapshot of archived session failed: %v", err)
	}
	if v.Status != session.Finished || v.Outcome == nil {
		t.Errorf("Expected finished view, got %+v", v)
	}

	if _, err := h.coord.Snapshot(ctx, 999); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", service.ErrValidation), "validation"},
		{service.ErrOutOfTurn, "out_of_turn"},
		{service.ErrInvalidState, "invalid_state"},
		{&service.RejectedError{Reason: "x"}, "rules_rejected"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		if got := service.Code(tt.err); got != tt.want {
			t.Errorf("Code(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}
