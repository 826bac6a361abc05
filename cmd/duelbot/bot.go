package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"

	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/rules"
	"github.com/wricardo/duelhall/game/rules/chess"
	"github.com/wricardo/duelhall/game/rules/tictactoe"
	"github.com/wricardo/duelhall/game/session"
	duelws "github.com/wricardo/duelhall/transport/websocket"
)

var errNoMoves = errors.New("no legal moves")

// Tally counts one bot's results
type Tally struct {
	Wins     int
	Losses   int
	Draws    int
	Moves    int
	Rejected int
}

// Games returns the number of finished games
func (t Tally) Games() int {
	return t.Wins + t.Losses + t.Draws
}

// Bot is a scripted player that joins, plays random legal moves, and
// rejoins until it has finished Games sessions.
type Bot struct {
	Name  string
	URL   string
	Games int
	Quiet bool

	rng  *rand.Rand
	conn *websocket.Conn
	id   player.ID

	engine    string
	sessionID uint64
	side      rules.Side
	state     rules.State

	Tally Tally
}

// NewBot creates a bot seeded with seed
func NewBot(name, url string, games int, seed uint64) *Bot {
	return &Bot{
		Name:  name,
		URL:   url,
		Games: games,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Run connects and plays until Games sessions finish, the server closes the
// connection, or ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.URL, err)
	}
	b.conn = conn
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := b.send(duelws.Request{Type: duelws.RequestJoin}); err != nil {
		return err
	}

	for b.Tally.Games() < b.Games {
		var msg duelws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := b.handle(msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handle(msg duelws.Message) error {
	switch msg.Type {
	case duelws.ReplyConnected:
		var c duelws.Connected
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			return err
		}
		b.id = c.PlayerID

	case session.EventSessionStarted:
		var ev session.SessionStarted
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return err
		}
		b.engine = ev.Engine
		b.sessionID = ev.SessionID
		b.side = ev.Side
		b.state = ev.InitialState
		b.logf("session %d started as %s against %s", ev.SessionID, ev.Side, ev.OpponentName)
		if ev.Turn == b.side {
			return b.play()
		}

	case session.EventMoveApplied:
		var ev session.MoveApplied
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return err
		}
		b.state = ev.NewState
		if ev.AppliedBy == b.side {
			b.Tally.Moves++
		}
		if ev.Turn == b.side {
			return b.play()
		}

	case session.EventMoveRejected:
		var ev session.MoveRejected
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return err
		}
		b.Tally.Rejected++
		if !b.Quiet {
			pterm.Warning.Printfln("%s: move %s rejected (%s: %s)", b.Name, ev.Move, ev.Code, ev.Reason)
		}
		if ev.Code == "rules_rejected" {
			return b.play()
		}

	case session.EventSessionFinished:
		var ev duelws.SessionFinished
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return err
		}
		b.finish(ev)
		if b.Tally.Games() < b.Games {
			return b.send(duelws.Request{Type: duelws.RequestJoin})
		}

	case duelws.ReplyError:
		var e duelws.ErrorReply
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return err
		}
		if !b.Quiet {
			pterm.Error.Printfln("%s: %s (%s)", b.Name, e.Reason, e.Code)
		}
	}
	return nil
}

func (b *Bot) finish(ev duelws.SessionFinished) {
	switch {
	case ev.Winner == nil:
		b.Tally.Draws++
		b.logf("session %d drawn (%s)", ev.SessionID, ev.Reason)
	case *ev.Winner == b.side.String() || *ev.Winner == string(b.id):
		b.Tally.Wins++
		b.logf("session %d won (%s)", ev.SessionID, ev.Reason)
	default:
		b.Tally.Losses++
		b.logf("session %d lost (%s)", ev.SessionID, ev.Reason)
	}
	b.sessionID = 0
	b.side = 0
}

func (b *Bot) play() error {
	move, err := pickMove(b.engine, b.state, b.rng)
	if errors.Is(err, errNoMoves) {
		// terminal position, session_finished follows
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: session %d: %w", b.Name, b.sessionID, err)
	}
	return b.send(duelws.Request{Type: duelws.RequestSubmitMove, Move: move})
}

func (b *Bot) send(req duelws.Request) error {
	if err := b.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write %s: %w", req.Type, err)
	}
	return nil
}

func (b *Bot) logf(format string, args ...any) {
	if b.Quiet {
		return
	}
	pterm.Info.Printfln("%s: "+format, append([]any{b.Name}, args...)...)
}

// pickMove chooses a random legal move for the named engine
func pickMove(engine string, state rules.State, rng *rand.Rand) (string, error) {
	var (
		moves []string
		err   error
	)
	switch engine {
	case chess.Name:
		moves, err = chess.LegalMoves(state)
	case tictactoe.Name:
		moves, err = tictactoe.LegalMoves(state)
	default:
		return "", fmt.Errorf("%w: %s", rules.ErrUnknownEngine, engine)
	}
	if err != nil {
		return "", err
	}
	if len(moves) == 0 {
		return "", errNoMoves
	}
	return moves[rng.IntN(len(moves))], nil
}
