package service

import (
	"context"

	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/session"
)

// Coordinator is the single entry point for every externally triggered
// transition. Each call is serialized per player, and every read or write of
// a session happens under that session's lock.
type Coordinator interface {
	// Connection lifecycle
	Connect(ctx context.Context, handle player.Handle) (*player.Player, error)
	HandleDisconnect(ctx context.Context, id player.ID) error
	SetDisplayName(ctx context.Context, id player.ID, name string) (string, error)

	// Matchmaking and play
	RequestJoin(ctx context.Context, id player.ID) (*JoinResult, error)
	RequestLeave(ctx context.Context, id player.ID) (*LeaveResult, error)
	SubmitMove(ctx context.Context, id player.ID, move string) (*MoveResult, error)

	// Inspection
	Snapshot(ctx context.Context, sessionID uint64) (*session.View, error)
	ListSessions(ctx context.Context) ([]session.View, error)
	Stats(ctx context.Context) Stats
	EngineName() string
}

// Dispatcher delivers notification intents to the transport. Dispatch is
// called while a session is locked and must not block.
type Dispatcher interface {
	Dispatch(intents []session.Intent)
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(intents []session.Intent)

func (f DispatcherFunc) Dispatch(intents []session.Intent) { f(intents) }
