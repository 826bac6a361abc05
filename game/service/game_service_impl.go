package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wricardo/duelhall/game/archive"
	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/rules"
	"github.com/wricardo/duelhall/game/session"
)

const tracerName = "github.com/wricardo/duelhall/game/service"

// defaultMaxMoveLength bounds move input when Options leaves it unset
const defaultMaxMoveLength = 64

// coordinator implements the Coordinator interface
type coordinator struct {
	players    *player.Registry
	pool       *session.Pool
	dispatcher Dispatcher
	opts       Options
	tracer     trace.Tracer

	// lobby serializes find-or-create plus seating so concurrent joiners
	// never strand each other in separate one-seat sessions.
	lobby sync.Mutex

	started  atomic.Uint64
	finished atomic.Uint64
	applied  atomic.Uint64
	rejected atomic.Uint64
}

// NewCoordinator creates a coordinator over players and pool. It installs
// itself as the registry's leave path so unregistering a seated player
// resigns its session.
func NewCoordinator(players *player.Registry, pool *session.Pool, dispatcher Dispatcher, opts Options) Coordinator {
	if opts.Coin == nil {
		opts.Coin = func() bool { return rand.IntN(2) == 0 }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxMoveLength <= 0 {
		opts.MaxMoveLength = defaultMaxMoveLength
	}
	if dispatcher == nil {
		dispatcher = DispatcherFunc(func([]session.Intent) {})
	}

	c := &coordinator{
		players:    players,
		pool:       pool,
		dispatcher: dispatcher,
		opts:       opts,
		tracer:     otel.Tracer(tracerName),
	}
	players.SetLeaver(c)
	return c
}

// Connect registers a new player for a transport handle
func (c *coordinator) Connect(ctx context.Context, handle player.Handle) (*player.Player, error) {
	_, span := c.tracer.Start(ctx, "Coordinator.Connect")
	defer span.End()

	p, err := c.players.Register(handle)
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("%w: %w", ErrValidation, err))
	}
	span.SetAttributes(attribute.String("player.id", string(p.ID)))
	return p, nil
}

// HandleDisconnect removes a player, resigning any session it sits in.
// Unknown players are ignored.
func (c *coordinator) HandleDisconnect(ctx context.Context, id player.ID) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.HandleDisconnect",
		trace.WithAttributes(attribute.String("player.id", string(id))))
	defer span.End()

	return endSpan(span, c.players.Unregister(ctx, id))
}

// SetDisplayName changes the name shown to future opponents
func (c *coordinator) SetDisplayName(ctx context.Context, id player.ID, name string) (string, error) {
	_, span := c.tracer.Start(ctx, "Coordinator.SetDisplayName",
		trace.WithAttributes(attribute.String("player.id", string(id))))
	defer span.End()

	set, err := c.players.Rename(id, name)
	if err != nil {
		return "", endSpan(span, fmt.Errorf("%w: %w", ErrValidation, err))
	}
	return set, nil
}

// RequestJoin seats the player in the oldest waiting session, or a new one.
// A player already seated gets its current seat back unchanged.
func (c *coordinator) RequestJoin(ctx context.Context, id player.ID) (*JoinResult, error) {
	_, span := c.tracer.Start(ctx, "Coordinator.RequestJoin",
		trace.WithAttributes(attribute.String("player.id", string(id))))
	defer span.End()

	p, err := c.acquire(id)
	if err != nil {
		return nil, endSpan(span, err)
	}
	defer p.Unlock()

	if res, ok := c.currentSeat(p); ok {
		span.SetAttributes(attribute.Int64("session.id", int64(res.SessionID)))
		return res, nil
	}

	c.lobby.Lock()
	defer c.lobby.Unlock()

	for {
		s := c.pool.FindJoinable()
		if s == nil {
			s = c.pool.Create()
		}

		res, err := c.seat(p, s)
		if errors.Is(err, session.ErrFinished) || errors.Is(err, session.ErrNotForming) || errors.Is(err, session.ErrSessionFull) {
			// Destroyed or sealed between lookup and lock
			continue
		}
		if err != nil {
			return nil, endSpan(span, invalid("%v", err))
		}
		span.SetAttributes(attribute.Int64("session.id", int64(res.SessionID)))
		return res, nil
	}
}

func (c *coordinator) seat(p *player.Player, s *session.Session) (*JoinResult, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.Occupy(p.ID, p.Name()); err != nil {
		return nil, err
	}
	p.Bind(s.ID)

	if s.Full() {
		c.pool.Seal(s)
		intents, err := s.Activate(c.opts.Coin(), c.opts.Now())
		if err != nil {
			return nil, err
		}
		c.started.Add(1)
		c.dispatcher.Dispatch(intents)
	}

	seat, _ := s.SeatOf(p.ID)
	return &JoinResult{SessionID: s.ID, Status: s.Status(), Side: seat.Side}, nil
}

// currentSeat reports the seat p already holds. A stale binding to a session
// that no longer seats p is cleared.
func (c *coordinator) currentSeat(p *player.Player) (*JoinResult, bool) {
	sid := p.SessionID()
	if sid == 0 {
		return nil, false
	}

	s, err := c.pool.Get(sid)
	if err != nil {
		p.Unbind(sid)
		return nil, false
	}

	s.Lock()
	defer s.Unlock()

	seat, ok := s.SeatOf(p.ID)
	if !ok || s.Closed() || s.Status() == session.Finished {
		p.Unbind(sid)
		return nil, false
	}
	return &JoinResult{SessionID: s.ID, Status: s.Status(), Side: seat.Side}, true
}

// RequestLeave vacates the player's seat. Leaving an active session resigns
// it and the opponent wins. Leaving while unseated is a no-op.
func (c *coordinator) RequestLeave(ctx context.Context, id player.ID) (*LeaveResult, error) {
	_, span := c.tracer.Start(ctx, "Coordinator.RequestLeave",
		trace.WithAttributes(attribute.String("player.id", string(id))))
	defer span.End()

	p, err := c.acquire(id)
	if err != nil {
		return nil, endSpan(span, err)
	}
	defer p.Unlock()

	return c.leave(p, session.ReasonResignation), nil
}

// ReleaseSeat is the registry's leave path for a disconnecting player
func (c *coordinator) ReleaseSeat(ctx context.Context, p *player.Player) error {
	reason := session.ReasonResignation
	if c.opts.DistinctDisconnect {
		reason = session.ReasonAbandoned
	}
	c.leave(p, reason)
	return nil
}

// leave vacates p's seat. Callers hold p's operation lock.
func (c *coordinator) leave(p *player.Player, reason string) *LeaveResult {
	sid := p.SessionID()
	if sid == 0 {
		return &LeaveResult{}
	}

	s, err := c.pool.Get(sid)
	if err != nil {
		p.Unbind(sid)
		return &LeaveResult{}
	}

	res, record := c.vacate(p, s, reason)
	c.archive(record)
	return res
}

func (c *coordinator) vacate(p *player.Player, s *session.Session, reason string) (*LeaveResult, *archive.MatchRecord) {
	s.Lock()
	defer s.Unlock()

	seats := s.Seats()
	wasActive, err := s.Vacate(p.ID)
	p.Unbind(s.ID)
	if err != nil {
		return &LeaveResult{}, nil
	}

	res := &LeaveResult{SessionID: s.ID}
	if !wasActive {
		if s.SeatCount() == 0 {
			c.pool.Destroy(s)
		}
		return res, nil
	}

	remaining := s.Seats()[0]
	intents, err := s.Finish(session.Outcome{
		Kind:     rules.Decisive,
		Winner:   remaining.Side,
		WinnerID: remaining.Player,
		Reason:   reason,
	}, c.opts.Now())
	if err != nil {
		return res, nil
	}
	c.finished.Add(1)
	c.dispatcher.Dispatch(intents)

	res.Outcome = s.Outcome()
	record := c.recordOf(s, seats)
	c.pool.Destroy(s)
	return res, record
}

// SubmitMove applies move for the player whose turn it is. Every rejection
// leaves the session exactly as it was.
func (c *coordinator) SubmitMove(ctx context.Context, id player.ID, move string) (*MoveResult, error) {
	_, span := c.tracer.Start(ctx, "Coordinator.SubmitMove",
		trace.WithAttributes(
			attribute.String("player.id", string(id)),
			attribute.String("move", move),
		))
	defer span.End()

	res, record, err := c.submit(id, move)
	c.archive(record)
	if err != nil {
		c.rejected.Add(1)
		span.SetAttributes(attribute.String("rejection.code", Code(err)))
		return nil, endSpan(span, err)
	}
	span.SetAttributes(
		attribute.Int64("session.id", int64(res.SessionID)),
		attribute.Int("move.number", res.MoveNumber),
	)
	return res, nil
}

func (c *coordinator) submit(id player.ID, move string) (*MoveResult, *archive.MatchRecord, error) {
	move = strings.TrimSpace(move)
	if move == "" {
		return nil, nil, validation("move is empty")
	}
	if len(move) > c.opts.MaxMoveLength {
		return nil, nil, validation("move exceeds %d bytes", c.opts.MaxMoveLength)
	}

	p, err := c.acquire(id)
	if err != nil {
		return nil, nil, err
	}
	defer p.Unlock()

	sid := p.SessionID()
	if sid == 0 {
		return nil, nil, invalid("player is not seated in a session")
	}
	s, err := c.pool.Get(sid)
	if err != nil {
		return nil, nil, invalid("%v", err)
	}

	s.Lock()
	defer s.Unlock()

	side, err := s.CheckTurn(p.ID)
	switch {
	case errors.Is(err, session.ErrOutOfTurn):
		return nil, nil, fmt.Errorf("%w: %s to move", ErrOutOfTurn, s.Turn())
	case err != nil:
		return nil, nil, invalid("%v", err)
	}

	next, result, err := evaluate(s.Engine(), s.State(), side, move)
	if err != nil {
		return nil, nil, err
	}

	intents, err := s.Advance(side, move, next)
	if err != nil {
		return nil, nil, invalid("%v", err)
	}
	c.applied.Add(1)
	c.dispatcher.Dispatch(intents)

	res := &MoveResult{
		SessionID:  s.ID,
		Move:       move,
		NewState:   next,
		Position:   s.Position(),
		Side:       side,
		Turn:       s.Turn(),
		MoveNumber: s.Moves(),
	}
	if !result.Terminal() {
		return res, nil, nil
	}

	seats := s.Seats()
	intents, err = s.Finish(session.OutcomeFor(result, s.Turn()), c.opts.Now())
	if err != nil {
		return res, nil, nil
	}
	c.finished.Add(1)
	c.dispatcher.Dispatch(intents)

	res.Outcome = s.Outcome()
	record := c.recordOf(s, seats)
	c.pool.Destroy(s)
	return res, record, nil
}

// evaluate runs the engine on a candidate move. A panicking engine is
// reported as a rules rejection and the position is left untouched.
func evaluate(engine rules.Engine, state rules.State, side rules.Side, move string) (next rules.State, result rules.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("rules engine %s panicked on move %q: %v", engine.Name(), move, r)
			next, result, err = state, rules.Result{}, &RejectedError{Reason: ReasonInternalError}
		}
	}()

	next, err = engine.ApplyMove(state, side, move)
	if err != nil {
		return state, rules.Result{}, &RejectedError{Reason: err.Error()}
	}
	return next, engine.Outcome(next), nil
}

// Snapshot returns a view of a live session, falling back to the archive for
// finished ones.
func (c *coordinator) Snapshot(ctx context.Context, sessionID uint64) (*session.View, error) {
	_, span := c.tracer.Start(ctx, "Coordinator.Snapshot",
		trace.WithAttributes(attribute.Int64("session.id", int64(sessionID))))
	defer span.End()

	if s, err := c.pool.Get(sessionID); err == nil {
		s.Lock()
		closed := s.Closed()
		v := s.View()
		s.Unlock()
		if !closed {
			return &v, nil
		}
	}

	if c.opts.Archive != nil {
		if rec, err := c.opts.Archive.Load(sessionID); err == nil {
			v := rec.View()
			return &v, nil
		}
	}
	return nil, endSpan(span, session.ErrSessionNotFound)
}

// ListSessions returns every live session ordered by id
func (c *coordinator) ListSessions(ctx context.Context) ([]session.View, error) {
	return c.pool.List(), nil
}

// Stats returns current counters
func (c *coordinator) Stats(ctx context.Context) Stats {
	forming, active := c.pool.Counts()
	return Stats{
		Engine:        c.pool.Engine().Name(),
		Players:       c.players.Count(),
		Forming:       forming,
		Active:        active,
		Started:       c.started.Load(),
		Finished:      c.finished.Load(),
		MovesApplied:  c.applied.Load(),
		MovesRejected: c.rejected.Load(),
	}
}

// EngineName returns the name of the rules engine every session plays
func (c *coordinator) EngineName() string {
	return c.pool.Engine().Name()
}

// acquire looks up id and takes its operation lock
func (c *coordinator) acquire(id player.ID) (*player.Player, error) {
	p, err := c.players.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !p.Lock() {
		return nil, fmt.Errorf("%w: %w", ErrValidation, player.ErrPlayerNotFound)
	}
	return p, nil
}

// recordOf captures a finished session. seats must be taken before any seat
// was vacated so the record names both players.
func (c *coordinator) recordOf(s *session.Session, seats []session.Seat) *archive.MatchRecord {
	if c.opts.Archive == nil {
		return nil
	}
	rec := &archive.MatchRecord{
		SessionID:  s.ID,
		Engine:     s.Engine().Name(),
		Seats:      seats,
		Moves:      s.Moves(),
		FinalState: s.State(),
		CreatedAt:  s.CreatedAt,
		StartedAt:  s.StartedAt(),
		FinishedAt: s.FinishedAt(),
	}
	if o := s.Outcome(); o != nil {
		rec.Outcome = *o
	}
	return rec
}

func (c *coordinator) archive(rec *archive.MatchRecord) {
	if rec == nil || c.opts.Archive == nil {
		return
	}
	if err := c.opts.Archive.Record(rec); err != nil {
		log.Printf("Failed to archive session %d: %v", rec.SessionID, err)
	}
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
