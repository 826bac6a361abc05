// Package session provides the two-seat session state machine and the pool
// that owns live sessions.
//
// The session package implements:
//   - Seat occupation and random side assignment
//   - Turn order enforcement
//   - Terminal outcomes (decisive or draw) entered exactly once
//   - Monotonic session ID allocation
//   - Oldest-first selection of sessions waiting for an opponent
//
// Core Types:
//
// Session is one pairing. Its transitions (Occupy, Activate, Vacate,
// Advance, Finish) mutate only the session and return notification Intents;
// delivering those intents is the caller's job. Pool creates, indexes and
// destroys sessions.
//
// Lifecycle:
//
//	Forming (0 or 1 seat) -> Active (2 seats) -> Finished
//
// No transition returns to an earlier status. A session is destroyed the
// moment it finishes, or when its last seat empties while still Forming.
//
// Concurrency:
//
// Each Session carries its own lock and is the unit of serialization;
// transitions on different sessions run in parallel. Callers hold the
// session lock around every transition and around Pool.Seal and
// Pool.Destroy. The pool's own lock is always acquired after a session
// lock, never before.
//
// Usage:
//
//	pool := session.NewPool(engine, registry)
//
//	s := pool.FindJoinable()
//	if s == nil {
//		s = pool.Create()
//	}
//
//	s.Lock()
//	defer s.Unlock()
//	if err := s.Occupy(playerID, name); err != nil {
//		return err
//	}
package session
