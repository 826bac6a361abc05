// Package rules defines the contract between the session coordinator and a
// turn-based rules engine.
//
// The rules package implements:
//   - The Engine interface consumed by the coordinator
//   - Seat sides (First moves first, Second replies)
//   - Terminal result classification (ongoing, decisive, draw)
//   - A catalog of named engines selectable at startup
//
// Engines:
//
// An Engine is a stateless strategy object. Game state is an opaque State
// value produced by the engine itself; the coordinator stores it, hands it
// back on the next move and forwards it to clients, but never interprets it.
// Engines must not block or perform I/O because they are called while a
// session is locked.
//
// Usage:
//
//	eng, err := rules.Lookup("chess")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	state := eng.Initial()
//	next, err := eng.ApplyMove(state, rules.First, "e2e4")
//	if err != nil {
//		// illegal move, state unchanged
//	}
//	result := eng.Outcome(next)
package rules
