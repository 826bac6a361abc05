// Package service provides the coordination layer that turns client requests
// into session transitions.
//
// The service package implements:
//   - Matchmaking into the oldest waiting session
//   - Turn-checked move submission through the rules engine
//   - Leave and disconnect handling, including resignation on abandonment
//   - The client-facing error taxonomy
//   - Optional archiving of finished sessions
//
// Core Interfaces:
//
// Coordinator is the single entry point for every externally triggered
// transition. Dispatcher receives the notification intents each transition
// produces and hands them to the transport.
//
// Errors:
//
// Every rejection wraps exactly one of ErrValidation, ErrOutOfTurn,
// ErrInvalidState or ErrRulesRejected. Code maps an error to its wire code.
// A rejected request never changes any session.
//
// Concurrency:
//
// Operations for one player run one at a time, in arrival order. Locks are
// taken in a fixed order: player, lobby (joins only), session, then pool or
// registry. Notification intents are dispatched while the session lock is
// still held so all seats observe one order of events per session.
//
// Usage:
//
//	players := player.NewRegistry(0)
//	pool := session.NewPool(engine, players)
//	coord := service.NewCoordinator(players, pool, hub, service.Options{})
//
//	p, _ := coord.Connect(ctx, handle)
//	res, err := coord.RequestJoin(ctx, p.ID)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	_, err = coord.SubmitMove(ctx, p.ID, "e2e4")
//	switch service.Code(err) {
//	case "out_of_turn":
//		// wait for move_applied
//	}
package service
