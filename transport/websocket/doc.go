// Package websocket provides the WebSocket transport for duelhall.
//
// The websocket package implements:
//   - One player per connection, registered on upgrade and removed on close
//   - Decoding of client requests into coordinator calls
//   - Non-blocking delivery of session events (service.Dispatcher)
//   - Connection keepalive with ping/pong
//
// Architecture:
//
// A Hub maps player ids to clients. Each client runs a read pump, which
// handles requests one at a time in arrival order, and a write pump that
// drains the client's bounded send queue. A client whose queue overflows is
// dropped, which the coordinator sees as a disconnect.
//
// Message Protocol:
//
// Every message is a JSON object with a type:
//   - Incoming: {"type": "join"}, {"type": "leave"},
//     {"type": "submit_move", "move": "e2e4"},
//     {"type": "set_display_name", "name": "ada"}. An optional req_id is
//     echoed on the reply.
//   - Replies: connected, joined, left, move_accepted, move_rejected,
//     display_name_set, error.
//   - Events: session_started, move_applied, session_finished.
//
// Outgoing messages carry their payload under "data".
//
// Usage:
//
//	hub := websocket.NewHub(config.WinnerBySide)
//	coord := service.NewCoordinator(players, pool, hub, service.Options{})
//
//	http.Handle("/ws", websocket.NewHandler(hub, coord))
//
// Connection Lifecycle:
//
// 1. Client connects, optionally with ?name=<display name>
// 2. Player registered and connected reply sent
// 3. Client sends requests, receives replies and session events
// 4. Disconnection resigns any session the player sits in
package websocket
