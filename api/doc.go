// Package api provides the HTTP inspection API for duelhall.
//
// The api package implements:
//   - Read-only session and lobby endpoints
//   - Health checking
//   - WebSocket upgrade routing
//
// Endpoints:
//   - GET /api - Endpoint index
//   - GET /api/sessions - List live sessions (?status=forming|active, ?limit=N)
//   - GET /api/sessions/{id} - Get one session; finished sessions come from the archive
//   - GET /api/stats - Player and session counters
//   - GET /api/engines - Available rules engines and the active one
//   - GET /healthz - Liveness
//   - GET /ws - WebSocket upgrade; each connection is one player
//
// Response Format:
//
// All endpoints return JSON. Errors use {"error": "message"} with an
// appropriate status code.
//
// Usage:
//
//	hub := websocket.NewHub(cfg.WinnerField)
//	coord := service.NewCoordinator(players, pool, hub, opts)
//	server := api.NewServer(coord, websocket.NewHandler(hub, coord))
//	http.ListenAndServe(":8080", server)
//
// Sessions are created by matchmaking only; there is no endpoint to create,
// modify or delete one.
package api
