package websocket

import (
	"log"
	"sync"

	"github.com/wricardo/duelhall/game/config"
	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/rules"
	"github.com/wricardo/duelhall/game/session"
)

// Hub maps players to their connections and delivers session events. It
// implements service.Dispatcher.
type Hub struct {
	clients     map[player.ID]*Client
	winnerField string
	mu          sync.RWMutex
}

// NewHub creates a hub. winnerField selects how session_finished names the
// winner: config.WinnerBySide or config.WinnerByPlayer.
func NewHub(winnerField string) *Hub {
	if winnerField != config.WinnerByPlayer {
		winnerField = config.WinnerBySide
	}
	return &Hub{
		clients:     make(map[player.ID]*Client),
		winnerField: winnerField,
	}
}

// Dispatch encodes each intent and queues it on the addressed client. It
// never blocks: a client whose queue is full is dropped.
func (h *Hub) Dispatch(intents []session.Intent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, in := range intents {
		client, ok := h.clients[in.To]
		if !ok {
			continue
		}
		data, err := h.encodeEvent(in.Event)
		if err != nil {
			log.Printf("Failed to marshal %s event: %v", in.Event.EventType(), err)
			continue
		}
		if !client.enqueue(data) {
			log.Printf("Dropping slow client %s", client.playerID)
		}
	}
}

func (h *Hub) encodeEvent(ev session.Event) ([]byte, error) {
	switch e := ev.(type) {
	case session.SessionStarted:
		return encode(e.EventType(), "", sessionStarted{SessionStarted: e, StartedAt: e.StartedAt.UnixMilli()})
	case session.SessionFinished:
		return encode(e.EventType(), "", h.finished(e))
	}
	return encode(ev.EventType(), "", ev)
}

func (h *Hub) finished(e session.SessionFinished) SessionFinished {
	msg := SessionFinished{
		SessionID: e.SessionID,
		Kind:      e.Outcome.Kind,
		Reason:    e.Outcome.Reason,
	}
	if e.Outcome.Kind != rules.Decisive {
		return msg
	}

	winner := e.Outcome.Winner.String()
	if h.winnerField == config.WinnerByPlayer {
		winner = string(e.Outcome.WinnerID)
	}
	msg.Winner = &winner
	return msg
}

// register adds a client, replacing nothing: player ids are unique per
// connection.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.playerID] = c
	n := len(h.clients)
	h.mu.Unlock()

	log.Printf("Client registered for player %s (total clients: %d)", c.playerID, n)
}

// unregister removes a client and closes its queue
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.playerID]; ok && cur == c {
		delete(h.clients, c.playerID)
	}
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	log.Printf("Client unregistered for player %s (remaining clients: %d)", c.playerID, n)
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every client queue, which ends its connection
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
