package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/service"
	"github.com/wricardo/duelhall/game/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outbound messages buffered per client before it is dropped.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection bound to one player
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	playerID player.ID

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, id player.ID) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		playerID: id,
		send:     make(chan []byte, sendBuffer),
	}
}

// enqueue queues data without blocking. A full queue closes the client and
// reports false.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Handler upgrades HTTP requests and runs the client pumps against a
// coordinator
type Handler struct {
	hub   *Hub
	coord service.Coordinator
}

// NewHandler creates a websocket handler
func NewHandler(hub *Hub, coord service.Coordinator) *Handler {
	return &Handler{hub: hub, coord: coord}
}

// ServeHTTP upgrades the connection and registers a new player for it
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	p, err := h.coord.Connect(r.Context(), player.Handle(uuid.NewString()))
	if err != nil {
		log.Printf("Failed to register connection: %v", err)
		conn.Close()
		return
	}

	if name := r.URL.Query().Get("name"); name != "" {
		if _, err := h.coord.SetDisplayName(r.Context(), p.ID, name); err != nil {
			log.Printf("Ignoring display name for %s: %v", p.ID, err)
		}
	}

	client := newClient(h.hub, conn, p.ID)
	h.hub.register(client)
	client.reply(ReplyConnected, "", Connected{PlayerID: p.ID, Name: p.Name()})

	go client.writePump()
	go client.readPump(h.coord)
}

// reply queues a direct response to this client
func (c *Client) reply(msgType, reqID string, data any) {
	msg, err := encode(msgType, reqID, data)
	if err != nil {
		log.Printf("Failed to marshal %s reply: %v", msgType, err)
		return
	}
	c.enqueue(msg)
}

// handle executes one inbound request. Requests from a connection are
// handled in arrival order.
func (c *Client) handle(ctx context.Context, coord service.Coordinator, req Request) {
	switch req.Type {
	case RequestJoin:
		res, err := coord.RequestJoin(ctx, c.playerID)
		if err != nil {
			c.reply(ReplyError, req.ReqID, errorReply(err))
			return
		}
		c.reply(ReplyJoined, req.ReqID, res)

	case RequestLeave:
		res, err := coord.RequestLeave(ctx, c.playerID)
		if err != nil {
			c.reply(ReplyError, req.ReqID, errorReply(err))
			return
		}
		c.reply(ReplyLeft, req.ReqID, Left{SessionID: res.SessionID, Outcome: res.Outcome})

	case RequestSubmitMove:
		res, err := coord.SubmitMove(ctx, c.playerID, req.Move)
		if err != nil {
			c.reply(session.EventMoveRejected, req.ReqID, session.MoveRejected{
				Move:   req.Move,
				Code:   service.Code(err),
				Reason: service.Reason(err),
			})
			return
		}
		c.reply(ReplyMoveAccepted, req.ReqID, res)

	case RequestSetDisplayName:
		name, err := coord.SetDisplayName(ctx, c.playerID, req.Name)
		if err != nil {
			c.reply(ReplyError, req.ReqID, errorReply(err))
			return
		}
		c.reply(ReplyDisplayNameSet, req.ReqID, DisplayNameSet{Name: name})

	default:
		c.reply(ReplyError, req.ReqID, ErrorReply{Code: "validation", Reason: "unknown request type " + req.Type})
	}
}

// readPump pumps requests from the connection to the coordinator
func (c *Client) readPump(coord service.Coordinator) {
	defer func() {
		c.hub.unregister(c)
		if err := coord.HandleDisconnect(context.Background(), c.playerID); err != nil {
			log.Printf("Disconnect for %s failed: %v", c.playerID, err)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(ReplyError, "", ErrorReply{Code: "validation", Reason: "malformed request"})
			continue
		}
		c.handle(context.Background(), coord, req)
	}
}

// writePump pumps queued messages to the connection, one frame each
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
