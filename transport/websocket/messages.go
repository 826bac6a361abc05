package websocket

import (
	"encoding/json"

	"github.com/wricardo/duelhall/game/player"
	"github.com/wricardo/duelhall/game/rules"
	"github.com/wricardo/duelhall/game/service"
	"github.com/wricardo/duelhall/game/session"
)

// Inbound request types
const (
	RequestJoin           = "join"
	RequestLeave          = "leave"
	RequestSubmitMove     = "submit_move"
	RequestSetDisplayName = "set_display_name"
)

// Outbound reply types. Session events use the session.Event* names.
const (
	ReplyConnected      = "connected"
	ReplyJoined         = "joined"
	ReplyLeft           = "left"
	ReplyDisplayNameSet = "display_name_set"
	ReplyMoveAccepted   = "move_accepted"
	ReplyError          = "error"
)

// Request is a client-to-server message
type Request struct {
	Type  string `json:"type"`
	Move  string `json:"move,omitempty"`
	Name  string `json:"name,omitempty"`
	ReqID string `json:"req_id,omitempty"`
}

// Message is a server-to-client message
type Message struct {
	Type  string          `json:"type"`
	ReqID string          `json:"req_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Connected is sent once, right after the upgrade
type Connected struct {
	PlayerID player.ID `json:"player_id"`
	Name     string    `json:"name"`
}

type ErrorReply struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type DisplayNameSet struct {
	Name string `json:"name"`
}

// Left acknowledges a leave. Outcome is set when the leave resigned an
// active session.
type Left struct {
	SessionID uint64           `json:"session_id,omitempty"`
	Outcome   *session.Outcome `json:"outcome,omitempty"`
}

// sessionStarted is the wire form of session.SessionStarted
type sessionStarted struct {
	session.SessionStarted
	StartedAt int64 `json:"started_at"`
}

// SessionFinished is the wire form of session.SessionFinished. Winner holds
// a side name or a player id depending on the hub's winner field, and is
// null for a draw.
type SessionFinished struct {
	SessionID uint64           `json:"session_id"`
	Kind      rules.ResultKind `json:"kind"`
	Winner    *string          `json:"winner"`
	Reason    string           `json:"reason"`
}

func encode(msgType, reqID string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, ReqID: reqID, Data: raw})
}

func errorReply(err error) ErrorReply {
	return ErrorReply{Code: service.Code(err), Reason: service.Reason(err)}
}
