package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/duelhall/game/service"
	"github.com/wricardo/duelhall/game/session"
)

// Client is a thin MCP client that proxies to the REST inspection API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// SessionList is the body of GET /api/sessions
type SessionList struct {
	Count    int            `json:"count"`
	Sessions []session.View `json:"sessions"`
}

// EngineList is the body of GET /api/engines
type EngineList struct {
	Active  string   `json:"active"`
	Engines []string `json:"engines"`
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Duelhall",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Duelhall - MCP Interface

Read-only view of a two-player matchmaking server. Players connect over
WebSocket, are paired into sessions, and alternate moves.

AVAILABLE TOOLS:
- list_sessions: List live sessions (forming and active)
- get_session: Get one session, including finished archived ones
- lobby_stats: Player and session counters
- list_engines: Rules engines compiled into the server`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all live sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "integer",
					"description": "Session ID to retrieve",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "lobby_stats",
		Description: "Get connected player and session counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleLobbyStats)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_engines",
		Description: "List available rules engines and the one in use",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListEngines)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Tool handlers

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response SessionList
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Live Sessions (%d):\n\n", response.Count)
	for _, v := range response.Sessions {
		result += fmt.Sprintf("- #%d %s %s, %d/2 seats, %d moves (Created: %s)\n",
			v.ID, v.Engine, v.Status, len(v.Seats), v.Moves, v.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	id, err := sessionIDArg(args["session_id"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var view session.View
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/sessions/%d", id), nil, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSession(&view)), nil
}

func (c *Client) handleLobbyStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats service.Stats
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Lobby (%s)\n", stats.Engine)
	fmt.Fprintf(&b, "Players connected: %d\n", stats.Players)
	fmt.Fprintf(&b, "Sessions forming: %d, active: %d\n", stats.Forming, stats.Active)
	fmt.Fprintf(&b, "Sessions started: %d, finished: %d\n", stats.Started, stats.Finished)
	fmt.Fprintf(&b, "Moves applied: %d, rejected: %d\n", stats.MovesApplied, stats.MovesRejected)
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleListEngines(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var engines EngineList
	if err := c.apiCall(ctx, "GET", "/api/engines", nil, &engines); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Active engine: %s\nAvailable: %s\n", engines.Active, strings.Join(engines.Engines, ", "))
	return mcp.NewToolResultText(result), nil
}

// sessionIDArg accepts a JSON number or a numeric string
func sessionIDArg(v interface{}) (uint64, error) {
	switch id := v.(type) {
	case float64:
		if id >= 1 && id == float64(uint64(id)) {
			return uint64(id), nil
		}
	case string:
		if n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64); err == nil && n > 0 {
			return n, nil
		}
	case nil:
		return 0, fmt.Errorf("session_id is required")
	}
	return 0, fmt.Errorf("session_id must be a positive integer, got %v", v)
}

func formatSession(v *session.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session #%d (%s)\n", v.ID, v.Engine)
	fmt.Fprintf(&b, "Status: %s\n", v.Status)
	for _, seat := range v.Seats {
		side := seat.Side.String()
		fmt.Fprintf(&b, "Seat: %s (%s) plays %s\n", seat.Name, seat.Player, side)
	}
	if v.Status == session.Active {
		fmt.Fprintf(&b, "Turn: %s\n", v.Turn)
	}
	fmt.Fprintf(&b, "Moves: %d\n", v.Moves)
	if v.State != "" {
		fmt.Fprintf(&b, "State: %s\n", v.State)
	}
	if o := v.Outcome; o != nil {
		if o.Decisive() {
			fmt.Fprintf(&b, "Result: %s wins by %s\n", o.Winner, o.Reason)
		} else {
			fmt.Fprintf(&b, "Result: draw by %s\n", o.Reason)
		}
	}
	return b.String()
}
