package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dragonbet/casino/internal/crash"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	playerID  string
	joined    bool
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once
	server    *Server
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, server *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
		server: server,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, this is expected during shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

// SetPlayer associates this connection with an authenticated player
func (c *Connection) SetPlayer(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
}

// GetPlayer returns the associated player ID, empty if unauthenticated
func (c *Connection) GetPlayer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// SetJoined marks this connection as subscribed to round broadcasts
func (c *Connection) SetJoined(joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = joined
}

// IsJoined reports whether this connection receives round broadcasts
func (c *Connection) IsJoined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// How long a round-manager call may block before the client gets an error
	commandTimeout = 5 * time.Second
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.GetPlayer())

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(data)

	case MessageTypeJoin:
		c.handleJoin()

	case MessageTypePlaceBet:
		var data PlaceBetData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse place bet data")
			return
		}
		c.handlePlaceBet(data)

	case MessageTypeCashOut:
		var data CashOutData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse cash out data")
			return
		}
		c.handleCashOut(data)

	case MessageTypeGetState:
		c.handleGetState()

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// sendError sends an error message to the client
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}

	_ = c.SendMessage(errorMsg) // Ignore send errors during error handling
}

func (c *Connection) handleAuth(data AuthData) {
	if data.Token == "" {
		c.sendError("invalid_auth", "Session token required")
		return
	}

	player, err := c.server.auth.VerifyToken(data.Token)
	if err != nil {
		response, _ := NewMessage(MessageTypeAuthResponse, AuthResponseData{
			Success: false,
			Error:   err.Error(),
		})
		_ = c.SendMessage(response) // Ignore send errors
		return
	}

	c.SetPlayer(player)
	c.logger.Info("Player authenticated", "player", player)

	response, _ := NewMessage(MessageTypeAuthResponse, AuthResponseData{
		Success:  true,
		PlayerID: player,
	})
	_ = c.SendMessage(response) // Ignore send errors
}

func (c *Connection) handleJoin() {
	player := c.GetPlayer()
	if player == "" {
		c.sendError("not_authenticated", "Must authenticate first")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	snap, err := c.server.manager.Snapshot(ctx)
	if err != nil {
		c.sendError("join_failed", err.Error())
		return
	}

	c.SetJoined(true)
	c.logger.Info("Player joined", "player", player, "sequence", snap.Sequence)

	response, _ := NewMessage(MessageTypeJoined, JoinedData{
		Player: player,
		State:  snap,
	})
	_ = c.SendMessage(response) // Ignore send errors
}

func (c *Connection) handlePlaceBet(data PlaceBetData) {
	player := c.GetPlayer()
	if player == "" {
		c.sendError("not_authenticated", "Must authenticate first")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	bet, err := c.server.manager.PlaceBet(ctx, crash.BetRequest{
		Player:      player,
		Amount:      data.Amount,
		Track:       data.Track,
		AutoCashout: data.AutoCashout,
	})
	if err != nil {
		response, _ := NewMessage(MessageTypeBetResult, BetResultData{
			Success: false,
			Error:   err.Error(),
		})
		_ = c.SendMessage(response) // Ignore send errors
		return
	}

	response, _ := NewMessage(MessageTypeBetResult, BetResultData{
		Success: true,
		Bet:     &bet,
	})
	_ = c.SendMessage(response) // Ignore send errors
}

func (c *Connection) handleCashOut(data CashOutData) {
	player := c.GetPlayer()
	if player == "" {
		c.sendError("not_authenticated", "Must authenticate first")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	result, err := c.server.manager.CashOut(ctx, player, data.Track, data.Multiplier)
	if err != nil {
		response, _ := NewMessage(MessageTypeCashOutResult, CashOutResultData{
			Success: false,
			Error:   err.Error(),
		})
		_ = c.SendMessage(response) // Ignore send errors
		return
	}

	response, _ := NewMessage(MessageTypeCashOutResult, CashOutResultData{
		Success: true,
		Result:  &result,
	})
	_ = c.SendMessage(response) // Ignore send errors
}

// handleGetState is the one request an unauthenticated connection may make.
func (c *Connection) handleGetState() {
	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	snap, err := c.server.manager.Snapshot(ctx)
	if err != nil {
		c.sendError("state_unavailable", err.Error())
		return
	}

	response, _ := NewMessage(MessageTypeState, snap)
	_ = c.SendMessage(response) // Ignore send errors
}
