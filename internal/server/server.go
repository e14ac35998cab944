package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dragonbet/casino/internal/crash"
	"github.com/dragonbet/casino/internal/fair"
	"github.com/dragonbet/casino/internal/games"
	"github.com/dragonbet/casino/internal/wallet"
)

// Deps are the domain services the server fronts. All of them are required
// except Games, which disables the instant-play endpoint when nil.
type Deps struct {
	Manager *crash.Manager
	Ledger  *wallet.Ledger
	Seeds   *fair.Store
	Games   *games.Service
}

// Server represents the WebSocket server
type Server struct {
	addr           string
	upgrader       websocket.Upgrader
	connections    map[*Connection]bool
	register       chan *Connection
	unregister     chan *Connection
	logger         *log.Logger
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	httpServer     *http.Server
	auth           *Auth
	integrationKey string

	manager *crash.Manager
	ledger  *wallet.Ledger
	seeds   *fair.Store
	games   *games.Service
}

// NewServer creates a new WebSocket server
func NewServer(addr, jwtSecret, integrationKey string, deps Deps, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// For development, allow all origins
				// In production, implement proper origin checking
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections:    make(map[*Connection]bool),
		register:       make(chan *Connection),
		unregister:     make(chan *Connection),
		logger:         logger.WithPrefix("server"),
		ctx:            ctx,
		cancel:         cancel,
		auth:           NewAuth(jwtSecret),
		integrationKey: integrationKey,
		manager:        deps.Manager,
		ledger:         deps.Ledger,
		seeds:          deps.Seeds,
		games:          deps.Games,
	}
}

// Start starts the WebSocket server
func (s *Server) Start() error {
	go s.run()

	s.httpServer = &http.Server{Addr: s.addr, Handler: s.routes()}
	s.logger.Info("Starting WebSocket server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// routes builds a dedicated mux for this server instance
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	// Payment-provider callbacks, authenticated by shared secret
	mux.HandleFunc("/integration/transaction", s.requireIntegrationKey(s.handleIntegrationTransaction))
	mux.HandleFunc("/integration/balance", s.requireIntegrationKey(s.handleIntegrationBalance))
	mux.HandleFunc("/integration/rollback", s.requireIntegrationKey(s.handleIntegrationRollback))

	// Provably fair audit surface
	mux.HandleFunc("/fair/commit", s.handleFairCommit)
	mux.HandleFunc("/fair/client-seed", s.handleFairClientSeed)
	mux.HandleFunc("/fair/rotate", s.handleFairRotate)
	mux.HandleFunc("/fair/verify", s.handleFairVerify)

	// Instant games resolve over plain HTTP, one wager per request
	mux.HandleFunc("/games/play", s.handleGamesPlay)

	return mux
}

// Shutdown stops the HTTP listener and closes every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close() // Ignore close errors during shutdown
	}
	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.connections[conn]; ok {
				delete(s.connections, conn)
				_ = conn.Close() // Ignore close errors during unregistration
			}
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client disconnected", "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.logger, s)
	s.register <- client
	client.Start()

	// Connection cleanup is handled by the connection itself
	go func() {
		<-client.ctx.Done()
		s.unregister <- client
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

// Broadcast sends a message to every connection subscribed to the game.
func (s *Server) Broadcast(msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if !conn.IsJoined() {
			continue
		}
		if err := conn.SendMessage(msg); err != nil {
			s.logger.Error("Failed to send message to client", "error", err, "player", conn.GetPlayer())
		} else {
			count++
		}
	}

	s.logger.Debug("Broadcasted message", "type", msg.Type, "recipients", count)
}

// SendToPlayer sends a message to every connection authenticated as player
func (s *Server) SendToPlayer(playerID string, msg *Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent := false
	for conn := range s.connections {
		if conn.GetPlayer() == playerID {
			if err := conn.SendMessage(msg); err == nil {
				sent = true
			}
		}
	}
	if !sent {
		return fmt.Errorf("player not found: %s", playerID)
	}
	return nil
}

// SetManager wires the round manager after construction. The manager needs
// the server's event bridge as its subscriber, so the two are built in two
// steps: server first, then manager, then SetManager.
func (s *Server) SetManager(manager *crash.Manager) {
	s.manager = manager
}

// GetConnectedPlayers returns a list of connected player IDs
func (s *Server) GetConnectedPlayers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var players []string
	for conn := range s.connections {
		if playerID := conn.GetPlayer(); playerID != "" {
			players = append(players, playerID)
		}
	}

	return players
}
