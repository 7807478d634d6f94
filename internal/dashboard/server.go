// Package dashboard provides a real-time WebSocket server for sync runs.
//
// The dashboard broadcasts engine events, run summaries and store statistics
// to connected WebSocket clients so a sync can be watched while it runs.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType tags a dashboard message.
type MessageType string

const (
	MessageTypeEvent       MessageType = "event"
	MessageTypeRunComplete MessageType = "run_complete"
	MessageTypeStats       MessageType = "stats"
)

// Message is one JSON frame sent to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Server streams sync events to WebSocket clients and accepts sync
// triggers.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan Message

	// welcome is the latest stats snapshot, sent on connect.
	welcome   *Message
	welcomeMu sync.RWMutex

	trigger       func()
	triggerSecret string
	triggerMu     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config configures a Server.
type Config struct {
	// Host defaults to all interfaces.
	Host string

	// Port 0 picks a free port.
	Port int

	// TriggerSecret, when set, is the bearer token POST /sync requires.
	TriggerSecret string

	Logger *log.Logger
}

// DefaultConfig listens on :8080 and logs to stderr.
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// NewServer creates a Server. Call Start to listen.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:          net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		clients:       make(map[*websocket.Conn]bool),
		broadcast:     make(chan Message, 256),
		ctx:           ctx,
		cancel:        cancel,
		logger:        config.Logger,
		triggerSecret: config.TriggerSecret,
	}
}

// Start listens and serves /ws, /health and /sync in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sync", s.handleTrigger)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast queues msg for every client. It drops msg when the queue is full.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// SetWelcome sets the message sent to newly connected clients.
func (s *Server) SetWelcome(msg Message) {
	s.welcomeMu.Lock()
	defer s.welcomeMu.Unlock()
	s.welcome = &msg
}

// SetTrigger installs the function POST /sync calls. Without one the
// endpoint answers 404.
func (s *Server) SetTrigger(fn func()) {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	s.trigger = fn
}

// broadcastLoop fans queued messages out to every client. A client whose
// write fails is dropped.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Writes happen outside the lock; a slow client must not stall connects.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket registers a client and sends it the welcome snapshot.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	s.welcomeMu.RLock()
	welcome := Message{Type: MessageTypeStats}
	if s.welcome != nil {
		welcome = *s.welcome
	}
	s.welcomeMu.RUnlock()
	if welcome.Timestamp.IsZero() {
		welcome.Timestamp = time.Now()
	}

	welcomeData, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()

	go s.readLoop(conn)
}

// readLoop drains client frames until the connection closes.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// removeClient closes conn once, however many paths report it gone.
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleTrigger requests a sync pass.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.triggerMu.RLock()
	fn, secret := s.trigger, s.triggerSecret
	s.triggerMu.RUnlock()

	reply := func(status int, ok bool, msg string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": ok, "message": msg})
	}

	switch {
	case fn == nil:
		reply(http.StatusNotFound, false, "Sync trigger not enabled")
	case r.Method != http.MethodPost:
		w.Header().Set("Allow", http.MethodPost)
		reply(http.StatusMethodNotAllowed, false, "Use POST")
	case secret != "" && r.Header.Get("Authorization") != "Bearer "+secret:
		reply(http.StatusUnauthorized, false, "Unauthorized")
	default:
		fn()
		s.logger.Println("Sync triggered over HTTP")
		reply(http.StatusAccepted, true, "Sync triggered")
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>arena-sync dashboard</title>
</head>
<body>
    <h1>arena-sync</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Trigger a sync (daemon mode): <code>POST /sync</code></p>
    <p>Connect a WebSocket client to follow sync runs as they happen.</p>
</body>
</html>`, r.Host)
}

// GetAddr is the bound address, valid after Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
