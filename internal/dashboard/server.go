// Package dashboard serves a WebSocket feed of sync run progress.
//
// Clients connect to /ws and receive JSON messages as runs start, as each
// user finishes, and as runs complete. /health reports liveness and the
// number of connected clients.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType names a dashboard message.
type MessageType string

const (
	// MessageTypeHello greets a new client with the last run summary, if any.
	MessageTypeHello MessageType = "hello"

	MessageTypeRunStarted  MessageType = "run_started"
	MessageTypeUserSynced  MessageType = "user_synced"
	MessageTypeRunComplete MessageType = "run_complete"
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	queueSize    = 100
	writeTimeout = 5 * time.Second
)

// Config holds server configuration.
type Config struct {
	// Port to listen on (0 picks a free port)
	Port int

	// Host to bind (default: all interfaces)
	Host string

	Logger *log.Logger
}

// DefaultConfig returns a server on port 8080, all interfaces.
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.Default(),
	}
}

// Server fans run events out to WebSocket clients.
type Server struct {
	addr   string
	logger *log.Logger

	listener net.Listener
	http     *http.Server

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	hello   json.RawMessage

	queue chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server. Call Start to listen.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
		queue:   make(chan Message, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.fanOut()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard")
	s.cancel()

	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	clear(s.clients)
	s.mu.Unlock()

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if shutdownErr := s.http.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down dashboard: %w", shutdownErr)
		}
	}
	s.wg.Wait()
	return err
}

// Broadcast queues msg for all clients. It never blocks; when the queue is
// full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case <-s.ctx.Done():
	case s.queue <- msg:
	default:
		s.logger.Printf("WARNING: Dashboard queue full, dropping %s", msg.Type)
	}
}

// setHello replaces the payload sent to newly connected clients.
func (s *Server) setHello(data json.RawMessage) {
	s.mu.Lock()
	s.hello = data
	s.mu.Unlock()
}

// fanOut delivers queued messages until the server stops.
func (s *Server) fanOut() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			data, err := encode(msg)
			if err != nil {
				s.logger.Printf("WARNING: Failed to encode %s: %v", msg.Type, err)
				continue
			}
			for _, conn := range s.snapshot() {
				s.deliver(conn, data)
			}
		}
	}
}

// snapshot copies the client set so writes happen without the lock.
func (s *Server) snapshot() []*websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	return conns
}

// deliver writes one frame and drops the client if the write fails.
func (s *Server) deliver(conn *websocket.Conn, data []byte) bool {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Printf("WARNING: Failed to send to client: %v", err)
		s.drop(conn)
		return false
	}
	return true
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	total := len(s.clients)
	hello := Message{Type: MessageTypeHello, Data: s.hello}
	s.mu.Unlock()
	s.logger.Printf("Client connected (total: %d)", total)

	data, err := encode(hello)
	if err != nil {
		s.logger.Printf("WARNING: Failed to encode hello, client gets no summary: %v", err)
	} else if !s.deliver(conn, data) {
		return
	}

	go s.readUntilClosed(conn)
}

// readUntilClosed drains client frames; the feed is one-way.
func (s *Server) readUntilClosed(conn *websocket.Conn) {
	defer s.drop(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// drop removes conn from the client set and closes it once.
func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	total := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected (total: %d)", total)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}{"ok", s.ClientCount()})
}

// GetAddr returns the listening address, or the configured one before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
