package operator

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/util"

	"github.com/gorilla/websocket"
)

//go:embed console.html
var consolePage []byte

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

const (
	writeWait = time.Second
	// outbox is how many messages a client may lag behind before it is dropped.
	outbox = 64
)

// client is one websocket connection. Only its writer goroutine writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			util.Warn("[operator] write to %s: %v", c.conn.RemoteAddr(), err)
			_ = c.conn.Close()
			return
		}
	}
}

// Server is the operator console: websocket clients send commands and
// receive every position report; HTTP clients may POST commands too.
// It implements Channel.
type Server struct {
	Addr string

	cmds    chan model.Command
	clients map[*websocket.Conn]*client
	mu      sync.Mutex

	latestMu sync.RWMutex
	latest   map[model.NodeID]model.Report

	server   *http.Server
	listener net.Listener
}

// NewServer constructs a Server listening on addr once started.
func NewServer(addr string) *Server {
	return &Server{
		Addr:    addr,
		cmds:    make(chan model.Command, 16),
		clients: map[*websocket.Conn]*client{},
		latest:  map[model.NodeID]model.Report{},
	}
}

// Handler returns the console routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleConsole)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/reports", s.handleReports)
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("operator listen %s: %w", s.Addr, err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	util.Info("[operator] console listening on %s", ln.Addr())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Error("[operator] serve: %v", err)
		}
	}()
	return nil
}

// ListenAddr returns the bound address after Start.
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return s.Addr
	}
	return s.listener.Addr().String()
}

// Stop shuts down the HTTP server and disconnects every client.
func (s *Server) Stop() {
	if s.server != nil {
		_ = s.server.Close()
	}
	s.mu.Lock()
	for _, c := range s.clients {
		s.dropLocked(c)
	}
	s.mu.Unlock()
}

func (s *Server) ReceiveCommand(ctx context.Context, timeout time.Duration) (model.Command, bool) {
	return receiveCommand(ctx, s.cmds, timeout)
}

// SendReport remembers the report per node and queues it for every websocket
// client. It does not wait on the network; a client whose outbox is full is dropped.
func (s *Server) SendReport(report []byte) {
	if r, err := parser.DecodeReport(report); err == nil {
		s.latestMu.Lock()
		s.latest[r.NodeID] = r
		s.latestMu.Unlock()
	}
	s.broadcast(report)
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Latest returns the last report seen for every node.
func (s *Server) Latest() map[model.NodeID]model.Report {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	out := make(map[model.NodeID]model.Report, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

func (s *Server) submit(raw string) (model.Command, error) {
	c, err := parser.ParseCommand(raw)
	if err != nil {
		return model.CmdNone, err
	}
	select {
	case s.cmds <- c:
		util.Info("[operator] command %s queued", c)
		return c, nil
	default:
		return model.CmdNone, errors.New("command queue full")
	}
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(consolePage)
}

// handleWS upgrades HTTP to websocket; every text message is a command.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan []byte, outbox)}
	s.mu.Lock()
	s.clients[conn] = c
	s.mu.Unlock()
	go c.writeLoop()

	go func() {
		defer func() {
			s.mu.Lock()
			s.dropLocked(c)
			s.mu.Unlock()
		}()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if _, err := s.submit(string(msg)); err != nil {
				util.Warn("[operator] rejected websocket command %q: %v", msg, err)
				reply, _ := json.Marshal(map[string]string{"error": err.Error()})
				s.mu.Lock()
				s.enqueueLocked(c, reply)
				s.mu.Unlock()
			}
		}
	}()
}

// handleCommand accepts a command as a name, code or JSON body.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := s.submit(string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ack, err := parser.EncodeCommand(c)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write(ack)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Latest())
}

// broadcast queues a message for all connected websocket clients.
func (s *Server) broadcast(msg []byte) {
	msg = bytes.Clone(msg)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		s.enqueueLocked(c, msg)
	}
}

func (s *Server) enqueueLocked(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		util.Warn("[operator] drop client %s: %d messages behind", c.conn.RemoteAddr(), outbox)
		s.dropLocked(c)
	}
}

// dropLocked forgets c and stops its writer. It is safe to call more than once.
func (s *Server) dropLocked(c *client) {
	if s.clients[c.conn] != c {
		return
	}
	delete(s.clients, c.conn)
	close(c.send)
	_ = c.conn.Close()
}
