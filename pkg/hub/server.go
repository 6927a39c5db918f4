package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures a hub Server.
type Config struct {
	// Logger receives connection lifecycle and drop reports.
	// Default: slog.Default()
	Logger *slog.Logger

	// Registry holds the hub metrics and backs the /metrics endpoint.
	// Default: a fresh registry per server.
	Registry *prometheus.Registry

	// WriteTimeout bounds each websocket write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// QueueSize is the number of frames buffered per connection before
	// new frames for it are dropped.
	// Default: 256.
	QueueSize int

	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	// Default: 1MB.
	MaxMessageSize int64

	// CheckOrigin validates the Origin header of upgrade requests.
	// Default: accept all.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		Logger:         slog.Default(),
		WriteTimeout:   10 * time.Second,
		QueueSize:      256,
		MaxMessageSize: 1 << 20,
		CheckOrigin:    func(*http.Request) bool { return true },
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
	return c
}

// Server relays events between connections of the same origin.
type Server struct {
	config   Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	origins map[string]map[string]*peer
	closed  bool

	connections prometheus.Gauge
	messages    *prometheus.CounterVec
}

// peer is one websocket connection joined to an origin.
type peer struct {
	id     string
	origin string
	conn   *websocket.Conn
	send   chan []byte
}

// NewServer creates a hub server.
func NewServer(config Config) *Server {
	config = config.withDefaults()
	factory := promauto.With(config.Registry)

	return &Server{
		config: config,
		logger: config.Logger.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
		origins: make(map[string]map[string]*peer),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sharedstate",
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Number of open hub connections",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedstate",
			Subsystem: "hub",
			Name:      "messages_total",
			Help:      "Hub frames by outcome (forwarded, dropped, invalid)",
		}, []string{"result"}),
	}
}

// Handler returns the hub's HTTP routes:
//
//	GET /origins/{origin}/ws  websocket endpoint
//	GET /healthz              liveness and connection count
//	GET /metrics              Prometheus metrics
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/origins/{origin}/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{}))
	return r
}

// Connections returns the number of open connections across all origins.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, peers := range s.origins {
		n += len(peers)
	}
	return n
}

// Close drops every connection and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, peers := range s.origins {
		for _, p := range peers {
			p.conn.Close()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.Connections(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	origin := chi.URLParam(r, "origin")
	if origin == "" {
		http.Error(w, "missing origin", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(s.config.MaxMessageSize)

	p := &peer{
		id:     uuid.NewString(),
		origin: origin,
		conn:   conn,
		send:   make(chan []byte, s.config.QueueSize),
	}
	hello, _ := encodeFrame(Frame{Type: FrameHello, ID: p.id})
	p.send <- hello

	if !s.join(p) {
		conn.Close()
		return
	}
	defer s.leave(p)

	go s.writeLoop(p)
	s.readLoop(p)
}

func (s *Server) join(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	peers := s.origins[p.origin]
	if peers == nil {
		peers = make(map[string]*peer)
		s.origins[p.origin] = peers
	}
	peers[p.id] = p
	s.connections.Inc()
	s.logger.Info("connection joined", "origin", p.origin, "id", p.id)
	return true
}

func (s *Server) leave(p *peer) {
	s.mu.Lock()
	peers := s.origins[p.origin]
	delete(peers, p.id)
	if len(peers) == 0 {
		delete(s.origins, p.origin)
	}
	// send is closed under the write lock so forward never races with it.
	close(p.send)
	s.mu.Unlock()

	s.connections.Dec()
	p.conn.Close()
	s.logger.Info("connection left", "origin", p.origin, "id", p.id)
}

func (s *Server) readLoop(p *peer) {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		f, err := decodeFrame(data)
		if err != nil || f.Type != FrameEvent {
			s.messages.WithLabelValues("invalid").Inc()
			s.logger.Warn("invalid frame", "origin", p.origin, "id", p.id, "error", err)
			continue
		}

		f.Event.Source = p.id
		out, err := encodeFrame(f)
		if err != nil {
			s.messages.WithLabelValues("invalid").Inc()
			continue
		}
		s.forward(p, out)
	}
}

// forward enqueues data on every other peer of p's origin.
func (s *Server) forward(from *peer, data []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, p := range s.origins[from.origin] {
		if id == from.id {
			continue
		}
		select {
		case p.send <- data:
			s.messages.WithLabelValues("forwarded").Inc()
		default:
			s.messages.WithLabelValues("dropped").Inc()
			s.logger.Warn("queue full, frame dropped", "origin", p.origin, "id", p.id)
		}
	}
}

func (s *Server) writeLoop(p *peer) {
	for data := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			p.conn.Close()
			// Discard until leave closes the channel.
			for range p.send {
			}
			return
		}
	}
	p.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
