// Package wsbbo implements the optional BBO WebSocket monitor: it
// fans every BBO record the sink emits out to connected browser/CLI
// observers as JSON, purely additive and never a second source of
// truth. Follows the register/unregister/broadcast hub pattern of
// server.go, adapted from order-book/trade channel subscriptions to a
// single BBO firehose every client receives.
package wsbbo

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"
	"github.com/luxfi/mdfeed/internal/syncctl"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// record is the wire shape of one BBO broadcast frame.
type record struct {
	Seq    uint32 `json:"seq"`
	Symbol uint32 `json:"symbol"`
	BidPx  int32  `json:"bid_px"`
	BidQty uint32 `json:"bid_qty"`
	AskPx  int32  `json:"ask_px"`
	AskQty uint32 `json:"ask_qty"`
}

// client is one connected WebSocket observer. Writes are delivered
// through a buffered channel so a slow client never blocks the
// broadcaster; a full channel means the client is dropped rather than
// allowed to back up the engine.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server holds the set of connected clients and the register/
// unregister/broadcast channels the hub goroutine selects on, narrowed
// to one fan-out stream instead of per-channel subscriptions, since
// every BBO record is relevant to every observer.
type Server struct {
	logger log.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// New creates a Server. Call Run in its own goroutine before serving
// HTTP requests against Handler.
func New(logger log.Logger) *Server {
	return &Server{
		logger:     logger,
		clients:    make(map[*client]bool),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		broadcast:  make(chan []byte, 1024),
	}
}

// Run drives the hub loop until stop is closed. It is the one
// goroutine in this package that touches the clients map; it still
// takes mu around every access to the map.
func (s *Server) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			s.mu.Lock()
			for c := range s.clients {
				close(c.send)
			}
			s.clients = make(map[*client]bool)
			s.mu.Unlock()
			return

		case c := <-s.register:
			s.mu.Lock()
			s.clients[c] = true
			s.mu.Unlock()

		case c := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.send)
			}
			s.mu.Unlock()

		case payload := <-s.broadcast:
			s.mu.RLock()
			for c := range s.clients {
				select {
				case c.send <- payload:
				default:
					// Slow client: drop the connection rather than
					// block the broadcaster or the engine upstream.
					go func(c *client) { s.unregister <- c }(c)
				}
			}
			s.mu.RUnlock()
		}
	}
}

// Publish rebroadcasts one BBO record to every connected client. It
// never blocks: a full broadcast buffer means this frame is dropped,
// since the sink and engine must never wait on WebSocket observers.
func (s *Server) Publish(r syncctl.BBORecord) {
	data, err := json.Marshal(record{
		Seq: r.SeqNum, Symbol: r.Symbol,
		BidPx: r.BidPx, BidQty: r.BidQty,
		AskPx: r.AskPx, AskQty: r.AskQty,
	})
	if err != nil {
		s.logger.Error("failed to marshal bbo record", "error", err)
		return
	}
	select {
	case s.broadcast <- data:
	default:
		s.logger.Warn("bbo broadcast buffer full, dropping frame")
	}
}

// Handler upgrades GET /ws/bbo requests to a WebSocket connection and
// streams BBO frames to it.
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 256)}
	s.register <- c
	go c.writePump()
	go c.readPump(s)
}

// readPump discards anything the client sends and exists only to
// detect disconnects: the moment ReadMessage errors, the client is
// unregistered.
func (c *client) readPump(s *Server) {
	defer func() {
		s.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump delivers queued frames and periodic pings until send is
// closed by the hub.
func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
