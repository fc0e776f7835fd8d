// Package realtime implements the Realtime Fabric (C7): the websocket
// surface client applications subscribe to for live market data and
// account-scoped order/trade updates.
//
// Grounded on the teacher's api.Hub/Client pump pattern, generalized from a
// single broadcast channel to per-subscription topics, with the venue's
// normative subscribe/unsubscribe method names and server-push event
// names layered on top.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client-initiated method names.
const (
	MethodSubscribeKLineData   = "SubscribeKLineData"
	MethodUnsubscribeKLineData = "UnsubscribeKLineData"
	MethodSubscribePriceData   = "SubscribePriceData"
	MethodUnsubscribePriceData = "UnsubscribePriceData"
	MethodSubscribeOrderBook   = "SubscribeOrderBook"
	MethodUnsubscribeOrderBook = "UnsubscribeOrderBook"
	MethodSubscribeTicker      = "SubscribeTicker"
	MethodUnsubscribeTicker    = "UnsubscribeTicker"
	MethodSubscribeTrades      = "SubscribeTrades"
	MethodUnsubscribeTrades    = "UnsubscribeTrades"
)

// Server-push event names.
const (
	EventKLineUpdate     = "KLineUpdate"
	EventPriceUpdate     = "PriceUpdate"
	EventOrderBookData   = "OrderBookData"   // full snapshot
	EventOrderBookUpdate = "OrderBookUpdate" // incremental delta
	EventTradeUpdate     = "TradeUpdate"
	EventLastTradeAndMid = "LastTradeAndMid"
	EventAck             = "Ack"
	EventError           = "Error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Push is one server-push frame.
type Push struct {
	Event string      `json:"event"`
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

// Request is one client-initiated frame.
type Request struct {
	Method string   `json:"method"`
	Topics []string `json:"topics"`
	ID     string   `json:"id,omitempty"`
}

// SnapshotProvider returns the last known pushable state for a topic, so a
// new subscriber can be replayed the current state instead of waiting for
// the next change. Returns (nil, false) if nothing is known yet.
type SnapshotProvider func(topic string) (Push, bool)

// AuthFunc validates a bearer token sent in an Authenticate request (the
// connection handshake is not inspected), for topics that require authentication
// (account-scoped order/trade streams). Public topics (ticker, order
// book, public trades, klines) never call this.
type AuthFunc func(token string) (userID string, ok bool)

// Hub maintains active websocket connections and fans pushes out to the
// clients subscribed to each topic.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]bool

	snapshots SnapshotProvider
	auth      AuthFunc

	register   chan *Client
	unregister chan *Client
	broadcast  chan topicPush
}

type topicPush struct {
	topic string
	push  Push
}

// NewHub creates a hub. snapshots and auth may be nil (no replay, no
// private topics, respectively).
func NewHub(logger *zap.Logger, snapshots SnapshotProvider, auth AuthFunc) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		snapshots:  snapshots,
		auth:       auth,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan topicPush, sendBufferSize),
	}
}

// Run drives the hub's register/unregister/broadcast loop. Call once in
// its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("realtime client connected", zap.String("id", c.id))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("realtime client disconnected", zap.String("id", c.id))

		case tp := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.IsSubscribed(tp.topic) {
					continue
				}
				select {
				case c.send <- tp.push:
				default:
					h.logger.Warn("realtime client send buffer full, dropping", zap.String("id", c.id))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish fans a push out to every client subscribed to topic.
func (h *Hub) Publish(topic string, push Push) {
	select {
	case h.broadcast <- topicPush{topic: topic, push: push}:
	default:
		h.logger.Warn("realtime hub broadcast queue full, dropping push", zap.String("topic", topic))
	}
}

// ServeWS upgrades an HTTP request to a websocket connection and registers
// the resulting client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("realtime: upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan Push, sendBufferSize),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]bool),
	}

	h.register <- c

	go c.writePump()
	go c.readPump()
}
