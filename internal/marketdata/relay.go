package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// State is the relay's connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const (
	reconnectBackoff   = 2 * time.Second
	maxAttemptsInWindow = 5
	attemptWindow       = time.Minute
	readTimeout         = 60 * time.Second
	writeTimeout        = 10 * time.Second
)

// Sink receives normalized events as they arrive. Implementations must not
// block; the relay delivers on its own read goroutine.
type Sink func(Event)

// Relay maintains one outbound websocket connection to an upstream feed,
// subscribes to a fixed set of symbols/intervals, and normalizes inbound
// messages into Event values delivered to Sink.
type Relay struct {
	url          string
	businessURL  string
	symbols      []string
	intervals    []string
	logger       *zap.Logger
	sink         Sink

	stateMu sync.RWMutex
	state   State

	attempts     int
	windowStart  time.Time
}

// NewRelay creates a relay for the given upstream URL and subscription
// set. businessURL is stored on the relay but not used: every
// subscription, candles included, goes over url.
func NewRelay(url, businessURL string, symbols, intervals []string, logger *zap.Logger, sink Sink) *Relay {
	return &Relay{
		url:         url,
		businessURL: businessURL,
		symbols:     symbols,
		intervals:   intervals,
		logger:      logger,
		sink:        sink,
		state:       StateDisconnected,
	}
}

// State returns the relay's current lifecycle state.
func (r *Relay) State() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Relay) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// Run connects and maintains the upstream connection until ctx is
// cancelled, reconnecting with a capped backoff on every disconnect. It
// returns only once ctx is cancelled, and then returns ctx.Err().
func (r *Relay) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			r.setState(StateDisconnected)
			return ctx.Err()
		}

		if err := r.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				r.setState(StateDisconnected)
				return ctx.Err()
			}
			r.logger.Warn("market data relay disconnected", zap.Error(err))
		}

		if !r.withinAttemptBudget() {
			r.logger.Error("market data relay exceeded reconnect attempts in window, backing off a full window")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(attemptWindow):
			}
			r.attempts = 0
			r.windowStart = time.Time{}
			continue
		}

		r.setState(StateReconnecting)
		select {
		case <-ctx.Done():
			r.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
	}
}

// withinAttemptBudget counts reconnect attempts in a fixed window that
// starts at the first attempt and restarts once attemptWindow has passed,
// capped at maxAttemptsInWindow per window.
func (r *Relay) withinAttemptBudget() bool {
	now := time.Now()
	if r.windowStart.IsZero() || now.Sub(r.windowStart) > attemptWindow {
		r.windowStart = now
		r.attempts = 0
	}
	r.attempts++
	return r.attempts <= maxAttemptsInWindow
}

func (r *Relay) connectAndRead(ctx context.Context) error {
	r.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, r.url, nil)
	if err != nil {
		return fmt.Errorf("marketdata: dial: %w", err)
	}
	defer conn.Close()

	if err := r.subscribe(conn); err != nil {
		return fmt.Errorf("marketdata: subscribe: %w", err)
	}

	r.setState(StateConnected)
	r.logger.Info("market data relay connected", zap.String("url", r.url))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("marketdata: read: %w", err)
		}
		r.handleMessage(msg)
	}
}

func (r *Relay) subscribe(conn *websocket.Conn) error {
	req := struct {
		Op        string   `json:"op"`
		Symbols   []string `json:"symbols"`
		Intervals []string `json:"intervals,omitempty"`
	}{
		Op:        "subscribe",
		Symbols:   r.symbols,
		Intervals: r.intervals,
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(req)
}

func (r *Relay) handleMessage(raw []byte) {
	var msg rawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.logger.Warn("market data relay: malformed message, dropping", zap.Error(err))
		return
	}

	switch msg.Channel {
	case "ticker":
		r.sink(Event{Kind: EventTicker, Ticker: normalizeTicker(msg)})
	case "depth":
		r.sink(Event{Kind: EventDepth, Depth: normalizeDepth(msg)})
	case "trade":
		r.sink(Event{Kind: EventTrade, Trade: normalizeTrade(msg)})
	case "candle":
		r.sink(Event{Kind: EventCandle, Candle: normalizeCandle(msg)})
	default:
		r.logger.Debug("market data relay: unrecognized channel, dropping", zap.String("channel", msg.Channel))
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func normalizeTicker(msg rawMessage) *Ticker {
	return &Ticker{
		Symbol:    msg.Symbol,
		LastPrice: dec(msg.Data.Last),
		BidPrice:  dec(msg.Data.Bid),
		AskPrice:  dec(msg.Data.Ask),
		Volume24h: dec(msg.Data.Volume),
		Timestamp: msg.Data.Timestamp,
	}
}

func normalizeDepth(msg rawMessage) *Depth {
	d := &Depth{Symbol: msg.Symbol, Timestamp: msg.Data.Timestamp}
	for _, lvl := range msg.Data.Bids {
		d.Bids = append(d.Bids, DepthLevel{Price: dec(lvl[0]), Qty: dec(lvl[1])})
	}
	for _, lvl := range msg.Data.Asks {
		d.Asks = append(d.Asks, DepthLevel{Price: dec(lvl[0]), Qty: dec(lvl[1])})
	}
	return d
}

func normalizeTrade(msg rawMessage) *Trade {
	return &Trade{
		Symbol:    msg.Symbol,
		Price:     dec(msg.Data.Price),
		Qty:       dec(msg.Data.Qty),
		IsBuyer:   msg.Data.IsBuyer,
		Timestamp: msg.Data.Timestamp,
	}
}

func normalizeCandle(msg rawMessage) *Candle {
	return &Candle{
		Symbol:    msg.Symbol,
		Interval:  msg.Data.Interval,
		Open:      dec(msg.Data.Open),
		High:      dec(msg.Data.High),
		Low:       dec(msg.Data.Low),
		Close:     dec(msg.Data.Close),
		Volume:    dec(msg.Data.Volume),
		OpenTime:  msg.Data.OpenTime,
		CloseTime: msg.Data.CloseTime,
		Closed:    msg.Data.Closed,
	}
}
