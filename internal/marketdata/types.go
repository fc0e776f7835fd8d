// Package marketdata implements the Market-Data Relay (C6): an outbound
// websocket client that subscribes to an upstream feed and normalizes its
// ticker/depth/trade/candle messages into the venue's own event shapes.
//
// The relay never writes to the local Order Book or Asset Ledger — it only
// republishes normalized events for the Snapshot/Delta Publisher and
// Realtime Fabric to consume. Matching never depends on it.
package marketdata

import "github.com/shopspring/decimal"

// Ticker is a normalized last-price/24h-stats update.
type Ticker struct {
	Symbol    string
	LastPrice decimal.Decimal
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	Volume24h decimal.Decimal
	Timestamp int64
}

// DepthLevel is one normalized price level in a Depth update.
type DepthLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// Depth is a normalized order-book depth update from upstream.
type Depth struct {
	Symbol    string
	Bids      []DepthLevel
	Asks      []DepthLevel
	Timestamp int64
}

// Trade is a normalized public trade print from upstream.
type Trade struct {
	Symbol    string
	Price     decimal.Decimal
	Qty       decimal.Decimal
	IsBuyer   bool // true if the aggressor was a buyer
	Timestamp int64
}

// Candle is a normalized OHLCV candle for one interval.
type Candle struct {
	Symbol    string
	Interval  string
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	OpenTime  int64
	CloseTime int64
	Closed    bool
}

// Event wraps exactly one of the normalized shapes above, tagged by Kind.
type Event struct {
	Kind   EventKind
	Ticker *Ticker
	Depth  *Depth
	Trade  *Trade
	Candle *Candle
}

// EventKind identifies which field of Event is populated.
type EventKind int

const (
	EventTicker EventKind = iota
	EventDepth
	EventTrade
	EventCandle
)

// rawMessage is the upstream wire shape before normalization. Upstream
// feeds in the wild vary; this mirrors the common "channel + data"
// envelope shape used by most spot exchange feeds.
type rawMessage struct {
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol"`
	Data    rawMessageData  `json:"data"`
}

type rawMessageData struct {
	Last      string          `json:"last"`
	Bid       string          `json:"bid"`
	Ask       string          `json:"ask"`
	Volume    string          `json:"volume"`
	Price     string          `json:"price"`
	Qty       string          `json:"qty"`
	IsBuyer   bool            `json:"isBuyer"`
	Interval  string          `json:"interval"`
	Open      string          `json:"open"`
	High      string          `json:"high"`
	Low       string          `json:"low"`
	Close     string          `json:"close"`
	OpenTime  int64           `json:"openTime"`
	CloseTime int64           `json:"closeTime"`
	Closed    bool            `json:"closed"`
	Bids      [][2]string     `json:"bids"`
	Asks      [][2]string     `json:"asks"`
	Timestamp int64           `json:"timestamp"`
}
