// Package durability implements the Durability Writer (C8): a best-effort,
// batched, off-the-hot-path persistence layer for order and trade events.
//
// It subscribes to the Event Bus like any other consumer and never applies
// back-pressure to the matching path — the bus's own per-subscriber bounded
// queue is the only thing that can make the writer lag, and lagging here
// only affects how current the durable store is, never the in-memory
// authoritative state the matching engine runs from.
package durability

import (
	"encoding/gob"
	"time"

	"github.com/shopspring/decimal"
)

// OrderAcceptedRecord is the durable shape of an OrderAccepted event.
type OrderAcceptedRecord struct {
	SequenceNum uint64
	Timestamp   int64
	OrderID     uint64
	Symbol      string
	UserID      string
	Side        string
	Type        string
	Price       decimal.Decimal
	Qty         decimal.Decimal
}

// OrderCanceledRecord is the durable shape of an OrderCanceled event.
type OrderCanceledRecord struct {
	SequenceNum  uint64
	Timestamp    int64
	OrderID      uint64
	Symbol       string
	UserID       string
	RemainingQty decimal.Decimal
	Reason       string
}

// OrderFilledRecord is the durable shape of an OrderFilled event, emitted
// when a resting maker is fully consumed by an incoming order.
type OrderFilledRecord struct {
	SequenceNum uint64
	Timestamp   int64
	OrderID     uint64
	Symbol      string
	UserID      string
	FilledQty   decimal.Decimal
}

// TradeExecutedRecord is the durable shape of a TradeExecuted event.
type TradeExecutedRecord struct {
	SequenceNum uint64
	Timestamp   int64
	TradeID     uint64
	Symbol      string
	Price       decimal.Decimal
	Qty         decimal.Decimal
	BuyOrderID  uint64
	SellOrderID uint64
	BuyerID     string
	SellerID    string
}

func now() int64 { return time.Now().UnixNano() }

func init() {
	gob.Register(&OrderAcceptedRecord{})
	gob.Register(&OrderCanceledRecord{})
	gob.Register(&OrderFilledRecord{})
	gob.Register(&TradeExecutedRecord{})
}
