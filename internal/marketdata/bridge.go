package marketdata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rishav/order-matching-engine/internal/snapshot"
)

// SnapshotSink adapts a snapshot.Publisher into a Sink: ticker and candle
// events are pushed through the publisher's throttle/dedup classification
// exactly like the engine's own order-book updates, so realtime.SnapshotBridge
// doesn't need to know these came from an upstream relay rather than the
// local matching engine. Depth and trade events from upstream are dropped
// here — the venue publishes its own order book and trade prints from the
// matching engine, and never lets an external feed override local state.
func SnapshotSink(publisher *snapshot.Publisher) Sink {
	return func(ev Event) {
		switch ev.Kind {
		case EventTicker:
			t := ev.Ticker
			fp := fingerprint(t.LastPrice.String(), t.BidPrice.String(), t.AskPrice.String(), t.Volume24h.String())
			publisher.Push(t.Symbol, snapshot.KindTicker, fp, false, t)

		case EventCandle:
			c := ev.Candle
			fp := fingerprint(c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String(), fmt.Sprint(c.Closed))
			publisher.PushCandle(c.Symbol, c.Interval, fp, c.Closed, c)
		}
	}
}

func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%s;", p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
