// Package main runs the spot trading venue: matching engine, asset
// ledger, event bus, durability writer, snapshot publisher, market-data
// relay, and realtime fabric, fronted by a REST order-entry API.
//
// Architecture Overview:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Client    │────▶│  REST API   │────▶│    Risk     │
//	│ (HTTP/WS)   │     │  (mux+cors) │     │   Checker   │
//	└─────────────┘     └─────────────┘     └──────┬──────┘
//	                                               │
//	                                               ▼
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Snapshot/  │◀────│  Matching   │◀────│ Per-symbol  │
//	│  Realtime   │     │   Engine    │     │ Ring Buffer │
//	└─────────────┘     └──────┬──────┘     └─────────────┘
//	                           │
//	                           ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │  Event Bus  │────▶│ Durability  │
//	                    └─────────────┘     │   Writer    │
//	                                        └─────────────┘
//
// Each tradable symbol gets its own ring buffer, sequencer, and event
// processor, all driving the same matching.Engine — the engine's own
// per-symbol order books are what give each a single writer, while the
// per-symbol ring buffer absorbs concurrent HTTP submissions without a
// shared lock.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rishav/order-matching-engine/internal/config"
	"github.com/rishav/order-matching-engine/internal/disruptor"
	"github.com/rishav/order-matching-engine/internal/durability"
	"github.com/rishav/order-matching-engine/internal/eventbus"
	"github.com/rishav/order-matching-engine/internal/ledger"
	"github.com/rishav/order-matching-engine/internal/marketdata"
	"github.com/rishav/order-matching-engine/internal/matching"
	"github.com/rishav/order-matching-engine/internal/realtime"
	"github.com/rishav/order-matching-engine/internal/risk"
	"github.com/rishav/order-matching-engine/internal/snapshot"
	"github.com/rishav/order-matching-engine/internal/telemetry"
)

// symbolPipeline bundles one symbol's ring buffer, sequencer, and
// single-threaded event processor.
type symbolPipeline struct {
	ringBuffer *disruptor.RingBuffer
	sequencer  *disruptor.Sequencer
	processor  *disruptor.EventProcessor
}

// Venue wires every component together and exposes the REST surface.
type Venue struct {
	cfg    *config.Config
	logger *zap.Logger

	ledger      *ledger.Ledger
	bus         *eventbus.Bus
	engine      *matching.Engine
	riskChecker *risk.Checker

	store          *durability.Store
	durabilityW    *durability.Writer
	snapshotPub    *snapshot.Publisher
	bookBridge     *snapshot.EngineBridge
	realtimeHub    *realtime.Hub
	realtimeSrv    *realtime.Server
	snapshotBridge *realtime.SnapshotBridge
	unsubSnapshot  func()
	tradeBridge    *realtime.TradeBridge
	relay          *marketdata.Relay

	pipelines map[string]*symbolPipeline

	apiServer *APIServer
	relayStop context.CancelFunc
}

// NewVenue constructs every component from cfg but does not start any
// goroutines or listeners.
func NewVenue(cfg *config.Config, logger *zap.Logger) (*Venue, error) {
	store, err := durability.OpenStore(cfg.Durability.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open durability store: %w", err)
	}

	lastTrade, err := store.LastTradeSequence()
	if err != nil {
		return nil, fmt.Errorf("read last trade sequence: %w", err)
	}

	bus := eventbus.New(cfg.Queues.SubscriberQueueSize)
	led := ledger.New()
	engine := matching.NewEngine(led, bus)
	engine.SeedOrderID(lastTrade)

	riskCfg, err := cfg.Risk.RiskConfig()
	if err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}
	riskChecker := risk.NewChecker(riskCfg)

	pipelines := make(map[string]*symbolPipeline, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		pair, err := s.TradingPair()
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", s.Symbol, err)
		}
		engine.AddSymbol(pair)

		rb := disruptor.NewRingBuffer(disruptor.DefaultConfig())
		seq := disruptor.NewSequencer(rb)
		proc := disruptor.NewEventProcessor(pair.Symbol, rb, engine, logger)
		pipelines[pair.Symbol] = &symbolPipeline{ringBuffer: rb, sequencer: seq, processor: proc}
	}

	durCfg := durability.Config{
		BatchSize:     cfg.Durability.BatchSize,
		FlushInterval: cfg.Durability.FlushInterval(),
	}
	writer := durability.NewWriter(store, bus, durCfg, logger)

	snapThrottle := snapshot.Throttle{
		OrderBook:        time.Duration(cfg.Throttle.OrderBookMs) * time.Millisecond,
		Ticker:           time.Duration(cfg.Throttle.TickerMs) * time.Millisecond,
		Candle:           time.Duration(cfg.Throttle.CandleMs) * time.Millisecond,
		SnapshotInterval: time.Duration(cfg.Throttle.SnapshotIntervalMs) * time.Millisecond,
	}
	snapshotPub := snapshot.NewPublisher(snapThrottle, cfg.Queues.SubscriberQueueSize)
	bookBridge := snapshot.NewEngineBridge(bus, snapshotPub, engine.GetOrderBook, cfg.Upstream.OrderBookDepth)

	hub := realtime.NewHub(logger, nil, func(token string) (string, bool) {
		if cfg.Realtime.BearerToken == "" {
			return "", false
		}
		if token == cfg.Realtime.BearerToken {
			return "authenticated-user", true
		}
		return "", false
	})
	realtimeSrv := realtime.NewServer(hub, logger)
	snapshotBridge, unsubSnapshot := realtime.NewSnapshotBridge(hub, snapshotPub)
	tradeBridge := realtime.NewTradeBridge(hub, bus)

	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols = append(symbols, s.Symbol)
	}
	relay := marketdata.NewRelay(cfg.Upstream.URL, cfg.Upstream.BusinessURL, symbols, cfg.Upstream.Intervals, logger, marketdata.SnapshotSink(snapshotPub))

	v := &Venue{
		cfg:            cfg,
		logger:         logger,
		ledger:         led,
		bus:            bus,
		engine:         engine,
		riskChecker:    riskChecker,
		store:          store,
		durabilityW:    writer,
		snapshotPub:    snapshotPub,
		bookBridge:     bookBridge,
		realtimeHub:    hub,
		realtimeSrv:    realtimeSrv,
		snapshotBridge: snapshotBridge,
		unsubSnapshot:  unsubSnapshot,
		tradeBridge:    tradeBridge,
		relay:          relay,
		pipelines:      pipelines,
	}
	v.apiServer = NewAPIServer(v, logger)
	return v, nil
}

// Start launches every background goroutine and listener. Non-blocking
// except for the two HTTP listeners, which run in their own goroutines.
func (v *Venue) Start(ctx context.Context) {
	for symbol, p := range v.pipelines {
		p.processor.Start()
		v.logger.Info("symbol pipeline started", zap.String("symbol", symbol))
	}

	v.durabilityW.Start()
	go v.bookBridge.Run()
	go v.snapshotBridge.Run()
	go v.tradeBridge.Run()

	relayCtx, relayCancel := context.WithCancel(ctx)
	v.relayStop = relayCancel
	go func() {
		if err := v.relay.Run(relayCtx); err != nil && relayCtx.Err() == nil {
			v.logger.Error("market-data relay stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := v.realtimeSrv.ListenAndServe(v.cfg.Realtime.ListenAddr); err != nil {
			v.logger.Error("realtime fabric stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := v.apiServer.ListenAndServe(v.cfg.Server.ListenAddr); err != nil {
			v.logger.Error("REST API stopped", zap.Error(err))
		}
	}()
}

// Shutdown drains every symbol pipeline, stops the durability writer, and
// closes the durable store. Order matters: stop accepting new work before
// draining, and flush durability last so every accepted event is
// persisted.
func (v *Venue) Shutdown(ctx context.Context) error {
	for symbol, p := range v.pipelines {
		p.processor.Shutdown()
		v.logger.Info("symbol pipeline stopped", zap.String("symbol", symbol))
	}

	if v.relayStop != nil {
		v.relayStop()
	}
	v.unsubSnapshot()
	v.tradeBridge.Stop()
	v.bookBridge.Stop()
	v.durabilityW.Shutdown()

	return v.store.Close()
}

// submit claims a sequence slot on the symbol's ring buffer and waits for
// the processor's response, or times out.
func (v *Venue) submit(symbol string, req *disruptor.OrderRequest) (*disruptor.OrderResponse, error) {
	p, ok := v.pipelines[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}

	responseCh := make(chan *disruptor.OrderResponse, 1)
	seq, err := p.sequencer.Next()
	if err != nil {
		return nil, fmt.Errorf("server busy: %w", err)
	}
	p.sequencer.Publish(seq, req, responseCh)

	select {
	case resp := <-responseCh:
		return resp, nil
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("processing timeout")
	}
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Logging.FilePath != "" {
		logger, err = telemetry.NewLoggerWithFile(cfg.Logging.FilePath)
	} else {
		logger, err = telemetry.NewLogger()
	}
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	venue, err := NewVenue(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build venue", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	venue.Start(ctx)
	logger.Info("venue started", zap.String("rest_addr", cfg.Server.ListenAddr), zap.String("realtime_addr", cfg.Realtime.ListenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := venue.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("venue stopped")
}
