// Package config defines all configuration for the trading venue. Config is
// loaded from a YAML file (default: configs/config.yaml) via viper, with
// selected fields overridable by VENUE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly onto the YAML file.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Upstream   UpstreamConfig    `mapstructure:"upstream"`
	Symbols    []SymbolConfig    `mapstructure:"symbols"`
	Throttle   ThrottleConfig    `mapstructure:"throttle"`
	Queues     QueueConfig       `mapstructure:"queues"`
	Risk       RiskConfig        `mapstructure:"risk"`
	Durability DurabilityConfig  `mapstructure:"durability"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Realtime   RealtimeConfig    `mapstructure:"realtime"`
}

// ServerConfig configures the REST listener.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// UpstreamConfig points at the external market-data feed the relay
// connects outbound to.
type UpstreamConfig struct {
	URL            string   `mapstructure:"url"`
	BusinessURL    string   `mapstructure:"business_url"`
	Intervals      []string `mapstructure:"intervals"`
	OrderBookDepth int      `mapstructure:"order_book_depth"`
}

// SymbolConfig describes one tradable pair and its tick/lot constraints.
type SymbolConfig struct {
	Symbol    string  `mapstructure:"symbol"`
	Base      string  `mapstructure:"base"`
	Quote     string  `mapstructure:"quote"`
	PriceTick string  `mapstructure:"price_tick"`
	QtyTick   string  `mapstructure:"qty_tick"`
	MinQty    string  `mapstructure:"min_qty"`
	MaxQty    string  `mapstructure:"max_qty"`
}

// ThrottleConfig sets the minimum interval between successive pushes of
// each market-data kind, and the maximum gap before a push is forced back
// to a full snapshot.
type ThrottleConfig struct {
	OrderBookMs      int `mapstructure:"order_book_ms"`
	TickerMs         int `mapstructure:"ticker_ms"`
	CandleMs         int `mapstructure:"candle_ms"`
	SnapshotIntervalMs int `mapstructure:"snapshot_interval_ms"`
}

// QueueConfig holds the bounded-queue sizes. InboundQueueSize is loaded
// but not read: each symbol's inbound ring buffer has the disruptor's
// default fixed size.
type QueueConfig struct {
	InboundQueueSize    int `mapstructure:"inbound_queue_size"`
	SubscriberQueueSize int `mapstructure:"subscriber_queue_size"`
}

// RiskConfig mirrors internal/risk.Config with string-encoded decimals
// (viper has no native decimal type).
type RiskConfig struct {
	MaxOrderSize     string `mapstructure:"max_order_size"`
	MaxOrderValue    string `mapstructure:"max_order_value"`
	MaxPositionSize  string `mapstructure:"max_position_size"`
	MaxDailyVolume   string `mapstructure:"max_daily_volume"`
	PriceBandPercent string `mapstructure:"price_band_percent"`
}

// DurabilityConfig configures the embedded durable store and writer batch.
type DurabilityConfig struct {
	StorePath         string        `mapstructure:"store_path"`
	BatchSize         int           `mapstructure:"batch_size"`
	FlushIntervalMs   int           `mapstructure:"flush_interval_ms"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	FilePath string `mapstructure:"file_path"`
}

// RealtimeConfig configures the websocket push fabric.
type RealtimeConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	BearerToken string `mapstructure:"bearer_token"`
}

// FlushInterval returns the writer flush interval as a time.Duration.
func (d DurabilityConfig) FlushInterval() time.Duration {
	return time.Duration(d.FlushIntervalMs) * time.Millisecond
}

// Load reads configuration from path (or the default search path if path
// is empty), applying VENUE_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VENUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("realtime.listen_addr", ":8081")
	v.SetDefault("throttle.order_book_ms", 250)
	v.SetDefault("throttle.ticker_ms", 1000)
	v.SetDefault("throttle.candle_ms", 1500)
	v.SetDefault("throttle.snapshot_interval_ms", 3000)
	v.SetDefault("queues.inbound_queue_size", 10000)
	v.SetDefault("queues.subscriber_queue_size", 1024)
	v.SetDefault("durability.store_path", "./data/venue.db")
	v.SetDefault("durability.batch_size", 1000)
	v.SetDefault("durability.flush_interval_ms", 10)
	v.SetDefault("risk.max_order_size", "100000")
	v.SetDefault("risk.max_order_value", "10000000")
	v.SetDefault("risk.max_position_size", "1000000")
	v.SetDefault("risk.max_daily_volume", "100000000")
	v.SetDefault("risk.price_band_percent", "0.10")
}
