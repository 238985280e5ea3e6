package main

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/veilinghq/veiling/go/internal/auction"
	"gopkg.in/yaml.v3"
)

// Config is the daemon's YAML configuration. Money values are decimal
// strings; durations are integer milliseconds.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Auction struct {
		TickIntervalMs int    `yaml:"tick_interval_ms"`
		PriceDecrement string `yaml:"price_decrement"`
		BidIncrease    string `yaml:"bid_increase"`
		BidPauseMs     int    `yaml:"bid_pause_ms"`
		LotPauseMs     int    `yaml:"lot_pause_ms"`
		LotDurationSec int    `yaml:"lot_duration_sec"`
	} `yaml:"auction"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// settings converts the config block into the engine's typed knobs.
func (c *Config) settings() (auction.Settings, error) {
	decrement, err := decimal.NewFromString(c.Auction.PriceDecrement)
	if err != nil {
		return auction.Settings{}, fmt.Errorf("invalid price_decrement: %w", err)
	}
	increase, err := decimal.NewFromString(c.Auction.BidIncrease)
	if err != nil {
		return auction.Settings{}, fmt.Errorf("invalid bid_increase: %w", err)
	}
	return auction.Settings{
		TickInterval:   time.Duration(c.Auction.TickIntervalMs) * time.Millisecond,
		PriceDecrement: decrement,
		BidIncrease:    increase,
		BidPause:       time.Duration(c.Auction.BidPauseMs) * time.Millisecond,
		LotPause:       time.Duration(c.Auction.LotPauseMs) * time.Millisecond,
		LotDuration:    time.Duration(c.Auction.LotDurationSec) * time.Second,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
