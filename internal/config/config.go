// Package config loads the casino's HCL configuration file. A missing file
// is not an error: every knob has a default so a bare binary runs a demo
// instance out of the box.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"

	"github.com/dragonbet/casino/internal/crash"
	"github.com/dragonbet/casino/internal/games"
	"github.com/dragonbet/casino/internal/wallet"
)

// Config represents the complete casino configuration
type Config struct {
	Server *ServerSettings `hcl:"server,block"`
	Crash  *CrashSettings  `hcl:"crash,block"`
	Wallet *WalletSettings `hcl:"wallet,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address        string `hcl:"address,optional"`
	Port           int    `hcl:"port,optional"`
	LogLevel       string `hcl:"log_level,optional"`
	JWTSecret      string `hcl:"jwt_secret,optional"`
	IntegrationKey string `hcl:"integration_key,optional"`
}

// CrashSettings configures the crash game table. Durations are milliseconds.
type CrashSettings struct {
	Tracks         int     `hcl:"tracks,optional"`
	CountdownMs    int     `hcl:"countdown_ms,optional"`
	TickIntervalMs int     `hcl:"tick_interval_ms,optional"`
	CrashPauseMs   int     `hcl:"crash_pause_ms,optional"`
	BetGraceMs     int     `hcl:"bet_grace_ms,optional"`
	BetCooldownMs  int     `hcl:"bet_cooldown_ms,optional"`
	GrowthRate     float64 `hcl:"growth_rate,optional"`
	MinBet         string  `hcl:"min_bet,optional"`
	MaxBet         string  `hcl:"max_bet,optional"`
	HouseEdge      float64 `hcl:"house_edge,optional"`
	MaxMultiplier  float64 `hcl:"max_multiplier,optional"`
	HouseSeed      string  `hcl:"house_seed,optional"`
	HistorySize    int     `hcl:"history_size,optional"`
}

// WalletSettings configures the ledger
type WalletSettings struct {
	DataDir         string `hcl:"data_dir,optional"`
	Currency        string `hcl:"currency,optional"`
	StartingBalance string `hcl:"starting_balance,optional"`
}

// DefaultConfig returns the demo configuration
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Crash: &CrashSettings{
			Tracks:         2,
			CountdownMs:    10000,
			TickIntervalMs: 100,
			CrashPauseMs:   3000,
			BetGraceMs:     300,
			BetCooldownMs:  500,
			GrowthRate:     0.06,
			MinBet:         "1",
			MaxBet:         "10000",
			HouseEdge:      0.04,
			MaxMultiplier:  5000,
			HistorySize:    20,
		},
		Wallet: &WalletSettings{
			DataDir:         "casino-data",
			Currency:        "USDT",
			StartingBalance: "1000",
		},
	}
}

// Load loads configuration from an HCL file, falling back to defaults when
// the file does not exist.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(c *Config) {
	def := DefaultConfig()
	if c.Server == nil {
		c.Server = def.Server
	}
	if c.Crash == nil {
		c.Crash = def.Crash
	}
	if c.Wallet == nil {
		c.Wallet = def.Wallet
	}
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
	if c.Crash.Tracks == 0 {
		c.Crash.Tracks = def.Crash.Tracks
	}
	if c.Crash.CountdownMs == 0 {
		c.Crash.CountdownMs = def.Crash.CountdownMs
	}
	if c.Crash.TickIntervalMs == 0 {
		c.Crash.TickIntervalMs = def.Crash.TickIntervalMs
	}
	if c.Crash.CrashPauseMs == 0 {
		c.Crash.CrashPauseMs = def.Crash.CrashPauseMs
	}
	if c.Crash.GrowthRate == 0 {
		c.Crash.GrowthRate = def.Crash.GrowthRate
	}
	if c.Crash.MinBet == "" {
		c.Crash.MinBet = def.Crash.MinBet
	}
	if c.Crash.MaxBet == "" {
		c.Crash.MaxBet = def.Crash.MaxBet
	}
	if c.Crash.HouseEdge == 0 {
		c.Crash.HouseEdge = def.Crash.HouseEdge
	}
	if c.Crash.MaxMultiplier == 0 {
		c.Crash.MaxMultiplier = def.Crash.MaxMultiplier
	}
	if c.Crash.HistorySize == 0 {
		c.Crash.HistorySize = def.Crash.HistorySize
	}
	if c.Wallet.DataDir == "" {
		c.Wallet.DataDir = def.Wallet.DataDir
	}
	if c.Wallet.Currency == "" {
		c.Wallet.Currency = def.Wallet.Currency
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Crash.Tracks < 1 || c.Crash.Tracks > 4 {
		return fmt.Errorf("crash tracks must be between 1 and 4, got %d", c.Crash.Tracks)
	}
	if c.Crash.HouseEdge <= 0 || c.Crash.HouseEdge >= 1 {
		return fmt.Errorf("house edge must be in (0, 1), got %f", c.Crash.HouseEdge)
	}
	minBet, err := decimal.NewFromString(c.Crash.MinBet)
	if err != nil {
		return fmt.Errorf("invalid min_bet %q: %w", c.Crash.MinBet, err)
	}
	maxBet, err := decimal.NewFromString(c.Crash.MaxBet)
	if err != nil {
		return fmt.Errorf("invalid max_bet %q: %w", c.Crash.MaxBet, err)
	}
	if !minBet.IsPositive() || maxBet.LessThanOrEqual(minBet) {
		return fmt.Errorf("bet bounds must satisfy 0 < min_bet < max_bet")
	}
	if c.Wallet.StartingBalance != "" {
		if _, err := decimal.NewFromString(c.Wallet.StartingBalance); err != nil {
			return fmt.Errorf("invalid starting_balance %q: %w", c.Wallet.StartingBalance, err)
		}
	}
	return nil
}

// ServerAddress returns the full listen address
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// CrashConfig converts the settings into the crash manager's config.
func (c *Config) CrashConfig() crash.Config {
	minBet, _ := decimal.NewFromString(c.Crash.MinBet)
	maxBet, _ := decimal.NewFromString(c.Crash.MaxBet)
	return crash.Config{
		Tracks:        c.Crash.Tracks,
		Countdown:     time.Duration(c.Crash.CountdownMs) * time.Millisecond,
		TickInterval:  time.Duration(c.Crash.TickIntervalMs) * time.Millisecond,
		CrashPause:    time.Duration(c.Crash.CrashPauseMs) * time.Millisecond,
		BetGrace:      time.Duration(c.Crash.BetGraceMs) * time.Millisecond,
		BetCooldown:   time.Duration(c.Crash.BetCooldownMs) * time.Millisecond,
		GrowthRate:    c.Crash.GrowthRate,
		MinBet:        minBet,
		MaxBet:        maxBet,
		HouseEdge:     c.Crash.HouseEdge,
		MaxMultiplier: c.Crash.MaxMultiplier,
		HouseSeed:     c.Crash.HouseSeed,
		Currency:      c.Wallet.Currency,
		HistorySize:   c.Crash.HistorySize,
	}
}

// WalletConfig converts the settings into the ledger's config.
func (c *Config) WalletConfig() wallet.Config {
	starting := decimal.Zero
	if c.Wallet.StartingBalance != "" {
		starting, _ = decimal.NewFromString(c.Wallet.StartingBalance)
	}
	return wallet.Config{
		DefaultCurrency: c.Wallet.Currency,
		StartingBalance: starting,
	}
}

// GamesConfig converts the settings into the instant games config.
func (c *Config) GamesConfig() games.Config {
	minBet, _ := decimal.NewFromString(c.Crash.MinBet)
	maxBet, _ := decimal.NewFromString(c.Crash.MaxBet)
	return games.Config{
		Currency:      c.Wallet.Currency,
		MinBet:        minBet,
		MaxBet:        maxBet,
		HouseEdge:     c.Crash.HouseEdge,
		MaxMultiplier: c.Crash.MaxMultiplier,
	}
}
