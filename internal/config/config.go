// Package config holds the kernel's environment-overridable parameters:
// engine timing, bomb/power-up defaults, board size and seed, bus
// capacities, per-bot decision budgets and replay settings. Influence,
// pathfinder and planner parameters are not here; those packages carry
// their own Config types.
//
// Structure and the getEnvInt/getEnvFloat env-override pattern are
// grounded on the teacher's internal/config/config.go: one struct per
// concern, a Default* constructor, an *FromEnv overlay, and a top-level
// Load() that assembles the lot.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// ENGINE CONFIGURATION
// =============================================================================

// EngineConfig holds the tick loop's timing and bomb defaults.
type EngineConfig struct {
	TickRate            int // ticks per second
	WatchdogMultiplier  int // a tick over TickDuration*this logs as slow
	BombDefaultPower    int
	BombDefaultFuseTicks int
	PowerUpSpawnPercent int // 0-100
}

// DefaultEngine returns the spec's named defaults: 60Hz, power 2, fuse 60
// ticks.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		TickRate:             60,
		WatchdogMultiplier:   2,
		BombDefaultPower:     2,
		BombDefaultFuseTicks: 60,
		PowerUpSpawnPercent:  25,
	}
}

// TickDuration derives the fixed step duration from TickRate.
func (c EngineConfig) TickDuration() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// EngineFromEnv overlays environment variables on DefaultEngine.
func EngineFromEnv() EngineConfig {
	cfg := DefaultEngine()
	if v := getEnvInt("KERNEL_TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvInt("KERNEL_WATCHDOG_MULTIPLIER", 0); v > 0 {
		cfg.WatchdogMultiplier = v
	}
	if v := getEnvInt("KERNEL_BOMB_POWER", 0); v > 0 {
		cfg.BombDefaultPower = v
	}
	if v := getEnvInt("KERNEL_BOMB_FUSE_TICKS", 0); v > 0 {
		cfg.BombDefaultFuseTicks = v
	}
	if v := getEnvInt("KERNEL_POWERUP_SPAWN_PERCENT", -1); v >= 0 {
		cfg.PowerUpSpawnPercent = v
	}
	return cfg
}

// =============================================================================
// BOARD CONFIGURATION
// =============================================================================

// BoardConfig holds the grid's static dimensions and RNG seed.
type BoardConfig struct {
	GridSize int
	Seed     int64
}

// DefaultBoard returns a 15x15 board (an odd size so a symmetric crate
// layout has a true center) with the fixed seed 1 unless overridden.
func DefaultBoard() BoardConfig {
	return BoardConfig{GridSize: 15, Seed: 1}
}

// BoardFromEnv overlays environment variables on DefaultBoard.
func BoardFromEnv() BoardConfig {
	cfg := DefaultBoard()
	if v := getEnvInt("KERNEL_GRID_SIZE", 0); v > 0 {
		cfg.GridSize = v
	}
	if v := getEnvInt("KERNEL_SEED", 0); v != 0 {
		cfg.Seed = int64(v)
	}
	return cfg
}

// =============================================================================
// BUS CONFIGURATION
// =============================================================================

// BusConfig holds the event bus's queue capacities and subscriber rate
// limits.
type BusConfig struct {
	QueueCapacity           int
	SubscriberQueueCapacity int
	SubscriberRatePerSec    float64
	SubscriberBurst         int
}

// DefaultBus returns reasonable bounds for a single-process simulation.
func DefaultBus() BusConfig {
	return BusConfig{
		QueueCapacity:           1024,
		SubscriberQueueCapacity: 256,
		SubscriberRatePerSec:    500,
		SubscriberBurst:         64,
	}
}

// BusFromEnv overlays environment variables on DefaultBus.
func BusFromEnv() BusConfig {
	cfg := DefaultBus()
	if v := getEnvInt("KERNEL_BUS_QUEUE_CAPACITY", 0); v > 0 {
		cfg.QueueCapacity = v
	}
	if v := getEnvInt("KERNEL_BUS_SUBSCRIBER_QUEUE_CAPACITY", 0); v > 0 {
		cfg.SubscriberQueueCapacity = v
	}
	if v := getEnvFloat("KERNEL_BUS_SUBSCRIBER_RATE", -1); v >= 0 {
		cfg.SubscriberRatePerSec = v
	}
	if v := getEnvInt("KERNEL_BUS_SUBSCRIBER_BURST", 0); v > 0 {
		cfg.SubscriberBurst = v
	}
	return cfg
}

// =============================================================================
// BOT CONFIGURATION
// =============================================================================

// BotConfig holds the per-bot decision budget and fault tolerance.
type BotConfig struct {
	DecisionRate      float64
	DecisionBurst     int
	DecisionTimeout   time.Duration
	MaxFaultsInWindow int
	FaultWindowTicks  uint64
	CommandQueueDepth int // per-bot bounded command queue capacity (1-4)
}

// DefaultBot returns one decision per tick with a 4ms budget and
// disqualification after 5 faults within 300 ticks (5s at 60Hz).
func DefaultBot() BotConfig {
	return BotConfig{
		DecisionRate:      60,
		DecisionBurst:     4,
		DecisionTimeout:   4 * time.Millisecond,
		MaxFaultsInWindow: 5,
		FaultWindowTicks:  300,
		CommandQueueDepth: 2,
	}
}

// BotFromEnv overlays environment variables on DefaultBot.
func BotFromEnv() BotConfig {
	cfg := DefaultBot()
	if v := getEnvFloat("KERNEL_BOT_DECISION_RATE", -1); v >= 0 {
		cfg.DecisionRate = v
	}
	if v := getEnvInt("KERNEL_BOT_DECISION_BURST", 0); v > 0 {
		cfg.DecisionBurst = v
	}
	if v := getEnvInt("KERNEL_BOT_DECISION_TIMEOUT_MS", 0); v > 0 {
		cfg.DecisionTimeout = time.Duration(v) * time.Millisecond
	}
	if v := getEnvInt("KERNEL_BOT_MAX_FAULTS", 0); v > 0 {
		cfg.MaxFaultsInWindow = v
	}
	if v := getEnvInt("KERNEL_BOT_FAULT_WINDOW_TICKS", 0); v > 0 {
		cfg.FaultWindowTicks = uint64(v)
	}
	if v := getEnvInt("KERNEL_BOT_COMMAND_QUEUE_DEPTH", 0); v > 0 {
		cfg.CommandQueueDepth = v
	}
	return cfg
}

// =============================================================================
// REPLAY CONFIGURATION
// =============================================================================

// ReplayConfig controls whether the external runner records a replay
// file for this run and where it writes it (spec.md §6's replay.record/
// replay.path). The replay codec itself lives in internal/replay; this
// struct only carries the toggle an external CLI reads to decide whether
// to open a Writer.
type ReplayConfig struct {
	Record bool
	Path   string
}

// DefaultReplay disables recording by default (the core records nothing
// unless the external runner asks for it).
func DefaultReplay() ReplayConfig {
	return ReplayConfig{Record: false, Path: "replay.bin"}
}

// ReplayFromEnv overlays environment variables on DefaultReplay.
func ReplayFromEnv() ReplayConfig {
	cfg := DefaultReplay()
	if v := os.Getenv("KERNEL_REPLAY_RECORD"); v != "" {
		cfg.Record = v == "1" || v == "true"
	}
	if v := os.Getenv("KERNEL_REPLAY_PATH"); v != "" {
		cfg.Path = v
	}
	return cfg
}

// =============================================================================
// COMPLETE KERNEL CONFIGURATION
// =============================================================================

// KernelConfig holds the complete simulation configuration.
type KernelConfig struct {
	Engine EngineConfig
	Board  BoardConfig
	Bus    BusConfig
	Bot    BotConfig
	Replay ReplayConfig
}

// Load returns the complete kernel configuration with environment
// overrides applied. Callers that keep settings in a .env file should
// load it (see LoadDotEnv) before calling Load.
func Load() KernelConfig {
	return KernelConfig{
		Engine: EngineFromEnv(),
		Board:  BoardFromEnv(),
		Bus:    BusFromEnv(),
		Bot:    BotFromEnv(),
		Replay: ReplayFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
