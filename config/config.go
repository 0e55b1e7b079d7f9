// Package config loads the robot tuning from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hippos-robot/hsm"
	"github.com/hippos-robot/hsm/fsr"
	"github.com/hippos-robot/hsm/game"
	"gopkg.in/yaml.v3"
)

// Config is the file format. Durations are Go duration strings ("750ms").
type Config struct {
	Tick      time.Duration `yaml:"tick"`
	QueueSize int           `yaml:"queue_size"`
	LogLevel  string        `yaml:"log_level"`

	Game      Game      `yaml:"game"`
	Speeds    Speeds    `yaml:"speeds"`
	Gathering Gathering `yaml:"gathering"`
	Scoring   Scoring   `yaml:"scoring"`
	Defending Defending `yaml:"defending"`
	Sensing   Sensing   `yaml:"sensing"`
	FSR       FSR       `yaml:"fsr"`
}

type Game struct {
	Length       time.Duration `yaml:"length"`
	ScoringAfter time.Duration `yaml:"scoring_after"`
}

type Speeds struct {
	Full    int `yaml:"full"`
	Caution int `yaml:"caution"`
	Search  int `yaml:"search"`
}

type Gathering struct {
	Caution   time.Duration `yaml:"caution"`
	Backup    time.Duration `yaml:"backup"`
	TurnEvade time.Duration `yaml:"turn_evade"`
	TurnTable []string      `yaml:"turn_table"`
}

type Scoring struct {
	MaxApproachPasses int           `yaml:"max_approach_passes"`
	FirstAlign        time.Duration `yaml:"first_align"`
	SecondAlign       time.Duration `yaml:"second_align"`
	Clearance         time.Duration `yaml:"clearance"`
	Caution           time.Duration `yaml:"caution"`
	BeaconNod         time.Duration `yaml:"beacon_nod"`
	BackupSearch      time.Duration `yaml:"backup_search"`
	FanSpinDown       time.Duration `yaml:"fan_spin_down"`
	ForwardBump       time.Duration `yaml:"forward_bump"`
	UnloadSettle      time.Duration `yaml:"unload_settle"`
	Shuffle           time.Duration `yaml:"shuffle"`
	ShuffleStep       time.Duration `yaml:"shuffle_step"`
}

type Defending struct {
	WallSeparation time.Duration `yaml:"wall_separation"`
	Perpendicular  time.Duration `yaml:"perpendicular"`
	Reset          time.Duration `yaml:"reset"`
	DangerMargin   int           `yaml:"danger_margin"`
	SafeMargin     int           `yaml:"safe_margin"`
}

type Sensing struct {
	CountsPerMilli uint64        `yaml:"counts_per_milli"`
	Debounce       time.Duration `yaml:"debounce"`
	NoBeaconAfter  time.Duration `yaml:"no_beacon_after"`
	WatchPeriod    time.Duration `yaml:"watch_period"`
	WallPeriod     time.Duration `yaml:"wall_period"`
	StartPeriod    time.Duration `yaml:"start_period"`
}

type FSR struct {
	SyncGap     time.Duration `yaml:"sync_gap"`
	ByteGap     time.Duration `yaml:"byte_gap"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Default returns the competition configuration
func Default() *Config {
	s := game.DefaultSettings()
	table := make([]string, len(s.Gathering.TurnTable))
	for i, d := range s.Gathering.TurnTable {
		table[i] = d.String()
	}

	return &Config{
		Tick:      hsm.DefaultTick,
		QueueSize: s.QueueSize,
		LogLevel:  "info",
		Game:      Game(s.Game),
		Speeds:    Speeds(s.Speeds),
		Gathering: Gathering{
			Caution:   s.Gathering.Caution,
			Backup:    s.Gathering.Backup,
			TurnEvade: s.Gathering.TurnEvade,
			TurnTable: table,
		},
		Scoring:   Scoring(s.Scoring),
		Defending: Defending(s.Defending),
		Sensing:   Sensing(s.Sensing),
		FSR: FSR{
			SyncGap:     fsr.DefaultSyncGap,
			ByteGap:     fsr.DefaultByteGap,
			MaxAttempts: fsr.DefaultMaxAttempts,
		},
	}
}

// Load reads path over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the robot cannot run with
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Tick > 0, "tick must be positive, got %v", c.Tick)
	check(c.QueueSize > 0, "queue_size must be positive, got %d", c.QueueSize)
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	check(c.Game.Length > 0, "game.length must be positive")
	check(c.Game.ScoringAfter > 0 && c.Game.ScoringAfter < c.Game.Length,
		"game.scoring_after must fall inside the game, got %v of %v", c.Game.ScoringAfter, c.Game.Length)

	for name, v := range map[string]int{
		"speeds.full": c.Speeds.Full, "speeds.caution": c.Speeds.Caution, "speeds.search": c.Speeds.Search,
	} {
		check(v > 0 && v <= 100, "%s must be in 1..100, got %d", name, v)
	}

	check(len(c.Gathering.TurnTable) == 4, "gathering.turn_table needs 4 entries, got %d", len(c.Gathering.TurnTable))
	for _, d := range c.Gathering.TurnTable {
		if _, err := game.ParseDirection(d); err != nil {
			errs = append(errs, fmt.Errorf("gathering.turn_table: %w", err))
		}
	}

	check(c.Scoring.MaxApproachPasses > 0, "scoring.max_approach_passes must be positive")
	check(c.Defending.DangerMargin > 0 && c.Defending.DangerMargin < c.Defending.SafeMargin,
		"defending.danger_margin must be positive and below safe_margin")
	check(c.Defending.SafeMargin < 90, "defending.safe_margin must be below 90")

	check(c.Sensing.CountsPerMilli > 0, "sensing.counts_per_milli must be positive")
	check(c.Sensing.NoBeaconAfter > 0, "sensing.no_beacon_after must be positive")
	check(c.FSR.MaxAttempts > 0, "fsr.max_attempts must be positive")

	if len(errs) > 0 {
		return hsm.InitFailed(hsm.InitConfig, errors.Join(errs...))
	}
	return nil
}

// Level returns the configured log level
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Settings converts the configuration for the game machines
func (c *Config) Settings() game.Settings {
	var table [4]game.Direction
	for i := range table {
		if i < len(c.Gathering.TurnTable) {
			table[i], _ = game.ParseDirection(c.Gathering.TurnTable[i])
		}
	}

	return game.Settings{
		QueueSize: c.QueueSize,
		Game:      game.GameSettings(c.Game),
		Speeds:    game.Speeds(c.Speeds),
		Gathering: game.GatheringSettings{
			Caution:   c.Gathering.Caution,
			Backup:    c.Gathering.Backup,
			TurnEvade: c.Gathering.TurnEvade,
			TurnTable: table,
		},
		Scoring:   game.ScoringSettings(c.Scoring),
		Defending: game.DefendingSettings(c.Defending),
		Sensing:   game.SensingSettings(c.Sensing),
	}
}

// SensorOptions returns the FSR client options
func (c *Config) SensorOptions() []fsr.Option {
	return []fsr.Option{
		fsr.WithTiming(c.FSR.SyncGap, c.FSR.ByteGap),
		fsr.WithMaxAttempts(c.FSR.MaxAttempts),
	}
}
