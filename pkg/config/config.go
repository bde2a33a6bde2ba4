// Package config handles the wzscript.toml runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Warzone2100/warzone2100-sub038/pkg/engine"
	"github.com/Warzone2100/warzone2100-sub038/pkg/logger"
	"github.com/Warzone2100/warzone2100-sub038/pkg/vm"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "wzscript.toml"

// MaxTPS bounds engine.tps so that a tick is at least one millisecond.
const MaxTPS = 1000

// Config is the full runtime configuration.
type Config struct {
	Engine  Engine  `toml:"engine"`
	Log     Log     `toml:"log"`
	Scripts Scripts `toml:"scripts"`
	World   World   `toml:"world"`
	Metrics Metrics `toml:"metrics"`
	Run     Run     `toml:"run"`

	// Path is the file the configuration was loaded from, if any.
	Path string `toml:"-"`
}

// Engine configures the scheduler and each instance.
type Engine struct {
	Budget   int `toml:"budget"`
	TPS      int `toml:"tps"`
	MaxStack int `toml:"max-stack"`
	MaxDepth int `toml:"max-depth"`
}

// Log configures the global logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Scripts configures where listings are loaded from.
type Scripts struct {
	Dir      string `toml:"dir"`
	Encoding string `toml:"encoding"`
}

// World configures the reference host.
type World struct {
	Players int    `toml:"players"`
	Seed    uint64 `toml:"seed"`
}

// Metrics configures the Prometheus endpoint. An empty address disables it.
type Metrics struct {
	Addr string `toml:"addr"`
}

// Run configures the host loop.
type Run struct {
	Headless bool          `toml:"headless"`
	Timeout  time.Duration `toml:"timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Engine: Engine{
			Budget:   engine.DefaultBudget,
			TPS:      60,
			MaxStack: vm.MaxStack,
			MaxDepth: vm.MaxDepth,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		World: World{
			Players: 4,
			Seed:    1,
		},
	}
}

// Load reads path on top of the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// LoadOptional is like Load but returns the defaults when path does not
// exist.
func LoadOptional(path string) (*Config, error) {
	c, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

// Parse decodes a TOML document on top of the defaults.
func Parse(doc string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(doc, c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.Budget <= 0 {
		errs = append(errs, fmt.Errorf("engine.budget must be positive, got %d", c.Engine.Budget))
	}
	if c.Engine.TPS <= 0 || c.Engine.TPS > MaxTPS {
		errs = append(errs, fmt.Errorf("engine.tps must be between 1 and %d, got %d", MaxTPS, c.Engine.TPS))
	}
	if c.Engine.MaxStack <= 0 {
		errs = append(errs, fmt.Errorf("engine.max-stack must be positive, got %d", c.Engine.MaxStack))
	}
	if c.Engine.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("engine.max-depth must be positive, got %d", c.Engine.MaxDepth))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.World.Players <= 0 {
		errs = append(errs, fmt.Errorf("world.players must be positive, got %d", c.World.Players))
	}
	if c.Run.Timeout < 0 {
		errs = append(errs, fmt.Errorf("run.timeout cannot be negative, got %s", c.Run.Timeout))
	}
	return errors.Join(errs...)
}

// TickInterval returns the wall-clock time between engine ticks.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Engine.TPS)
}
