package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/holdemtables/internal/engine"
	"github.com/lox/holdemtables/internal/game"
	"github.com/lox/holdemtables/internal/store"
)

// Config is the complete server configuration.
type Config struct {
	Server *Settings       `hcl:"server,block"`
	Store  *StoreSettings  `hcl:"store,block"`
	Engine *EngineSettings `hcl:"engine,block"`
	Tables []TableConfig   `hcl:"table,block"`
}

type Settings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

type StoreSettings struct {
	Driver string `hcl:"driver,optional"`
	DSN    string `hcl:"dsn,optional"`
}

type EngineSettings struct {
	ConflictPolicy string `hcl:"conflict_policy,optional"`
	MaxAttempts    int    `hcl:"max_attempts,optional"`
	ActionTimeout  string `hcl:"action_timeout,optional"`
}

// TableConfig is a table created at startup. The first player to join owns
// it.
type TableConfig struct {
	Name          string `hcl:"name,label"`
	MaxPlayers    int    `hcl:"max_players,optional"`
	SmallBlind    int    `hcl:"small_blind,optional"`
	BigBlind      int    `hcl:"big_blind,optional"`
	StartingChips int    `hcl:"starting_chips,optional"`
}

// Rules converts the table block into game rules.
func (t TableConfig) Rules() game.Rules {
	return game.Rules{
		MaxPlayers:    t.MaxPlayers,
		SmallBlind:    t.SmallBlind,
		BigBlind:      t.BigBlind,
		StartingChips: t.StartingChips,
	}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	c.Tables = []TableConfig{{Name: "main"}}
	c.applyTableDefaults()
	return c
}

// LoadConfig reads an HCL configuration file. A missing file yields the
// defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
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

	config.applyDefaults()
	config.applyTableDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &Settings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Store == nil {
		c.Store = &StoreSettings{}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = store.DriverMemory
	}

	if c.Engine == nil {
		c.Engine = &EngineSettings{}
	}
	if c.Engine.ConflictPolicy == "" {
		c.Engine.ConflictPolicy = string(engine.PolicyRetry)
	}
	if c.Engine.MaxAttempts == 0 {
		c.Engine.MaxAttempts = engine.DefaultConfig().MaxAttempts
	}
	if c.Engine.ActionTimeout == "" {
		c.Engine.ActionTimeout = "0s"
	}
}

func (c *Config) applyTableDefaults() {
	def := game.DefaultRules()
	for i := range c.Tables {
		t := &c.Tables[i]
		if t.MaxPlayers == 0 {
			t.MaxPlayers = def.MaxPlayers
		}
		if t.SmallBlind == 0 {
			t.SmallBlind = def.SmallBlind
		}
		if t.BigBlind == 0 {
			t.BigBlind = t.SmallBlind * 2
		}
		if t.StartingChips == 0 {
			t.StartingChips = def.StartingChips
		}
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case store.DriverMemory:
	case store.DriverFile, store.DriverSQLite, store.DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store %s: dsn is required", c.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	if _, err := c.EngineConfig(); err != nil {
		return err
	}

	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table must be configured")
	}
	seen := make(map[string]bool)
	for _, table := range c.Tables {
		if seen[table.Name] {
			return fmt.Errorf("table %s: defined twice", table.Name)
		}
		seen[table.Name] = true

		if table.SmallBlind <= 0 {
			return fmt.Errorf("table %s: small blind must be positive", table.Name)
		}
		if table.BigBlind <= table.SmallBlind {
			return fmt.Errorf("table %s: big blind must be greater than small blind", table.Name)
		}
		if table.MaxPlayers < 2 || table.MaxPlayers > 10 {
			return fmt.Errorf("table %s: max players must be between 2 and 10", table.Name)
		}
		if table.StartingChips < table.BigBlind {
			return fmt.Errorf("table %s: starting chips must cover the big blind", table.Name)
		}
	}
	return nil
}

// EngineConfig converts the engine block.
func (c *Config) EngineConfig() (engine.Config, error) {
	policy, err := engine.ParseConflictPolicy(c.Engine.ConflictPolicy)
	if err != nil {
		return engine.Config{}, err
	}
	if c.Engine.MaxAttempts < 1 {
		return engine.Config{}, fmt.Errorf("max_attempts must be at least 1, got %d", c.Engine.MaxAttempts)
	}
	timeout, err := time.ParseDuration(c.Engine.ActionTimeout)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid action_timeout: %w", err)
	}
	if timeout < 0 {
		return engine.Config{}, fmt.Errorf("action_timeout must not be negative")
	}
	return engine.Config{
		Policy:        policy,
		MaxAttempts:   c.Engine.MaxAttempts,
		ActionTimeout: timeout,
	}, nil
}

// Address returns host:port to listen on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
