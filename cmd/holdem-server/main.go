package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/lox/holdemtables/internal/broadcast"
	"github.com/lox/holdemtables/internal/engine"
	"github.com/lox/holdemtables/internal/randutil"
	"github.com/lox/holdemtables/internal/server"
	"github.com/lox/holdemtables/internal/store"
	"golang.org/x/sync/errgroup"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Config   string           `short:"c" default:"holdem-server.hcl" help:"Path to HCL configuration file"`
	Addr     string           `short:"a" help:"Address to listen on, host:port (overrides config)"`
	LogLevel string           `short:"l" help:"Log level (overrides config)"`
	Store    string           `help:"Store driver: memory, file, sqlite or postgres (overrides config)"`
	DSN      string           `name:"dsn" help:"Store data source (overrides config)"`
	Seed     int64            `help:"Deterministic shuffle seed, 0 for a random one"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("holdem-server"),
		kong.Description("Multiplayer Texas Hold'em table server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(cli.Run())
}

func (c *CLI) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := c.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr)
	logger.SetReportTimestamp(true)
	level, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Server.LogLevel, err)
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	rng := randutil.NewSource(c.Seed)
	registry := broadcast.NewRegistry(logger)
	eng := engine.New(st, registry, logger,
		engine.WithConfig(engineCfg),
		engine.WithRandSource(rng))
	defer eng.Close()

	for _, table := range cfg.Tables {
		if err := eng.EnsureTable(ctx, table.Name, table.Name, table.Rules()); err != nil {
			return fmt.Errorf("creating table %s: %w", table.Name, err)
		}
	}

	logger.Info("Starting Holdem Server",
		"addr", cfg.Address(),
		"store", cfg.Store.Driver,
		"tables", len(cfg.Tables),
		"policy", engineCfg.Policy,
		"seed", rng.Seed())

	srv := server.NewServer(cfg.Address(), eng, registry, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// apply copies command line overrides onto the loaded configuration.
func (c *CLI) apply(cfg *server.Config) error {
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid --addr: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --addr port %q", port)
		}
		cfg.Server.Address, cfg.Server.Port = host, p
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.Store != "" {
		cfg.Store.Driver = c.Store
	}
	if c.DSN != "" {
		cfg.Store.DSN = c.DSN
	}
	return nil
}
