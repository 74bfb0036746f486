// Package main runs deckfeed: it keeps a browser on the dashboard, scrapes new
// items from its columns and publishes them on the event bus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/deckfeed/pkg/accounts"
	"github.com/entrhq/deckfeed/pkg/bus"
	"github.com/entrhq/deckfeed/pkg/config"
	"github.com/entrhq/deckfeed/pkg/driver"
	"github.com/entrhq/deckfeed/pkg/logging"
	"github.com/entrhq/deckfeed/pkg/plugin"
	"github.com/entrhq/deckfeed/pkg/statuses"
	"github.com/entrhq/deckfeed/pkg/telemetry"
	"github.com/entrhq/deckfeed/pkg/types"
)

const (
	version = "0.1.0"

	stopTimeout = 10 * time.Second
)

// Config holds the command line configuration
type Config struct {
	ConfigPath   string
	AccountsPath string
	NATSURL      string
	NATSStream   string
	MetricsAddr  string
	LogLevel     string
	Trace        bool
	ShowVersion  bool
}

func main() {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("deckfeed v%s\n", version)
		return
	}

	if err := cfg.resolve(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		cancel()
		log.Fatalf("deckfeed: %v", err)
	}
	cancel()
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to the configuration file (default: ~/.deckfeed/config.json)")
	flag.StringVar(&cfg.AccountsPath, "accounts", "", "Path to the accounts file (default: ~/.deckfeed/accounts.yaml)")
	flag.StringVar(&cfg.NATSURL, "nats-url", os.Getenv("DECKFEED_NATS_URL"), "NATS server URL; empty uses an in-process bus that logs events")
	flag.StringVar(&cfg.NATSStream, "nats-stream", "", "JetStream stream to persist events in (optional)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9090")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Minimum log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Trace, "trace", false, "Write trace spans to stderr")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "deckfeed - publish dashboard columns to an event bus\n\n")
		fmt.Fprintf(os.Stderr, "Usage: deckfeed [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  deckfeed -nats-url nats://localhost:4222\n")
		fmt.Fprintf(os.Stderr, "  deckfeed -metrics-addr :9090 -log-level debug\n")
	}

	flag.Parse()
	return cfg
}

// resolve fills in default paths.
func (c *Config) resolve() error {
	if c.ConfigPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		c.ConfigPath = p
	}
	if c.AccountsPath == "" {
		c.AccountsPath = filepath.Join(filepath.Dir(c.ConfigPath), "accounts.yaml")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func run(ctx context.Context, cfg *Config) error {
	logger, err := logging.NewLogger("deckfeed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	defer logger.Close()
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	logger.Infof("deckfeed v%s starting", version)

	if cfg.Trace {
		tp, err := telemetry.NewTracerProvider("deckfeed", version, os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	if err := config.Initialize(cfg.ConfigPath); err != nil {
		return types.WrapError(types.ErrConfiguration, "config.load", err)
	}
	manager := config.Global()

	registry, err := accounts.LoadFile(cfg.AccountsPath)
	if err != nil {
		return types.WrapError(types.ErrConfiguration, "accounts.load", err)
	}
	logger.Infof("loaded %d accounts from %s", registry.Len(), cfg.AccountsPath)

	eventBus, err := openBus(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eventBus.Close()
	publisher := bus.NewPublisher(eventBus)

	p := plugin.New(plugin.Deps{
		Config:    manager,
		Launcher:  driver.NewPlaywrightLauncher(),
		Registry:  registry,
		Lookup:    statuses.NewClient(config.Lookup(manager).ClientOptions()),
		Publisher: publisher,
		Notifier:  publisher,
		Logger:    logger.Named("plugin"),
	})
	defer p.Shutdown()

	watcher, err := config.Watch(manager, cfg.ConfigPath, config.WithErrorHandler(func(err error) {
		logger.Warnf("config reload: %v", err)
	}))
	if err != nil {
		logger.Warnf("config changes will not be picked up: %v", err)
	} else {
		defer watcher.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Infof("serving metrics on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	p.Boot()
	if !config.Deck(manager).Enabled() {
		logger.Infof("dashboard session disabled; set deck.enabled in %s to start it", cfg.ConfigPath)
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if _, err := p.Stop().Await(stopCtx); err != nil {
			logger.Warnf("stop: %v; forcing shutdown", err)
			p.Shutdown()
		}
		return nil
	})

	err = g.Wait()
	if mem, ok := eventBus.(*bus.MemoryBus); ok {
		if dropped := mem.Dropped(); dropped > 0 {
			logger.Warnf("%d events were dropped by slow subscribers", dropped)
		}
	}
	logger.Infof("deckfeed stopped")
	return err
}

// openBus connects to NATS, or falls back to an in-process bus whose events
// are written to the log.
func openBus(ctx context.Context, cfg *Config, logger *logging.Logger) (bus.MessageBus, error) {
	if cfg.NATSURL != "" {
		busCfg := bus.DefaultConfig()
		busCfg.URL = cfg.NATSURL
		busCfg.Stream = cfg.NATSStream
		b, err := bus.NewNATSBus(busCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		logger.Infof("publishing to NATS at %s", b.Conn().ConnectedUrlRedacted())
		return b, nil
	}

	b := bus.NewMemoryBus()
	eventLog := logger.Named("events")
	_, err := bus.SubscribeEvents(ctx, b, bus.SubjectPrefix+".>", func(ev *types.FeedEvent) {
		if ev.Topic == types.TopicActivity {
			eventLog.Warnf("%s", ev.Message)
			return
		}
		eventLog.Infof("%s @%s: %d items", ev.Topic, ev.Account, len(ev.Items))
	}, func(err error) {
		eventLog.Warnf("%v", err)
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	logger.Infof("no NATS URL given; events are logged only")
	return b, nil
}
