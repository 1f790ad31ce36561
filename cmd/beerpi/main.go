// BeerPi samples a DS18B20 temperature probe and relay input at a
// fixed interval and fans each reading out to an MQTT broker (with
// Home Assistant auto discovery), an InfluxDB 2.x bucket, and a
// relational readings table used by the dashboard.
//
// Usage:
//
//	beerpi serve             Run the acquisition pipeline (default)
//	beerpi version           Print version and build information
//	beerpi -o json version   Output version information as JSON
//	beerpi -config FILE      Use an explicit config file
//
// Configuration is loaded from a YAML file discovered automatically
// (see [config.DefaultSearchPaths]); the classic flat environment
// variables (MQTT_BROKER_HOST, INFLUX_URL, DB_HOST, POLL_INTERVAL, …)
// override file values, so containerized deployments can run with no
// file at all.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beerpi/beerpi/internal/broker"
	"github.com/beerpi/beerpi/internal/buildinfo"
	"github.com/beerpi/beerpi/internal/config"
	"github.com/beerpi/beerpi/internal/control"
	"github.com/beerpi/beerpi/internal/fanout"
	"github.com/beerpi/beerpi/internal/mode"
	"github.com/beerpi/beerpi/internal/scheduler"
	"github.com/beerpi/beerpi/internal/sensor"
	"github.com/beerpi/beerpi/internal/sink"
)

// main is intentionally minimal. It constructs the OS-level
// environment and delegates immediately to [run], keeping os.Exit,
// os.Stdout, and os.Args out of the application logic so the full
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the
// flag package's global state makes run() impossible to call
// concurrently from tests, and the argument surface here is tiny.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	command := "serve"

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config", "--config":
			i++
			if i >= len(args) {
				return errors.New("-config requires a path")
			}
			configPath = args[i]
		case "-o", "--output":
			i++
			if i >= len(args) {
				return errors.New("-o requires a format (text or json)")
			}
			outputFmt = args[i]
		default:
			command = args[i]
		}
	}

	switch command {
	case "serve":
		return serve(ctx, stdout, configPath)
	case "version":
		return printVersion(stdout, outputFmt)
	default:
		return fmt.Errorf("unknown command %q (valid: serve, version)", command)
	}
}

// serve wires the pipeline and blocks until a shutdown signal arrives.
// Configuration problems are the only startup failures that reach the
// caller and exit non-zero; an absent broker degrades instead.
func serve(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level, cfg.LogFormat)

	logger.Info("BeerPi starting",
		"build", buildinfo.String(),
		"config", cfgPath,
		"interval", cfg.Interval().String(),
	)

	// --- Reading source and mode arbiter ---
	relay := sensor.NewGPIORelay(cfg.Sensor.GPIODir, cfg.Sensor.RelayPin, logger)
	live := sensor.NewLiveSource(cfg.Sensor.DeviceDir, relay, logger)
	sim := sensor.NewSimulatedSource(cfg.Sensor.SimMinC, cfg.Sensor.SimMaxC)

	arbiter := mode.NewArbiter(live, mode.DefaultFailureThreshold, logger)
	initial := arbiter.Init()
	logger.Info("acquisition mode decided", "mode", string(initial))

	// --- Signal handling ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var sinks []sink.Sink

	// --- Broker session ---
	var session *broker.Session
	if cfg.MQTT.Configured() {
		instanceID, err := broker.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("instance ID: %w", err)
		}

		session = broker.NewSession(cfg.MQTT, instanceID, logger)
		session.Register(broker.DefaultRegistrations(session.Topics(), session.Device(), cfg.MQTT.RawPayloads)...)

		setpoints := control.NewSetpoints(cfg.Sensor.SimMinC, cfg.Sensor.SimMaxC)
		bridge := control.NewBridge(setpoints, session, session.Topics(), logger)
		session.Subscribe(session.Topics().ConfigSetFilter(), 1, bridge.HandleCommand)
		session.OnConnect(bridge.PublishStates)

		if err := session.Connect(ctx); err != nil {
			return err
		}

		sinks = append(sinks, sink.NewBus(session, session.Topics(), cfg.MQTT.RawPayloads, logger))
	} else {
		logger.Info("message bus disabled (not configured)")
	}

	// --- Storage sinks ---
	if cfg.Influx.Configured() {
		ts := sink.NewTimeSeries(cfg.Influx, logger)
		defer ts.Close()
		sinks = append(sinks, ts)
		logger.Info("time-series sink enabled", "url", cfg.Influx.URL, "bucket", cfg.Influx.Bucket)
	} else {
		logger.Info("time-series sink disabled (not configured)")
	}

	if cfg.Database.Configured() {
		rel, err := sink.NewRelational(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer rel.Close()
		sinks = append(sinks, rel)
		logger.Info("relational sink enabled", "host", cfg.Database.Host, "database", cfg.Database.Database)
	} else {
		logger.Info("relational sink disabled (not configured)")
	}

	if len(sinks) == 0 {
		logger.Warn("no sinks configured; samples will only appear in the log")
	}

	// --- Scheduler ---
	sched := scheduler.New(scheduler.Config{
		Arbiter:    arbiter,
		Live:       live,
		Simulated:  sim,
		Dispatcher: fanout.NewDispatcher(logger, sinks...),
		Interval:   cfg.Interval(),
		Logger:     logger,
	})

	runErr := sched.Run(ctx)

	// Publish the retained "offline" status before disconnecting.
	if session != nil {
		offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer offlineCancel()
		if err := session.Stop(offlineCtx); err != nil {
			logger.Error("broker shutdown failed", "error", err)
		}
	}

	logger.Info("BeerPi stopped")
	return runErr
}

// loadConfig locates and parses the YAML configuration file. An
// explicit path must exist; with no file anywhere the defaults are
// used so env-only deployments keep working.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func printVersion(w io.Writer, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(buildinfo.Get())
	}
	_, err := fmt.Fprintln(w, buildinfo.String())
	return err
}
