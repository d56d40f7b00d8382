package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guillermoBallester/tablelog/internal/adapter/csvlog"
	"github.com/guillermoBallester/tablelog/internal/adapter/postgres"
	"github.com/guillermoBallester/tablelog/internal/audit"
	"github.com/guillermoBallester/tablelog/internal/config"
	"github.com/guillermoBallester/tablelog/internal/core/domain"
	"github.com/guillermoBallester/tablelog/internal/core/port"
	"github.com/guillermoBallester/tablelog/internal/core/service"
	"github.com/guillermoBallester/tablelog/internal/hook"
	"github.com/guillermoBallester/tablelog/internal/settings"
	"github.com/guillermoBallester/tablelog/internal/telemetry"
)

var version = "dev"

const (
	pingAttempts = 5
	drainTimeout = 5 * time.Second
)

func main() {
	overrides, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if err := run(overrides); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags maps command line flags onto config overrides. Flags left
// unset keep their env var or default value.
func parseFlags(args []string) (config.Overrides, error) {
	var o config.Overrides

	fs := flag.NewFlagSet("tablelog", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	databaseURL := fs.String("database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	settingsFile := fs.String("settings-file", "", "YAML file holding table_log.enable")
	enable := fs.String("enable", "", "initial table_log.enable value: on or off")
	table := fs.String("table", "", "schema-qualified log table")
	timezone := fs.String("timezone", "", "IANA time zone for log_time")
	writeTimeout := fs.Duration("write-timeout", 0, "statement timeout for each insert")
	logMinDuration := fs.String("log-min-duration", "", "report statements at least this slow (ms or duration, -1 disables)")
	csvlogFile := fs.String("csvlog", "", "PostgreSQL csvlog file to relay, - for stdin")
	fs.BoolVar(&o.CreateTable, "create-table", false, "create the log table and its append-only trigger")
	fs.StringVar(&o.RejectLog, "reject-log", "", "NDJSON file for events that produced no row")
	fs.BoolVar(&o.OTelEnabled, "otel", false, "enable OpenTelemetry tracing and metrics")
	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum pool connections")
	poolMinConns := fs.Int("pool-min-conns", -1, "minimum idle pool connections")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		if parseErr != nil {
			return
		}
		switch f.Name {
		case "database-url":
			o.DatabaseURL = databaseURL
		case "log-level":
			o.LogLevel = logLevel
		case "settings-file":
			o.SettingsFile = settingsFile
		case "enable":
			switch *enable {
			case "on", "true":
				v := true
				o.Enable = &v
			case "off", "false":
				v := false
				o.Enable = &v
			default:
				parseErr = fmt.Errorf("invalid --enable value %q: must be on or off", *enable)
			}
		case "table":
			o.Table = table
		case "timezone":
			o.Timezone = timezone
		case "write-timeout":
			o.WriteTimeout = writeTimeout
		case "log-min-duration":
			d, err := config.ParseMinDuration(*logMinDuration)
			if err != nil {
				parseErr = fmt.Errorf("invalid --log-min-duration value %q: %w", *logMinDuration, err)
				return
			}
			o.LogMinDuration = &d
		case "csvlog":
			o.CSVLogFile = csvlogFile
		case "pool-max-conns":
			v := int32(*poolMaxConns)
			o.PoolMaxConns = &v
		case "pool-min-conns":
			v := int32(*poolMinConns)
			o.PoolMinConns = &v
		case "pool-max-conn-lifetime":
			o.PoolMaxConnLifetime = poolMaxConnLifetime
		}
	})
	if parseErr != nil {
		return o, parseErr
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	return o, nil
}

// redactDSN hides the password of a connection URL for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func switchValue(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func run(overrides config.Overrides) error {
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The JSON handler must own the default slot before the pipeline is
	// installed in front of it.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tablelog",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		slog.String("table", cfg.Table),
		slog.String("timezone", cfg.Timezone),
		slog.String("write_timeout", cfg.WriteTimeout.String()),
		slog.String("log_min_duration", cfg.LogMinDuration.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	provider := telemetry.Disabled()
	if cfg.OTelEnabled {
		provider, err = telemetry.Init(ctx, "tablelog", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		logger.Info("opentelemetry enabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	table, err := postgres.ParseTableName(cfg.Table)
	if err != nil {
		return err
	}

	poolOpts := postgres.PoolOptions{
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
		PingAttempts:    pingAttempts,
	}
	if cfg.LogMinDuration >= 0 {
		// A nil logger resolves to slog.Default at emit time, which is the
		// installed pipeline once Install has run.
		poolOpts.Tracer = postgres.NewDurationTracer(cfg.LogMinDuration, nil)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, poolOpts)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	logger.Info("database pool connected", slog.String("db.system", "postgresql"))

	if cfg.CreateTable {
		if err := postgres.EnsureTable(ctx, pool, table); err != nil {
			return fmt.Errorf("creating log table: %w", err)
		}
		logger.Info("log table ready", slog.String("table", table.Sanitize()))
	}

	// Settings.
	var source settings.Source
	if cfg.SettingsFile != "" {
		source = settings.FileSource{Path: cfg.SettingsFile}
	}
	registry := settings.NewRegistry(source)
	if err := registry.Define(settings.Setting{
		Name:        settings.EnableSetting,
		Default:     switchValue(cfg.Enable),
		Description: "Write duration reports to the log table.",
	}); err != nil {
		return err
	}
	reload := func() {
		unknown, err := registry.Reload()
		if err != nil {
			logger.Error("reloading settings", slog.String("error", err.Error()))
			return
		}
		for _, name := range unknown {
			logger.Warn("unrecognized setting", slog.String("name", name))
		}
		logger.Info("settings loaded", slog.String(settings.EnableSetting, registry.Get(settings.EnableSetting)))
	}
	reload()

	if cfg.SettingsFile != "" {
		watcher, err := settings.NewWatcher(cfg.SettingsFile, reload, logger)
		if err != nil {
			return fmt.Errorf("watching settings file: %w", err)
		}
		defer func() { _ = watcher.Close() }()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				reload()
			}
		}
	}()

	// Reject log (optional).
	var rejects port.RejectRecorder = port.NoopRejectRecorder{}
	if cfg.RejectLog != "" {
		fr, err := audit.NewFileRejectRecorder(cfg.RejectLog)
		if err != nil {
			return fmt.Errorf("opening reject log: %w", err)
		}
		rejects = fr
		logger.Info("reject log enabled", slog.String("path", cfg.RejectLog))
	}
	defer func() { _ = rejects.Close() }()

	// Adapters and pipeline.
	var writer port.AuditWriter = postgres.NewWriter(pool, table, cfg.WriteTimeout)
	writer = postgres.NewBreakerWriter(writer, postgres.BreakerSettings{}, logger)

	pipeline := service.NewPipeline(
		settings.NewToggle(registry, settings.EnableSetting),
		domain.NewClock(cfg.Timezone),
		writer,
		rejects,
		logger,
		provider.Tracer(),
		provider.Instruments(),
	)

	installation := hook.Install(hook.DefaultSlot{}, pipeline)
	// Runs before the reject log and the pool are closed.
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := installation.Shutdown(drainCtx); err != nil {
			logger.Warn("pipeline still busy at shutdown", slog.String("error", err.Error()))
		}
	}()

	in, closeInput, err := openInput(cfg.CSVLogFile)
	if err != nil {
		return err
	}
	defer closeInput()

	logger.Info("relaying csvlog", slog.String("source", inputName(cfg.CSVLogFile)))

	done := make(chan relayResult, 1)
	go func() {
		n, err := csvlog.NewRelay(nil).WithLocation(time.Local).Run(ctx, in)
		done <- relayResult{rows: n, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && !errors.Is(res.err, context.Canceled) {
			return fmt.Errorf("relaying csvlog: %w", res.err)
		}
		logger.Info("csvlog relay finished", slog.Int("rows", res.rows))
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		// The relay stops between rows; a read blocked on stdin may not
		// return, so the wait is bounded.
		if res, ok := awaitRelay(done, drainTimeout); ok {
			logger.Info("csvlog relay stopped", slog.Int("rows", res.rows))
		} else {
			logger.Warn("csvlog relay did not stop in time")
		}
	}

	logger.Info("shutdown complete")
	return nil
}

type relayResult struct {
	rows int
	err  error
}

func awaitRelay(done <-chan relayResult, timeout time.Duration) (relayResult, bool) {
	select {
	case res := <-done:
		return res, true
	case <-time.After(timeout):
		return relayResult{}, false
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening csvlog file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func inputName(path string) string {
	if path == "" || path == "-" {
		return "stdin"
	}
	return path
}
