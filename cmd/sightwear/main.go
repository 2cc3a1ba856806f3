// Command sightwear is the main entry point for the wearable assistant
// runtime.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sightwear/sightwear/internal/app"
	"github.com/sightwear/sightwear/internal/config"
	"github.com/sightwear/sightwear/internal/keyboard"
	"github.com/sightwear/sightwear/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	envPath := pflag.StringP("env", "e", ".env", "path to an optional KEY=VALUE file loaded before the config")
	logLevel := pflag.StringP("log-level", "l", "", "override server.log_level (debug, info, warn, error)")
	keys := pflag.BoolP("keyboard", "k", false, "enable local key control on stdin")
	watch := pflag.Duration("watch", 5*time.Second, "config reload poll interval; 0 disables reloading")
	pflag.Parse()

	// ── Environment and configuration ─────────────────────────────────────────
	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "sightwear: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sightwear: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sightwear: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(*logLevel)
	}
	if *keys {
		cfg.Keyboard.Enabled = true
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger, closeLog := newLogger(cfg.Server.LogFile, level)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("sightwear starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, closeProviders, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders()

	// ── Keyboard ──────────────────────────────────────────────────────────────
	opts := []app.Option{app.WithMetricsHandler(tel.MetricsHandler())}
	if cfg.Keyboard.Enabled {
		in, restore, err := keyboard.RawStdin()
		if err != nil {
			slog.Error("failed to open keyboard", "err", err)
			return 1
		}
		defer restore()
		opts = append(opts, app.WithKeyboard(in))
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(os.Stdout, cfg)

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch > 0 {
		w, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.Diff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			application.Reconfigure(d)
		}, config.WithInterval(*watch))
		if err != nil {
			slog.Warn("config reload disabled", "err", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("config watcher stopped", "err", err)
				}
			}()
		}
	}

	slog.Info("device ready, press Ctrl+C to shut down", "device_id", application.DeviceID())

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")

	code := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		code = 1
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        Sightwear startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	p := cfg.Providers
	printProvider(w, "STT", p.STT.Name, p.STT.Model)
	printProvider(w, "TTS", p.TTS.Name, p.TTS.Model)
	printProvider(w, "Translate", p.Translate.Name, "")
	printProvider(w, "Embeddings", p.Embeddings.Name, p.Embeddings.Model)
	printProvider(w, "LLM", p.LLM.Name, p.LLM.Model)
	printProvider(w, "Describe", p.Describe.Name, p.Describe.Model)
	printProvider(w, "OCR", p.OCR.Name, "")
	printProvider(w, "Currency", p.Currency.Name, "")
	printProvider(w, "Geo", p.Geo.Name, "")
	printProvider(w, "VAD", p.VAD.Name, "")
	printSwitch(w, "Camera", cfg.Camera.Enabled, fmt.Sprint(cfg.Camera.Device))
	printSwitch(w, "Peripheral", cfg.Peripheral.Enabled, cfg.Peripheral.ListenAddr)
	printSwitch(w, "Wake word", cfg.WakeWord.Enabled, cfg.WakeWord.ListenAddr)
	printSwitch(w, "Vision", cfg.Vision.Enabled, "on")
	printSwitch(w, "Guardian", cfg.Guardian.Enabled, "on")
	printSwitch(w, "Keyboard", cfg.Keyboard.Enabled, "on")
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", "Store", string(cfg.Store.Backend))
	if cfg.Server.OpsAddr != "" {
		fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", "Ops addr", cfg.Server.OpsAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(w, kind, value)
}

func printSwitch(w io.Writer, name string, enabled bool, detail string) {
	if !enabled {
		detail = "(disabled)"
	}
	printRow(w, name, detail)
}

func printRow(w io.Writer, key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes to stderr and, when a path is configured, to a rotating
// file. The returned func closes the file.
func newLogger(file config.LogFileConfig, level *slog.LevelVar) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: level}
	if file.Path == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}
	}
	rotator := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   true,
	}
	w := io.MultiWriter(os.Stderr, rotator)
	return slog.New(slog.NewTextHandler(w, opts)), func() { rotator.Close() }
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
