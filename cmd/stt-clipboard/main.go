// Command stt-clipboard is the offline dictation daemon: it waits for trigger
// events on a Unix socket, records one utterance from the microphone, runs
// whisper locally, and places the formatted text on the clipboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/christopherlouet/stt-clipboard/internal/capture"
	"github.com/christopherlouet/stt-clipboard/internal/clipboard"
	"github.com/christopherlouet/stt-clipboard/internal/config"
	"github.com/christopherlouet/stt-clipboard/internal/coordinator"
	"github.com/christopherlouet/stt-clipboard/internal/health"
	"github.com/christopherlouet/stt-clipboard/internal/history"
	"github.com/christopherlouet/stt-clipboard/internal/notify"
	"github.com/christopherlouet/stt-clipboard/internal/observe"
	"github.com/christopherlouet/stt-clipboard/internal/punct"
	"github.com/christopherlouet/stt-clipboard/internal/recorder"
	"github.com/christopherlouet/stt-clipboard/internal/trigger"
	"github.com/christopherlouet/stt-clipboard/pkg/stt"
	"github.com/christopherlouet/stt-clipboard/pkg/stt/whisper"
	"github.com/christopherlouet/stt-clipboard/pkg/vad"
	"github.com/christopherlouet/stt-clipboard/pkg/vad/energy"
	"github.com/christopherlouet/stt-clipboard/pkg/vad/silero"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mode := flag.String("mode", "daemon", "run mode: daemon (serve triggers) or oneshot (one copy, then exit)")
	logLevel := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	flag.Parse()

	if *mode != "daemon" && *mode != "oneshot" {
		fmt.Fprintf(os.Stderr, "stt-clipboard: unknown mode %q\n", *mode)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "stt-clipboard: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "stt-clipboard: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		lvl := config.LogLevel(*logLevel)
		if !lvl.IsValid() {
			fmt.Fprintf(os.Stderr, "stt-clipboard: invalid log level %q\n", *logLevel)
			return 1
		}
		cfg.Server.LogLevel = lvl
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("stt-clipboard starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Voice activity gate ───────────────────────────────────────────────────
	gate, err := buildGate(cfg)
	if err != nil {
		slog.Error("failed to initialise voice activity detection", "err", err)
		return 1
	}
	defer gate.Close()

	// ── Transcriber ───────────────────────────────────────────────────────────
	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		slog.Error("failed to load whisper model", "err", err, "model", cfg.Transcription.ModelPath)
		return 1
	}
	defer transcriber.Close()
	slog.Info("whisper model loaded", "model", cfg.Transcription.ModelPath)

	// ── Recorder ──────────────────────────────────────────────────────────────
	ffmpegCmd := cfg.Audio.FFmpegPath
	if ffmpegCmd == "" {
		ffmpegCmd = "ffmpeg"
	}
	rec := recorder.New(capture.NewFFmpegSource(ffmpegCmd), gate, recorder.Config{
		SampleRate:        cfg.Audio.SampleRate,
		BlockSize:         cfg.Audio.BlockSize,
		Threshold:         cfg.VAD.Threshold,
		PreRoll:           cfg.Recording.PreRoll.Std(),
		SilenceDuration:   cfg.Recording.SilenceDuration.Std(),
		MinSpeechDuration: cfg.Recording.MinSpeechDuration.Std(),
		MaxDuration:       cfg.Recording.MaxDuration.Std(),
		InputFormat:       cfg.Audio.InputFormat,
		InputDevice:       cfg.Audio.InputDevice,
	}, recorder.WithLogger(logger))

	// ── Clipboard ─────────────────────────────────────────────────────────────
	session := clipboard.DetectSession()
	copier, err := clipboard.NewManager(session,
		clipboard.WithTimeout(cfg.Clipboard.Timeout.Std()),
		clipboard.WithRetries(cfg.Clipboard.Retries),
		clipboard.WithBackoffBase(cfg.Clipboard.BackoffBase.Std()),
		clipboard.WithLogger(logger),
	)
	if err != nil {
		slog.Error("no clipboard tool available", "err", err, "session", session.String())
		return 1
	}
	slog.Info("clipboard ready", "session", session.String(), "tool", copier.Tool())

	var paster coordinator.Paster
	if cfg.Paste.Enabled {
		p, err := clipboard.NewPaster(session,
			clipboard.WithPasteTimeout(cfg.Paste.Timeout.Std()),
			clipboard.WithPasteLogger(logger),
		)
		if err != nil {
			slog.Warn("no paste tool available, paste triggers degrade to copy", "err", err)
		} else {
			paster = p
		}
	}

	// ── Optional collaborators ────────────────────────────────────────────────
	var notifier coordinator.Notifier
	if cfg.Notifications.Enabled {
		notifier = notify.New(
			notify.WithExpiry(cfg.Notifications.Expiry.Std()),
			notify.WithLogger(logger),
		)
	}

	var hist coordinator.HistorySink
	if cfg.History.Enabled {
		store, err := history.Open(historyPath(cfg),
			history.WithMaxEntries(cfg.History.MaxEntries),
			history.WithLogger(logger),
		)
		if err != nil {
			slog.Error("failed to open history store", "err", err)
			return 1
		}
		hist = store
	}

	var formatter coordinator.Formatter
	if cfg.Punctuation.Enabled {
		formatter = punct.New(punct.WithFrenchSpacing(cfg.Punctuation.FrenchSpacing))
	}

	// ── Coordinator ───────────────────────────────────────────────────────────
	coord, err := coordinator.New(coordinator.Deps{
		Recorder:    rec,
		Transcriber: transcriber,
		Copier:      copier,
		Formatter:   formatter,
		Paster:      paster,
		Notifier:    notifier,
		History:     hist,
		Metrics:     metrics,
		Logger:      logger,
	}, coordinator.Config{
		SampleRate:   cfg.Audio.SampleRate,
		Warmup:       cfg.Transcription.Warmup,
		PasteEnabled: cfg.Paste.Enabled,
		PasteDelay:   cfg.Paste.Delay.Std(),
	})
	if err != nil {
		slog.Error("failed to build coordinator", "err", err)
		return 1
	}
	if err := coord.Initialize(ctx); err != nil {
		slog.Error("worker initialisation failed", "err", err)
		return 1
	}
	defer coord.Close()

	// ── Oneshot mode ──────────────────────────────────────────────────────────
	if *mode == "oneshot" {
		return runOneshot(ctx, coord)
	}

	// ── Trigger socket ────────────────────────────────────────────────────────
	sockPath := socketPath(cfg)
	server := trigger.NewServer(sockPath, triggerHandler(coord), trigger.WithLogger(logger))
	if err := server.Listen(); err != nil {
		slog.Error("failed to bind trigger socket", "err", err)
		return 1
	}
	defer server.Close()

	printStartupSummary(cfg, session, copier.Tool(), sockPath)

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })
	if cfg.Server.HTTPAddr != "" {
		g.Go(func() error { return serveHTTP(gctx, cfg.Server.HTTPAddr, metrics, coord, sockPath) })
	}

	slog.Info("daemon ready, press Ctrl+C to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runOneshot records and copies a single utterance without binding the
// trigger socket. Useful for trying out a model or scripting without the
// daemon.
func runOneshot(ctx context.Context, coord *coordinator.Coordinator) int {
	out, err := coord.Handle(ctx, trigger.EventCopy)
	if err != nil {
		slog.Error("oneshot failed", "err", err)
		return 1
	}
	if out.NoSpeech {
		slog.Info("no speech detected")
		return 2
	}
	fmt.Println(out.Text)
	return 0
}

// buildGate constructs the configured voice activity backend.
func buildGate(cfg *config.Config) (vad.Gate, error) {
	switch cfg.VAD.Engine {
	case config.VADEnergy:
		var opts []energy.Option
		if cfg.VAD.EnergyFloor > 0 {
			opts = append(opts, energy.WithFloor(cfg.VAD.EnergyFloor))
		}
		if cfg.VAD.EnergyCeiling > 0 {
			opts = append(opts, energy.WithCeiling(cfg.VAD.EnergyCeiling))
		}
		return energy.New(opts...), nil
	default:
		var opts []silero.Option
		if cfg.VAD.ORTLibrary != "" {
			opts = append(opts, silero.WithLibraryPath(cfg.VAD.ORTLibrary))
		}
		return silero.New(cfg.VAD.ModelPath, opts...)
	}
}

// buildTranscriber loads the whisper model with the configured tuning.
func buildTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	var opts []whisper.Option
	if cfg.Transcription.Language != "" {
		opts = append(opts, whisper.WithLanguage(cfg.Transcription.Language))
	}
	if cfg.Transcription.Threads > 0 {
		opts = append(opts, whisper.WithThreads(uint(cfg.Transcription.Threads)))
	}
	return whisper.New(cfg.Transcription.ModelPath, opts...)
}

// triggerHandler maps coordinator outcomes onto wire replies.
func triggerHandler(coord *coordinator.Coordinator) trigger.Handler {
	return func(ctx context.Context, event trigger.Event) string {
		out, err := coord.Handle(ctx, event)
		switch {
		case errors.Is(err, coordinator.ErrBusy):
			return trigger.ReplyBusy
		case errors.Is(err, coordinator.ErrNotReady):
			return trigger.ReplyError + ": worker not ready"
		case errors.Is(err, coordinator.ErrNoSession):
			return trigger.ReplyError + ": no continuous session active"
		case err != nil:
			slog.Error("trigger failed", "event", event.String(), "err", err)
			return trigger.ReplyError + ": " + err.Error()
		case out.NoSpeech:
			return trigger.ReplyNoSpeech
		default:
			return trigger.ReplyOK
		}
	}
}

// serveHTTP runs the loopback observability endpoint until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, metrics *observe.Metrics, coord *coordinator.Coordinator, sockPath string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(
		health.Checker{Name: "worker", Check: func(context.Context) error { return coord.Ready() }},
		health.Checker{Name: "trigger_socket", Check: func(context.Context) error {
			_, err := os.Stat(sockPath)
			return err
		}},
	).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("http endpoint listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// socketPath resolves the trigger socket location, defaulting to a per-user
// runtime directory.
func socketPath(cfg *config.Config) string {
	if cfg.Trigger.SocketPath != "" {
		return cfg.Trigger.SocketPath
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "stt-clipboard", "trigger.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("stt-clipboard-%d", os.Getuid()), "trigger.sock")
}

// historyPath resolves the history file location, defaulting to the user data
// directory.
func historyPath(cfg *config.Config) string {
	if cfg.History.Path != "" {
		return cfg.History.Path
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "stt-clipboard", "history.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "stt-clipboard-history.json")
	}
	return filepath.Join(home, ".local", "share", "stt-clipboard", "history.json")
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, session clipboard.SessionType, tool, sockPath string) {
	fmt.Println("╔═══════════════════════════════════════════════════╗")
	fmt.Println("║          stt-clipboard — startup summary          ║")
	fmt.Println("╠═══════════════════════════════════════════════════╣")
	printRow("Whisper model", filepath.Base(cfg.Transcription.ModelPath))
	printRow("Language", orDefault(cfg.Transcription.Language, "auto-detect"))
	printRow("VAD engine", string(cfg.VAD.Engine))
	printRow("Session", session.String())
	printRow("Clipboard tool", tool)
	printRow("Auto-paste", onOff(cfg.Paste.Enabled))
	printRow("Punctuation", onOff(cfg.Punctuation.Enabled))
	printRow("History", onOff(cfg.History.Enabled))
	printRow("Trigger socket", sockPath)
	if cfg.Server.HTTPAddr != "" {
		printRow("HTTP endpoint", cfg.Server.HTTPAddr)
	}
	fmt.Println("╚═══════════════════════════════════════════════════╝")
}

func printRow(name, value string) {
	if len(value) > 31 {
		value = "…" + value[len(value)-30:]
	}
	fmt.Printf("║  %-15s : %-31s ║\n", name, value)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
