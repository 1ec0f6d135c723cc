// Command mosheng is the MoSheng dictation daemon: speaker-verified local
// voice-to-text behind a loopback HTTP/WebSocket API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bensenx/MoSheng/internal/config"
	"github.com/bensenx/MoSheng/internal/enroll"
	"github.com/bensenx/MoSheng/internal/observe"
	"github.com/bensenx/MoSheng/internal/pipeline"
	"github.com/bensenx/MoSheng/internal/server"
	"github.com/bensenx/MoSheng/internal/textproc"
	"github.com/bensenx/MoSheng/internal/verify"
	"github.com/bensenx/MoSheng/pkg/provider/speaker/httpenc"
	"github.com/bensenx/MoSheng/pkg/provider/stt/whisper"
	"github.com/bensenx/MoSheng/pkg/provider/vad/energy"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mosheng: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mosheng: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("mosheng starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Observability first so every later component records metrics.
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "mosheng",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise observability", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// Speaker verifier. The encoder model is loaded eagerly; a sidecar that
	// is down at startup is not fatal since verification fails open.
	opener := httpenc.NewOpener(httpenc.WithBaseURL(cfg.Verification.EncoderURL))
	verifier := verify.New(opener)
	if err := verifier.SetThresholds(cfg.Verification.Thresholds); err != nil {
		slog.Error("invalid thresholds", "err", err)
		return 1
	}
	if cfg.Verification.VerificationEnabled() {
		if err := verifier.LoadModel(ctx); err != nil {
			slog.Warn("encoder model not available, dictation starts unfiltered", "err", err)
		}
	}
	defer func() {
		if err := verifier.UnloadModel(); err != nil {
			slog.Warn("encoder unload error", "err", err)
		}
	}()

	// Enrollment store.
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise enrollment store", "err", err)
		return 1
	}
	defer closeStore()

	// Activate a persisted enrollment so the first utterance is filtered.
	if centroid, err := store.LoadCentroid(ctx); err == nil {
		verifier.SetCentroid(centroid)
		slog.Info("enrollment loaded", "state", verifier.CurrentState())
	} else if !errors.Is(err, enroll.ErrNoEnrollment) {
		slog.Warn("failed to load enrollment", "err", err)
	}

	managerOpts := []enroll.ManagerOption{}
	if cfg.Enrollment.SampleCount > 0 {
		managerOpts = append(managerOpts, enroll.WithSampleCount(cfg.Enrollment.SampleCount))
	}
	manager := enroll.NewManager(verifier, store, managerOpts...)

	// Transcriber.
	transcriber, err := whisper.New(cfg.STT.ModelPath, whisper.WithLanguage(cfg.STT.Language))
	if err != nil {
		slog.Error("failed to load whisper model", "path", cfg.STT.ModelPath, "err", err)
		return 1
	}
	defer func() {
		if err := transcriber.Close(); err != nil {
			slog.Warn("whisper close error", "err", err)
		}
	}()
	slog.Info("whisper model loaded", "path", cfg.STT.ModelPath, "language", cfg.STT.Language)

	// Text post-processing.
	processor := textproc.NewProcessor(textproc.Options{
		RemoveFillers:    cfg.Text.RemoveFillersEnabled(),
		SmartPunctuation: cfg.Text.SmartPunctuationEnabled(),
	})
	var vocab *textproc.Vocabulary
	if cfg.Text.VocabularyPath != "" {
		vocab, err = textproc.LoadVocabulary(cfg.Text.VocabularyPath)
		if err != nil {
			slog.Error("failed to load vocabulary", "path", cfg.Text.VocabularyPath, "err", err)
			return 1
		}
		slog.Info("vocabulary loaded", "path", cfg.Text.VocabularyPath, "terms", vocab.Len())
	}

	// Pipeline.
	guard := pipeline.NewGuard(verifier, metrics)
	pipeOpts := []pipeline.Option{
		pipeline.WithMetrics(metrics),
		pipeline.WithMinDuration(time.Duration(cfg.Audio.MinDurationSeconds * float64(time.Second))),
	}
	if cfg.Audio.VADEnabled() {
		var vadOpts []energy.Option
		if cfg.Audio.VAD.Threshold > 0 {
			vadOpts = append(vadOpts, energy.WithThreshold(cfg.Audio.VAD.Threshold))
		}
		pipeOpts = append(pipeOpts, pipeline.WithDetector(energy.New(vadOpts...)))
	}
	if vocab != nil {
		pipeOpts = append(pipeOpts, pipeline.WithVocabulary(vocab))
	}
	pipe := pipeline.New(guard, transcriber, processor, pipeOpts...)

	// Hot-reload thresholds from the config file.
	watcher, err := config.NewWatcher(*configPath, func(_, cur *config.Config) {
		if err := verifier.SetThresholds(cur.Verification.Thresholds); err != nil {
			slog.Warn("reloaded thresholds rejected, keeping previous", "err", err)
			return
		}
		slog.Info("thresholds updated",
			"threshold", cur.Verification.Thresholds.Accept,
			"high", cur.Verification.Thresholds.High,
			"low", cur.Verification.Thresholds.Low,
		)
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	srv := server.New(cfg.Server.ListenAddr, verifier, manager, pipe, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("shutdown signal received, stopping")
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("mosheng ready", "addr", cfg.Server.ListenAddr)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildStore selects the enrollment store backend from config.
func buildStore(ctx context.Context, cfg *config.Config) (enroll.Store, func(), error) {
	switch cfg.Enrollment.Store {
	case config.StorePostgres:
		pg, err := enroll.NewPGStore(ctx, cfg.Enrollment.PostgresDSN, cfg.Verification.EmbeddingDimensions)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		dir := cfg.Enrollment.DataDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, fmt.Errorf("resolve home directory: %w", err)
			}
			dir = filepath.Join(home, ".mosheng")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		return enroll.NewFileStore(dir), func() {}, nil
	}
}
