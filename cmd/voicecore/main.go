package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/centavohq/voicecore/pkg/audio"
	"github.com/centavohq/voicecore/pkg/audio/miniaudio"
	"github.com/centavohq/voicecore/pkg/audio/portaudio"
	"github.com/centavohq/voicecore/pkg/finance"
	"github.com/centavohq/voicecore/pkg/logging"
	"github.com/centavohq/voicecore/pkg/metrics"
	"github.com/centavohq/voicecore/pkg/playback"
	"github.com/centavohq/voicecore/pkg/realtime"
	"github.com/centavohq/voicecore/pkg/resilience"
	"github.com/centavohq/voicecore/pkg/runner"
	"github.com/centavohq/voicecore/pkg/tools"
	"github.com/centavohq/voicecore/pkg/transcript"
	"github.com/centavohq/voicecore/pkg/turn"
	"github.com/centavohq/voicecore/pkg/voicecore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := voicecore.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.Init(cfg.LogLevel, cfg.LogFormat)

	collab := buildCollaborator(cfg)
	registry := tools.NewRegistry()
	if err := tools.RegisterFinanceTools(registry, collab); err != nil {
		log.Error("tool_registration_failed", "error", err)
		os.Exit(1)
	}
	dispatcher := tools.NewDispatcher(registry,
		time.Duration(cfg.Tools.TimeoutMS)*time.Millisecond, log)

	client := realtime.NewClient(realtime.Config{
		URL:          cfg.Backend.URL,
		Token:        cfg.Backend.Token,
		Voice:        cfg.Backend.Voice,
		Instructions: cfg.Backend.Instructions,
		SampleRate:   cfg.Backend.SampleRate,
		VAD: realtime.VADConfig{
			Threshold:         cfg.Backend.VAD.Threshold,
			PrefixPaddingMS:   cfg.Backend.VAD.PrefixPaddingMS,
			SilenceDurationMS: cfg.Backend.VAD.SilenceDurationMS,
		},
		Tools:            registry.Definitions(),
		HandshakeTimeout: time.Duration(cfg.Backend.HandshakeTimeoutMS) * time.Millisecond,
	}, log)

	captureDevice, playbackDevice := buildDevices(cfg)
	capture := audio.NewCapture(captureDevice, audio.CaptureConfig{
		SampleRate:       cfg.Backend.SampleRate,
		SilenceThreshold: int16(cfg.Audio.SilenceThreshold),
	}, log)
	queue := playback.NewQueue(playbackDevice, log)

	observer, closeObserver := buildObserver(cfg, log)
	defer closeObserver()

	engine, err := voicecore.NewEngine(cfg, voicecore.Deps{
		Transport:  client,
		Player:     queue,
		Recorder:   capture,
		Dispatcher: dispatcher,
		Listener:   consoleListener{},
		Observer:   observer,
		Log:        log,
	})
	if err != nil {
		log.Error("engine_init_failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	life := runner.NewLifecycleRunner(drainFunc(engine.Disconnect), runner.Hooks{
		OnStart: func() {
			connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
			defer connectCancel()
			if err := engine.Connect(connectCtx); err != nil {
				log.Error("connect_failed", "error", err)
				cancel()
				return
			}
			if err := engine.StartConversation(); err != nil {
				log.Error("microphone_start_failed", "error", err)
				cancel()
				return
			}
			log.Info("conversation_started", "environment", cfg.Environment)
		},
	}, 10*time.Second)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown_signal")
		cancel()
	}()

	if err := life.Run(ctx); err != nil {
		log.Error("shutdown_incomplete", "error", err)
		os.Exit(1)
	}
}

type drainFunc func() error

func (f drainFunc) Drain() error { return f() }

func buildCollaborator(cfg voicecore.Config) finance.Collaborator {
	if cfg.Finance.BaseURL == "" {
		return finance.NewStaticDemo()
	}
	retry := resilience.NewRetryPolicy(cfg.Finance.Retries,
		time.Duration(cfg.Finance.RetryBackoffMS)*time.Millisecond)
	return finance.NewHTTPClient(cfg.Finance.BaseURL, cfg.Finance.APIToken, retry)
}

func buildDevices(cfg voicecore.Config) (audio.CaptureDevice, audio.PlaybackDevice) {
	switch cfg.Audio.Backend {
	case "miniaudio":
		return miniaudio.NewCaptureClient(cfg.Backend.SampleRate),
			miniaudio.NewPlaybackClient(cfg.Backend.SampleRate)
	default:
		return portaudio.NewCaptureClient(cfg.Backend.SampleRate, cfg.Audio.BlockSize),
			portaudio.NewPlaybackClient(cfg.Backend.SampleRate, cfg.Audio.BlockSize)
	}
}

func buildObserver(cfg voicecore.Config, log *slog.Logger) (metrics.Observer, func()) {
	if cfg.Observability.ArtifactsDir == "" {
		return metrics.NoopObserver{}, func() {}
	}
	if err := os.MkdirAll(cfg.Observability.ArtifactsDir, 0o755); err != nil {
		log.Warn("artifacts_dir_unavailable", "error", err)
		return metrics.NoopObserver{}, func() {}
	}
	path := filepath.Join(cfg.Observability.ArtifactsDir,
		fmt.Sprintf("metrics-%s.jsonl", time.Now().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		log.Warn("metrics_file_unavailable", "error", err)
		return metrics.NoopObserver{}, func() {}
	}
	async := metrics.NewAsyncObserver(metrics.NewJSONLObserver(f), 256)
	return async, func() {
		async.Close()
		_ = f.Close()
	}
}

// consoleListener mirrors the conversation to stdout.
type consoleListener struct{}

func (consoleListener) OnStateChange(change turn.StateChange) {
	fmt.Printf("[%s]\n", change.ToState)
}

func (consoleListener) OnTranscript(entry transcript.Entry) {
	if !entry.Final {
		return
	}
	fmt.Printf("%s: %s\n", entry.Role, entry.Text)
}

func (consoleListener) OnNotice(level slog.Level, message string) {
	fmt.Printf("!! %s\n", message)
}
