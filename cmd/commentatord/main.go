package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pitchside/commentary-engine/internal/audio"
	"github.com/pitchside/commentary-engine/internal/config"
	"github.com/pitchside/commentary-engine/internal/engine"
	"github.com/pitchside/commentary-engine/internal/events"
	"github.com/pitchside/commentary-engine/internal/history"
	"github.com/pitchside/commentary-engine/internal/observability"
	"github.com/pitchside/commentary-engine/internal/state"
	"github.com/pitchside/commentary-engine/internal/stream"
	"github.com/pitchside/commentary-engine/internal/tts"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit codes: 0 normal shutdown, 1 unrecoverable config error, 2 audio
// device initialization failure.
const (
	exitOK          = 0
	exitConfigError = 1
	exitAudioError  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitConfigError
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("api_base_url", cfg.APIBaseURL).
		Int("sample_rate", cfg.SampleRate).
		Str("log_level", cfg.LogLevel).
		Bool("save_audio", cfg.SaveAudio).
		Msg("Commentary engine starting")

	// Durable checkpoint store
	store, err := state.NewFileStore(cfg.StatePath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize state store")
		return exitConfigError
	}
	queue := events.NewQueue(store)

	// Ambience bed: a missing asset degrades to a silent channel
	ambience, err := audio.LoadAmbience(cfg.AmbiencePath, cfg.SampleRate)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.AmbiencePath).Msg("Ambience unavailable, running silent")
	}

	ducking := audio.NewDucking(cfg.NominalAmbienceGain, cfg.DuckedAmbienceGain, cfg.DuckRampMs, cfg.SampleRate)
	mixer := audio.NewMixer(ambience, ducking, cfg.SaveAudio, observability.ComponentLogger("mixer"))

	// The device pulls blocks from the mixer on the audio subsystem's
	// thread; failure to open it is fatal before the queue starts.
	device, err := audio.OpenDevice(cfg.SampleRate, mixer)
	if err != nil {
		logger.Error().Err(err).Msg("Audio device initialization failed")
		return exitAudioError
	}
	device.Start()
	logger.Info().Msg("Audio engine started, ambience playing")

	// Best-effort audio history sink
	var sink *history.Sink
	if cfg.SaveAudio {
		db, err := history.OpenDB(cfg.HistoryDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("History database unavailable, rows disabled")
		}
		sink, err = history.NewSink(cfg.AudioHistoryDir, cfg.SampleRate, db, observability.ComponentLogger("history"))
		if err != nil {
			logger.Warn().Err(err).Msg("Audio history sink unavailable, saving disabled")
			sink = nil
		}
	}

	synth := tts.NewClient(tts.ClientOptions{
		APIKey:     cfg.TTSAPIKey,
		BaseURL:    cfg.TTSBaseURL,
		VoiceID:    cfg.TTSVoiceID,
		ModelID:    cfg.TTSModelID,
		SampleRate: cfg.SampleRate,
		Timeout:    cfg.TTSTimeout(),
	}, observability.ComponentLogger("tts"))

	api := stream.NewAPIClient(cfg.APIBaseURL, observability.ComponentLogger("api"))
	orch := engine.New(cfg, queue, mixer, synth, api, sink, observability.ComponentLogger("orchestrator"))

	// Metrics and health HTTP server
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", observability.HealthCheckHandler())
		mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
			"audio_device": func(ctx context.Context) (bool, error) {
				if !device.Playing() {
					return false, fmt.Errorf("output stream not running")
				}
				return true, nil
			},
			"push_stream": func(ctx context.Context) (bool, error) {
				if s := orch.StreamStatus(); s != stream.StatusConnected {
					return false, fmt.Errorf("stream status %s", s)
				}
				return true, nil
			},
		}))

		metricsServer = &http.Server{
			Addr:         ":" + cfg.MetricsPort,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info().Str("port", cfg.MetricsPort).Msg("Metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	orchDone := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(orchDone)
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")

	// Ordered shutdown: stop admitting, unwind the consumer, close the
	// device, then flush the history queue with a hard deadline.
	queue.Close()
	cancel()
	select {
	case <-orchDone:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("Orchestrator did not stop in time")
	}

	mixer.Close()
	if err := device.Close(); err != nil {
		logger.Warn().Err(err).Msg("Audio device close failed")
	}

	if sink != nil {
		sink.Close(2 * time.Second)
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("Shutdown complete")
	return exitOK
}
