// ABOUTME: Entry point for the Ashama live voice assistant
// ABOUTME: Parses CLI flags, wires the services and runs the voice overlay
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/app"
	"github.com/Ashama-AI/ashama-go/internal/config"
	"github.com/Ashama-AI/ashama-go/internal/device"
	"github.com/Ashama-AI/ashama-go/internal/gemini"
	"github.com/Ashama-AI/ashama-go/internal/live"
	"github.com/Ashama-AI/ashama-go/internal/logging"
	"github.com/Ashama-AI/ashama-go/internal/overlay"
	"github.com/Ashama-AI/ashama-go/internal/persona"
	"github.com/Ashama-AI/ashama-go/internal/transcript"
	"github.com/Ashama-AI/ashama-go/internal/ui"
	"github.com/Ashama-AI/ashama-go/internal/version"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configPath  = flag.String("config", "", "Config file path (default: user config dir)")
	logFile     = flag.String("log-file", "", "Log file path (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	voice       = flag.String("voice", "", "Prebuilt voice for the assistant")
	newChat     = flag.Bool("new", false, "Start a new conversation instead of continuing the latest")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs  = flag.Bool("stream-logs", false, "Alias for -no-tui")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	useTUI := !(*noTUI || *streamLogs)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg)

	logger, err := logging.New(cfg.Logging, !useTUI)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger.SugaredLogger, useTUI); err != nil {
		logger.Errorw("Exited with error", "error", err)
		logger.Close()
		log.Fatalf("%v", err)
	}
}

func applyFlags(cfg *config.Config) {
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *voice != "" {
		cfg.Gemini.Voice = *voice
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, useTUI bool) error {
	services, err := app.Initialize(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := services.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("Shutdown failed", "error", err)
		}
	}()

	if *newChat {
		if _, err := services.StartConversation(ctx); err != nil {
			return err
		}
	}
	greet(ctx, services, logger)

	speaker, err := device.NewSpeaker(cfg.Audio.PlaybackRate, logger.Named("speaker"))
	if err != nil {
		return fmt.Errorf("failed to open speaker: %w", err)
	}

	mics := device.MicrophoneSource{Logger: logger.Named("mic")}
	microphone := overlay.MicrophoneFunc(func(ctx context.Context, rate int, onSamples func([]float32)) (overlay.Microphone, error) {
		mic, err := mics.Open(ctx, rate, onSamples)
		if err != nil {
			return nil, err
		}
		return mic, nil
	})

	dialer := gemini.NewDialer(gemini.Config{
		Endpoint: cfg.Gemini.Endpoint,
		APIKey:   cfg.Gemini.APIKey,
		Logger:   logger.Named("gemini"),
		Metrics:  services.Metrics,
	})

	actions := ui.NewActions()
	var prog *tea.Program
	if useTUI {
		prog = ui.New(actions)
	}

	controller := overlay.New(overlay.Config{
		Dialer: dialer,
		Session: live.Config{
			Model:               cfg.Gemini.LiveModel,
			SystemInstruction:   persona.LiveInstruction,
			Voice:               cfg.Gemini.Voice,
			InputTranscription:  true,
			OutputTranscription: true,
		},
		Speaker:      speaker,
		Microphone:   microphone,
		CaptureRate:  cfg.Audio.CaptureRate,
		Threshold:    cfg.Audio.Threshold,
		FlushOnClose: cfg.Audio.FlushOnClose,
		OnChange: func(snap overlay.Snapshot) {
			if prog != nil {
				prog.Send(ui.StatusMsg{Snapshot: snap})
				return
			}
			if snap.Error != "" {
				logger.Warnw("Session error", "category", snap.ErrorCategory, "message", snap.Error)
				return
			}
			logger.Infow("Status", "state", snap.State.String(), "status", snap.Status)
		},
		OnMessage: func(msg transcript.Message) {
			storeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := services.RecordVoice(storeCtx, msg); err != nil {
				logger.Warnw("Failed to store transcript", "error", err)
			}
			if prog != nil {
				prog.Send(ui.TranscriptMsg{Role: msg.Role, Content: msg.Content})
				return
			}
			logger.Infow("Transcript", "role", msg.Role, "content", msg.Content)
		},
		Logger:  logger.Named("overlay"),
		Metrics: services.Metrics,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			logger.Infow("Serving metrics", "addr", cfg.Metrics.Addr)
			return services.Metrics.Serve(gctx, cfg.Metrics.Addr)
		})
	}

	if err := controller.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-actions.Close:
				controller.Close()
			case <-actions.Retry:
				if err := controller.Retry(gctx); err != nil {
					logger.Warnw("Retry ignored", "error", err)
				}
			case v := <-actions.Volume:
				speaker.SetVolume(float64(v) / 100)
			case <-controller.Done():
				if prog != nil {
					prog.Quit()
				}
				return nil
			case <-gctx.Done():
				controller.Close()
				if prog != nil {
					prog.Quit()
				}
				return nil
			}
		}
	})

	if prog != nil {
		g.Go(func() error {
			_, err := prog.Run()
			controller.Close()
			return err
		})
	}

	return g.Wait()
}

// greet logs the persona greeting for the session start
func greet(ctx context.Context, services *app.Services, logger *zap.SugaredLogger) {
	returning, err := services.Persona.IsReturningUser(ctx)
	if err != nil {
		logger.Warnw("Failed to read preferences", "error", err)
		return
	}
	var msg string
	if returning {
		msg, err = services.Persona.WelcomeBack(ctx)
	} else {
		msg, err = services.Persona.Greeting(ctx)
	}
	if err != nil {
		logger.Warnw("Failed to build greeting", "error", err)
		return
	}
	logger.Infow("Greeting", "message", msg)
}
