// ABOUTME: One-shot command line client for text, quiz, story and video requests
// ABOUTME: Answers are stored in the same conversation history as voice sessions
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/app"
	"github.com/Ashama-AI/ashama-go/internal/chat"
	"github.com/Ashama-AI/ashama-go/internal/config"
	"github.com/Ashama-AI/ashama-go/internal/device"
	"github.com/Ashama-AI/ashama-go/internal/logging"
	"github.com/Ashama-AI/ashama-go/internal/playback"
	"github.com/Ashama-AI/ashama-go/pkg/audio"
)

var (
	configPath = flag.String("config", "", "Config file path (default: user config dir)")
	ask        = flag.String("ask", "", "Ask a question")
	imagePath  = flag.String("image", "", "JPEG image to attach to -ask")
	imageOut   = flag.String("image-out", "ashama.png", "Where to save a generated image")
	quiz       = flag.String("quiz", "", "Take a five question quiz on a topic")
	story      = flag.String("story", "", "Play a narrated story about a topic")
	video      = flag.String("video", "", "Generate a video from a description")
	newChat    = flag.Bool("new", false, "Start a new conversation")
	clearCache = flag.Bool("clear-cache", false, "Remove cached answers and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging, false)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Initialize(ctx, cfg, logger.SugaredLogger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer services.Shutdown(context.Background())

	if err := run(ctx, services); err != nil {
		logger.Errorw("Request failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		services.Shutdown(context.Background())
		logger.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, s *app.Services) error {
	if *newChat {
		if _, err := s.StartConversation(ctx); err != nil {
			return err
		}
	}

	switch {
	case *clearCache:
		return s.Cache.ClearAll(ctx)
	case *ask != "":
		return runAsk(ctx, s, *ask)
	case *quiz != "":
		return runQuiz(ctx, s, *quiz, os.Stdin, os.Stdout)
	case *story != "":
		return runStory(ctx, s, *story)
	case *video != "":
		return runVideo(ctx, s, *video)
	}

	greeting, err := s.Persona.Greeting(ctx)
	if err != nil {
		return err
	}
	fmt.Println(greeting)
	flag.Usage()
	return nil
}

func runAsk(ctx context.Context, s *app.Services, prompt string) error {
	if *imagePath != "" {
		return askWithImage(ctx, s, prompt, *imagePath)
	}

	res, err := s.Ask(ctx, prompt)
	if err != nil && !chat.IsKind(err, chat.KindNetwork) {
		return err
	}
	printResult(res)
	return saveImage(res)
}

// askWithImage sends an attached picture. Attachments are not kept in the
// conversation history, only the exchange text is.
func askWithImage(ctx context.Context, s *app.Services, prompt, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	res, err := s.Chat.Respond(ctx, chat.Request{Prompt: prompt, Image: data})
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func printResult(res chat.Result) {
	fmt.Println(res.Text)
	for _, src := range res.Sources {
		fmt.Printf("  - %s <%s>\n", src.Title, src.URI)
	}
	for _, src := range res.Maps {
		fmt.Printf("  * %s <%s>\n", src.Title, src.URI)
	}
}

func saveImage(res chat.Result) error {
	if len(res.Image) == 0 {
		return nil
	}
	if err := os.WriteFile(*imageOut, res.Image, 0o644); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	fmt.Printf("Fakkii: %s\n", *imageOut)
	return nil
}

func runQuiz(ctx context.Context, s *app.Services, topic string, in io.Reader, out io.Writer) error {
	questions, err := s.Chat.GenerateQuiz(ctx, topic)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(in)
	score := 0
	for i, q := range questions {
		fmt.Fprintf(out, "\n%d. %s\n", i+1, q.Question)
		for j, opt := range q.Options {
			fmt.Fprintf(out, "   %d) %s\n", j+1, opt)
		}
		fmt.Fprint(out, "> ")

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			break
		}
		choice, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr == nil && q.Correct(choice-1) {
			score++
			fmt.Fprintln(out, "Sirrii!")
		} else {
			fmt.Fprintf(out, "Dogoggora. Deebiin sirriin: %s\n", q.Options[q.Answer])
		}
	}
	fmt.Fprintf(out, "\nQabxii: %d/%d\n", score, len(questions))
	return nil
}

func runStory(ctx context.Context, s *app.Services, topic string) error {
	fmt.Println("Seenaa qopheessaa jirra...")
	buf, err := s.Chat.GenerateStory(ctx, topic)
	if err != nil {
		return err
	}
	return play(ctx, s, buf)
}

// play schedules buf on the speaker and waits for it to finish
func play(ctx context.Context, s *app.Services, buf audio.Buffer) error {
	speaker, err := device.NewSpeaker(s.Config.Audio.PlaybackRate, s.Logger.Named("speaker"))
	if err != nil {
		return fmt.Errorf("failed to open speaker: %w", err)
	}
	if err := speaker.Acquire(); err != nil {
		return err
	}
	defer speaker.Release()

	done := make(chan struct{})
	var once sync.Once
	scheduler := playback.NewScheduler(speaker,
		playback.WithLogger(s.Logger.Named("playback")),
		playback.WithOnTalking(func(talking bool) {
			if !talking {
				once.Do(func() { close(done) })
			}
		}))
	defer scheduler.Stop()

	slot, err := scheduler.Schedule(buf)
	if err != nil {
		return err
	}
	s.Logger.Infow("Playing story", "seconds", slot.End-slot.Start)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		scheduler.Interrupt()
		return ctx.Err()
	case <-time.After(time.Duration(buf.Duration()*float64(time.Second)) + 5*time.Second):
		return fmt.Errorf("playback did not finish")
	}
}

func runVideo(ctx context.Context, s *app.Services, prompt string) error {
	link, err := s.Chat.GenerateVideo(ctx, prompt, func(msg string) {
		fmt.Println(msg)
	})
	if err != nil {
		return err
	}
	fmt.Println(link)
	return nil
}
