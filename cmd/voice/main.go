package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/omnix-labs/omnix-voice/internal/audio"
	"github.com/omnix-labs/omnix-voice/internal/client"
	"github.com/omnix-labs/omnix-voice/internal/config"
	"github.com/omnix-labs/omnix-voice/internal/model/voice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Err(err).Msg("no .env file, using system environment")
	}

	server := flag.String("server", "http://localhost:8080", "voice backend base URL")
	mic := flag.Bool("mic", false, "capture utterances from the default microphone")
	outDir := flag.String("out", "", "directory for assistant audio replies (discarded when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := run(ctx, cfg, *server, *mic, *outDir, logger); err != nil {
		logger.Fatal().Err(err).Msg("voice client failed")
	}
}

func run(ctx context.Context, cfg *config.Config, server string, mic bool, outDir string, logger zerolog.Logger) error {
	player := func(_ context.Context, msg voice.Message) error {
		fmt.Printf("assistant> %s\n", msg.Content)
		if len(msg.Audio) == 0 || outDir == "" {
			return nil
		}
		path := filepath.Join(outDir, fmt.Sprintf("reply-%d.mp3", msg.Seq))
		if err := os.WriteFile(path, msg.Audio, 0o644); err != nil {
			return fmt.Errorf("write reply audio: %w", err)
		}
		fmt.Printf("assistant audio saved to %s\n", path)
		return nil
	}

	var c *client.Client
	var capture *audio.Capture
	if mic {
		frameSamples := int(float64(cfg.Live.SampleRate) * cfg.Live.FrameDuration.Seconds())
		source := audio.NewPulseSource(cfg.Live.SampleRate, frameSamples)
		capture = audio.New(cfg.Live, source, audio.Hooks{
			OnSpeechStart: func() {
				if c != nil {
					c.NotifySpeechStart()
					fmt.Println("(listening...)")
				}
			},
			OnSpeechEnd: func() {
				if c != nil {
					c.NotifySpeechEnd()
				}
			},
		}, logger)
	}

	if capture != nil {
		c = client.New(server, cfg.Live, capture, player, logger)
	} else {
		c = client.New(server, cfg.Live, nil, player, logger)
	}
	defer func() {
		if err := c.End(); err != nil {
			logger.Warn().Err(err).Msg("session end failed")
		}
	}()

	if err := c.CreateSession(ctx); err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}

	fmt.Println("session ready. Type a message, /mute, /unmute, or /quit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				return nil
			case "/mute":
				c.SetMuted(true)
				fmt.Println("(muted)")
				continue
			case "/unmute":
				c.SetMuted(false)
				fmt.Println("(unmuted)")
				continue
			}

			if _, err := c.SendText(ctx, line); err != nil {
				switch {
				case errors.Is(err, client.ErrTurnInProgress):
					fmt.Println("(still answering the previous turn, try again shortly)")
				case errors.Is(err, client.ErrSessionNotFound):
					return fmt.Errorf("session expired on the server, restart to begin a new one: %w", err)
				default:
					logger.Error().Err(err).Msg("send failed")
				}
			}
		}
	}
}
