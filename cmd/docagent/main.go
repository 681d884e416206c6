package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cascadehq/docagent/internal/audio"
	"github.com/cascadehq/docagent/internal/config"
	"github.com/cascadehq/docagent/internal/pkg/logger"
	"github.com/cascadehq/docagent/internal/service/agent"
	"github.com/cascadehq/docagent/internal/service/auth"
	"github.com/cascadehq/docagent/internal/service/orchestrator"
	"github.com/cascadehq/docagent/internal/service/transcript"
	"github.com/cascadehq/docagent/internal/service/voice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog := logger.New(strings.TrimSpace(os.Getenv("LOG_FILE")), false)
	defer func() { _ = zlog.Sync() }()

	tokens := auth.NewManager(auth.FileStorage{Path: cfg.Client.TokenFile})
	if err := tokens.Bootstrap(); err != nil {
		zlog.Warn("token bootstrap failed", zap.Error(err))
	}

	client := agent.NewClient(agent.Config{
		BaseURL:              cfg.Client.AgentBaseURL,
		RequestTimeout:       cfg.Client.RequestTimeout,
		AllowAnonymousIngest: cfg.Client.AllowAnonymousIngest,
	}, zlog)

	// An empty recognizer URL yields a nil factory, which the pipeline
	// reports as an unsupported platform on /voice.
	recognizers := voice.NewWSRecognizerFactory(cfg.Voice.RecognizerURL, cfg.Voice.Language, zlog)
	pipeline := voice.NewPipeline(
		audio.NewFFmpegDevice(audio.Config{}),
		recognizers,
		nil,
		client,
		voice.Config{CaptureWindow: cfg.Voice.CaptureWindow},
		zlog,
	)

	store := transcript.NewStore()
	orch := orchestrator.New(store, client, tokens, pipeline, zlog)

	fmt.Println("docagent — submit a URL to ingest it, then ask questions.")
	fmt.Println("Commands: /login <token>, /logout, /doc <path>, /voice, /quit")

	runLoop(ctx, orch, tokens, store)
}

func runLoop(ctx context.Context, orch *orchestrator.Orchestrator, tokens *auth.Manager, store *transcript.Store) {
	scanner := bufio.NewScanner(os.Stdin)
	printed := 0

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/logout":
			if err := tokens.Logout(); err != nil {
				fmt.Printf("logout failed: %v\n", err)
			}
			orch.Reset()
			printed = 0
			fmt.Println("logged out, session cleared")
			continue
		case strings.HasPrefix(line, "/login "):
			if err := tokens.Login(strings.TrimPrefix(line, "/login ")); err != nil {
				fmt.Printf("login failed: %v\n", err)
			} else {
				fmt.Println("token stored")
			}
			continue
		case strings.HasPrefix(line, "/doc "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/doc "))
			file, err := os.Open(path)
			if err != nil {
				fmt.Printf("cannot open %s: %v\n", path, err)
				continue
			}
			err = orch.HandleDocument(ctx, fileName(path), file)
			file.Close()
			reportBusy(err)
		case line == "/voice":
			reportBusy(orch.HandleVoice(ctx))
		default:
			reportBusy(orch.HandleSubmission(ctx, line, "auto"))
		}

		printed = printNew(store, printed)
	}
}

func reportBusy(err error) {
	if err != nil {
		fmt.Printf("not sent: %v\n", err)
	}
}

// printNew renders transcript entries appended since the last call.
func printNew(store *transcript.Store, printed int) int {
	messages := store.Messages()
	for _, m := range messages[printed:] {
		prefix := string(m.Role)
		if m.IsError() {
			prefix = "error"
		}
		fmt.Printf("[%s] %s\n", prefix, m.Content)
		for _, src := range m.Sources {
			line := "    source: " + src.Label
			if src.Page != nil {
				line += fmt.Sprintf(" (page %d)", *src.Page)
			}
			if src.Score != nil {
				line += fmt.Sprintf(" score=%.2f", *src.Score)
			}
			fmt.Println(line)
		}
	}
	return len(messages)
}

func fileName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
