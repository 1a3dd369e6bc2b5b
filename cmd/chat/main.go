// The chat command is a terminal client for the relay server: load a paper by
// arXiv id, then converse with streaming replies rendered as they arrive.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"papertalk.app/relay/common/id"
	"papertalk.app/relay/common/logger"
	"papertalk.app/relay/core/config"
	"papertalk.app/relay/internal/httpapi"
	"papertalk.app/relay/internal/session"
	"papertalk.app/relay/internal/stream"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeChat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg)

	if err := id.Init(2); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize id generator: %v\n", err)
		os.Exit(1)
	}

	api := httpapi.New(cfg.Client.ServerURL)
	sess := session.New()

	fmt.Printf("papertalk — server %s\n", cfg.Client.ServerURL)
	fmt.Println("Commands: /load <arxiv-id>, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/load "):
			loadPaper(ctx, api, sess, strings.TrimSpace(strings.TrimPrefix(line, "/load ")))
		case strings.HasPrefix(line, "/"):
			fmt.Printf("Unknown command: %s\n", line)
		default:
			submitTurn(ctx, cfg, api, sess, line)
		}
	}
}

// loadPaper drives the session lifecycle: begin load (resetting the chat when
// the id changed), fetch source, finish load. A failed fetch leaves the
// session usable without paper context.
func loadPaper(ctx context.Context, api *httpapi.Client, sess *session.Session, arxivID string) {
	if arxivID == "" {
		fmt.Println("Usage: /load <arxiv-id>")
		return
	}

	if sess.BeginLoad(arxivID) {
		fmt.Println("New paper: chat cleared.")
	}

	text, err := api.FetchSource(ctx, arxivID)
	if err != nil {
		slog.WarnContext(ctx, "source fetch failed", "arxiv_id", arxivID, "error", err)
		fmt.Printf("Could not fetch LaTeX source for %s; chatting without paper context.\n", arxivID)
		sess.FinishLoad("")
		return
	}

	sess.FinishLoad(text)
	fmt.Printf("Loaded %s (%d bytes of source).\n", arxivID, len(text))
}

// submitTurn sends one user turn and streams the reply to the terminal. The
// stall timeout bounds the wait for each read so a dead connection cannot
// leave the placeholder streaming forever.
func submitTurn(ctx context.Context, cfg config.Config, api *httpapi.Client, sess *session.Session, text string) {
	turns, err := sess.SubmitTurn(text)
	if err != nil {
		if errors.Is(err, session.ErrNotReady) {
			fmt.Println("Load a paper first: /load <arxiv-id>")
			return
		}
		fmt.Printf("Error: %v\n", err)
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.SetStreamCancel(cancel)

	body, err := api.ChatStream(streamCtx, turns)
	if err != nil {
		sess.StreamFailed(0, stream.ErrorTurnText)
		fmt.Printf("\nError: %v\n", err)
		return
	}
	defer body.Close()

	consumer := stream.NewConsumer(sess)
	consumer.OnDelta = func(delta string) {
		fmt.Print(delta)
	}

	if _, err := consumer.Run(streamCtx, stream.NewStallReader(streamCtx, body, cfg.Client.StallTimeout)); err != nil {
		fmt.Printf("\n%s\n", stream.ErrorTurnText)
		return
	}
	fmt.Println()
}
