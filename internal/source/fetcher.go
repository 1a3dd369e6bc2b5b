// Package source retrieves the expanded LaTeX source for a paper id by
// shelling out to an external command (arxiv-to-prompt by default) and
// optionally caching the result.
package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"papertalk.app/relay/common/logger"
)

// Fetcher resolves a paper id to its raw LaTeX source.
type Fetcher interface {
	Fetch(ctx context.Context, arxivID string) (string, error)
}

// CommandFetcher runs an external command with the paper id as its single
// argument and returns its stdout.
type CommandFetcher struct {
	command string
	timeout time.Duration
}

func NewCommandFetcher(command string, timeout time.Duration) *CommandFetcher {
	return &CommandFetcher{command: command, timeout: timeout}
}

func (f *CommandFetcher) Fetch(ctx context.Context, arxivID string) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ArxivID:   logger.Ptr(arxivID),
		Component: "relay.source.fetcher",
	})

	runCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, f.command, arxivID)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running %s: %w: %s", f.command, err, logger.Truncate(stderr.String(), 512))
	}

	if stderr.Len() > 0 {
		slog.WarnContext(ctx, "source command wrote to stderr",
			"stderr", logger.Truncate(stderr.String(), 512))
	}

	slog.InfoContext(ctx, "source fetched",
		"bytes", stdout.Len(),
		"duration_ms", time.Since(start).Milliseconds())

	return stdout.String(), nil
}
