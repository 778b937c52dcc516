package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/aitoolkit/librarian-mcp/internal/pathguard"
	"github.com/aitoolkit/librarian-mcp/internal/registry"
	"github.com/aitoolkit/librarian-mcp/internal/session"
	"github.com/aitoolkit/librarian-mcp/internal/taskboard"
	"github.com/aitoolkit/librarian-mcp/internal/tools"
	"github.com/aitoolkit/librarian-mcp/internal/watcher"
)

var version = "dev"

// shutdownGracePeriod bounds how long main waits for the watcher and
// TaskBoard workers to drain after the transport loop returns.
const shutdownGracePeriod = 5 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("librarian-mcp", version)
		os.Exit(0)
	}
	if len(os.Args) >= 2 && os.Args[1] == "cli" {
		os.Exit(runCLI(os.Args[2:]))
	}

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "librarian-mcp: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	guard, err := pathguard.New(cfg.AllowedRoots)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}

	reg := registry.New()
	board := taskboard.New(cfg.TaskboardWorkers, taskboard.DefaultHandlers())
	board.SetDefaultTimeout(time.Duration(cfg.TaskboardDefaultTimeoutSeconds) * time.Second)

	srv := tools.NewServer(guard, reg, board, cfg.toolsConfig())

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	w := watcher.New(reg, srv.ReindexForWatcher, time.Duration(cfg.ScanPeriodSeconds)*time.Second)
	g.Go(func() error {
		w.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return board.Run(gctx)
	})

	restoreSession(reg, srv, guard)

	runErr := srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
	cancel()

	drained := make(chan struct{})
	go func() {
		g.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(shutdownGracePeriod):
		slog.Warn("shutdown grace period elapsed; exiting with background work still draining")
	}

	if err := session.Save(session.New(reg.ActiveProjects())); err != nil {
		slog.Error("failed to persist session", "err", err)
	}

	if runErr != nil {
		slog.Error("server exited with error", "err", runErr)
		os.Exit(2)
	}
}

// restoreSession reloads session.json and reactivates every listed project
// that still resolves under the allow-list, kicking off a background
// re-index for each so its index is fresh by the time a client asks.
func restoreSession(reg *registry.Registry, srv *tools.Server, guard *pathguard.Guard) {
	sess, err := session.Load()
	if err != nil {
		slog.Warn("failed to load session file", "err", err)
		return
	}
	for _, root := range sess.ActiveProjects {
		resolved, err := guard.Resolve(root)
		if err != nil {
			slog.Warn("session project no longer resolves under the allow-list", "project", root, "err", err)
			continue
		}
		reg.Get(resolved).Activate()
		go func(r string) {
			if err := srv.ReindexForWatcher(context.Background(), r); err != nil {
				slog.Warn("session restore reindex failed", "project", r, "err", err)
			}
		}(resolved)
	}
}
