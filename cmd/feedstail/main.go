// feedstail keeps a realtime feeds connection open and logs every event.
// Usage: go run ./cmd/feedstail --config configs/feedstail.example.yaml
//
// Signals:
//
//	SIGUSR1         - move to background (disconnects unless keep_alive_in_background)
//	SIGUSR2         - move to foreground (reconnects when allowed)
//	SIGINT, SIGTERM - shut down
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/feeds-realtime/internal/config"
	"github.com/rickgao/feeds-realtime/internal/events"
	"github.com/rickgao/feeds-realtime/internal/feeds"
	"github.com/rickgao/feeds-realtime/internal/state"
	"github.com/rickgao/feeds-realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feedstail.example.yaml", "path to config file, or - for stdin")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := feeds.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting feedstail",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"user_id", cfg.User.ID,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := feeds.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build client", "error", err)
		os.Exit(1)
	}

	client.Socket.SubscribeState(func(st state.State) {
		logger.Info("connection state", "state", st.String())
	})
	client.Socket.SubscribeEvents(func(ev events.Event) {
		logEvent(logger, ev)
	})

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGUSR1:
					client.Lifecycle.Stop()
				case syscall.SIGUSR2:
					client.Lifecycle.Resume()
				default:
					logger.Info("received shutdown signal", "signal", sig)
					cancel()
					return
				}
			}
		}
	}()

	var statusServer *http.Server
	if cfg.Status.Addr != "" {
		statusServer = &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           feeds.StatusHandler(client),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting status server", "addr", cfg.Status.Addr)
			if err := statusServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("status server error", "error", err)
			}
		}()
	}

	st, err := client.Start(ctx)
	if err != nil {
		// Recovery keeps retrying in the background.
		logger.Warn("initial connect failed", "error", err, "state", st.String())
	} else {
		logger.Info("connected", "connection_id", st.ConnectionID)
	}

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if statusServer != nil {
		statusServer.Shutdown(shutdownCtx)
	}
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("feedstail stopped")
}

func logEvent(logger *slog.Logger, ev events.Event) {
	attrs := []any{"type", ev.Type()}
	if h, ok := events.Header(ev); ok && h.Fid != "" {
		attrs = append(attrs, "fid", h.Fid)
	}

	switch e := ev.(type) {
	case *events.ActivityAddedEvent:
		attrs = append(attrs, "activity_id", e.Activity.ID, "text", e.Activity.Text)
	case *events.CommentAddedEvent:
		attrs = append(attrs, "comment_id", e.Comment.ID, "text", e.Comment.Text)
	case *events.FollowCreatedEvent:
		attrs = append(attrs, "source", e.Follow.SourceFeed, "target", e.Follow.TargetFeed)
	case *events.UnknownEvent:
		attrs = append(attrs, "bytes", len(e.Raw))
	}
	logger.Info("event", attrs...)
}
