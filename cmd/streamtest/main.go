// streamtest connects to the feeds realtime edge once and prints events to console.
// Usage: go run ./cmd/streamtest --config configs/feedstail.example.yaml -n 10
//
// Required environment variables (as referenced by the example config):
//
//	FEEDS_API_KEY    - Application API key
//	FEEDS_USER_TOKEN - User token minted by your backend
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/feeds-realtime/internal/config"
	"github.com/rickgao/feeds-realtime/internal/events"
	"github.com/rickgao/feeds-realtime/internal/feeds"
)

func main() {
	configPath := flag.String("config", "configs/feedstail.example.yaml", "path to config file, or - for stdin")
	count := flag.Int("n", 10, "number of events to print before exiting, 0 for no limit")
	timeout := flag.Duration("timeout", 5*time.Minute, "give up after this long")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	// A smoke test never journals.
	cfg.Journal.Enabled = false

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	client, err := feeds.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build client", "error", err)
		os.Exit(1)
	}

	received := make(chan events.Event, 64)
	client.Socket.SubscribeEvents(func(ev events.Event) {
		select {
		case received <- ev:
		default:
			logger.Warn("console printer behind, dropping event", "type", ev.Type())
		}
	})

	st, err := client.Start(ctx)
	if err != nil {
		logger.Error("connect failed", "error", err, "state", st.String())
		client.Stop(context.Background())
		os.Exit(1)
	}
	userID := cfg.User.ID
	if me := client.Socket.Me(); me != nil {
		userID = me.ID
	}
	fmt.Printf("[CONNECTED] connection_id=%s user=%s\n", st.ConnectionID, userID)

	printed := 0
loop:
	for *count == 0 || printed < *count {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-received:
			printEvent(ev, *verbose)
			printed++
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...", "printed", printed)
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func printEvent(ev events.Event, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("[%s] %s\n", ev.Type(), data)
		return
	}

	fid := ""
	if h, ok := events.Header(ev); ok {
		fid = h.Fid
	}
	switch e := ev.(type) {
	case *events.ActivityAddedEvent:
		fmt.Printf("[ACTIVITY ADDED] fid=%s id=%s user=%s text=%q\n", fid, e.Activity.ID, e.Activity.User.ID, e.Activity.Text)
	case *events.ActivityDeletedEvent:
		fmt.Printf("[ACTIVITY DELETED] fid=%s id=%s\n", fid, e.Activity.ID)
	case *events.CommentAddedEvent:
		fmt.Printf("[COMMENT ADDED] fid=%s id=%s object=%s text=%q\n", fid, e.Comment.ID, e.Comment.ObjectID, e.Comment.Text)
	case *events.ActivityReactionAddedEvent:
		fmt.Printf("[REACTION ADDED] fid=%s activity=%s type=%s\n", fid, e.Activity.ID, e.Reaction.Type)
	case *events.FollowCreatedEvent:
		fmt.Printf("[FOLLOW] %s -> %s status=%s\n", e.Follow.SourceFeed, e.Follow.TargetFeed, e.Follow.Status)
	case *events.UnknownEvent:
		fmt.Printf("[UNKNOWN %s] %d bytes\n", e.EventType, len(e.Raw))
	default:
		fmt.Printf("[%s] fid=%s\n", ev.Type(), fid)
	}
}
