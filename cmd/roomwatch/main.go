// Command roomwatch keeps a live membership view of one or more game rooms
// and logs every change.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/pickup-room-sync/internal/config"
	"github.com/DoyleJ11/pickup-room-sync/internal/logging"
	"github.com/DoyleJ11/pickup-room-sync/internal/roomsync"
	"github.com/DoyleJ11/pickup-room-sync/internal/snapshot"
)

// Version info - set by ldflags at build time
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "roomwatch:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadWatch(os.Args[1:])
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("roomwatch %s (commit: %s)\n", Version, Commit)
		return nil
	}

	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting", zap.String("version", Version), zap.Strings("rooms", cfg.Rooms))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	managers := newManagers(cfg, log)
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range managers {
		if err := m.Open(); err != nil {
			return multierr.Append(err, closeAll(managers))
		}
		g.Go(func() error { return watch(gctx, m, log) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return closeAll(managers)
	})
	return g.Wait()
}

func newManagers(cfg config.Watch, log *zap.Logger) []*roomsync.Manager {
	var tokens snapshot.TokenSource
	if cfg.Token != "" {
		tokens = snapshot.StaticToken(cfg.Token)
	}
	fetcher := snapshot.NewClient(cfg.BaseURL,
		snapshot.WithTokenSource(tokens),
		snapshot.WithLogger(log))

	managers := make([]*roomsync.Manager, 0, len(cfg.Rooms))
	for _, id := range cfg.Rooms {
		managers = append(managers, roomsync.New(roomsync.Config{
			RoomID:      id,
			URL:         cfg.WSURL,
			Fetcher:     fetcher,
			TokenSource: tokens,
			Backoff:     backoffFor(cfg),
			MaxAttempts: cfg.MaxAttempts,
		}, roomsync.WithLogger(log)))
	}
	return managers
}

func backoffFor(cfg config.Watch) roomsync.Backoff {
	if cfg.MaxReconnectDelay <= 0 {
		return roomsync.FixedBackoff(cfg.ReconnectDelay)
	}
	return roomsync.Backoff{Initial: cfg.ReconnectDelay, Max: cfg.MaxReconnectDelay, Multiplier: 2}
}

// watch logs every state the room goes through until the manager closes. A
// manager that closes on its own has given up, which stops the whole run.
func watch(ctx context.Context, m *roomsync.Manager, log *zap.Logger) error {
	states, unsubscribe := m.Store().Watch()
	defer unsubscribe()

	for st := range states {
		log.Info("room updated",
			zap.String("room", m.RoomID()),
			zap.Strings("participants", st.Participants),
			zap.Strings("waitlist", st.Waitlist))
	}
	<-m.Done()
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%w: gave up reconnecting", roomsync.ErrClosed)
}

func closeAll(managers []*roomsync.Manager) error {
	var err error
	for _, m := range managers {
		err = multierr.Append(err, m.Close())
	}
	return err
}
