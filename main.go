package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"arena-server/internal/game"
	"arena-server/internal/inference"
	"arena-server/internal/store"
	"arena-server/internal/telemetry"
)

const serviceName = "arena-server"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log, err := NewLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(ctx context.Context, cfg Config, log *logrus.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.WithError(err).Warn("trace shutdown")
		}
	}()

	var (
		mapStore game.MapStore
		journal  *Journal
	)
	if cfg.DBPath != "" {
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		mapStore = db
		journal = NewJournal(db, log.WithField("component", "journal"))
		defer func() {
			journal.Stop()
			if n := journal.Dropped(); n > 0 {
				log.WithField("dropped", n).Warn("reward events dropped")
			}
		}()
		log.WithField("path", cfg.DBPath).Info("store opened")
	}

	var inf game.Inferencer
	if cfg.InferenceURL != "" {
		inf = inference.New(cfg.InferenceURL, cfg.InferenceTimeout)
		log.WithField("url", cfg.InferenceURL).Info("inference enabled")
	}

	maps := game.NewMapService(mapStore, cfg.MapTimeout, log.WithField("component", "maps"))
	sessions := NewSessionManager(ManagerOptions{
		MaxSessions:   cfg.MaxSessions,
		TickRate:      cfg.TickRate,
		BroadcastRate: cfg.BroadcastRate,
		IdleTimeout:   cfg.SessionIdle,
		AITimeout:     cfg.InferenceTimeout,
	}, maps, inf, journal, log.WithField("component", "sessions"))
	hub := NewHub(sessions, NewTickets(cfg.TicketSecret), log.WithField("component", "hub"))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           SetupRoutes(hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		log.WithField("addr", cfg.Addr).Info("server starting")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(sctx)
	})
	return g.Wait()
}
