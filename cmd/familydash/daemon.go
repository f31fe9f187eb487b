package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/audit"
	"github.com/fentz26/familydash/internal/controlplane"
	"github.com/fentz26/familydash/internal/events"
	"github.com/fentz26/familydash/internal/realtime"
	"github.com/fentz26/familydash/internal/recurrence"
	"github.com/fentz26/familydash/internal/reminders"
	"github.com/fentz26/familydash/internal/snapshot"
	"github.com/fentz26/familydash/internal/store"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

var (
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the familydash daemon",
	Long:  `Starts the daemon that serves the HTTP API, keeps the local snapshot reconciled and delivers reminders.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (default from config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (default from config)")
}

// rescheduleOn lists the events after which pending reminders are recomputed.
var rescheduleOn = []events.Type{
	events.TaskCreated,
	events.TaskUpdated,
	events.TaskDeleted,
	events.CompletionAdded,
	events.CompletionRemoved,
	events.TasksSynced,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if listenAddr == "" {
		listenAddr = cfg.Listen
	}
	if dbPath == "" {
		dbPath = cfg.DBPath
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "familydash",
		Level:           cfg.LogLevel(),
	})
	logger.Info("starting daemon", "listen", listenAddr, "db", dbPath)

	s, err := store.New(dbPath)
	if err != nil {
		return err
	}

	deviceID, err := realtime.LoadDeviceID(cfg.DeviceIDPath)
	if err != nil {
		s.Close()
		return err
	}
	// Processes on one device share the id; the pid keeps their broadcast
	// sources apart.
	source := fmt.Sprintf("%s:%d", deviceID, os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if n, err := s.PruneSlots(ctx, time.Now().Add(-cfg.Broadcast.TTL)); err != nil {
		logger.Warn("prune broadcast slots", "err", err)
	} else if n > 0 {
		logger.Debug("pruned stale broadcast slots", "count", n)
	}

	recorder := audit.NewRecorder(s)
	bus := events.NewBus(events.Options{
		Source:  source,
		Channel: s,
		SlotTTL: cfg.Broadcast.TTL,
		Logger:  logger.WithPrefix("bus"),
	})
	resolver := recurrence.New(recurrence.Options{
		MaxEntries:     cfg.Cache.MaxEntries,
		EvictFraction:  cfg.Cache.EvictFraction,
		FirstDayOfWeek: time.Monday,
	})

	service := controlplane.NewService(s, recorder, bus, resolver, logger.WithPrefix("service"))
	coord := realtime.New(service.Collaborator(), snapshot.NewFile(cfg.SnapshotPath), realtime.Options{
		Bus:          bus,
		Resolver:     resolver,
		Channel:      s,
		PollInterval: cfg.Broadcast.PollInterval,
		SyncInterval: cfg.Sync.Interval,
		PassTimeout:  cfg.Sync.PassTimeout,
		Recorder:     recorder,
		Logger:       logger.WithPrefix("sync"),
	})
	server := controlplane.NewServer(service, coord, listenAddr, logger.WithPrefix("api"))

	sched := reminders.New(service, resolver, nil, &cfg.Reminders, reminders.Options{
		Logger: logger.WithPrefix("reminders"),
	})
	for _, t := range rescheduleOn {
		unsub := coord.On(t, func(events.Event) { sched.Reschedule() })
		defer unsub()
	}

	coord.Start(ctx)
	sched.Start(ctx)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "err", err)
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "err", err)
	}

	sched.Stop()
	coord.Stop()
	cancel()
	if err := bus.Close(); err != nil {
		logger.Warn("close event bus", "err", err)
	}

	logger.Info("closing database")
	if err := s.Close(); err != nil {
		logger.Error("database close", "err", err)
	}

	logger.Info("shutdown complete")
	return runErr
}
