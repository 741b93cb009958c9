package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/anglebert-dev/print-relay/internal/api"
	"github.com/anglebert-dev/print-relay/internal/audit"
	"github.com/anglebert-dev/print-relay/internal/broker"
	"github.com/anglebert-dev/print-relay/internal/config"
	"github.com/anglebert-dev/print-relay/internal/dispatch"
	"github.com/anglebert-dev/print-relay/internal/logger"
	"github.com/anglebert-dev/print-relay/internal/notify"
	"github.com/anglebert-dev/print-relay/internal/registry"
	"github.com/anglebert-dev/print-relay/internal/sidestore"
	"github.com/anglebert-dev/print-relay/internal/transport"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		// Missing business ID is the one configuration problem that must
		// refuse to start; an unreadable config file is the same class.
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	log.Info().
		Str("business_id", cfg.BusinessID).
		Str("queue", cfg.QueueName()).
		Msg("starting print relay")

	notifier := notify.New(log, notify.Config{
		Dir:       cfg.Logging.Dir,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})

	reg := registry.New(registryEntries(cfg.Printers))
	if reg.Len() == 0 {
		log.Warn().Msg("no printers configured; every job will be dropped as unknown")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup failures other than configuration are retried on a fixed
	// delay rather than aborting; a relay that cannot open its side store
	// yet may still come up once the disk does.
	store := openSideStore(ctx, cfg, log)
	if store == nil {
		return
	}

	var auditLog *audit.Log
	if cfg.Database.URL != "" {
		auditLog, err = audit.New(ctx, cfg.Database.URL,
			cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout, log)
		if err != nil {
			log.Error().Err(err).Msg("audit log unavailable, continuing without it")
		} else {
			defer auditLog.Close()
		}
	}

	sender := transport.New(cfg.Transport.Port, cfg.Transport.SendTimeout, log)

	coordinator := dispatch.NewCoordinator(
		cfg.BusinessID,
		cfg.QueueName(),
		reg,
		store,
		sender,
		notifier,
		auditLog,
		log,
	)

	manager := broker.NewManager(broker.Config{
		URL:            cfg.Broker.URL,
		QueueName:      cfg.QueueName(),
		ConsumerTag:    "print-relay-" + cfg.BusinessID,
		ReconnectDelay: cfg.Broker.ReconnectDelay,
		Heartbeat:      cfg.Broker.Heartbeat,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
	}, coordinator, notifier, log)

	go manager.Run(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      api.NewRouter(cfg.BusinessID, manager, log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("health server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	notifier.System("print service for " + cfg.BusinessID + " started")

	<-ctx.Done()
	log.Info().Msg("shutting down print relay")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown failed")
	}
	if err := manager.Close(); err != nil {
		notifier.ConnectionError(err, "RabbitMQ", false)
	}

	notifier.System("print service stopped")
}

// openSideStore creates the artifact store, retrying on a fixed delay until
// it succeeds or shutdown is requested. Returns nil only on shutdown.
func openSideStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) *sidestore.Store {
	for {
		store, err := sidestore.New(cfg.SideStore.Path)
		if err == nil {
			return store
		}
		log.Error().
			Err(err).
			Str("path", cfg.SideStore.Path).
			Dur("delay", cfg.Broker.ReconnectDelay).
			Msg("side store unavailable, retrying")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Broker.ReconnectDelay):
		}
	}
}

// registryEntries converts configured printers to registry entries.
func registryEntries(printers map[string]config.Printer) map[string]registry.Printer {
	entries := make(map[string]registry.Printer, len(printers))
	for id, p := range printers {
		entries[id] = registry.Printer{
			Name:           p.Name,
			ConnectionType: p.ConnectionType,
			Address:        p.Address,
		}
	}
	return entries
}
