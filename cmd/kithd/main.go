// Package main implements kithd, the daemon that owns a kith store and
// serves it over HTTP.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                 kithd                   │
//	├─────────────────────────────────────────┤
//	│  HTTP API (internal/server)             │
//	│    /health, /stats, /users, /nodes ...  │
//	├─────────────────────────────────────────┤
//	│  graphdb.Store                          │
//	│    commit log + background compactor    │
//	└─────────────────────────────────────────┘
//
// Configuration comes from kith.yaml, KITH_* environment variables and
// flags (see internal/config). SIGINT and SIGTERM shut the HTTP server down
// and then close the store, which syncs the commit log and releases the
// directory lock.
//
// Example usage:
//
//	KITH_STORE_PATH=/var/lib/kith KITH_SERVER_LISTEN=:7474 ./kithd
//	curl -X POST localhost:7474/users -d '{"name":"Ed"}'
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/kith/internal/config"
	"github.com/dreamware/kith/internal/graphdb"
	"github.com/dreamware/kith/internal/observability"
	"github.com/dreamware/kith/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "kithd",
		Short:         "Serve a kith graph store over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.NewViper(cfgFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer observability.Sync(logger)
			return run(cmd.Context(), cfg, logger, nil)
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./kith.yaml)")
	cmd.Flags().String("store.path", "", "store directory, empty for an in-memory store")
	cmd.Flags().String("server.listen", "", "listen address")
	return cmd
}

// StoreOptions translates the store configuration into graphdb options.
func StoreOptions(cfg config.StoreConfig, logger *zap.Logger) []graphdb.Option {
	return []graphdb.Option{
		graphdb.WithLogger(logger),
		graphdb.WithSync(cfg.Sync),
		graphdb.WithCompaction(cfg.CompactInterval, cfg.CompactMinBytes),
		graphdb.WithLookupCache(cfg.LookupCacheSize),
	}
}

// run opens the store and serves until ctx is done or serving fails. If
// ready is non-nil it receives the bound address once the listener is up.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, ready chan<- string) error {
	store, err := graphdb.Open(cfg.Store.Path, StoreOptions(cfg.Store, logger)...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Closing store failed", zap.Error(err))
		}
	}()

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	httpServer := &http.Server{
		Handler:           server.New(store, logger),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("kithd listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("store", cfg.Store.Path))
		if ready != nil {
			ready <- ln.Addr().String()
		}
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("kithd shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
