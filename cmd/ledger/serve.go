package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/HieraLedger-Engine/api"
	"github.com/VanDung-dev/HieraLedger-Engine/engine"
	"github.com/VanDung-dev/HieraLedger-Engine/ledger"
	"github.com/VanDung-dev/HieraLedger-Engine/network"
	"github.com/VanDung-dev/HieraLedger-Engine/report"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived engine fed over ZeroMQ",
		Long: "Binds a ledger feed, applies every entry it receives and exits once all\n" +
			"producers have finished or on SIGINT/SIGTERM, printing the final balances.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().Int("workers", 4, "number of workers")
	cmd.Flags().String("feed-addr", "", "ZeroMQ address to bind for the ledger feed")
	cmd.Flags().Int("producers", -1, "number of senders to wait for; 0 runs until interrupted")
	cmd.Flags().String("grpc-addr", "", "serve the gRPC health service on this address")
	cmd.Flags().Bool("quiet", false, "do not print one line per outcome")
	return cmd
}

func runServe(cmd *cobra.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	flags := cmd.Flags()
	workers, _ := flags.GetInt("workers")
	if flags.Changed("feed-addr") {
		cfg.Feed.Address, _ = flags.GetString("feed-addr")
	}
	if n, _ := flags.GetInt("producers"); n >= 0 {
		cfg.Feed.Producers = n
	}
	if flags.Changed("grpc-addr") {
		cfg.GRPC.Address, _ = flags.GetString("grpc-addr")
	}
	quiet, _ := flags.GetBool("quiet")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := api.NewMetrics(cfg.Metrics.Namespace, reg)
	recorders := report.Tee{metrics}
	if !quiet {
		recorders = append(recorders, report.NewConsole(cmd.OutOrStdout()))
	}

	store := engine.NewStore(cfg.Accounts,
		engine.WithRecorder(recorders),
		engine.WithInitialBalance(cfg.InitialBalance))
	q := engine.NewQueue(cfg.QueueCapacity)
	pool := engine.NewWorkerPool("serve", workers, store, q, engine.WithLogger(logger))

	feed := network.NewFeed(network.FeedConfig{
		Address:   cfg.Feed.Address,
		Producers: cfg.Feed.Producers,
	}, q, ledger.NewSequencer(0), network.WithFeedLogger(logger))
	if err := feed.Start(); err != nil {
		return err
	}
	if err := pool.Start(); err != nil {
		_ = feed.Stop()
		return err
	}

	health := api.NewHealthServer(&api.ServerConfig{
		Address:        cfg.GRPC.Address,
		MaxRecvMsgSize: 4 * 1024 * 1024,
		MaxSendMsgSize: 4 * 1024 * 1024,
	}, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var snap engine.Snapshot
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("shutting down, draining queued entries")
		case <-pool.Done():
		}
		if err := feed.Stop(); err != nil && !errors.Is(err, network.ErrFeedNotRunning) {
			logger.Warn("feed stop", zap.Error(err))
		}
		snap = pool.Wait()
		cancel()
		return nil
	})

	g.Go(func() error {
		metrics.Watch(gctx, time.Second, q, pool)
		return nil
	})

	if cfg.Metrics.Address != "" {
		srv := api.NewMetricsServer(cfg.Metrics.Address, reg, func() bool {
			return pool.State() == engine.PoolRunning
		})
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Stop(shutdownCtx)
		})
	}

	if cfg.GRPC.Address != "" {
		g.Go(health.Start)
		g.Go(func() error {
			health.Watch(gctx, pool)
			health.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats := feed.GetStats()
	logger.Info("serve complete",
		zap.Int64("entries", stats.Entries),
		zap.Int64("replays", stats.Replays),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("dropped", stats.Dropped),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("failed", snap.Failed))
	return report.PrintSnapshot(cmd.OutOrStdout(), snap)
}
