package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraLedger-Engine/api"
	"github.com/VanDung-dev/HieraLedger-Engine/config"
	"github.com/VanDung-dev/HieraLedger-Engine/engine"
	"github.com/VanDung-dev/HieraLedger-Engine/ledger"
	"github.com/VanDung-dev/HieraLedger-Engine/report"
)

// runBatch applies one ledger file and prints the outcome of every entry
// followed by the final balances.
func runBatch(cmd *cobra.Command, workers int, path string, sleep bool) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))
	out := cmd.OutOrStdout()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer f.Close()

	recorders := report.Tee{report.NewConsole(out)}
	var collector *report.Collector
	if cfg.Export.Dir != "" {
		collector = report.NewCollector()
		recorders = append(recorders, collector)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var metrics *api.Metrics
	if cfg.Metrics.Address != "" {
		reg := prometheus.NewRegistry()
		metrics = api.NewMetrics(cfg.Metrics.Namespace, reg)
		recorders = append(recorders, metrics)

		srv := api.NewMetricsServer(cfg.Metrics.Address, reg, nil)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Stop(context.Background())
	}

	store := engine.NewStore(cfg.Accounts,
		engine.WithRecorder(recorders),
		engine.WithInitialBalance(cfg.InitialBalance))

	opts, err := decoderOptions(cfg, logger, ledger.NewSequencer(0))
	if err != nil {
		return err
	}
	decoder := ledger.NewDecoder(f, opts...)

	poolOpts := []engine.PoolOption{engine.WithLogger(logger)}
	if sleep {
		latency, _ := cmd.Flags().GetDuration("latency")
		poolOpts = append(poolOpts, engine.WithSimulatedLatency(latency))
	}

	var (
		snap      engine.Snapshot
		ingestErr error
	)
	start := time.Now()
	switch cfg.Source {
	case config.SourceBacklog:
		entries, err := decoder.ReadAll()
		if err != nil {
			return err
		}
		pool := engine.NewWorkerPool("ledger", workers, store, engine.NewBacklog(entries), poolOpts...)
		if metrics != nil {
			go metrics.Watch(ctx, time.Second, nil, pool)
		}
		if snap, err = pool.Run(); err != nil {
			return err
		}

	default:
		q := engine.NewQueue(cfg.QueueCapacity)
		pool := engine.NewWorkerPool("ledger", workers, store, q, poolOpts...)
		if err := pool.Start(); err != nil {
			return err
		}
		if metrics != nil {
			go metrics.Watch(ctx, time.Second, q, pool)
		}
		// Entries queued before a malformed line are still applied.
		_, ingestErr = ledger.IngestAll(ctx, q, decoder)
		snap = pool.Wait()
	}

	logger.Info("run complete",
		zap.Int("workers", workers),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("failed", snap.Failed),
		zap.Int("skipped_lines", decoder.Skipped()),
		zap.Duration("elapsed", time.Since(start)))

	if err := report.PrintSnapshot(out, snap); err != nil {
		return err
	}

	if collector != nil {
		exp, err := report.ExportArrow(cfg.Export.Dir, runID, collector.Outcomes(), snap)
		if err != nil {
			return err
		}
		logger.Info("exported run", zap.String("outcomes", exp.Outcomes), zap.String("balances", exp.Balances))
	}

	var perr *ledger.ParseError
	if errors.As(ingestErr, &perr) {
		return fmt.Errorf("ledger file %s: %w", path, perr)
	}
	return ingestErr
}
