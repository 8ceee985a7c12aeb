package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraLedger-Engine/config"
	"github.com/VanDung-dev/HieraLedger-Engine/ledger"
	"github.com/VanDung-dev/HieraLedger-Engine/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledger <workers> <file> <sleep>",
		Short: "Concurrent ledger engine",
		Long: "Applies deposit, withdraw, transfer and balance entries from a ledger file\n" +
			"to an in-memory account store using a pool of workers.",
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				// A wrong argument count is not an error.
				return cmd.Usage()
			}

			workers, err := strconv.Atoi(args[0])
			if err != nil || workers <= 0 {
				return fmt.Errorf("number of workers must be a positive integer, got %q", args[0])
			}
			sleep, err := strconv.ParseBool(args[2])
			if err != nil {
				return fmt.Errorf("sleep simulation must be true or false, got %q", args[2])
			}
			return runBatch(cmd, workers, args[1], sleep)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("log-level", "", "log level: debug|info|warn|error")
	flags.String("log-format", "", "log format: console|json")
	flags.Int("accounts", 0, "number of accounts (default 10)")
	flags.Int64("initial-balance", 0, "starting balance of every account")
	flags.Int("queue-capacity", 0, "work queue capacity")
	flags.String("malformed", "", "malformed line policy: abort|skip")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("export-dir", "", "write Arrow outcome and balance files to this directory")

	root.Flags().String("source", "", "work source: queue|backlog")
	root.Flags().Duration("latency", 10*time.Millisecond, "per-entry delay when sleep simulation is on")

	root.AddCommand(newServeCmd(), newSendCmd())
	return root
}

// loadConfig layers the config file, LEDGER_* variables and explicit flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("accounts") {
		cfg.Accounts, _ = flags.GetInt("accounts")
	}
	if flags.Changed("initial-balance") {
		cfg.InitialBalance, _ = flags.GetInt64("initial-balance")
	}
	if flags.Changed("queue-capacity") {
		cfg.QueueCapacity, _ = flags.GetInt("queue-capacity")
	}
	if flags.Changed("malformed") {
		cfg.Malformed, _ = flags.GetString("malformed")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Address, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("export-dir") {
		cfg.Export.Dir, _ = flags.GetString("export-dir")
	}
	if f := flags.Lookup("source"); f != nil && f.Changed {
		cfg.Source = f.Value.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setup loads the config and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func decoderOptions(cfg *config.Config, logger *zap.Logger, seq *ledger.Sequencer) ([]ledger.Option, error) {
	policy, err := ledger.ParsePolicy(cfg.Malformed)
	if err != nil {
		return nil, err
	}
	return []ledger.Option{
		ledger.WithPolicy(policy),
		ledger.WithSequencer(seq),
		ledger.WithLogger(logger),
	}, nil
}
