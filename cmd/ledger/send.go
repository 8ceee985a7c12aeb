package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraLedger-Engine/ledger"
	"github.com/VanDung-dev/HieraLedger-Engine/network"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Push a ledger file to a running feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, args[0])
		},
	}
	cmd.Flags().String("addr", "tcp://127.0.0.1:7070", "feed address")
	cmd.Flags().Int("batch-size", network.DefaultBatchSize, "entries per message")
	cmd.Flags().String("sender-id", "", "sender id (default random)")
	return cmd
}

func runSend(cmd *cobra.Command, path string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer f.Close()

	// Ids are reassigned by the feed.
	opts, err := decoderOptions(cfg, logger, ledger.NewSequencer(0))
	if err != nil {
		return err
	}
	entries, err := ledger.NewDecoder(f, opts...).ReadAll()
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	batch, _ := cmd.Flags().GetInt("batch-size")
	id, _ := cmd.Flags().GetString("sender-id")

	sender, err := network.NewSender(cmd.Context(), addr,
		network.WithBatchSize(batch),
		network.WithSenderID(id),
		network.WithSenderLogger(logger))
	if err != nil {
		return err
	}
	defer sender.Close()

	if err := sender.Send(entries); err != nil {
		return err
	}
	if err := sender.Finish(); err != nil {
		return err
	}
	logger.Info("ledger sent", zap.String("file", path), zap.Int("entries", sender.Sent()), zap.String("addr", addr))
	return nil
}
