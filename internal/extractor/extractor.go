package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/manifest-network/trampoline/internal/config"
	"github.com/manifest-network/trampoline/internal/output"
	"github.com/manifest-network/trampoline/sdk/rpc"
)

// BlockSource is the part of the node RPC the extractor reads from.
type BlockSource interface {
	TipBlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*rpc.Block, error)
}

var _ BlockSource = (*rpc.Client)(nil)

// Extract dials the node at cfg.RpcURL and extracts blocks and transactions
// into outputHandler until the range is done or, in live mode, the process
// is interrupted.
func Extract(outputHandler output.OutputHandler, cfg config.ExtractConfig) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handleInterrupt(cancel)

	slog.Info("Connecting to CKB node", "rpc", cfg.RpcURL)
	client, err := rpc.Dial(ctx, cfg.RpcURL)
	if err != nil {
		return fmt.Errorf("failed to connect to node: %w", err)
	}
	defer client.Close()

	return Run(ctx, client, outputHandler, cfg)
}

// Run extracts from source using an already established connection.
func Run(ctx context.Context, source BlockSource, outputHandler output.OutputHandler, cfg config.ExtractConfig) error {
	// Check if the missing block check should be skipped before setting the block range
	skipMissingBlockCheck := shouldSkipMissingBlockCheck(cfg)

	start, stop, err := setBlockRange(ctx, source, outputHandler, cfg)
	if err != nil {
		return err
	}

	if !skipMissingBlockCheck {
		if err := processMissingBlocks(ctx, source, outputHandler, cfg); err != nil {
			return err
		}
	}

	if cfg.LiveMonitoring {
		slog.Info("Starting live extraction", "block_time", cfg.BlockTime)
		if err := extractLiveBlocksAndTransactions(ctx, source, start, stop, outputHandler, cfg); err != nil {
			return fmt.Errorf("failed to process live blocks and transactions: %w", err)
		}
		return nil
	}

	if start > stop {
		slog.Info("Index is up to date", "tip", stop)
		return nil
	}
	slog.Info("Starting extraction", "start", start, "stop", stop)
	if err := extractBlocksAndTransactions(ctx, source, start, stop, outputHandler, cfg.MaxConcurrency, cfg.MaxRetries); err != nil {
		return fmt.Errorf("failed to process blocks and transactions: %w", err)
	}
	return nil
}

// handleInterrupt handles interrupt signals for graceful shutdown.
func handleInterrupt(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		slog.Info("Received interrupt signal, shutting down...")
		cancel()
	}()
}

// setBlockRange computes the block range to extract.
// When the start block is not set, extraction resumes after the latest
// stored block, or from genesis on an empty output.
// When the stop block is not set, it is the tip of the node.
// A start block past the tip is returned as is; the caller decides whether
// there is anything to do.
func setBlockRange(ctx context.Context, source BlockSource, outputHandler output.OutputHandler, cfg config.ExtractConfig) (uint64, uint64, error) {
	start, stop := cfg.BlockStart, cfg.BlockStop

	if cfg.ReIndex {
		slog.Info("Reindexing from genesis...")
		start, stop = 0, 0
	} else if start == 0 {
		latestLocalBlock, err := outputHandler.GetLatestBlock(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get the latest block: %w", err)
		}
		if latestLocalBlock != nil {
			start = latestLocalBlock.ID + 1
		}
	}

	if stop == 0 {
		tip, err := getTipWithRetry(ctx, source, cfg.MaxRetries)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get the latest block: %w", err)
		}
		stop = tip
		if cfg.BlockStart != 0 && cfg.BlockStart > stop {
			return 0, 0, fmt.Errorf("start block %d is greater than the tip %d", cfg.BlockStart, stop)
		}
	}

	return start, stop, nil
}

// shouldSkipMissingBlockCheck returns true if the missing block check should be skipped.
func shouldSkipMissingBlockCheck(cfg config.ExtractConfig) bool {
	return (cfg.BlockStart != 0 && cfg.BlockStop != 0) || cfg.ReIndex
}
