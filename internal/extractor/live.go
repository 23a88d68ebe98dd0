package extractor

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/manifest-network/trampoline/internal/config"
	"github.com/manifest-network/trampoline/internal/output"
)

// extractLiveBlocksAndTransactions catches up to stop, then follows the tip
// every BlockTime seconds until ctx is cancelled.
func extractLiveBlocksAndTransactions(ctx context.Context, source BlockSource, start, stop uint64, outputHandler output.OutputHandler, cfg config.ExtractConfig) error {
	next := start
	latest := stop
	ticker := time.NewTicker(time.Duration(cfg.BlockTime) * time.Second)
	defer ticker.Stop()

	for {
		if latest >= next {
			err := extractBlocksAndTransactions(ctx, source, next, latest, outputHandler, cfg.MaxConcurrency, cfg.MaxRetries)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.WithMessage(err, "Failed to process blocks and transactions")
			}
			next = latest + 1
		}

		select {
		case <-ctx.Done():
			slog.Info("Live extraction stopped", "next", next)
			return nil
		case <-ticker.C:
		}

		tip, err := getTipWithRetry(ctx, source, cfg.MaxRetries)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.WithMessage(err, "Failed to get latest block height")
		}
		latest = tip
	}
}
