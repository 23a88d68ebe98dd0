package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/trampoline/internal/config"
	"github.com/manifest-network/trampoline/internal/models"
	"github.com/manifest-network/trampoline/internal/output"
)

// retryDelay is multiplied by the attempt number between retries.
var retryDelay = 2 * time.Second

// extractBlocksAndTransactions extracts blocks and transactions in [start, stop].
func extractBlocksAndTransactions(ctx context.Context, source BlockSource, start, stop uint64, outputHandler output.OutputHandler, maxConcurrency, maxRetries uint) error {
	displayProgress := start != stop
	if displayProgress {
		slog.Info("Extracting blocks and transactions", "range", fmt.Sprintf("[%d, %d]", start, stop))
	} else {
		slog.Info("Extracting blocks and transactions", "height", start)
	}
	var bar *progressbar.ProgressBar
	if displayProgress {
		bar = progressbar.NewOptions64(
			int64(stop-start+1),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Processing blocks..."),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	if err := processBlocks(ctx, source, start, stop, outputHandler, maxConcurrency, maxRetries, bar); err != nil {
		return fmt.Errorf("failed to process blocks and transactions: %w", err)
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}

	return nil
}

// processMissingBlocks fills the gaps left in the output by an earlier run.
func processMissingBlocks(ctx context.Context, source BlockSource, outputHandler output.OutputHandler, cfg config.ExtractConfig) error {
	missingBlockIds, err := outputHandler.GetMissingBlockIds(ctx)
	if err != nil {
		return fmt.Errorf("failed to get missing block IDs: %w", err)
	}

	if len(missingBlockIds) > 0 {
		slog.Warn("Missing blocks detected", "count", len(missingBlockIds))
		for _, blockID := range missingBlockIds {
			if err := processSingleBlockWithRetry(ctx, source, blockID, outputHandler, cfg.MaxRetries); err != nil {
				return fmt.Errorf("failed to process missing block %d: %w", blockID, err)
			}
		}
	}
	return nil
}

// processBlocks processes blocks in parallel using goroutines.
func processBlocks(ctx context.Context, source BlockSource, start, stop uint64, outputHandler output.OutputHandler, maxConcurrency, maxRetries uint, bar *progressbar.ProgressBar) error {
	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrency)

	for height := start; height <= stop; height++ {
		if egCtx.Err() != nil {
			slog.Info("Processing cancelled")
			break
		}

		blockHeight := height
		sem <- struct{}{}

		eg.Go(func() error {
			defer func() { <-sem }()

			err := processSingleBlockWithRetry(egCtx, source, blockHeight, outputHandler, maxRetries)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Error("Block processing error",
						"height", blockHeight,
						"error", err,
						"errorType", fmt.Sprintf("%T", err))
					return err
				}
				return fmt.Errorf("failed to process block %d: %w", blockHeight, err)
			}

			if bar != nil {
				if err := bar.Add(1); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("error while fetching blocks: %w", err)
	}
	return ctx.Err()
}

// processSingleBlockWithRetry fetches a block from the node with retries
// and writes it with its transactions to the output handler.
func processSingleBlockWithRetry(ctx context.Context, source BlockSource, blockHeight uint64, outputHandler output.OutputHandler, maxRetries uint) error {
	var block *models.Block
	var transactions []*models.Transaction
	err := withRetry(ctx, maxRetries, fmt.Sprintf("fetching block %d", blockHeight), func() error {
		b, err := source.BlockByNumber(ctx, blockHeight)
		if err != nil {
			return err
		}
		block, transactions, err = models.FromRPCBlock(b)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get block data: %w", err)
	}

	if err := outputHandler.WriteBlockWithTransactions(ctx, block, transactions); err != nil {
		return fmt.Errorf("failed to write block with transactions: %w", err)
	}

	return nil
}

func getTipWithRetry(ctx context.Context, source BlockSource, maxRetries uint) (uint64, error) {
	var tip uint64
	err := withRetry(ctx, maxRetries, "getting latest block height", func() error {
		var err error
		tip, err = source.TipBlockNumber(ctx)
		return err
	})
	return tip, err
}

// withRetry runs fn up to maxRetries times, sleeping 2*attempt seconds
// between attempts.
func withRetry(ctx context.Context, maxRetries uint, what string, fn func() error) error {
	var err error
	for attempt := uint(1); attempt <= maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("Retrying "+what, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryDelay):
		}
	}
	if err == nil {
		err = fmt.Errorf("no attempt made")
	}
	return pkgerrors.WithMessage(err, fmt.Sprintf("Failed %s after %d retries", what, maxRetries))
}
