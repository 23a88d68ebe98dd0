package output

import (
	"context"

	"github.com/manifest-network/trampoline/internal/models"
)

type OutputHandler interface {
	WriteBlockWithTransactions(ctx context.Context, block *models.Block, transactions []*models.Transaction) error
	GetLatestBlock(ctx context.Context) (*models.Block, error)
	GetMissingBlockIds(ctx context.Context) ([]uint64, error)
	Close() error
}
