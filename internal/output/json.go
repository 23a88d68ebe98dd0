package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/manifest-network/trampoline/internal/models"
)

type JSONOutputHandler struct {
	blockDir string
	txDir    string
}

func NewJSONOutputHandler(outDir string) (*JSONOutputHandler, error) {
	blockDir := filepath.Join(outDir, "blocks")
	txDir := filepath.Join(outDir, "txs")

	err := os.MkdirAll(blockDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create blocks directory: %w", err)
	}

	err = os.MkdirAll(txDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactions directory: %w", err)
	}

	return &JSONOutputHandler{
		blockDir: blockDir,
		txDir:    txDir,
	}, nil
}

func (h *JSONOutputHandler) WriteBlockWithTransactions(_ context.Context, block *models.Block, transactions []*models.Transaction) error {
	if err := h.writeBlock(block); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}

	for _, tx := range transactions {
		if err := h.writeTransaction(tx); err != nil {
			return fmt.Errorf("failed to write transaction: %w", err)
		}
	}

	return nil
}

func (h *JSONOutputHandler) writeBlock(block *models.Block) error {
	fileName := fmt.Sprintf("block_%d.json", block.ID)
	filePath := filepath.Join(h.blockDir, fileName)
	return os.WriteFile(filePath, block.Data, 0644)
}

func (h *JSONOutputHandler) writeTransaction(tx *models.Transaction) error {
	fileName := fmt.Sprintf("%s.json", tx.Hash)
	filePath := filepath.Join(h.txDir, fileName)
	return os.WriteFile(filePath, tx.Data, 0644)
}

// blockIds lists the block numbers already written, in ascending order.
func (h *JSONOutputHandler) blockIds() ([]uint64, error) {
	entries, err := os.ReadDir(h.blockDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read blocks directory: %w", err)
	}
	var ids []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "block_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, "block_"), ".json"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (h *JSONOutputHandler) GetLatestBlock(_ context.Context) (*models.Block, error) {
	ids, err := h.blockIds()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &models.Block{ID: ids[len(ids)-1]}, nil
}

// GetMissingBlockIds returns the gaps between the lowest and highest
// written block.
func (h *JSONOutputHandler) GetMissingBlockIds(_ context.Context) ([]uint64, error) {
	ids, err := h.blockIds()
	if err != nil {
		return nil, err
	}
	var missing []uint64
	for i := 1; i < len(ids); i++ {
		for id := ids[i-1] + 1; id < ids[i]; id++ {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (h *JSONOutputHandler) Close() error {
	return nil
}
