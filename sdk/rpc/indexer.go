package rpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/manifest-network/trampoline/sdk/types"
)

const defaultPageSize = 100

// IndexerClient is a ckb-indexer JSON-RPC client.
type IndexerClient struct {
	c *gethrpc.Client
}

func DialIndexer(ctx context.Context, url string) (*IndexerClient, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial indexer %s: %w", url, err)
	}
	return &IndexerClient{c: c}, nil
}

func (c *IndexerClient) Close() {
	c.c.Close()
}

func (c *IndexerClient) Tip(ctx context.Context) (*IndexerTip, error) {
	var tip *IndexerTip
	if err := c.c.CallContext(ctx, &tip, "get_tip"); err != nil {
		return nil, fmt.Errorf("failed to get indexer tip: %w", err)
	}
	if tip == nil {
		return nil, fmt.Errorf("indexer tip: %w", ErrNotFound)
	}
	return tip, nil
}

// Cells returns one page of cells matching key in ascending order. An empty
// cursor starts from the beginning.
func (c *IndexerClient) Cells(ctx context.Context, key SearchKey, limit uint64, cursor string) (*Cells, error) {
	var cells Cells
	var after any
	if cursor != "" {
		after = cursor
	}
	if err := c.c.CallContext(ctx, &cells, "get_cells", key, "asc", hexutil.Uint64(limit), after); err != nil {
		return nil, fmt.Errorf("failed to get cells: %w", err)
	}
	return &cells, nil
}

// CollectCells pages through the indexer until it has cells holding at least
// capacity, or the results are exhausted.
func (c *IndexerClient) CollectCells(ctx context.Context, key SearchKey, capacity types.Capacity) ([]types.CellMeta, types.Capacity, error) {
	var (
		out    []types.CellMeta
		total  types.Capacity
		cursor string
	)
	for {
		page, err := c.Cells(ctx, key, defaultPageSize, cursor)
		if err != nil {
			return nil, 0, err
		}
		for _, cell := range page.Objects {
			// Cells carrying a type script or data are not plain capacity.
			if cell.Output.Type != nil || len(cell.OutputData) > 0 {
				continue
			}
			out = append(out, cell.CellMeta())
			if total, err = total.SafeAdd(cell.Output.Capacity); err != nil {
				return nil, 0, err
			}
			if total >= capacity {
				return out, total, nil
			}
		}
		if len(page.Objects) == 0 || page.LastCursor == "" || page.LastCursor == cursor {
			return out, total, nil
		}
		cursor = page.LastCursor
	}
}

func (c *IndexerClient) CellsCapacity(ctx context.Context, key SearchKey) (*CellsCapacity, error) {
	var capacity *CellsCapacity
	if err := c.c.CallContext(ctx, &capacity, "get_cells_capacity", key); err != nil {
		return nil, fmt.Errorf("failed to get cells capacity: %w", err)
	}
	if capacity == nil {
		return &CellsCapacity{}, nil
	}
	return capacity, nil
}
