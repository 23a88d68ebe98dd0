// Package rpc talks to a CKB node and a ckb-indexer over JSON-RPC.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/manifest-network/trampoline/sdk/types"
)

// ErrNotFound is returned when the node answers null for a lookup.
var ErrNotFound = errors.New("not found")

// Client is a CKB node JSON-RPC client.
type Client struct {
	c *gethrpc.Client
}

// Dial connects to the node RPC at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &Client{c: c}, nil
}

func (c *Client) Close() {
	c.c.Close()
}

// Call issues a raw JSON-RPC call.
func (c *Client) Call(ctx context.Context, result any, method string, args ...any) error {
	return c.c.CallContext(ctx, result, method, args...)
}

func (c *Client) TipBlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.c.CallContext(ctx, &n, "get_tip_block_number"); err != nil {
		return 0, fmt.Errorf("failed to get tip block number: %w", err)
	}
	return uint64(n), nil
}

func (c *Client) TipHeader(ctx context.Context) (*Header, error) {
	var h *Header
	if err := c.c.CallContext(ctx, &h, "get_tip_header"); err != nil {
		return nil, fmt.Errorf("failed to get tip header: %w", err)
	}
	if h == nil {
		return nil, ErrNotFound
	}
	return h, nil
}

func (c *Client) Header(ctx context.Context, hash types.H256) (*Header, error) {
	var h *Header
	if err := c.c.CallContext(ctx, &h, "get_header", hash); err != nil {
		return nil, fmt.Errorf("failed to get header %s: %w", hash, err)
	}
	if h == nil {
		return nil, fmt.Errorf("header %s: %w", hash, ErrNotFound)
	}
	return h, nil
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	var b *Block
	if err := c.c.CallContext(ctx, &b, "get_block_by_number", hexutil.Uint64(number)); err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	if b == nil {
		return nil, fmt.Errorf("block %d: %w", number, ErrNotFound)
	}
	return b, nil
}

func (c *Client) Block(ctx context.Context, hash types.H256) (*Block, error) {
	var b *Block
	if err := c.c.CallContext(ctx, &b, "get_block", hash); err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", hash, err)
	}
	if b == nil {
		return nil, fmt.Errorf("block %s: %w", hash, ErrNotFound)
	}
	return b, nil
}

func (c *Client) Transaction(ctx context.Context, hash types.H256) (*TransactionWithStatus, error) {
	var tx *TransactionWithStatus
	if err := c.c.CallContext(ctx, &tx, "get_transaction", hash); err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction %s: %w", hash, ErrNotFound)
	}
	return tx, nil
}

func (c *Client) LiveCell(ctx context.Context, op types.OutPoint, withData bool) (*CellWithStatus, error) {
	var cell CellWithStatus
	if err := c.c.CallContext(ctx, &cell, "get_live_cell", op, withData); err != nil {
		return nil, fmt.Errorf("failed to get live cell %s: %w", op, err)
	}
	return &cell, nil
}

// SendTransaction submits tx with the passthrough outputs validator.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (types.H256, error) {
	var hash types.H256
	if err := c.c.CallContext(ctx, &hash, "send_transaction", tx, "passthrough"); err != nil {
		return types.H256{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return hash, nil
}

func (c *Client) EstimateCycles(ctx context.Context, tx *types.Transaction) (uint64, error) {
	var cycles Cycles
	if err := c.c.CallContext(ctx, &cycles, "estimate_cycles", tx); err != nil {
		return 0, fmt.Errorf("failed to estimate cycles: %w", err)
	}
	return uint64(cycles.Cycles), nil
}

func (c *Client) BlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	var info BlockchainInfo
	if err := c.c.CallContext(ctx, &info, "get_blockchain_info"); err != nil {
		return nil, fmt.Errorf("failed to get blockchain info: %w", err)
	}
	return &info, nil
}
