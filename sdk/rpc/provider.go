package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	pkgerrors "github.com/pkg/errors"

	"github.com/manifest-network/trampoline/sdk/types"
)

const cacheSize = 20

var (
	ErrCellNotLive         = errors.New("cell is not live")
	ErrTransactionNotFound = errors.New("transaction is not committed")
)

// Node is the subset of Client used by Provider.
type Node interface {
	Transaction(ctx context.Context, hash types.H256) (*TransactionWithStatus, error)
	LiveCell(ctx context.Context, op types.OutPoint, withData bool) (*CellWithStatus, error)
	Header(ctx context.Context, hash types.H256) (*Header, error)
}

// Provider resolves transactions, live cells and headers through a small
// LRU cache in front of the node.
type Provider struct {
	node       Node
	maxRetries uint
	retryDelay time.Duration

	txs     *lru.Cache[types.H256, *types.Transaction]
	cells   *lru.Cache[types.OutPoint, types.CellMeta]
	headers *lru.Cache[types.H256, *Header]
}

// NewProvider wraps node. maxRetries of 0 is treated as 1.
func NewProvider(node Node, maxRetries uint) (*Provider, error) {
	txs, err := lru.New[types.H256, *types.Transaction](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction cache: %w", err)
	}
	cells, err := lru.New[types.OutPoint, types.CellMeta](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cell cache: %w", err)
	}
	headers, err := lru.New[types.H256, *Header](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create header cache: %w", err)
	}
	if maxRetries == 0 {
		maxRetries = 1
	}
	return &Provider{
		node:       node,
		maxRetries: maxRetries,
		retryDelay: 2 * time.Second,
		txs:        txs,
		cells:      cells,
		headers:    headers,
	}, nil
}

// SetRetryDelay changes the base delay between attempts.
func (p *Provider) SetRetryDelay(d time.Duration) {
	p.retryDelay = d
}

// CommittedTransaction returns a transaction that has been committed to a block.
func (p *Provider) CommittedTransaction(ctx context.Context, hash types.H256) (*types.Transaction, error) {
	if tx, ok := p.txs.Get(hash); ok {
		return tx, nil
	}
	var res *TransactionWithStatus
	err := p.retry(ctx, "get transaction", func() error {
		var err error
		res, err = p.node.Transaction(ctx, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.TxStatus.Status != StatusCommitted || res.Transaction == nil {
		return nil, fmt.Errorf("%w: %s has status %s", ErrTransactionNotFound, hash, res.TxStatus.Status)
	}
	p.txs.Add(hash, res.Transaction)
	return res.Transaction, nil
}

// LiveCell returns the live cell at op with its data.
func (p *Provider) LiveCell(ctx context.Context, op types.OutPoint) (types.CellMeta, error) {
	if cell, ok := p.cells.Get(op); ok {
		return cell, nil
	}
	var res *CellWithStatus
	err := p.retry(ctx, "get live cell", func() error {
		var err error
		res, err = p.node.LiveCell(ctx, op, true)
		return err
	})
	if err != nil {
		return types.CellMeta{}, err
	}
	if res.Status != CellStatusLive || res.Cell == nil {
		return types.CellMeta{}, fmt.Errorf("%w: %s has status %s", ErrCellNotLive, op, res.Status)
	}
	cell := types.CellMeta{OutPoint: op, Output: res.Cell.Output}
	if res.Cell.Data != nil {
		cell.Data = res.Cell.Data.Content
	}
	p.cells.Add(op, cell)
	return cell, nil
}

func (p *Provider) Header(ctx context.Context, hash types.H256) (*Header, error) {
	if h, ok := p.headers.Get(hash); ok {
		return h, nil
	}
	var h *Header
	err := p.retry(ctx, "get header", func() error {
		var err error
		h, err = p.node.Header(ctx, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.headers.Add(hash, h)
	return h, nil
}

// ResolveInputs resolves every input of tx into live cell metadata.
func (p *Provider) ResolveInputs(ctx context.Context, tx *types.Transaction) ([]types.CellMeta, error) {
	out := make([]types.CellMeta, len(tx.Inputs))
	for i, in := range tx.Inputs {
		cell, err := p.LiveCell(ctx, in.PreviousOutput)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve input %d: %w", i, err)
		}
		out[i] = cell
	}
	return out, nil
}

// ResolveCellDep returns the cell referenced by a committed transaction output.
func (p *Provider) ResolveCellDep(ctx context.Context, op types.OutPoint) (types.CellMeta, error) {
	tx, err := p.CommittedTransaction(ctx, op.TxHash)
	if err != nil {
		return types.CellMeta{}, err
	}
	output, data, err := tx.OutputWithData(int(op.Index))
	if err != nil {
		return types.CellMeta{}, err
	}
	return types.CellMeta{OutPoint: op, Output: output, Data: data}, nil
}

func (p *Provider) retry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := uint(1); attempt <= p.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || attempt == p.maxRetries {
			break
		}
		slog.Warn("Retrying RPC call", "call", what, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * p.retryDelay):
		}
	}
	return pkgerrors.WithMessage(err, fmt.Sprintf("Failed after %d retries", p.maxRetries))
}
