package chain

import (
	"context"
	"log/slog"

	"github.com/manifest-network/trampoline/sdk/types"
)

// MockChainTxProvider exposes a MockChain as a transaction and query provider.
type MockChainTxProvider struct {
	Chain *MockChain
}

func NewMockChainTxProvider(chain *MockChain) *MockChainTxProvider {
	return &MockChainTxProvider{Chain: chain}
}

func (p *MockChainTxProvider) SendTx(ctx context.Context, tx *types.Transaction) (types.H256, error) {
	return p.Chain.SendTx(ctx, tx)
}

func (p *MockChainTxProvider) VerifyTx(ctx context.Context, tx *types.Transaction) error {
	err := p.Chain.VerifyTx(ctx, tx)
	if err != nil {
		slog.Debug("Transaction verification failed", "error", err)
	}
	return err
}

// Query returns the out points of live cells matching q, in creation order.
func (p *MockChainTxProvider) Query(ctx context.Context, q types.CellQuery) ([]types.OutPoint, error) {
	cells, err := p.QueryCellMeta(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]types.OutPoint, len(cells))
	for i, c := range cells {
		out[i] = c.OutPoint
	}
	return out, nil
}

// QueryCellMeta returns the live cells matching q, in creation order.
func (p *MockChainTxProvider) QueryCellMeta(ctx context.Context, q types.CellQuery) ([]types.CellMeta, error) {
	var out []types.CellMeta
	for _, cell := range p.candidates(q.Query) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !q.Matches(cell) {
			continue
		}
		out = append(out, cell)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// candidates narrows the scan through the chain indexes when the statement
// is anchored on a lock or type script.
func (p *MockChainTxProvider) candidates(s types.QueryStatement) []types.CellMeta {
	if s.Kind == types.StatementAny || len(s.Attributes) == 0 {
		return p.Chain.LiveCells()
	}
	var ops []types.OutPoint
	switch a := s.Attributes[0]; a.Kind {
	case types.AttrLockHash:
		ops = p.Chain.CellsByLockHash(a.Hash)
	case types.AttrLockScript:
		ops = p.Chain.CellsByLockHash(a.Script.Hash())
	case types.AttrTypeScript:
		ops = p.Chain.CellsByTypeHash(a.Script.Hash())
	default:
		return p.Chain.LiveCells()
	}
	out := make([]types.CellMeta, 0, len(ops))
	for _, op := range ops {
		if cell, ok := p.Chain.GetCell(op); ok {
			out = append(out, cell)
		}
	}
	return out
}

// CollectCells returns plain cells locked by lock holding at least capacity
// in total, or every such cell when there is not enough.
func (c *MockChain) CollectCells(ctx context.Context, lock types.Script, capacity types.Capacity) ([]types.CellMeta, error) {
	var (
		out   []types.CellMeta
		total types.Capacity
		err   error
	)
	for _, op := range c.CellsByLockHash(lock.Hash()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cell, ok := c.GetCell(op)
		if !ok || cell.Output.Type != nil || len(cell.Data) > 0 {
			continue
		}
		out = append(out, cell)
		if total, err = total.SafeAdd(cell.Output.Capacity); err != nil {
			return nil, err
		}
		if total >= capacity {
			break
		}
	}
	return out, nil
}
