package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/manifest-network/trampoline/sdk/account"
	"github.com/manifest-network/trampoline/sdk/rpc"
	"github.com/manifest-network/trampoline/sdk/types"
)

// RpcChain is a Chain backed by a CKB node and a ckb-indexer.
type RpcChain struct {
	client   *rpc.Client
	indexer  *rpc.IndexerClient
	provider *rpc.Provider

	signer      *account.Signer
	feeRate     uint64
	maxRetries  uint
	defaultLock *types.Script
	genesis     *rpc.Block
}

// Option configures an RpcChain.
type Option func(*RpcChain)

// WithSigner sets the key that funds and signs deploy transactions.
func WithSigner(key *account.KeyPair) Option {
	return func(c *RpcChain) { c.signer = account.NewSigner(key) }
}

// WithFeeRate sets the fee rate in shannons per 1000 bytes.
func WithFeeRate(rate uint64) Option {
	return func(c *RpcChain) { c.feeRate = rate }
}

func WithMaxRetries(n uint) Option {
	return func(c *RpcChain) { c.maxRetries = n }
}

// NewRpcChain dials the node and the indexer.
func NewRpcChain(ctx context.Context, ckbURL, indexerURL string, opts ...Option) (*RpcChain, error) {
	c := &RpcChain{feeRate: DefaultFeeRate, maxRetries: 3}
	for _, opt := range opts {
		opt(c)
	}
	client, err := rpc.Dial(ctx, ckbURL)
	if err != nil {
		return nil, &RpcError{Method: "dial", Err: err}
	}
	indexer, err := rpc.DialIndexer(ctx, indexerURL)
	if err != nil {
		client.Close()
		return nil, &RpcError{Method: "dial_indexer", Err: err}
	}
	provider, err := rpc.NewProvider(client, c.maxRetries)
	if err != nil {
		client.Close()
		indexer.Close()
		return nil, err
	}
	c.client, c.indexer, c.provider = client, indexer, provider
	return c, nil
}

func (c *RpcChain) Close() {
	c.client.Close()
	c.indexer.Close()
}

func (c *RpcChain) Client() *rpc.Client {
	return c.client
}

func (c *RpcChain) Tip(ctx context.Context) (*rpc.Header, error) {
	h, err := c.client.TipHeader(ctx)
	if err != nil {
		return nil, &RpcError{Method: "get_tip_header", Err: err}
	}
	return h, nil
}

// Transaction returns a committed transaction.
func (c *RpcChain) Transaction(ctx context.Context, hash types.H256) (*types.Transaction, error) {
	tx, err := c.provider.CommittedTransaction(ctx, hash)
	if errors.Is(err, rpc.ErrTransactionNotFound) || errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotIncluded, hash.Hex())
	}
	if err != nil {
		return nil, &RpcError{Method: "get_transaction", Err: err}
	}
	return tx, nil
}

func (c *RpcChain) GenesisBlock(ctx context.Context) (*rpc.Block, error) {
	if c.genesis != nil {
		return c.genesis, nil
	}
	b, err := c.client.BlockByNumber(ctx, 0)
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && len(b.Transactions) < 2) {
		return nil, ErrGenesisBlockNotFound
	}
	if err != nil {
		return nil, &RpcError{Method: "get_block_by_number", Err: err}
	}
	c.genesis = b
	return b, nil
}

// SetSighashAllAsDefaultLock uses the type script of genesis tx 0 output 1,
// the sighash-all code cell, as the default lock.
func (c *RpcChain) SetSighashAllAsDefaultLock(ctx context.Context) error {
	g, err := c.GenesisBlock(ctx)
	if err != nil {
		return err
	}
	tx0 := g.Transactions[0]
	if len(tx0.Outputs) <= SighashAllOutputIndex || tx0.Outputs[SighashAllOutputIndex].Type == nil {
		return ErrGenesisBlockNotFound
	}
	lock := types.NewScript(tx0.Outputs[SighashAllOutputIndex].Type.Hash(), types.HashTypeType, nil)
	c.defaultLock = &lock
	return nil
}

func (c *RpcChain) DefaultLock() (types.Script, error) {
	if c.defaultLock == nil {
		return types.Script{}, ErrNoDefaultLock
	}
	return c.defaultLock.Clone(), nil
}

// SighashDep is the genesis dep group for sighash-all locks.
func (c *RpcChain) SighashDep(ctx context.Context) (types.CellDep, error) {
	g, err := c.GenesisBlock(ctx)
	if err != nil {
		return types.CellDep{}, err
	}
	return types.CellDep{
		OutPoint: types.OutPoint{TxHash: g.Transactions[1].Hash(), Index: 0},
		DepType:  types.DepTypeDepGroup,
	}, nil
}

func (c *RpcChain) VerifyTx(ctx context.Context, tx *types.Transaction) error {
	if err := NewOutputsDataVerifier(tx).Verify(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionVerification, err)
	}
	cycles, err := c.client.EstimateCycles(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionVerification, &RpcError{Method: "estimate_cycles", Err: err})
	}
	if cycles > MaxCycles {
		return fmt.Errorf("%w: %w: %d", ErrTransactionVerification, ErrExceededMaximumCycles, cycles)
	}
	return nil
}

func (c *RpcChain) SendTx(ctx context.Context, tx *types.Transaction) (types.H256, error) {
	hash, err := c.client.SendTransaction(ctx, tx)
	if err != nil {
		return types.H256{}, fmt.Errorf("%w: %w", ErrTransactionSend, &RpcError{Method: "send_transaction", Err: err})
	}
	slog.Info("Transaction sent", "hash", hash.Hex())
	return hash, nil
}

// ErrUnsupportedQuery is returned for queries the indexer cannot serve.
var ErrUnsupportedQuery = errors.New("query must start with a lock or type script")

// QueryCellMeta answers q through the indexer. The first attribute of the
// statement must be a lock or type script; the rest filter the results.
func (c *RpcChain) QueryCellMeta(ctx context.Context, q types.CellQuery) ([]types.CellMeta, error) {
	if q.Query.Kind == types.StatementAny || len(q.Query.Attributes) == 0 {
		return nil, ErrUnsupportedQuery
	}
	var key rpc.SearchKey
	switch a := q.Query.Attributes[0]; a.Kind {
	case types.AttrLockScript:
		key = rpc.SearchKey{Script: a.Script, ScriptType: rpc.ScriptTypeLock}
	case types.AttrTypeScript:
		key = rpc.SearchKey{Script: a.Script, ScriptType: rpc.ScriptTypeType}
	default:
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedQuery, a.Kind)
	}

	var (
		out    []types.CellMeta
		cursor string
	)
	for {
		page, err := c.indexer.Cells(ctx, key, 100, cursor)
		if err != nil {
			return nil, &RpcError{Method: "get_cells", Err: err}
		}
		for _, cell := range page.Objects {
			meta := cell.CellMeta()
			if !q.Matches(meta) {
				continue
			}
			out = append(out, meta)
			if q.Limit > 0 && len(out) >= q.Limit {
				return out, nil
			}
		}
		if len(page.Objects) == 0 || page.LastCursor == "" || page.LastCursor == cursor {
			return out, nil
		}
		cursor = page.LastCursor
	}
}

func (c *RpcChain) Query(ctx context.Context, q types.CellQuery) ([]types.OutPoint, error) {
	cells, err := c.QueryCellMeta(ctx, q)
	if err != nil {
		return nil, err
	}
	ops := make([]types.OutPoint, len(cells))
	for i, cell := range cells {
		ops[i] = cell.OutPoint
	}
	return ops, nil
}

// CollectCells finds plain cells locked by lock through the indexer.
func (c *RpcChain) CollectCells(ctx context.Context, lock types.Script, capacity types.Capacity) ([]types.CellMeta, error) {
	cells, _, err := c.indexer.CollectCells(ctx, rpc.SearchKey{Script: lock, ScriptType: rpc.ScriptTypeLock}, capacity)
	if err != nil {
		return nil, &RpcError{Method: "get_cells", Err: err}
	}
	return cells, nil
}

func (c *RpcChain) DeployCell(ctx context.Context, cell *types.Cell, inputs CellInputs) (types.OutPoint, error) {
	ops, err := c.DeployCells(ctx, []*types.Cell{cell}, inputs)
	if err != nil {
		return types.OutPoint{}, err
	}
	return ops[0], nil
}

// DeployCells creates cells in one transaction funded from inputs, or from
// the signer's own cells when inputs is empty.
func (c *RpcChain) DeployCells(ctx context.Context, cells []*types.Cell, inputs CellInputs) ([]types.OutPoint, error) {
	if c.signer == nil {
		return nil, ErrMissingSigner
	}
	funding := c.signer.Lock()
	if !inputs.IsEmpty() {
		funding = inputs.Script.Clone()
	}

	dep, err := c.SighashDep(ctx)
	if err != nil {
		return nil, err
	}
	b := NewTransactionBuilder().AddCellDep(dep)
	for i, cell := range cells {
		if err := cell.Validate(); err != nil {
			return nil, fmt.Errorf("invalid cell %d: %w", i, err)
		}
		b.AddCell(cell)
	}
	if err := b.Balance(ctx, c, funding, c.feeRate); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInputs, err)
	}
	if err := b.Unlock(c.signer); err != nil {
		if errors.Is(err, ErrUnsignedGroups) {
			return nil, fmt.Errorf("%w: %w", ErrDeployCellTxHasLockedGroups, err)
		}
		return nil, err
	}

	tx := b.Build()
	hash, err := c.SendTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	ops := make([]types.OutPoint, len(cells))
	for i := range cells {
		ops[i] = types.OutPoint{TxHash: hash, Index: uint32(i)}
	}
	return ops, nil
}

// SetDefaultLock deploys the lock code and uses it, by data1 hash, as the
// default lock.
func (c *RpcChain) SetDefaultLock(ctx context.Context, cell *types.Cell) error {
	if _, err := c.DeployCell(ctx, cell, EmptyInputs()); err != nil {
		return err
	}
	lock := types.NewScript(cell.DataHash(), types.HashTypeData1, nil)
	c.defaultLock = &lock
	return nil
}

func (c *RpcChain) GenerateCellWithDefaultLock(args []byte) (*types.Cell, error) {
	lock, err := c.DefaultLock()
	if err != nil {
		return nil, err
	}
	lock.SetArgs(args)
	return types.NewCellWithLock(lock), nil
}
