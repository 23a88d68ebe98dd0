package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manifest-network/trampoline/sdk/chain"
	"github.com/manifest-network/trampoline/sdk/types"
)

var (
	ErrNoQueryService = errors.New("generator has no query service")
	ErrNoChainService = errors.New("generator has no chain service")
	ErrMissingCellDep = errors.New("no cell holds the code of an input script")
)

// TransactionProvider submits and verifies transactions.
type TransactionProvider interface {
	SendTx(ctx context.Context, tx *types.Transaction) (types.H256, error)
	VerifyTx(ctx context.Context, tx *types.Transaction) error
}

// QueryProvider finds live cells.
type QueryProvider interface {
	Query(ctx context.Context, q types.CellQuery) ([]types.OutPoint, error)
	QueryCellMeta(ctx context.Context, q types.CellQuery) ([]types.CellMeta, error)
}

// QueryRegister collects the input queries of a generation run.
type QueryRegister struct {
	mu      sync.Mutex
	queries []types.CellQuery
}

func (r *QueryRegister) Add(q ...types.CellQuery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q...)
}

func (r *QueryRegister) Queries() []types.CellQuery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.CellQuery(nil), r.queries...)
}

// GeneratorMiddleware is one stage of transaction generation.
type GeneratorMiddleware interface {
	// UpdateQueryRegister adds the input queries the stage needs.
	UpdateQueryRegister(tx *types.CellMetaTransaction, queries *QueryRegister)
	// Pipe transforms the transaction.
	Pipe(ctx context.Context, tx *types.CellMetaTransaction, queries *QueryRegister) (*types.CellMetaTransaction, error)
}

// Generator builds a transaction by running middleware over an empty one.
type Generator struct {
	middleware []GeneratorMiddleware
	chain      chain.Chain
	query      QueryProvider
}

func NewGenerator() *Generator {
	return &Generator{}
}

// Pipeline sets the middleware, run in order.
func (g *Generator) Pipeline(pipes ...GeneratorMiddleware) *Generator {
	g.middleware = pipes
	return g
}

func (g *Generator) ChainService(c chain.Chain) *Generator {
	g.chain = c
	return g
}

func (g *Generator) QueryService(q QueryProvider) *Generator {
	g.query = q
	return g
}

// Query resolves q through the query service.
func (g *Generator) Query(ctx context.Context, q types.CellQuery) ([]types.CellMeta, error) {
	if g.query == nil {
		return nil, ErrNoQueryService
	}
	return g.query.QueryCellMeta(ctx, q)
}

// Generate runs the pipeline over an empty transaction.
func (g *Generator) Generate(ctx context.Context) (*types.CellMetaTransaction, error) {
	return g.Pipe(ctx, types.NewCellMetaTransaction(nil), &QueryRegister{})
}

// GenerateFrom runs the pipeline over tx.
func (g *Generator) GenerateFrom(ctx context.Context, tx *types.Transaction) (*types.CellMetaTransaction, error) {
	return g.Pipe(ctx, types.NewCellMetaTransaction(tx.Clone()), &QueryRegister{})
}

// GenerateAndSend generates a transaction and sends it through the chain
// service.
func (g *Generator) GenerateAndSend(ctx context.Context) (types.H256, *types.CellMetaTransaction, error) {
	if g.chain == nil {
		return types.H256{}, nil, ErrNoChainService
	}
	tx, err := g.Generate(ctx)
	if err != nil {
		return types.H256{}, nil, err
	}
	hash, err := g.chain.SendTx(ctx, tx.Tx)
	if err != nil {
		return types.H256{}, tx, err
	}
	return hash, tx, nil
}

func (g *Generator) UpdateQueryRegister(tx *types.CellMetaTransaction, queries *QueryRegister) {
	for _, m := range g.middleware {
		m.UpdateQueryRegister(tx, queries)
	}
}

// ResolveQueries resolves every registered query, in registration order.
func (g *Generator) ResolveQueries(ctx context.Context, queries *QueryRegister) ([]types.CellMeta, error) {
	var out []types.CellMeta
	for _, q := range queries.Queries() {
		cells, err := g.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve query %s: %w", q.Key(), err)
		}
		out = append(out, cells...)
	}
	return out, nil
}

// Pipe collects the middleware input queries, sets their results as the
// inputs, runs the middleware and adds code deps for the input scripts.
func (g *Generator) Pipe(ctx context.Context, tx *types.CellMetaTransaction, queries *QueryRegister) (*types.CellMetaTransaction, error) {
	g.UpdateQueryRegister(tx, queries)
	inputs, err := g.ResolveQueries(ctx, queries)
	if err != nil {
		return nil, err
	}
	tx = tx.WithInputs(inputs)

	for _, m := range g.middleware {
		if tx, err = m.Pipe(ctx, tx, queries); err != nil {
			return nil, err
		}
	}

	deps, err := g.inputCodeDeps(ctx, tx.Inputs)
	if err != nil {
		return nil, err
	}
	for _, dep := range deps {
		tx.Tx.AddCellDep(dep)
	}
	slog.Debug("Generated transaction", "inputs", len(tx.Tx.Inputs), "outputs", len(tx.Tx.Outputs), "cell_deps", len(tx.Tx.CellDeps))
	return tx, nil
}

// inputCodeDeps finds the code cells of the input lock and type scripts that
// reference code by data hash. Scripts referencing code by type hash need
// their deps added by a middleware.
func (g *Generator) inputCodeDeps(ctx context.Context, inputs []types.CellMeta) ([]types.CellDep, error) {
	var (
		deps []types.CellDep
		seen = map[types.H256]bool{}
	)
	add := func(s *types.Script) error {
		if s == nil || s.HashType == types.HashTypeType || seen[s.CodeHash] {
			return nil
		}
		seen[s.CodeHash] = true
		cells, err := g.Query(ctx, types.CellQuery{Query: types.Single(types.DataHash(s.CodeHash)), Limit: 1})
		if err != nil {
			return err
		}
		if len(cells) == 0 {
			return fmt.Errorf("%w: code hash %s", ErrMissingCellDep, s.CodeHash.Hex())
		}
		deps = append(deps, types.CellDep{OutPoint: cells[0].OutPoint, DepType: types.DepTypeCode})
		return nil
	}
	for _, in := range inputs {
		if err := add(in.Output.Type); err != nil {
			return nil, err
		}
		lock := in.Output.Lock
		if err := add(&lock); err != nil {
			return nil, err
		}
	}
	return deps, nil
}
