// Package chain abstracts a CKB chain: an in-memory MockChain for tests and
// an RpcChain backed by a node and an indexer.
package chain

import (
	"context"

	"github.com/manifest-network/trampoline/sdk/types"
)

// MaxCycles bounds the cycles a transaction may consume during verification.
const MaxCycles uint64 = 5_000_000

// Chain deploys cells and verifies or submits transactions.
type Chain interface {
	VerifyTx(ctx context.Context, tx *types.Transaction) error
	SendTx(ctx context.Context, tx *types.Transaction) (types.H256, error)
	DeployCell(ctx context.Context, cell *types.Cell, inputs CellInputs) (types.OutPoint, error)
	DeployCells(ctx context.Context, cells []*types.Cell, inputs CellInputs) ([]types.OutPoint, error)
	SetDefaultLock(ctx context.Context, cell *types.Cell) error
	GenerateCellWithDefaultLock(args []byte) (*types.Cell, error)
}

// CellInputs selects where deploy transactions take their capacity from.
// A nil Script means the chain's own default.
type CellInputs struct {
	Script *types.Script
}

// ScriptQuery funds a deployment from cells locked by script.
func ScriptQuery(script types.Script) CellInputs {
	return CellInputs{Script: types.CloneScriptPtr(&script)}
}

// EmptyInputs lets the chain pick the funding cells.
func EmptyInputs() CellInputs {
	return CellInputs{}
}

func (c CellInputs) IsEmpty() bool {
	return c.Script == nil
}

// Message is a debug message emitted by a script during verification.
type Message struct {
	ScriptHash types.H256
	Message    string
}

// OutputsDataVerifier checks that every output has a data entry.
type OutputsDataVerifier struct {
	tx *types.Transaction
}

func NewOutputsDataVerifier(tx *types.Transaction) OutputsDataVerifier {
	return OutputsDataVerifier{tx: tx}
}

func (v OutputsDataVerifier) Verify() error {
	if len(v.tx.Outputs) != len(v.tx.OutputsData) {
		return &OutputsDataLengthMismatchError{OutputsLen: len(v.tx.Outputs), OutputsDataLen: len(v.tx.OutputsData)}
	}
	return nil
}
