package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifest-network/trampoline/sdk/account"
	"github.com/manifest-network/trampoline/sdk/types"
)

// DefaultFeeRate is the fee rate in shannons per 1000 bytes.
const DefaultFeeRate uint64 = 1_000

var (
	ErrInsufficientCapacity = errors.New("insufficient capacity to balance transaction")
	ErrUnsignedGroups       = errors.New("transaction has lock groups no signer can unlock")
)

// CellCollector finds plain capacity cells locked by lock.
type CellCollector interface {
	CollectCells(ctx context.Context, lock types.Script, capacity types.Capacity) ([]types.CellMeta, error)
}

// TransactionBuilder assembles a transaction, funds it and signs it.
type TransactionBuilder struct {
	tx     *types.Transaction
	inputs []types.CellMeta
}

func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{tx: &types.Transaction{}}
}

// AddOutput appends an output, raising its capacity to what it occupies.
func (b *TransactionBuilder) AddOutput(output types.CellOutput, data []byte) *TransactionBuilder {
	if required := output.OccupiedCapacity(len(data)); output.Capacity < required {
		output.Capacity = required
	}
	b.tx.AddOutput(output, data)
	return b
}

// AddCell appends cell as an output.
func (b *TransactionBuilder) AddCell(cell *types.Cell) *TransactionBuilder {
	return b.AddOutput(cell.Output(), cell.Data)
}

// AddInput spends a resolved cell.
func (b *TransactionBuilder) AddInput(cell types.CellMeta) *TransactionBuilder {
	for _, in := range b.inputs {
		if in.OutPoint == cell.OutPoint {
			return b
		}
	}
	b.inputs = append(b.inputs, cell)
	b.tx.AddInput(types.CellInput{PreviousOutput: cell.OutPoint})
	return b
}

func (b *TransactionBuilder) AddCellDep(dep types.CellDep) *TransactionBuilder {
	b.tx.AddCellDep(dep)
	return b
}

func (b *TransactionBuilder) AddHeaderDep(hash types.H256) *TransactionBuilder {
	b.tx.HeaderDeps = append(b.tx.HeaderDeps, hash)
	return b
}

// Inputs returns the resolved inputs in transaction order.
func (b *TransactionBuilder) Inputs() []types.CellMeta {
	return append([]types.CellMeta(nil), b.inputs...)
}

// Build returns a copy of the transaction built so far.
func (b *TransactionBuilder) Build() *types.Transaction {
	return b.tx.Clone()
}

func sumInputs(cells []types.CellMeta) (types.Capacity, error) {
	var total types.Capacity
	var err error
	for _, c := range cells {
		if total, err = total.SafeAdd(c.Output.Capacity); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func sumOutputs(outputs []types.CellOutput) (types.Capacity, error) {
	var total types.Capacity
	var err error
	for _, o := range outputs {
		if total, err = total.SafeAdd(o.Capacity); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Fee returns the fee for a transaction of size bytes at feeRate shannons/KB,
// rounded up.
func Fee(size, feeRate uint64) types.Capacity {
	return types.Capacity((size*feeRate + 999) / 1000)
}

// withPlaceholders returns tx with a change output and one 65 byte signature
// placeholder per lock group, used to size the fee.
func (b *TransactionBuilder) withPlaceholders(change types.CellOutput) *types.Transaction {
	tx := b.tx.Clone()
	tx.AddOutput(change, nil)
	tx.Witnesses = make([]types.Bytes, len(tx.Inputs))
	seen := map[types.H256]bool{}
	for i, in := range b.inputs {
		h := in.Output.Lock.Hash()
		if seen[h] {
			tx.Witnesses[i] = types.Bytes{}
			continue
		}
		seen[h] = true
		tx.Witnesses[i] = types.WitnessArgs{Lock: make([]byte, account.SignatureSize)}.Serialize()
	}
	return tx
}

// Balance adds inputs from collector until the inputs pay for the outputs and
// the fee, then adds a change output locked by changeLock. feeRate is in
// shannons per 1000 bytes; 0 selects DefaultFeeRate.
func (b *TransactionBuilder) Balance(ctx context.Context, collector CellCollector, changeLock types.Script, feeRate uint64) error {
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}
	change := types.CellOutput{Lock: changeLock.Clone()}
	changeMin := change.OccupiedCapacity(0)

	for attempt := 0; attempt < 2; attempt++ {
		have, err := sumInputs(b.inputs)
		if err != nil {
			return err
		}
		spend, err := sumOutputs(b.tx.Outputs)
		if err != nil {
			return err
		}
		fee := Fee(b.withPlaceholders(change).Size(), feeRate)
		need, err := spend.SafeAdd(fee)
		if err != nil {
			return err
		}
		if need, err = need.SafeAdd(changeMin); err != nil {
			return err
		}
		if have >= need {
			change.Capacity = have - spend - fee
			b.tx.AddOutput(change, nil)
			return nil
		}
		if attempt > 0 {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientCapacity, have, need)
		}

		// Collect with headroom for the witnesses of the new inputs.
		cells, err := collector.CollectCells(ctx, changeLock, need-have+types.MustCKB(1))
		if err != nil {
			return fmt.Errorf("failed to collect cells: %w", err)
		}
		for _, c := range cells {
			b.AddInput(c)
		}
	}
	return ErrInsufficientCapacity
}

// Unlock signs every lock group the signers can unlock. It fails with
// ErrUnsignedGroups when a group is left unsigned.
func (b *TransactionBuilder) Unlock(signers ...*account.Signer) error {
	groups := map[types.H256][]int{}
	var order []types.H256
	for i, in := range b.inputs {
		h := in.Output.Lock.Hash()
		if _, ok := groups[h]; !ok {
			order = append(order, h)
		}
		groups[h] = append(groups[h], i)
	}
	for _, h := range order {
		signed := false
		for _, s := range signers {
			if s.Lock().Hash() != h {
				continue
			}
			if err := s.SignGroup(b.tx, groups[h]); err != nil {
				return err
			}
			signed = true
			break
		}
		if !signed {
			return fmt.Errorf("%w: lock %s", ErrUnsignedGroups, h.Hex())
		}
	}
	return nil
}
