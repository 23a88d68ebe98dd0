package chain

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manifest-network/trampoline/sdk/molecule"
	"github.com/manifest-network/trampoline/sdk/types"
)

// RandomHash returns 32 random bytes.
func RandomHash() types.H256 {
	var h types.H256
	if _, err := rand.Read(h[:]); err != nil {
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return h
}

// RandomOutPoint returns an out point at index 0 of a random transaction.
func RandomOutPoint() types.OutPoint {
	return types.OutPoint{TxHash: RandomHash()}
}

type cellEntry struct {
	output types.CellOutput
	data   types.Bytes
}

// MockChain is an in-memory chain. Scripts are not executed; each code cell
// is bound to a Go Validator keyed by the hash of its data.
type MockChain struct {
	mu sync.RWMutex

	cells           map[types.OutPoint]cellEntry
	order           []types.OutPoint
	cellsByDataHash map[types.H256]types.OutPoint
	cellsByLockHash map[types.H256][]types.OutPoint
	cellsByTypeHash map[types.H256][]types.OutPoint

	validators  map[types.H256]Validator
	typeAliases map[types.H256]types.H256

	defaultLock *types.OutPoint
	genesis     *GenesisInfo

	debug    bool
	messages []Message
}

// NewMockChain returns a chain with always-success deployed as the default
// lock and the genesis system scripts in place.
func NewMockChain() *MockChain {
	c := &MockChain{
		cells:           map[types.OutPoint]cellEntry{},
		cellsByDataHash: map[types.H256]types.OutPoint{},
		cellsByLockHash: map[types.H256][]types.OutPoint{},
		cellsByTypeHash: map[types.H256][]types.OutPoint{},
		validators:      map[types.H256]Validator{},
		typeAliases:     map[types.H256]types.H256{},
	}
	c.RegisterValidator(types.Blake2b256(AlwaysSuccessCode), AlwaysSuccess)
	c.RegisterValidator(types.Blake2b256(SighashAllCode), SighashAll)

	op := c.DeployCellWithData(AlwaysSuccessCode)
	c.defaultLock = &op

	c.genesis = deployGenesis(c)
	return c
}

// RegisterValidator binds a validator to code with the given data hash.
func (c *MockChain) RegisterValidator(codeHash types.H256, v Validator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validators[codeHash] = v
}

// RegisterTypeAlias lets scripts with hash type "type" and code hash typeHash
// run the code whose data hash is dataHash.
func (c *MockChain) RegisterTypeAlias(typeHash, dataHash types.H256) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typeAliases[typeHash] = dataHash
}

// DeployScript deploys code and binds v to it.
func (c *MockChain) DeployScript(code []byte, v Validator) types.OutPoint {
	c.RegisterValidator(types.Blake2b256(code), v)
	return c.DeployCellWithData(code)
}

// DeployCellWithData deploys data in a new cell. Deploying the same data
// twice returns the first cell.
func (c *MockChain) DeployCellWithData(data []byte) types.OutPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	dataHash := types.Blake2b256(data)
	if op, ok := c.cellsByDataHash[dataHash]; ok {
		return op
	}
	cell := types.NewCellWithData(data)
	op := types.OutPoint{TxHash: RandomHash()}
	c.insertCell(op, cell.Output(), data)
	return op
}

// DeployCellOutput stores output with data. Outputs with non-empty data are
// deduplicated by data hash.
func (c *MockChain) DeployCellOutput(data []byte, output types.CellOutput) types.OutPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(data) > 0 {
		if op, ok := c.cellsByDataHash[types.Blake2b256(data)]; ok {
			return op
		}
	}
	op := types.OutPoint{TxHash: RandomHash()}
	c.insertCell(op, output, data)
	return op
}

// DefaultLockOutPoint is the code cell of the default lock.
func (c *MockChain) DefaultLockOutPoint() (types.OutPoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.defaultLock == nil {
		return types.OutPoint{}, ErrNoDefaultLock
	}
	return *c.defaultLock, nil
}

// DeployRandomCellWithDefaultLock creates an empty cell holding capacityCKB
// CKB, locked by the default lock with args.
func (c *MockChain) DeployRandomCellWithDefaultLock(capacityCKB uint64, args []byte) (types.OutPoint, error) {
	lockCell, err := c.DefaultLockOutPoint()
	if err != nil {
		return types.OutPoint{}, err
	}
	lock, err := c.BuildScript(lockCell, args)
	if err != nil {
		return types.OutPoint{}, err
	}
	capacity, err := types.CKB(capacityCKB)
	if err != nil {
		return types.OutPoint{}, err
	}
	return c.CreateCell(types.CellOutput{Capacity: capacity, Lock: lock}, nil), nil
}

// CreateCell stores a cell at a random out point.
func (c *MockChain) CreateCell(output types.CellOutput, data []byte) types.OutPoint {
	op := RandomOutPoint()
	c.CreateCellWithOutPoint(op, output, data)
	return op
}

func (c *MockChain) CreateCellWithOutPoint(op types.OutPoint, output types.CellOutput, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertCell(op, output, data)
}

func (c *MockChain) insertCell(op types.OutPoint, output types.CellOutput, data []byte) {
	if _, ok := c.cells[op]; !ok {
		c.order = append(c.order, op)
	}
	c.cells[op] = cellEntry{output: output.Clone(), data: append(types.Bytes{}, data...)}
	c.cellsByDataHash[types.Blake2b256(data)] = op

	lockHash := output.Lock.Hash()
	c.cellsByLockHash[lockHash] = append(c.cellsByLockHash[lockHash], op)
	if output.Type != nil {
		typeHash := output.Type.Hash()
		c.cellsByTypeHash[typeHash] = append(c.cellsByTypeHash[typeHash], op)
	}
}

func (c *MockChain) removeCell(op types.OutPoint) {
	entry, ok := c.cells[op]
	if !ok {
		return
	}
	delete(c.cells, op)
	if dataHash := types.Blake2b256(entry.data); c.cellsByDataHash[dataHash] == op {
		delete(c.cellsByDataHash, dataHash)
	}
	lockHash := entry.output.Lock.Hash()
	c.cellsByLockHash[lockHash] = without(c.cellsByLockHash[lockHash], op)
	if entry.output.Type != nil {
		typeHash := entry.output.Type.Hash()
		c.cellsByTypeHash[typeHash] = without(c.cellsByTypeHash[typeHash], op)
	}
	c.order = without(c.order, op)
}

func without(ops []types.OutPoint, op types.OutPoint) []types.OutPoint {
	out := ops[:0]
	for _, o := range ops {
		if o != op {
			out = append(out, o)
		}
	}
	return out
}

// GetCell returns the live cell at op.
func (c *MockChain) GetCell(op types.OutPoint) (types.CellMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getCell(op)
}

func (c *MockChain) getCell(op types.OutPoint) (types.CellMeta, bool) {
	entry, ok := c.cells[op]
	if !ok {
		return types.CellMeta{}, false
	}
	return types.CellMeta{OutPoint: op, Output: entry.output.Clone(), Data: append(types.Bytes{}, entry.data...)}, true
}

// CellByDataHash returns the latest cell stored with data hashing to h.
func (c *MockChain) CellByDataHash(h types.H256) (types.OutPoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.cellsByDataHash[h]
	return op, ok
}

func (c *MockChain) CellsByLockHash(h types.H256) []types.OutPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.OutPoint(nil), c.cellsByLockHash[h]...)
}

func (c *MockChain) CellsByTypeHash(h types.H256) []types.OutPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.OutPoint(nil), c.cellsByTypeHash[h]...)
}

// LiveCells returns every live cell in creation order.
func (c *MockChain) LiveCells() []types.CellMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.CellMeta, 0, len(c.order))
	for _, op := range c.order {
		if cell, ok := c.getCell(op); ok {
			out = append(out, cell)
		}
	}
	return out
}

// BuildScript returns a data1 script running the code stored at op.
func (c *MockChain) BuildScript(op types.OutPoint, args []byte) (types.Script, error) {
	return c.BuildScriptWithHashType(op, types.HashTypeData1, args)
}

func (c *MockChain) BuildScriptWithHashType(op types.OutPoint, hashType types.HashType, args []byte) (types.Script, error) {
	cell, ok := c.GetCell(op)
	if !ok {
		return types.Script{}, fmt.Errorf("%w: %s", ErrCellNotFound, op)
	}
	return types.NewScript(cell.DataHash(), hashType, args), nil
}

// FindCellDepForScript returns a code dep for the cell holding script's code.
func (c *MockChain) FindCellDepForScript(script types.Script) (types.CellDep, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch script.HashType {
	case types.HashTypeData, types.HashTypeData1:
		if op, ok := c.cellsByDataHash[script.CodeHash]; ok {
			return types.CellDep{OutPoint: op, DepType: types.DepTypeCode}, nil
		}
	case types.HashTypeType:
		if ops := c.cellsByTypeHash[script.CodeHash]; len(ops) > 0 {
			return types.CellDep{OutPoint: ops[0], DepType: types.DepTypeCode}, nil
		}
		if dataHash, ok := c.typeAliases[script.CodeHash]; ok {
			if op, ok := c.cellsByDataHash[dataHash]; ok {
				return types.CellDep{OutPoint: op, DepType: types.DepTypeCode}, nil
			}
		}
	}
	return types.CellDep{}, fmt.Errorf("%w: no code cell for script %s", ErrCellNotFound, script.Hash().Hex())
}

// CompleteTx returns a copy of tx with duplicate cell deps removed.
func (c *MockChain) CompleteTx(tx *types.Transaction) *types.Transaction {
	out := tx.Clone()
	out.CellDeps = nil
	for _, dep := range tx.CellDeps {
		out.AddCellDep(dep)
	}
	return out
}

// ResolveTx loads the inputs and cell deps of tx. Dep groups are expanded.
func (c *MockChain) ResolveTx(tx *types.Transaction) (*ResolvedTransaction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolveTx(tx)
}

func (c *MockChain) resolveTx(tx *types.Transaction) (*ResolvedTransaction, error) {
	rtx := &ResolvedTransaction{Tx: tx}
	seen := map[types.OutPoint]bool{}
	for i, in := range tx.Inputs {
		if seen[in.PreviousOutput] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInput, in.PreviousOutput)
		}
		seen[in.PreviousOutput] = true
		cell, ok := c.getCell(in.PreviousOutput)
		if !ok {
			return nil, fmt.Errorf("%w: input %d at %s", ErrCellNotFound, i, in.PreviousOutput)
		}
		rtx.Inputs = append(rtx.Inputs, cell)
	}
	for i, dep := range tx.CellDeps {
		cell, ok := c.getCell(dep.OutPoint)
		if !ok {
			return nil, fmt.Errorf("%w: cell dep %d at %s", ErrCellNotFound, i, dep.OutPoint)
		}
		if dep.DepType == types.DepTypeCode {
			rtx.CellDeps = append(rtx.CellDeps, cell)
			continue
		}
		items, err := molecule.UnpackFixvec(cell.Data, 36)
		if err != nil {
			return nil, fmt.Errorf("failed to decode dep group %s: %w", dep.OutPoint, err)
		}
		for _, item := range items {
			var op types.OutPoint
			copy(op.TxHash[:], item[:32])
			op.Index, _ = molecule.UnpackUint32(item[32:])
			member, ok := c.getCell(op)
			if !ok {
				return nil, fmt.Errorf("%w: dep group member %s", ErrCellNotFound, op)
			}
			rtx.CellDeps = append(rtx.CellDeps, member)
		}
	}
	return rtx, nil
}

// resolveCode finds the validator for script among the resolved cell deps.
func (c *MockChain) resolveCode(rtx *ResolvedTransaction, script types.Script) (Validator, error) {
	var codeHash types.H256
	found := false
	for _, dep := range rtx.CellDeps {
		switch script.HashType {
		case types.HashTypeData, types.HashTypeData1:
			if dep.DataHash() == script.CodeHash {
				codeHash, found = script.CodeHash, true
			}
		case types.HashTypeType:
			if dep.Output.Type != nil && dep.Output.Type.Hash() == script.CodeHash {
				codeHash, found = dep.DataHash(), true
			} else if alias, ok := c.typeAliases[script.CodeHash]; ok && dep.DataHash() == alias {
				codeHash, found = alias, true
			}
		}
		if found {
			break
		}
	}
	if !found {
		return nil, ErrScriptNotFound
	}
	v, ok := c.validators[codeHash]
	if !ok {
		return nil, fmt.Errorf("%w: no validator registered for code %s", ErrScriptNotFound, codeHash.Hex())
	}
	return v, nil
}

// SetCaptureDebug makes script debug messages collectable through
// CapturedMessages instead of being logged.
func (c *MockChain) SetCaptureDebug(capture bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = capture
}

func (c *MockChain) CapturedMessages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.messages...)
}

// VerifyTxWithCycles verifies tx and returns the cycles it consumed.
func (c *MockChain) VerifyTxWithCycles(tx *types.Transaction, maxCycles uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifyTx(tx, maxCycles)
}

func (c *MockChain) verifyTx(tx *types.Transaction, maxCycles uint64) (uint64, error) {
	if err := NewOutputsDataVerifier(tx).Verify(); err != nil {
		return 0, err
	}
	rtx, err := c.resolveTx(tx)
	if err != nil {
		return 0, err
	}
	for i, out := range tx.Outputs {
		if required := out.OccupiedCapacity(len(tx.OutputsData[i])); out.Capacity < required {
			return 0, fmt.Errorf("%w: output %d has %s, requires %s", types.ErrInsufficientCellCapacity, i, out.Capacity, required)
		}
	}

	txSize := tx.Size()
	var total uint64
	for _, g := range scriptGroups(rtx) {
		scriptHash := g.Script.Hash()
		v, err := c.resolveCode(rtx, g.Script)
		if err != nil {
			return 0, &VerificationError{Kind: g.Kind, ScriptHash: scriptHash, Err: err}
		}
		ctx := &VerifyContext{
			Resolved: rtx,
			Group:    *g,
			cycles:   groupBaseCycles + txSize,
			debug:    c.debugPrinter(scriptHash),
		}
		if err := v.Validate(ctx); err != nil {
			return 0, &VerificationError{Kind: g.Kind, ScriptHash: scriptHash, Err: err}
		}
		total += ctx.cycles
		if total > maxCycles {
			return 0, fmt.Errorf("%w: %d > %d", ErrExceededMaximumCycles, total, maxCycles)
		}
	}
	return total, nil
}

func (c *MockChain) debugPrinter(scriptHash types.H256) func(string) {
	if c.debug {
		return func(msg string) {
			c.messages = append(c.messages, Message{ScriptHash: scriptHash, Message: msg})
		}
	}
	return func(msg string) {
		slog.Debug("Contract debug", "script", scriptHash.Hex(), "message", msg)
	}
}

// ReceiveTx verifies tx, consumes its inputs and stores its outputs at
// tx_hash:i.
func (c *MockChain) ReceiveTx(tx *types.Transaction) (types.H256, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.verifyTx(tx, MaxCycles); err != nil {
		return types.H256{}, err
	}
	hash := tx.Hash()
	for _, in := range tx.Inputs {
		c.removeCell(in.PreviousOutput)
	}
	for i, out := range tx.Outputs {
		c.insertCell(types.OutPoint{TxHash: hash, Index: uint32(i)}, out, tx.OutputsData[i])
	}
	return hash, nil
}

// Genesis describes the system cells deployed at chain creation.
func (c *MockChain) Genesis() *GenesisInfo {
	return c.genesis
}

func (c *MockChain) VerifyTx(_ context.Context, tx *types.Transaction) error {
	if _, err := c.VerifyTxWithCycles(c.CompleteTx(tx), MaxCycles); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionVerification, err)
	}
	return nil
}

func (c *MockChain) SendTx(_ context.Context, tx *types.Transaction) (types.H256, error) {
	hash, err := c.ReceiveTx(c.CompleteTx(tx))
	if err != nil {
		return types.H256{}, fmt.Errorf("%w: %w", ErrTransactionSend, err)
	}
	return hash, nil
}

// DeployCell stores the cell directly; the mock chain needs no funding inputs.
func (c *MockChain) DeployCell(_ context.Context, cell *types.Cell, _ CellInputs) (types.OutPoint, error) {
	if err := cell.Validate(); err != nil {
		return types.OutPoint{}, err
	}
	return c.DeployCellOutput(cell.Data, cell.Output()), nil
}

func (c *MockChain) DeployCells(ctx context.Context, cells []*types.Cell, inputs CellInputs) ([]types.OutPoint, error) {
	out := make([]types.OutPoint, 0, len(cells))
	for i, cell := range cells {
		op, err := c.DeployCell(ctx, cell, inputs)
		if err != nil {
			return nil, fmt.Errorf("failed to deploy cell %d: %w", i, err)
		}
		out = append(out, op)
	}
	return out, nil
}

// SetDefaultLock deploys the code cell and makes it the default lock.
func (c *MockChain) SetDefaultLock(_ context.Context, cell *types.Cell) error {
	op := c.DeployCellOutput(cell.Data, cell.Output())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultLock = &op
	return nil
}

func (c *MockChain) GenerateCellWithDefaultLock(args []byte) (*types.Cell, error) {
	op, err := c.DefaultLockOutPoint()
	if err != nil {
		return nil, err
	}
	lock, err := c.BuildScript(op, args)
	if err != nil {
		return nil, err
	}
	return types.NewCellWithLock(lock), nil
}
