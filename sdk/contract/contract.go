// Package contract describes CKB contracts as code cells plus the caller
// cells that run them, and generates transactions through rule pipelines.
package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/manifest-network/trampoline/sdk/types"
)

var ErrMissingOutpointOnCellDep = errors.New("cannot convert contract to cell dep, set the source to an on-chain cell or set the code cell's out point")

// ContractType says whether the caller cell runs the contract as its type
// or as its lock script.
type ContractType int

const (
	TypeContract ContractType = iota
	LockContract
)

// Contract is a contract's code cell together with a caller cell template.
// A is the script args schema, D the cell data schema.
type Contract[A, D Schema] struct {
	Source *ContractSource

	code   *types.Cell
	caller *types.Cell
	kind   ContractType

	decodeArgs Decoder[A]
	decodeData Decoder[D]

	outputRules  []OutputRule[A, D]
	inputRules   []InputRule
	outputsCount int
}

// New returns a type contract running code. The caller cell gets a data1
// type script pointing at it.
func New[A, D Schema](code []byte, decodeArgs Decoder[A], decodeData Decoder[D]) *Contract[A, D] {
	src := Immediate(code)
	codeCell := types.NewCellWithData(code)
	caller := &types.Cell{}
	caller.SetType(types.ScriptFromCell(codeCell))
	return &Contract[A, D]{
		Source:       &src,
		code:         codeCell,
		caller:       caller,
		kind:         TypeContract,
		decodeArgs:   decodeArgs,
		decodeData:   decodeData,
		outputsCount: 1,
	}
}

// FromSource loads the code of a local or immediate source.
func FromSource[A, D Schema](src ContractSource, decodeArgs Decoder[A], decodeData Decoder[D]) (*Contract[A, D], error) {
	if src.Kind == SourceChain {
		return nil, fmt.Errorf("contract code is needed to derive its code hash: %w", ErrMissingOutpointOnCellDep)
	}
	cell, err := src.Cell()
	if err != nil {
		return nil, err
	}
	c := New[A, D](cell.Data, decodeArgs, decodeData)
	c.Source = &src
	return c, nil
}

// Kind reports whether the contract is used as a type or a lock.
func (c *Contract[A, D]) Kind() ContractType {
	return c.kind
}

// SetKind moves the contract script between the caller's type and lock.
func (c *Contract[A, D]) SetKind(kind ContractType) {
	if kind == c.kind {
		return
	}
	script, _ := c.Script()
	c.kind = kind
	if kind == LockContract {
		c.caller.Type = nil
		if script != nil {
			c.caller.SetLock(*script)
		}
		return
	}
	if script != nil {
		c.caller.SetType(*script)
	}
}

// setCodeCell replaces the code cell and re-points the caller script at the
// new code.
func (c *Contract[A, D]) setCodeCell(cell *types.Cell) {
	c.code = cell
	codeHash := cell.DataHash()
	switch c.kind {
	case TypeContract:
		if c.caller.Type != nil {
			c.caller.Type.SetCodeHash(codeHash)
		}
	case LockContract:
		c.caller.Lock.SetCodeHash(codeHash)
	}
}

// SetCode replaces the contract code.
func (c *Contract[A, D]) SetCode(code []byte) {
	cell := c.code.Clone()
	cell.SetData(code)
	cell.OutPoint = nil
	c.setCodeCell(cell)
}

// SetLock sets the lock of the code cell.
func (c *Contract[A, D]) SetLock(lock types.Script) {
	cell := c.code.Clone()
	cell.SetLock(lock)
	c.setCodeCell(cell)
}

// SetType sets the type script of the code cell.
func (c *Contract[A, D]) SetType(typ types.Script) {
	cell := c.code.Clone()
	cell.SetType(typ)
	c.setCodeCell(cell)
}

func (c *Contract[A, D]) SetCallerCellData(data D) {
	c.caller.SetData(data.MarshalMolecule())
}

func (c *Contract[A, D]) SetCallerCellArgs(args A) error {
	if c.kind == LockContract {
		c.caller.SetLockArgs(args.MarshalMolecule())
		return nil
	}
	return c.caller.SetTypeArgs(args.MarshalMolecule())
}

// SetCallerCellLock sets the lock of the caller cell of a type contract.
func (c *Contract[A, D]) SetCallerCellLock(lock types.Script) {
	if c.kind == LockContract {
		return
	}
	c.caller.SetLock(lock)
}

// CodeHash is the data hash of the contract code.
func (c *Contract[A, D]) CodeHash() types.H256 {
	return c.code.DataHash()
}

// ScriptHash is the hash of the caller's contract script.
func (c *Contract[A, D]) ScriptHash() (types.H256, bool) {
	if c.kind == LockContract {
		return c.caller.LockHash(), true
	}
	return c.caller.TypeHash()
}

func (c *Contract[A, D]) CallerCellDataHash() types.H256 {
	return c.caller.DataHash()
}

// CallerCell returns a validated copy of the caller cell.
func (c *Contract[A, D]) CallerCell() (*types.Cell, error) {
	cell := c.caller.Clone()
	if err := cell.Validate(); err != nil {
		return nil, err
	}
	return cell, nil
}

// CodeCell returns a validated copy of the code cell.
func (c *Contract[A, D]) CodeCell() (*types.Cell, error) {
	cell := c.code.Clone()
	if err := cell.Validate(); err != nil {
		return nil, err
	}
	return cell, nil
}

// Script is the contract script on the caller cell.
func (c *Contract[A, D]) Script() (*types.Script, bool) {
	if c.kind == LockContract {
		s := c.caller.Lock.Clone()
		return &s, true
	}
	if c.caller.Type == nil {
		return nil, false
	}
	return types.CloneScriptPtr(c.caller.Type), true
}

// CodeCellDep returns a code dep on the contract code.
func (c *Contract[A, D]) CodeCellDep() (types.CellDep, error) {
	if dep, err := c.code.CellDep(types.DepTypeCode); err == nil {
		return dep, nil
	}
	if c.Source != nil && c.Source.Kind == SourceChain {
		return types.CellDep{OutPoint: c.Source.OutPoint, DepType: types.DepTypeCode}, nil
	}
	return types.CellDep{}, ErrMissingOutpointOnCellDep
}

// CellOutput is the caller cell as an output.
func (c *Contract[A, D]) CellOutput() types.CellOutput {
	return c.caller.Output()
}

// ReadData decodes raw cell data with the contract's data schema.
func (c *Contract[A, D]) ReadData(b []byte) (D, error) {
	return c.decodeData(b)
}

func (c *Contract[A, D]) ReadArgs(b []byte) (A, error) {
	return c.decodeArgs(b)
}

// AddOutputRule appends a rule run on every contract output during Pipe.
// Rules run in the order they were added.
func (c *Contract[A, D]) AddOutputRule(scope RuleScope, rule func(ctx *RuleContext[A, D]) (CellField[A, D], error)) {
	c.outputRules = append(c.outputRules, OutputRule[A, D]{Scope: scope, Rule: rule})
}

// AddInputRule appends a rule contributing an input query.
func (c *Contract[A, D]) AddInputRule(rule InputRule) {
	c.inputRules = append(c.inputRules, rule)
}

// SetOutputCount sets how many caller cells the template creates.
func (c *Contract[A, D]) SetOutputCount(n int) {
	c.outputsCount = n
}

// TxTemplate is a transaction creating the caller cells, with a dep on the
// code when it is on chain.
func (c *Contract[A, D]) TxTemplate() (*types.Transaction, error) {
	tx := &types.Transaction{}
	caller, err := c.CallerCell()
	if err != nil {
		return nil, err
	}
	for i := 0; i < c.outputsCount; i++ {
		tx.AddOutput(caller.Output(), caller.Data)
	}
	if c.Source != nil && c.Source.Kind == SourceChain {
		dep, err := c.CodeCellDep()
		if err != nil {
			return nil, err
		}
		tx.AddCellDep(dep)
	}
	return tx, nil
}

// UpdateQueryRegister adds the queries of every input rule.
func (c *Contract[A, D]) UpdateQueryRegister(tx *types.CellMetaTransaction, queries *QueryRegister) {
	for _, rule := range c.inputRules {
		queries.Add(rule(tx.Tx))
	}
}

// Pipe merges the template into tx and runs the output rules over every
// output whose lock or type hash is the contract script hash. Other outputs
// pass through unchanged.
func (c *Contract[A, D]) Pipe(_ context.Context, in *types.CellMetaTransaction, _ *QueryRegister) (*types.CellMetaTransaction, error) {
	tmpl, err := c.TxTemplate()
	if err != nil {
		return nil, err
	}
	out := in.Clone()
	tx := out.Tx
	for _, dep := range tmpl.CellDeps {
		tx.AddCellDep(dep)
	}
	tx.Inputs = append(tx.Inputs, tmpl.Inputs...)
	for i, o := range tmpl.Outputs {
		tx.AddOutput(o, tmpl.OutputsData[i])
	}

	scriptHash, ok := c.ScriptHash()
	if !ok {
		return out, nil
	}
	ctx := &RuleContext[A, D]{
		tx:        out,
		curr:      FieldOutputs,
		kind:      c.kind,
		decodeArg: c.decodeArgs,
		decodeDat: c.decodeData,
	}
	for idx, o := range tx.Outputs {
		matches := o.Lock.Hash() == scriptHash || (o.Type != nil && o.Type.Hash() == scriptHash)
		if !matches {
			continue
		}
		ctx.idx = idx
		for _, rule := range c.outputRules {
			field, err := rule.Rule(ctx)
			if err != nil {
				return nil, fmt.Errorf("output rule on output %d failed: %w", idx, err)
			}
			if err := apply(tx, idx, c.kind, rule.Scope, field); err != nil {
				return nil, err
			}
		}
		slog.Debug("Applied contract rules", "output", idx, "rules", len(c.outputRules))
	}
	return out, nil
}
