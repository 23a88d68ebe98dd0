package contract

import (
	"errors"
	"fmt"

	"github.com/manifest-network/trampoline/sdk/types"
)

var (
	ErrRuleScopeMismatch     = errors.New("output rule returned a field outside its scope")
	ErrTransactionFieldRule  = errors.New("contract output rule attempted a transaction level update")
	ErrOutputIndexOutOfRange = errors.New("rule context index out of range")
)

// RuleScope is the part of a transaction a rule reads or writes: either a
// ContractField of the current output or a TransactionField.
type RuleScope interface {
	ruleScope()
}

// ContractField is a field of the contract cell being processed.
type ContractField int

const (
	FieldArgs ContractField = iota
	FieldData
	FieldLockScript
	FieldTypeScript
	FieldCapacity
)

func (ContractField) ruleScope() {}

func (f ContractField) String() string {
	switch f {
	case FieldArgs:
		return "args"
	case FieldData:
		return "data"
	case FieldLockScript:
		return "lock_script"
	case FieldTypeScript:
		return "type_script"
	case FieldCapacity:
		return "capacity"
	}
	return fmt.Sprintf("ContractField(%d)", int(f))
}

// TransactionField is a whole-transaction view.
type TransactionField int

const (
	FieldResolvedInputs TransactionField = iota
	FieldInputs
	FieldOutputs
	FieldDependencies
)

func (TransactionField) ruleScope() {}

func (f TransactionField) String() string {
	switch f {
	case FieldResolvedInputs:
		return "resolved_inputs"
	case FieldInputs:
		return "inputs"
	case FieldOutputs:
		return "outputs"
	case FieldDependencies:
		return "dependencies"
	}
	return fmt.Sprintf("TransactionField(%d)", int(f))
}

// OutputWithData is an output paired with its data.
type OutputWithData struct {
	Output types.CellOutput
	Data   types.Bytes
}

// CellField is the value loaded for, or returned by, a rule. Scope says
// which of the other fields is set.
type CellField[A, D Schema] struct {
	Scope RuleScope

	Args     A
	Data     D
	Script   *types.Script
	Capacity types.Capacity

	Inputs         []types.CellInput
	ResolvedInputs []types.CellMeta
	Outputs        []OutputWithData
	CellDeps       []types.CellDep
}

func ArgsField[A, D Schema](args A) CellField[A, D] {
	return CellField[A, D]{Scope: FieldArgs, Args: args}
}

func DataField[A, D Schema](data D) CellField[A, D] {
	return CellField[A, D]{Scope: FieldData, Data: data}
}

func LockField[A, D Schema](lock types.Script) CellField[A, D] {
	return CellField[A, D]{Scope: FieldLockScript, Script: &lock}
}

func TypeField[A, D Schema](typ types.Script) CellField[A, D] {
	return CellField[A, D]{Scope: FieldTypeScript, Script: &typ}
}

func CapacityField[A, D Schema](c types.Capacity) CellField[A, D] {
	return CellField[A, D]{Scope: FieldCapacity, Capacity: c}
}

// RuleContext is what an output rule sees: the transaction so far and the
// index of the output being processed.
type RuleContext[A, D Schema] struct {
	tx        *types.CellMetaTransaction
	idx       int
	curr      TransactionField
	kind      ContractType
	decodeArg Decoder[A]
	decodeDat Decoder[D]
}

// Tx returns the transaction as updated by the rules applied so far.
func (c *RuleContext[A, D]) Tx() *types.CellMetaTransaction {
	return c.tx
}

// Index is the output the rule is applied to.
func (c *RuleContext[A, D]) Index() int {
	return c.idx
}

// Load reads scope from the current output, or from the whole transaction
// for a TransactionField.
func (c *RuleContext[A, D]) Load(scope RuleScope) (CellField[A, D], error) {
	tx := c.tx.Tx
	switch s := scope.(type) {
	case TransactionField:
		out := CellField[A, D]{Scope: s}
		switch s {
		case FieldInputs:
			out.Inputs = append(out.Inputs, tx.Inputs...)
		case FieldResolvedInputs:
			out.ResolvedInputs = append(out.ResolvedInputs, c.tx.Inputs...)
		case FieldOutputs:
			for i := range tx.Outputs {
				output, data, err := tx.OutputWithData(i)
				if err != nil {
					return out, err
				}
				out.Outputs = append(out.Outputs, OutputWithData{Output: output, Data: data})
			}
		case FieldDependencies:
			out.CellDeps = append(out.CellDeps, tx.CellDeps...)
		}
		return out, nil

	case ContractField:
		out := CellField[A, D]{Scope: s}
		if c.curr != FieldOutputs {
			return out, nil
		}
		output, data, err := tx.OutputWithData(c.idx)
		if err != nil {
			return out, fmt.Errorf("%w: %d", ErrOutputIndexOutOfRange, c.idx)
		}
		switch s {
		case FieldData:
			out.Data, err = c.decodeDat(data)
		case FieldArgs:
			var args []byte
			if c.kind == LockContract {
				args = output.Lock.Args
			} else if output.Type != nil {
				args = output.Type.Args
			}
			out.Args, err = c.decodeArg(args)
		case FieldLockScript:
			out.Script = types.CloneScriptPtr(&output.Lock)
		case FieldTypeScript:
			out.Script = types.CloneScriptPtr(output.Type)
		case FieldCapacity:
			out.Capacity = output.Capacity
		}
		if err != nil {
			return out, fmt.Errorf("failed to decode %s of output %d: %w", s, c.idx, err)
		}
		return out, nil
	}
	return CellField[A, D]{}, fmt.Errorf("unknown rule scope %T", scope)
}

// OutputRule transforms one field of every contract output.
type OutputRule[A, D Schema] struct {
	Scope RuleScope
	Rule  func(ctx *RuleContext[A, D]) (CellField[A, D], error)
}

// InputRule derives a cell query from the transaction being generated.
type InputRule func(tx *types.Transaction) types.CellQuery

// apply writes field into output idx of tx.
func apply[A, D Schema](tx *types.Transaction, idx int, kind ContractType, rule RuleScope, field CellField[A, D]) error {
	scope, ok := field.Scope.(ContractField)
	if !ok {
		return ErrTransactionFieldRule
	}
	if rule != RuleScope(scope) {
		return fmt.Errorf("%w: rule scope %v, returned %v", ErrRuleScopeMismatch, rule, scope)
	}
	if idx >= len(tx.Outputs) || idx >= len(tx.OutputsData) {
		return fmt.Errorf("%w: %d", ErrOutputIndexOutOfRange, idx)
	}
	out := &tx.Outputs[idx]
	switch scope {
	case FieldData:
		tx.OutputsData[idx] = field.Data.MarshalMolecule()
	case FieldArgs:
		args := field.Args.MarshalMolecule()
		if kind == LockContract {
			out.Lock.SetArgs(args)
		} else if out.Type != nil {
			out.Type.SetArgs(args)
		}
	case FieldLockScript:
		if field.Script == nil {
			return fmt.Errorf("%w: lock script is required", ErrRuleScopeMismatch)
		}
		out.Lock = field.Script.Clone()
	case FieldTypeScript:
		out.Type = types.CloneScriptPtr(field.Script)
	case FieldCapacity:
		out.Capacity = field.Capacity
		return nil
	}
	if required := out.OccupiedCapacity(len(tx.OutputsData[idx])); out.Capacity < required {
		out.Capacity = required
	}
	return nil
}
