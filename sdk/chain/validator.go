package chain

import (
	"errors"
	"fmt"

	"github.com/manifest-network/trampoline/sdk/account"
	"github.com/manifest-network/trampoline/sdk/types"
)

// groupBaseCycles is charged for every script group run.
const groupBaseCycles = 1_000

// ScriptGroup is the set of inputs and outputs sharing one script.
type ScriptGroup struct {
	Kind          ScriptGroupKind
	Script        types.Script
	InputIndices  []int
	OutputIndices []int
}

// ResolvedTransaction is a transaction with its inputs and cell deps loaded.
type ResolvedTransaction struct {
	Tx       *types.Transaction
	Inputs   []types.CellMeta
	CellDeps []types.CellMeta
}

// VerifyContext is what a validator sees while checking a script group.
type VerifyContext struct {
	Resolved *ResolvedTransaction
	Group    ScriptGroup

	cycles uint64
	debug  func(string)
}

func (c *VerifyContext) Tx() *types.Transaction {
	return c.Resolved.Tx
}

// GroupInputs returns the resolved input cells in the group.
func (c *VerifyContext) GroupInputs() []types.CellMeta {
	out := make([]types.CellMeta, 0, len(c.Group.InputIndices))
	for _, i := range c.Group.InputIndices {
		out = append(out, c.Resolved.Inputs[i])
	}
	return out
}

// GroupOutputs returns the output cells in the group, located at the
// transaction's own hash.
func (c *VerifyContext) GroupOutputs() []types.CellMeta {
	tx := c.Resolved.Tx
	hash := tx.Hash()
	out := make([]types.CellMeta, 0, len(c.Group.OutputIndices))
	for _, i := range c.Group.OutputIndices {
		out = append(out, types.CellMeta{
			OutPoint: types.OutPoint{TxHash: hash, Index: uint32(i)},
			Output:   tx.Outputs[i],
			Data:     tx.OutputsData[i],
		})
	}
	return out
}

// Consume charges extra cycles to the running group.
func (c *VerifyContext) Consume(cycles uint64) {
	c.cycles += cycles
}

// Debug records a debug message for the running script.
func (c *VerifyContext) Debug(format string, args ...any) {
	if c.debug != nil {
		c.debug(fmt.Sprintf(format, args...))
	}
}

// Validator checks a script group in place of running the script's code.
type Validator interface {
	Validate(ctx *VerifyContext) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx *VerifyContext) error

func (f ValidatorFunc) Validate(ctx *VerifyContext) error {
	return f(ctx)
}

// Placeholder code blobs for system scripts. A deployed cell runs the
// validator registered for the blake2b hash of its data.
var (
	AlwaysSuccessCode = []byte("trampoline:always_success")
	Secp256k1Data     = []byte("trampoline:secp256k1_data")
	SighashAllCode    = []byte("trampoline:secp256k1_blake160_sighash_all")
	MultisigAllCode   = []byte("trampoline:secp256k1_blake160_multisig_all")
	DaoCode           = []byte("trampoline:dao")
)

var errInvalidLockArgs = errors.New("sighash lock args must be 20 bytes")

// AlwaysSuccess accepts every group.
var AlwaysSuccess = ValidatorFunc(func(*VerifyContext) error { return nil })

// SighashAll verifies secp256k1-blake160-sighash-all signatures.
var SighashAll = ValidatorFunc(func(ctx *VerifyContext) error {
	if len(ctx.Group.Script.Args) != 20 {
		return errInvalidLockArgs
	}
	return account.VerifySighashAll(ctx.Tx(), ctx.Group.InputIndices, ctx.Group.Script.Args)
})

// scriptGroups collects lock groups from inputs and type groups from inputs
// and outputs, in order of first appearance.
func scriptGroups(rtx *ResolvedTransaction) []*ScriptGroup {
	var groups []*ScriptGroup
	locks := map[types.H256]*ScriptGroup{}
	typs := map[types.H256]*ScriptGroup{}

	typeGroup := func(s types.Script) *ScriptGroup {
		h := s.Hash()
		g, ok := typs[h]
		if !ok {
			g = &ScriptGroup{Kind: TypeGroup, Script: s.Clone()}
			typs[h] = g
			groups = append(groups, g)
		}
		return g
	}

	for i, in := range rtx.Inputs {
		h := in.Output.Lock.Hash()
		g, ok := locks[h]
		if !ok {
			g = &ScriptGroup{Kind: LockGroup, Script: in.Output.Lock.Clone()}
			locks[h] = g
			groups = append(groups, g)
		}
		g.InputIndices = append(g.InputIndices, i)
		if in.Output.Type != nil {
			tg := typeGroup(*in.Output.Type)
			tg.InputIndices = append(tg.InputIndices, i)
		}
	}
	for i, out := range rtx.Tx.Outputs {
		if out.Type != nil {
			tg := typeGroup(*out.Type)
			tg.OutputIndices = append(tg.OutputIndices, i)
		}
	}
	return groups
}
