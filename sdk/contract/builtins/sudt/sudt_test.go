package sudt_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/sdk/chain"
	"github.com/manifest-network/trampoline/sdk/contract"
	"github.com/manifest-network/trampoline/sdk/contract/builtins/sudt"
	"github.com/manifest-network/trampoline/sdk/types"
)

type fixture struct {
	chain    *chain.MockChain
	provider *chain.MockChainTxProvider
	codeOp   types.OutPoint
	minter   types.Script
}

func setup(t *testing.T) *fixture {
	t.Helper()
	c := chain.NewMockChain()
	lockOp, err := c.DefaultLockOutPoint()
	require.NoError(t, err)
	minter, err := c.BuildScript(lockOp, []byte{1})
	require.NoError(t, err)
	return &fixture{
		chain:    c,
		provider: chain.NewMockChainTxProvider(c),
		codeOp:   sudt.Deploy(c),
		minter:   minter,
	}
}

func (f *fixture) contract(t *testing.T, supply uint64) *sudt.Contract {
	t.Helper()
	c, err := sudt.New(sudt.Code, f.minter.Hash(), sudt.NewAmount(supply))
	require.NoError(t, err)
	src := contract.OnChain(f.codeOp)
	c.Source = &src
	c.SetCallerCellLock(f.minter)
	return c
}

func addAmount(n uint64) func(*contract.RuleContext[sudt.OwnerLockHash, sudt.Amount]) (contract.CellField[sudt.OwnerLockHash, sudt.Amount], error) {
	return func(ctx *contract.RuleContext[sudt.OwnerLockHash, sudt.Amount]) (contract.CellField[sudt.OwnerLockHash, sudt.Amount], error) {
		field, err := ctx.Load(contract.FieldData)
		if err != nil {
			return field, err
		}
		amount, err := field.Data.Add(sudt.NewAmount(n))
		if err != nil {
			return field, err
		}
		return contract.DataField[sudt.OwnerLockHash](amount), nil
	}
}

func amountOf(t *testing.T, tx *types.Transaction, i int) uint64 {
	t.Helper()
	require.Greater(t, len(tx.OutputsData), i)
	amount, err := sudt.DecodeAmount(tx.OutputsData[i])
	require.NoError(t, err)
	n, ok := amount.Uint64()
	require.True(t, ok)
	return n
}

func TestIssuanceByOwner(t *testing.T) {
	f := setup(t)
	_, err := f.chain.DeployRandomCellWithDefaultLock(2000, []byte{1})
	require.NoError(t, err)

	c := f.contract(t, 1500)
	c.AddOutputRule(contract.FieldData, addAmount(2000))
	minterHash := f.minter.Hash()
	c.AddInputRule(func(*types.Transaction) types.CellQuery {
		return types.CellQuery{Query: types.Single(types.LockHash(minterHash)), Limit: 1}
	})

	gen := contract.NewGenerator().Pipeline(c).QueryService(f.provider).ChainService(f.chain)
	tx, err := gen.Generate(context.Background())
	require.NoError(t, err)

	require.Len(t, tx.Tx.Inputs, 1)
	assert.Equal(t, uint64(3500), amountOf(t, tx.Tx, 0))
	assert.NoError(t, f.provider.VerifyTx(context.Background(), tx.Tx))
}

func TestIssuanceWithoutOwnerInputFails(t *testing.T) {
	f := setup(t)
	lockOp, err := f.chain.DefaultLockOutPoint()
	require.NoError(t, err)
	other, err := f.chain.BuildScript(lockOp, []byte{200})
	require.NoError(t, err)
	_, err = f.chain.DeployRandomCellWithDefaultLock(2000, []byte{200})
	require.NoError(t, err)

	c := f.contract(t, 1500)
	c.AddOutputRule(contract.FieldData, addAmount(2000))
	otherHash := other.Hash()
	c.AddInputRule(func(*types.Transaction) types.CellQuery {
		return types.CellQuery{Query: types.Single(types.LockHash(otherHash)), Limit: 1}
	})

	gen := contract.NewGenerator().Pipeline(c).QueryService(f.provider)
	tx, err := gen.Generate(context.Background())
	require.NoError(t, err)

	err = f.provider.VerifyTx(context.Background(), tx.Tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrTransactionVerification)
	assert.ErrorIs(t, err, sudt.ErrAmountIncrease)
}

func TestOutputRulesRunInOrder(t *testing.T) {
	f := setup(t)
	c := f.contract(t, 0)
	c.SetOutputCount(0)
	c.AddOutputRule(contract.FieldData, addAmount(17))
	c.AddOutputRule(contract.FieldData, addAmount(20))

	script, ok := c.Script()
	require.True(t, ok)
	prebuilt := &types.Transaction{}
	prebuilt.AddOutput(types.CellOutput{Capacity: types.MustCKB(200), Lock: f.minter, Type: script}, sudt.NewAmount(2000).MarshalMolecule())
	prebuilt.AddOutput(types.CellOutput{Capacity: types.MustCKB(100), Lock: f.minter}, nil)

	gen := contract.NewGenerator().Pipeline(c).QueryService(f.provider)
	tx, err := gen.GenerateFrom(context.Background(), prebuilt)
	require.NoError(t, err)

	require.Len(t, tx.Tx.Outputs, 2)
	assert.Equal(t, uint64(2037), amountOf(t, tx.Tx, 0))
	assert.Empty(t, tx.Tx.OutputsData[1])
}

func TestTransferWithoutOwner(t *testing.T) {
	f := setup(t)
	c := f.contract(t, 0)
	script, ok := c.Script()
	require.True(t, ok)

	lockOp, err := f.chain.DefaultLockOutPoint()
	require.NoError(t, err)
	holder, err := f.chain.BuildScript(lockOp, []byte{5})
	require.NoError(t, err)
	held := f.chain.CreateCell(types.CellOutput{Capacity: types.MustCKB(200), Lock: holder, Type: script}, sudt.NewAmount(100).MarshalMolecule())

	build := func(out uint64) *types.Transaction {
		tx := &types.Transaction{}
		tx.AddInput(types.CellInput{PreviousOutput: held})
		tx.AddCellDep(types.CellDep{OutPoint: lockOp, DepType: types.DepTypeCode})
		tx.AddCellDep(types.CellDep{OutPoint: f.codeOp, DepType: types.DepTypeCode})
		tx.AddOutput(types.CellOutput{Capacity: types.MustCKB(200), Lock: holder, Type: script}, sudt.NewAmount(out).MarshalMolecule())
		return tx
	}

	assert.NoError(t, f.chain.VerifyTx(context.Background(), build(60)))
	assert.NoError(t, f.chain.VerifyTx(context.Background(), build(100)))
	assert.ErrorIs(t, f.chain.VerifyTx(context.Background(), build(101)), sudt.ErrAmountIncrease)
}

func TestAmountEncoding(t *testing.T) {
	a := sudt.NewAmount(0x0102)
	b := a.MarshalMolecule()
	require.Len(t, b, sudt.AmountSize)
	assert.Equal(t, byte(0x02), b[0])
	assert.Equal(t, byte(0x01), b[1])

	withTail := append(b, 0xff, 0xff)
	decoded, err := sudt.DecodeAmount(withTail)
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Cmp(a))

	zero, err := sudt.DecodeAmount(nil)
	require.NoError(t, err)
	assert.Equal(t, "0", zero.String())

	_, err = sudt.DecodeAmount([]byte{1, 2, 3})
	assert.ErrorIs(t, err, sudt.ErrInvalidAmount)
}

func TestAmountBounds(t *testing.T) {
	maxU128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	top, err := sudt.AmountFromBig(maxU128)
	require.NoError(t, err)
	assert.Equal(t, maxU128.String(), top.String())

	_, err = top.Add(sudt.NewAmount(1))
	assert.ErrorIs(t, err, sudt.ErrAmountOverflow)

	_, err = sudt.AmountFromBig(new(big.Int).Add(maxU128, big.NewInt(1)))
	assert.ErrorIs(t, err, sudt.ErrAmountOverflow)
	_, err = sudt.AmountFromBig(big.NewInt(-1))
	assert.ErrorIs(t, err, sudt.ErrAmountOverflow)
}

func TestDecodeOwnerLockHash(t *testing.T) {
	_, err := sudt.DecodeOwnerLockHash([]byte{1, 2})
	assert.ErrorIs(t, err, sudt.ErrInvalidArgs)

	h := types.Blake2b256([]byte("owner"))
	owner, err := sudt.DecodeOwnerLockHash(h[:])
	require.NoError(t, err)
	assert.Equal(t, h[:], owner.MarshalMolecule())
}
