package chain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/sdk/account"
	"github.com/manifest-network/trampoline/sdk/chain"
	"github.com/manifest-network/trampoline/sdk/types"
)

func TestFee(t *testing.T) {
	assert.Equal(t, types.Capacity(1000), chain.Fee(1000, 1000))
	assert.Equal(t, types.Capacity(1), chain.Fee(1, 1000))
	assert.Equal(t, types.Capacity(0), chain.Fee(0, 1000))
}

func TestAddOutputFillsCapacity(t *testing.T) {
	lock := account.SighashAllLock(make([]byte, 20))
	tx := chain.NewTransactionBuilder().
		AddOutput(types.CellOutput{Lock: lock}, []byte("hello")).
		Build()
	require.Len(t, tx.Outputs, 1)
	assert.Equal(t, tx.Outputs[0].OccupiedCapacity(5), tx.Outputs[0].Capacity)
	assert.Equal(t, types.Bytes("hello"), tx.OutputsData[0])
}

func TestBalance(t *testing.T) {
	ctx := context.Background()
	c := chain.NewMockChain()
	key, err := account.GenerateKeyPair()
	require.NoError(t, err)
	signer := account.NewSigner(key)
	lock := signer.Lock()

	c.CreateCell(types.CellOutput{Capacity: types.MustCKB(100), Lock: lock}, nil)
	c.CreateCell(types.CellOutput{Capacity: types.MustCKB(500), Lock: lock}, nil)
	// Cells with data are never collected as capacity.
	c.CreateCell(types.CellOutput{Capacity: types.MustCKB(1000), Lock: lock}, []byte{1})

	recipient := account.SighashAllLock(make([]byte, 20))
	b := chain.NewTransactionBuilder().
		AddCellDep(c.Genesis().SighashDep()).
		AddOutput(types.CellOutput{Capacity: types.MustCKB(300), Lock: recipient}, nil)
	require.NoError(t, b.Balance(ctx, c, lock, 0))
	require.NoError(t, b.Unlock(signer))

	tx := b.Build()
	require.Len(t, tx.Inputs, 2)
	require.Len(t, tx.Outputs, 2)
	assert.True(t, tx.Outputs[1].Lock.Equal(lock))

	var in, out types.Capacity
	for _, cell := range b.Inputs() {
		in += cell.Output.Capacity
	}
	for _, o := range tx.Outputs {
		out += o.Capacity
	}
	assert.Equal(t, types.MustCKB(600), in)
	fee := in - out
	assert.Greater(t, uint64(fee), uint64(0))
	assert.GreaterOrEqual(t, uint64(fee), uint64(chain.Fee(tx.Size(), chain.DefaultFeeRate)))

	_, err = c.SendTx(ctx, tx)
	require.NoError(t, err)
}

func TestBalanceInsufficientCapacity(t *testing.T) {
	c := chain.NewMockChain()
	key, err := account.GenerateKeyPair()
	require.NoError(t, err)
	lock := account.NewSigner(key).Lock()
	c.CreateCell(types.CellOutput{Capacity: types.MustCKB(100), Lock: lock}, nil)

	b := chain.NewTransactionBuilder().
		AddOutput(types.CellOutput{Capacity: types.MustCKB(300), Lock: lock}, nil)
	require.ErrorIs(t, b.Balance(context.Background(), c, lock, 0), chain.ErrInsufficientCapacity)
}
