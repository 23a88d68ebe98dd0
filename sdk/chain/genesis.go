package chain

import (
	"github.com/manifest-network/trampoline/sdk/molecule"
	"github.com/manifest-network/trampoline/sdk/types"
)

// Output positions of the system cells in the first genesis transaction.
const (
	Secp256k1DataOutputIndex = 0
	SighashAllOutputIndex    = 1
	DaoOutputIndex           = 2
	RandomCellOutputIndex    = 3
	MultisigAllOutputIndex   = 4
)

// GenesisInfo locates the system cells of a chain's genesis block.
type GenesisInfo struct {
	Transactions []*types.Transaction

	Secp256k1Data   types.OutPoint
	SighashAll      types.OutPoint
	Dao             types.OutPoint
	MultisigAll     types.OutPoint
	SighashDepGroup types.OutPoint

	SighashDataHash  types.H256
	SighashTypeHash  types.H256
	DaoDataHash      types.H256
	MultisigDataHash types.H256
}

// SighashDep is the dep group a sighash-all lock needs.
func (g *GenesisInfo) SighashDep() types.CellDep {
	return types.CellDep{OutPoint: g.SighashDepGroup, DepType: types.DepTypeDepGroup}
}

func systemCell(data []byte) (types.CellOutput, []byte) {
	cell := types.NewCellWithData(data)
	return cell.Output(), data
}

// deployGenesis builds the two genesis transactions and stores their outputs.
func deployGenesis(c *MockChain) *GenesisInfo {
	defaultLock, _ := c.DefaultLockOutPoint()
	randomLock, _ := c.BuildScript(defaultLock, nil)

	tx0 := &types.Transaction{}
	for _, data := range [][]byte{Secp256k1Data, SighashAllCode, DaoCode} {
		tx0.AddOutput(systemCell(data))
	}
	tx0.AddOutput(types.CellOutput{Capacity: types.MustCKB(1_000), Lock: randomLock}, nil)
	tx0.AddOutput(systemCell(MultisigAllCode))
	tx0Hash := tx0.Hash()

	at := func(hash types.H256, i int) types.OutPoint {
		return types.OutPoint{TxHash: hash, Index: uint32(i)}
	}
	group := molecule.Fixvec([][]byte{
		at(tx0Hash, Secp256k1DataOutputIndex).Serialize(),
		at(tx0Hash, SighashAllOutputIndex).Serialize(),
	})
	tx1 := &types.Transaction{}
	tx1.AddOutput(systemCell(group))
	tx1Hash := tx1.Hash()

	for _, tx := range []*types.Transaction{tx0, tx1} {
		hash := tx.Hash()
		for i, out := range tx.Outputs {
			c.CreateCellWithOutPoint(at(hash, i), out, tx.OutputsData[i])
		}
	}

	info := &GenesisInfo{
		Transactions:     []*types.Transaction{tx0, tx1},
		Secp256k1Data:    at(tx0Hash, Secp256k1DataOutputIndex),
		SighashAll:       at(tx0Hash, SighashAllOutputIndex),
		Dao:              at(tx0Hash, DaoOutputIndex),
		MultisigAll:      at(tx0Hash, MultisigAllOutputIndex),
		SighashDepGroup:  at(tx1Hash, 0),
		SighashDataHash:  types.Blake2b256(SighashAllCode),
		SighashTypeHash:  types.SighashAllTypeHash,
		DaoDataHash:      types.Blake2b256(DaoCode),
		MultisigDataHash: types.Blake2b256(MultisigAllCode),
	}
	c.RegisterTypeAlias(info.SighashTypeHash, info.SighashDataHash)
	return info
}
