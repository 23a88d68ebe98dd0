package models

import (
	"encoding/json"
	"fmt"

	"github.com/manifest-network/trampoline/sdk/rpc"
	"github.com/manifest-network/trampoline/sdk/types"
)

// Block represents a CKB block as returned by the node.
type Block struct {
	ID   uint64
	Hash string
	Data []byte
}

// Cell is an output created by a transaction.
type Cell struct {
	Index    uint32
	Capacity uint64
	LockHash string
	TypeHash string
}

// Transaction represents a CKB transaction. Spent lists the out points
// consumed by its inputs; the cellbase has none.
type Transaction struct {
	Hash    string
	BlockID uint64
	Data    []byte
	Spent   []types.OutPoint
	Outputs []Cell
}

// FromRPCBlock converts a node block into the stored models.
func FromRPCBlock(b *rpc.Block) (*Block, []*Transaction, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal block: %w", err)
	}
	id := uint64(b.Header.Number)
	block := &Block{ID: id, Hash: b.Header.Hash.Hex(), Data: data}

	txs := make([]*Transaction, 0, len(b.Transactions))
	for i := range b.Transactions {
		tx := &b.Transactions[i]
		data, err := json.Marshal(tx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal transaction %d of block %d: %w", i, id, err)
		}
		m := &Transaction{Hash: tx.Hash().Hex(), BlockID: id, Data: data}
		// The cellbase is always first and spends nothing.
		if i > 0 {
			for _, in := range tx.Inputs {
				m.Spent = append(m.Spent, in.PreviousOutput)
			}
		}
		for j, out := range tx.Outputs {
			c := Cell{Index: uint32(j), Capacity: uint64(out.Capacity), LockHash: out.Lock.Hash().Hex()}
			if out.Type != nil {
				c.TypeHash = out.Type.Hash().Hex()
			}
			m.Outputs = append(m.Outputs, c)
		}
		txs = append(txs, m)
	}
	return block, txs, nil
}
