package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/manifest-network/trampoline/sdk/molecule"
)

// Transaction is a CKB transaction.
type Transaction struct {
	Version     uint32
	CellDeps    []CellDep
	HeaderDeps  []H256
	Inputs      []CellInput
	Outputs     []CellOutput
	OutputsData []Bytes
	Witnesses   []Bytes
}

type transactionJSON struct {
	Version     hexutil.Uint64 `json:"version"`
	CellDeps    []CellDep      `json:"cell_deps"`
	HeaderDeps  []H256         `json:"header_deps"`
	Inputs      []CellInput    `json:"inputs"`
	Outputs     []CellOutput   `json:"outputs"`
	OutputsData []Bytes        `json:"outputs_data"`
	Witnesses   []Bytes        `json:"witnesses"`
	Hash        *H256          `json:"hash,omitempty"`
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (tx Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		Version:     hexutil.Uint64(tx.Version),
		CellDeps:    nonNil(tx.CellDeps),
		HeaderDeps:  nonNil(tx.HeaderDeps),
		Inputs:      nonNil(tx.Inputs),
		Outputs:     nonNil(tx.Outputs),
		OutputsData: nonNil(tx.OutputsData),
		Witnesses:   nonNil(tx.Witnesses),
	})
}

func (tx *Transaction) UnmarshalJSON(b []byte) error {
	var v transactionJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*tx = Transaction{
		Version:     uint32(v.Version),
		CellDeps:    v.CellDeps,
		HeaderDeps:  v.HeaderDeps,
		Inputs:      v.Inputs,
		Outputs:     v.Outputs,
		OutputsData: v.OutputsData,
		Witnesses:   v.Witnesses,
	}
	return nil
}

// RawSerialize encodes the transaction without witnesses.
func (tx *Transaction) RawSerialize() []byte {
	deps := make([][]byte, len(tx.CellDeps))
	for i, d := range tx.CellDeps {
		deps[i] = d.Serialize()
	}
	headers := make([][]byte, len(tx.HeaderDeps))
	for i, h := range tx.HeaderDeps {
		headers[i] = h.Bytes()
	}
	inputs := make([][]byte, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = in.Serialize()
	}
	outputs := make([][]byte, len(tx.Outputs))
	for i, out := range tx.Outputs {
		outputs[i] = out.Serialize()
	}
	data := make([][]byte, len(tx.OutputsData))
	for i, d := range tx.OutputsData {
		data[i] = molecule.Bytes(d)
	}
	return molecule.Table(
		molecule.Uint32(tx.Version),
		molecule.Fixvec(deps),
		molecule.Fixvec(headers),
		molecule.Fixvec(inputs),
		molecule.Dynvec(outputs),
		molecule.Dynvec(data),
	)
}

// Serialize encodes the full transaction including witnesses.
func (tx *Transaction) Serialize() []byte {
	witnesses := make([][]byte, len(tx.Witnesses))
	for i, w := range tx.Witnesses {
		witnesses[i] = molecule.Bytes(w)
	}
	return molecule.Table(tx.RawSerialize(), molecule.Dynvec(witnesses))
}

// Hash is the transaction hash: blake2b-256 of the raw transaction.
func (tx *Transaction) Hash() H256 {
	return Blake2b256(tx.RawSerialize())
}

// Size is the serialized size used for fee calculation. It includes the
// 4 byte offset the transaction takes in a block's transaction vector.
func (tx *Transaction) Size() uint64 {
	return uint64(len(tx.Serialize())) + 4
}

// OutputWithData returns output i and its data.
func (tx *Transaction) OutputWithData(i int) (CellOutput, Bytes, error) {
	if i < 0 || i >= len(tx.Outputs) || i >= len(tx.OutputsData) {
		return CellOutput{}, nil, fmt.Errorf("output index %d out of range", i)
	}
	return tx.Outputs[i], tx.OutputsData[i], nil
}

// AddOutput appends an output and its data.
func (tx *Transaction) AddOutput(output CellOutput, data []byte) {
	tx.Outputs = append(tx.Outputs, output)
	tx.OutputsData = append(tx.OutputsData, append(Bytes{}, data...))
}

// AddCellDep appends dep unless an identical dep is already present.
func (tx *Transaction) AddCellDep(dep CellDep) {
	for _, d := range tx.CellDeps {
		if d == dep {
			return
		}
	}
	tx.CellDeps = append(tx.CellDeps, dep)
}

func (tx *Transaction) AddInput(input CellInput) {
	tx.Inputs = append(tx.Inputs, input)
}

// Clone returns a deep copy.
func (tx *Transaction) Clone() *Transaction {
	out := &Transaction{
		Version:    tx.Version,
		CellDeps:   append([]CellDep(nil), tx.CellDeps...),
		HeaderDeps: append([]H256(nil), tx.HeaderDeps...),
		Inputs:     append([]CellInput(nil), tx.Inputs...),
	}
	for _, o := range tx.Outputs {
		out.Outputs = append(out.Outputs, o.Clone())
	}
	for _, d := range tx.OutputsData {
		out.OutputsData = append(out.OutputsData, append(Bytes{}, d...))
	}
	for _, w := range tx.Witnesses {
		out.Witnesses = append(out.Witnesses, append(Bytes{}, w...))
	}
	return out
}

// CellMetaTransaction is a transaction with its inputs resolved.
type CellMetaTransaction struct {
	Tx     *Transaction
	Inputs []CellMeta
}

// NewCellMetaTransaction wraps tx with no resolved inputs.
func NewCellMetaTransaction(tx *Transaction) *CellMetaTransaction {
	if tx == nil {
		tx = &Transaction{}
	}
	return &CellMetaTransaction{Tx: tx}
}

// WithInputs sets the resolved inputs and the matching CellInputs.
func (m *CellMetaTransaction) WithInputs(inputs []CellMeta) *CellMetaTransaction {
	tx := m.Tx.Clone()
	tx.Inputs = make([]CellInput, len(inputs))
	for i, in := range inputs {
		tx.Inputs[i] = CellInput{PreviousOutput: in.OutPoint}
	}
	return &CellMetaTransaction{Tx: tx, Inputs: append([]CellMeta(nil), inputs...)}
}

func (m *CellMetaTransaction) Clone() *CellMetaTransaction {
	return &CellMetaTransaction{Tx: m.Tx.Clone(), Inputs: append([]CellMeta(nil), m.Inputs...)}
}
