package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/manifest-network/trampoline/sdk/molecule"
)

// OutPoint locates a cell by the transaction that created it.
type OutPoint struct {
	TxHash H256
	Index  uint32
}

type outPointJSON struct {
	TxHash H256           `json:"tx_hash"`
	Index  hexutil.Uint64 `json:"index"`
}

func (o OutPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(outPointJSON{TxHash: o.TxHash, Index: hexutil.Uint64(o.Index)})
}

func (o *OutPoint) UnmarshalJSON(b []byte) error {
	var v outPointJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if uint64(v.Index) > uint64(^uint32(0)) {
		return fmt.Errorf("out point index %d overflows uint32", v.Index)
	}
	o.TxHash, o.Index = v.TxHash, uint32(v.Index)
	return nil
}

func (o OutPoint) Serialize() []byte {
	return append(o.TxHash.Bytes(), molecule.Uint32(o.Index)...)
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash.Hex(), o.Index)
}

// CellDep references a cell whose data or dep group a transaction needs.
type CellDep struct {
	OutPoint OutPoint `json:"out_point"`
	DepType  DepType  `json:"dep_type"`
}

func (d CellDep) Serialize() []byte {
	return append(d.OutPoint.Serialize(), uint8(d.DepType))
}

// CellInput spends the cell at PreviousOutput.
type CellInput struct {
	Since          uint64
	PreviousOutput OutPoint
}

type cellInputJSON struct {
	Since          hexutil.Uint64 `json:"since"`
	PreviousOutput OutPoint       `json:"previous_output"`
}

func (i CellInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(cellInputJSON{Since: hexutil.Uint64(i.Since), PreviousOutput: i.PreviousOutput})
}

func (i *CellInput) UnmarshalJSON(b []byte) error {
	var v cellInputJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	i.Since, i.PreviousOutput = uint64(v.Since), v.PreviousOutput
	return nil
}

func (i CellInput) Serialize() []byte {
	return append(molecule.Uint64(i.Since), i.PreviousOutput.Serialize()...)
}

// CellOutput is the on-chain part of a cell besides its data.
type CellOutput struct {
	Capacity Capacity
	Lock     Script
	Type     *Script
}

type cellOutputJSON struct {
	Capacity hexutil.Uint64 `json:"capacity"`
	Lock     Script         `json:"lock"`
	Type     *Script        `json:"type"`
}

func (o CellOutput) MarshalJSON() ([]byte, error) {
	return json.Marshal(cellOutputJSON{Capacity: hexutil.Uint64(o.Capacity), Lock: o.Lock, Type: o.Type})
}

func (o *CellOutput) UnmarshalJSON(b []byte) error {
	var v cellOutputJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Capacity, o.Lock, o.Type = Capacity(v.Capacity), v.Lock, v.Type
	return nil
}

func (o CellOutput) Serialize() []byte {
	var typ []byte
	if o.Type != nil {
		typ = o.Type.Serialize()
	}
	return molecule.Table(
		molecule.Uint64(uint64(o.Capacity)),
		o.Lock.Serialize(),
		molecule.Option(typ),
	)
}

// OccupiedCapacity is the capacity needed to hold the output and dataLen bytes of data.
func (o CellOutput) OccupiedCapacity(dataLen int) Capacity {
	size := uint64(8) + o.Lock.SizeBytes() + uint64(dataLen)
	if o.Type != nil {
		size += o.Type.SizeBytes()
	}
	return BytesCapacity(size)
}

func (o CellOutput) Clone() CellOutput {
	return CellOutput{Capacity: o.Capacity, Lock: o.Lock.Clone(), Type: CloneScriptPtr(o.Type)}
}

// WitnessArgs is the conventional witness layout read by lock and type scripts.
type WitnessArgs struct {
	Lock       []byte
	InputType  []byte
	OutputType []byte
}

func optionalBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return molecule.Bytes(b)
}

func (w WitnessArgs) Serialize() []byte {
	return molecule.Table(
		molecule.Option(optionalBytes(w.Lock)),
		molecule.Option(optionalBytes(w.InputType)),
		molecule.Option(optionalBytes(w.OutputType)),
	)
}

// DeserializeWitnessArgs decodes a molecule encoded WitnessArgs.
func DeserializeWitnessArgs(b []byte) (WitnessArgs, error) {
	fields, err := molecule.UnpackTable(b, 3)
	if err != nil {
		return WitnessArgs{}, fmt.Errorf("failed to decode witness args: %w", err)
	}
	var out [3][]byte
	for i := 0; i < 3; i++ {
		if len(fields[i]) == 0 {
			continue
		}
		v, err := molecule.UnpackBytes(fields[i])
		if err != nil {
			return WitnessArgs{}, fmt.Errorf("failed to decode witness args field %d: %w", i, err)
		}
		out[i] = v
	}
	return WitnessArgs{Lock: out[0], InputType: out[1], OutputType: out[2]}, nil
}
