package contract

import (
	"fmt"

	"github.com/manifest-network/trampoline/sdk/types"
)

// Schema is a value with a molecule encoding, used as contract args or data.
type Schema interface {
	MarshalMolecule() []byte
}

// Decoder parses the molecule encoding of T. Decoders accept empty input
// and return the zero value, since a fresh caller cell has no data.
type Decoder[T any] func([]byte) (T, error)

// Bytes is an opaque byte string schema.
type Bytes []byte

func (b Bytes) MarshalMolecule() []byte {
	return append([]byte(nil), b...)
}

func DecodeBytes(b []byte) (Bytes, error) {
	return append(Bytes(nil), b...), nil
}

// Empty is the schema of contracts whose args or data carry nothing.
type Empty struct{}

func (Empty) MarshalMolecule() []byte {
	return nil
}

func DecodeEmpty([]byte) (Empty, error) {
	return Empty{}, nil
}

// Byte32 is a fixed 32 byte schema.
type Byte32 types.H256

func (b Byte32) MarshalMolecule() []byte {
	return append([]byte(nil), b[:]...)
}

func DecodeByte32(b []byte) (Byte32, error) {
	var out Byte32
	if len(b) == 0 {
		return out, nil
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("byte32 requires 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
