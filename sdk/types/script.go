package types

import (
	"bytes"
	"fmt"

	"github.com/manifest-network/trampoline/sdk/molecule"
)

// HashType selects how a script's code hash is matched against cell deps.
type HashType uint8

const (
	HashTypeData  HashType = 0
	HashTypeType  HashType = 1
	HashTypeData1 HashType = 2
)

func (h HashType) String() string {
	switch h {
	case HashTypeData:
		return "data"
	case HashTypeType:
		return "type"
	case HashTypeData1:
		return "data1"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(h))
	}
}

func (h HashType) MarshalText() ([]byte, error) {
	switch h {
	case HashTypeData, HashTypeType, HashTypeData1:
		return []byte(h.String()), nil
	}
	return nil, fmt.Errorf("invalid hash type %d", uint8(h))
}

func (h *HashType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "data":
		*h = HashTypeData
	case "type":
		*h = HashTypeType
	case "data1":
		*h = HashTypeData1
	default:
		return fmt.Errorf("invalid hash type %q", text)
	}
	return nil
}

// DepType tells whether a cell dep points at code or at a group of deps.
type DepType uint8

const (
	DepTypeCode     DepType = 0
	DepTypeDepGroup DepType = 1
)

func (d DepType) String() string {
	if d == DepTypeDepGroup {
		return "dep_group"
	}
	return "code"
}

func (d DepType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DepType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "code":
		*d = DepTypeCode
	case "dep_group":
		*d = DepTypeDepGroup
	default:
		return fmt.Errorf("invalid dep type %q", text)
	}
	return nil
}

// Script is a lock or type script reference.
type Script struct {
	CodeHash H256     `json:"code_hash" toml:"code_hash"`
	HashType HashType `json:"hash_type" toml:"hash_type"`
	Args     Bytes    `json:"args" toml:"args"`
}

// NewScript builds a script with a copy of args.
func NewScript(codeHash H256, hashType HashType, args []byte) Script {
	return Script{CodeHash: codeHash, HashType: hashType, Args: append(Bytes{}, args...)}
}

// Serialize returns the molecule encoding of the script.
func (s Script) Serialize() []byte {
	return molecule.Table(
		s.CodeHash.Bytes(),
		molecule.Uint8(uint8(s.HashType)),
		molecule.Bytes(s.Args),
	)
}

// Hash is the blake2b-256 digest of the serialized script.
func (s Script) Hash() H256 {
	return Blake2b256(s.Serialize())
}

// SizeBytes is the number of bytes the script occupies in a cell.
func (s Script) SizeBytes() uint64 {
	return uint64(32 + 1 + len(s.Args))
}

func (s Script) OccupiedCapacity() Capacity {
	return BytesCapacity(s.SizeBytes())
}

func (s *Script) SetArgs(args []byte) {
	s.Args = append(Bytes{}, args...)
}

func (s *Script) SetCodeHash(h H256) {
	s.CodeHash = h
}

func (s *Script) SetHashType(h HashType) {
	s.HashType = h
}

func (s Script) Equal(other Script) bool {
	return s.CodeHash == other.CodeHash && s.HashType == other.HashType && bytes.Equal(s.Args, other.Args)
}

// Clone returns a deep copy of the script.
func (s Script) Clone() Script {
	return NewScript(s.CodeHash, s.HashType, s.Args)
}

// CloneScriptPtr deep copies an optional script.
func CloneScriptPtr(s *Script) *Script {
	if s == nil {
		return nil
	}
	c := s.Clone()
	return &c
}

// DeserializeScript decodes a molecule encoded script.
func DeserializeScript(b []byte) (Script, error) {
	fields, err := molecule.UnpackTable(b, 3)
	if err != nil {
		return Script{}, fmt.Errorf("failed to decode script: %w", err)
	}
	if len(fields[0]) != 32 || len(fields[1]) != 1 {
		return Script{}, fmt.Errorf("failed to decode script: %w", molecule.ErrInvalidLength)
	}
	args, err := molecule.UnpackBytes(fields[2])
	if err != nil {
		return Script{}, fmt.Errorf("failed to decode script args: %w", err)
	}
	var h H256
	copy(h[:], fields[0])
	return Script{CodeHash: h, HashType: HashType(fields[1][0]), Args: args}, nil
}
