package contract

import (
	"fmt"
	"os"

	"github.com/manifest-network/trampoline/sdk/types"
)

// SourceKind says where a contract's code comes from.
type SourceKind int

const (
	SourceLocalPath SourceKind = iota
	SourceImmediate
	SourceChain
)

// ContractSource locates a contract's code: a file, bytes in memory or a
// cell already on chain.
type ContractSource struct {
	Kind     SourceKind
	Path     string
	Code     []byte
	OutPoint types.OutPoint
}

func LocalPath(path string) ContractSource {
	return ContractSource{Kind: SourceLocalPath, Path: path}
}

func Immediate(code []byte) ContractSource {
	return ContractSource{Kind: SourceImmediate, Code: append([]byte(nil), code...)}
}

// OnChain refers to code already deployed at op.
func OnChain(op types.OutPoint) ContractSource {
	return ContractSource{Kind: SourceChain, OutPoint: op}
}

// LoadFromPath reads a compiled contract binary.
func LoadFromPath(path string) ([]byte, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract %s: %w", path, err)
	}
	return code, nil
}

// Cell builds the code cell for the source. A chain source yields a cell
// carrying only its out point.
func (s ContractSource) Cell() (*types.Cell, error) {
	switch s.Kind {
	case SourceLocalPath:
		code, err := LoadFromPath(s.Path)
		if err != nil {
			return nil, err
		}
		return types.NewCellWithData(code), nil
	case SourceImmediate:
		return types.NewCellWithData(s.Code), nil
	case SourceChain:
		cell := &types.Cell{}
		cell.SetOutPoint(s.OutPoint)
		return cell, nil
	}
	return nil, fmt.Errorf("unknown contract source kind %d", s.Kind)
}
