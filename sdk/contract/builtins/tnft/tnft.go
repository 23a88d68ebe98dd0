// Package tnft is the trampoline NFT: a type script whose cell data is a
// genesis id and a content id.
package tnft

import (
	"errors"
	"fmt"

	"github.com/manifest-network/trampoline/sdk/chain"
	"github.com/manifest-network/trampoline/sdk/contract"
	"github.com/manifest-network/trampoline/sdk/types"
)

// NFTSize is the encoded size of an NFT.
const NFTSize = 64

// Code stands in for the trampoline-nft binary on a MockChain.
var Code = []byte("trampoline:trampoline_nft")

var (
	ErrInvalidData      = errors.New("trampoline nft data must be 64 bytes")
	ErrInvalidGenesisID = errors.New("trampoline nft genesis id matches neither the seed input nor an input nft")
	ErrNoInputs         = errors.New("minting a trampoline nft requires an input")
)

// NFT is the data of a trampoline NFT cell.
type NFT struct {
	GenesisID types.H256
	CID       types.H256
}

func (n NFT) MarshalMolecule() []byte {
	out := make([]byte, 0, NFTSize)
	out = append(out, n.GenesisID[:]...)
	return append(out, n.CID[:]...)
}

func DecodeNFT(b []byte) (NFT, error) {
	var n NFT
	if len(b) == 0 {
		return n, nil
	}
	if len(b) != NFTSize {
		return n, fmt.Errorf("%w: got %d", ErrInvalidData, len(b))
	}
	copy(n.GenesisID[:], b[:32])
	copy(n.CID[:], b[32:])
	return n, nil
}

// GenesisIDFromOutPoint derives a genesis id from the out point of the cell
// consumed to mint: blake2b(tx_hash || index as u32 LE).
func GenesisIDFromOutPoint(op types.OutPoint) types.H256 {
	return types.Blake2b256(op.Serialize())
}

// ContentID hashes NFT content.
func ContentID(content []byte) types.H256 {
	return types.Blake2b256(content)
}

// Contract is a trampoline NFT contract.
type Contract = contract.Contract[contract.Empty, NFT]

func New(code []byte) *Contract {
	return contract.New[contract.Empty, NFT](code, contract.DecodeEmpty, DecodeNFT)
}

// Validator requires every output NFT to carry the genesis id of the first
// input, or the genesis id of an NFT spent by the transaction.
var Validator = chain.ValidatorFunc(func(ctx *chain.VerifyContext) error {
	outputs := ctx.GroupOutputs()
	if len(outputs) == 0 {
		return nil
	}
	tx := ctx.Tx()
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}

	known := map[types.H256]bool{}
	for _, in := range ctx.GroupInputs() {
		n, err := DecodeNFT(in.Data)
		if err != nil {
			return err
		}
		known[n.GenesisID] = true
	}
	seed := GenesisIDFromOutPoint(tx.Inputs[0].PreviousOutput)

	for _, out := range outputs {
		if len(out.Data) != NFTSize {
			return fmt.Errorf("%w: got %d", ErrInvalidData, len(out.Data))
		}
		n, err := DecodeNFT(out.Data)
		if err != nil {
			return err
		}
		if n.GenesisID != seed && !known[n.GenesisID] {
			ctx.Debug("rejecting genesis id %s", n.GenesisID.Hex())
			return ErrInvalidGenesisID
		}
	}
	return nil
})

// Deploy deploys Code on a mock chain with Validator bound to it.
func Deploy(c *chain.MockChain) types.OutPoint {
	return c.DeployScript(Code, Validator)
}
