// Package mnft holds the multi-purpose NFT issuer cell.
package mnft

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/manifest-network/trampoline/sdk/chain"
	"github.com/manifest-network/trampoline/sdk/contract"
	"github.com/manifest-network/trampoline/sdk/molecule"
	"github.com/manifest-network/trampoline/sdk/types"
)

// IssuerHeaderSize is the fixed part of the issuer data.
const IssuerHeaderSize = 11

// IssuerCode stands in for the issuer-type binary on a MockChain.
var IssuerCode = []byte("trampoline:mnft_issuer_type")

var (
	ErrInvalidIssuer     = errors.New("invalid issuer data")
	ErrInvalidIssuerArgs = errors.New("issuer args must be blake160 of the first input and the output index")
	ErrIssuerCount       = errors.New("issuer cells cannot be created or merged in bulk")
	ErrIssuerDecrease    = errors.New("issuer class and set counts cannot decrease")
	ErrIssuerNotEmpty    = errors.New("issuer with classes cannot be destroyed")
)

// Issuer is the data of an issuer cell. Integers are big endian and the
// info size is derived from Info.
type Issuer struct {
	Version    uint8
	ClassCount uint32
	SetCount   uint32
	Info       []byte
}

func (i Issuer) MarshalMolecule() []byte {
	out := make([]byte, IssuerHeaderSize, IssuerHeaderSize+len(i.Info))
	out[0] = i.Version
	binary.BigEndian.PutUint32(out[1:5], i.ClassCount)
	binary.BigEndian.PutUint32(out[5:9], i.SetCount)
	binary.BigEndian.PutUint16(out[9:11], uint16(len(i.Info)))
	return append(out, i.Info...)
}

func DecodeIssuer(b []byte) (Issuer, error) {
	var i Issuer
	if len(b) == 0 {
		return i, nil
	}
	if len(b) < IssuerHeaderSize {
		return i, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidIssuer, len(b))
	}
	size := int(binary.BigEndian.Uint16(b[9:11]))
	if len(b) != IssuerHeaderSize+size {
		return i, fmt.Errorf("%w: info size %d, got %d bytes", ErrInvalidIssuer, size, len(b)-IssuerHeaderSize)
	}
	i.Version = b[0]
	i.ClassCount = binary.BigEndian.Uint32(b[1:5])
	i.SetCount = binary.BigEndian.Uint32(b[5:9])
	if size > 0 {
		i.Info = append([]byte(nil), b[IssuerHeaderSize:]...)
	}
	return i, nil
}

// Validate checks the encodable bounds of the issuer.
func (i Issuer) Validate() error {
	if len(i.Info) > math.MaxUint16 {
		return fmt.Errorf("%w: info is %d bytes", ErrInvalidIssuer, len(i.Info))
	}
	return nil
}

// IssuerArgs identifies an issuer.
type IssuerArgs [20]byte

func (a IssuerArgs) MarshalMolecule() []byte {
	return append([]byte(nil), a[:]...)
}

func DecodeIssuerArgs(b []byte) (IssuerArgs, error) {
	var a IssuerArgs
	if len(b) == 0 {
		return a, nil
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("%w: got %d bytes", ErrInvalidIssuerArgs, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// IssuerArgsFromCellInput derives issuer args from the first input of the
// creating transaction and the issuer's output index.
func IssuerArgsFromCellInput(input types.CellInput, idx uint64) IssuerArgs {
	h := types.Blake2b256(input.Serialize(), molecule.Uint64(idx))
	var a IssuerArgs
	copy(a[:], h[:20])
	return a
}

// IssuerContract is an mNFT issuer contract.
type IssuerContract = contract.Contract[IssuerArgs, Issuer]

// NewIssuer returns an issuer contract whose caller cell is created by a
// transaction spending seed first.
func NewIssuer(code []byte, seed types.CellInput) (*IssuerContract, error) {
	c := contract.New[IssuerArgs, Issuer](code, DecodeIssuerArgs, DecodeIssuer)
	if err := c.SetCallerCellArgs(IssuerArgsFromCellInput(seed, 0)); err != nil {
		return nil, err
	}
	c.SetCallerCellData(Issuer{})
	return c, nil
}

// IssuerValidator allows creating one empty issuer per transaction with
// args derived from the first input, updating an issuer without lowering
// its counts, and destroying an issuer with no classes.
var IssuerValidator = chain.ValidatorFunc(func(ctx *chain.VerifyContext) error {
	inputs, outputs := ctx.GroupInputs(), ctx.GroupOutputs()
	if len(inputs) > 1 || len(outputs) > 1 {
		return ErrIssuerCount
	}

	decode := func(c types.CellMeta) (Issuer, error) {
		if len(c.Data) < IssuerHeaderSize {
			return Issuer{}, fmt.Errorf("%w: %d bytes", ErrInvalidIssuer, len(c.Data))
		}
		return DecodeIssuer(c.Data)
	}

	switch {
	case len(inputs) == 0 && len(outputs) == 1:
		tx := ctx.Tx()
		if len(tx.Inputs) == 0 {
			return ErrInvalidIssuerArgs
		}
		out := outputs[0]
		want := IssuerArgsFromCellInput(tx.Inputs[0], uint64(out.OutPoint.Index))
		if !bytes.Equal(ctx.Group.Script.Args, want[:]) {
			return ErrInvalidIssuerArgs
		}
		issuer, err := decode(out)
		if err != nil {
			return err
		}
		if issuer.Version != 0 || issuer.ClassCount != 0 || issuer.SetCount != 0 {
			return fmt.Errorf("%w: a new issuer must be version 0 with no classes or sets", ErrInvalidIssuer)
		}
		return nil

	case len(inputs) == 1 && len(outputs) == 1:
		before, err := decode(inputs[0])
		if err != nil {
			return err
		}
		after, err := decode(outputs[0])
		if err != nil {
			return err
		}
		if after.ClassCount < before.ClassCount || after.SetCount < before.SetCount {
			return ErrIssuerDecrease
		}
		return nil

	case len(inputs) == 1 && len(outputs) == 0:
		issuer, err := decode(inputs[0])
		if err != nil {
			return err
		}
		if issuer.ClassCount != 0 {
			return ErrIssuerNotEmpty
		}
		return nil
	}
	return nil
})

// Deploy deploys IssuerCode on a mock chain with IssuerValidator bound to it.
func Deploy(c *chain.MockChain) types.OutPoint {
	return c.DeployScript(IssuerCode, IssuerValidator)
}
