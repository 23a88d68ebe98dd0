// Package sudt is the simple user defined token: a type script whose args
// are the owner lock hash and whose data starts with a u128 amount.
package sudt

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/manifest-network/trampoline/sdk/chain"
	"github.com/manifest-network/trampoline/sdk/contract"
	"github.com/manifest-network/trampoline/sdk/types"
)

// AmountSize is the encoded size of an Amount.
const AmountSize = 16

// Code stands in for the simple_udt binary on a MockChain.
var Code = []byte("trampoline:simple_udt")

var (
	ErrAmountOverflow = errors.New("sudt amount overflows u128")
	ErrInvalidArgs    = errors.New("sudt args must be a 32 byte owner lock hash")
	ErrInvalidAmount  = errors.New("sudt data must start with a 16 byte amount")
	ErrAmountIncrease = errors.New("sudt outputs exceed inputs")
)

// OwnerLockHash is the lock hash allowed to mint.
type OwnerLockHash types.H256

func (h OwnerLockHash) MarshalMolecule() []byte {
	return append([]byte(nil), h[:]...)
}

func DecodeOwnerLockHash(b []byte) (OwnerLockHash, error) {
	var h OwnerLockHash
	if len(b) == 0 {
		return h, nil
	}
	if len(b) != len(h) {
		return h, ErrInvalidArgs
	}
	copy(h[:], b)
	return h, nil
}

// Amount is a token amount. It is held as a uint256 and bounded to u128.
type Amount struct {
	v uint256.Int
}

func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// AmountFromBig converts n, failing when it does not fit in u128.
func AmountFromBig(n *big.Int) (Amount, error) {
	var a Amount
	if n.Sign() < 0 || n.BitLen() > 128 {
		return a, ErrAmountOverflow
	}
	a.v.SetFromBig(n)
	return a, nil
}

func (a Amount) Big() *big.Int {
	return a.v.ToBig()
}

func (a Amount) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// Add returns a+b, failing past u128.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow || out.v.BitLen() > 128 {
		return Amount{}, ErrAmountOverflow
	}
	return out, nil
}

func (a Amount) String() string {
	return a.v.Dec()
}

// MarshalMolecule encodes the amount as a little endian u128.
func (a Amount) MarshalMolecule() []byte {
	be := a.v.Bytes32()
	out := make([]byte, AmountSize)
	for i := 0; i < AmountSize; i++ {
		out[i] = be[31-i]
	}
	return out
}

// DecodeAmount reads the amount from the first 16 bytes of cell data.
func DecodeAmount(b []byte) (Amount, error) {
	var a Amount
	if len(b) == 0 {
		return a, nil
	}
	if len(b) < AmountSize {
		return a, fmt.Errorf("%w: got %d bytes", ErrInvalidAmount, len(b))
	}
	be := make([]byte, AmountSize)
	for i := 0; i < AmountSize; i++ {
		be[i] = b[AmountSize-1-i]
	}
	a.v.SetBytes(be)
	return a, nil
}

// Contract is a sUDT contract.
type Contract = contract.Contract[OwnerLockHash, Amount]

// New returns a sUDT contract running code, owned by owner, whose caller
// cell holds supply.
func New(code []byte, owner types.H256, supply Amount) (*Contract, error) {
	c := contract.New[OwnerLockHash, Amount](code, DecodeOwnerLockHash, DecodeAmount)
	if err := c.SetCallerCellArgs(OwnerLockHash(owner)); err != nil {
		return nil, err
	}
	c.SetCallerCellData(supply)
	return c, nil
}

// Validator enforces sUDT rules: a transaction spending a cell locked by the
// owner may mint freely, otherwise outputs may not exceed inputs.
var Validator = chain.ValidatorFunc(func(ctx *chain.VerifyContext) error {
	args := ctx.Group.Script.Args
	if len(args) != len(types.H256{}) {
		return ErrInvalidArgs
	}
	var owner types.H256
	copy(owner[:], args)
	for _, in := range ctx.Resolved.Inputs {
		if in.Output.Lock.Hash() == owner {
			ctx.Debug("owner mode")
			return nil
		}
	}

	sum := func(cells []types.CellMeta) (Amount, error) {
		var total Amount
		for _, c := range cells {
			if len(c.Data) < AmountSize {
				return Amount{}, ErrInvalidAmount
			}
			a, err := DecodeAmount(c.Data)
			if err != nil {
				return Amount{}, err
			}
			if total, err = total.Add(a); err != nil {
				return Amount{}, err
			}
		}
		return total, nil
	}
	in, err := sum(ctx.GroupInputs())
	if err != nil {
		return err
	}
	out, err := sum(ctx.GroupOutputs())
	if err != nil {
		return err
	}
	if out.Cmp(in) > 0 {
		return fmt.Errorf("%w: inputs %s, outputs %s", ErrAmountIncrease, in, out)
	}
	return nil
})

// Deploy deploys Code on a mock chain with Validator bound to it.
func Deploy(c *chain.MockChain) types.OutPoint {
	return c.DeployScript(Code, Validator)
}
