package types

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// ShannonsPerCKB is the number of shannons in one CKB.
const ShannonsPerCKB uint64 = 100_000_000

var ErrCapacityOverflow = errors.New("capacity overflow")

// Capacity is an amount of shannons.
type Capacity uint64

// CKB converts whole CKB to a Capacity.
func CKB(n uint64) (Capacity, error) {
	return Capacity(n).SafeMul(ShannonsPerCKB)
}

// MustCKB is CKB for constants known not to overflow.
func MustCKB(n uint64) Capacity {
	c, err := CKB(n)
	if err != nil {
		panic(err)
	}
	return c
}

// BytesCapacity is the capacity occupied by n bytes: one CKB per byte.
func BytesCapacity(n uint64) Capacity {
	if n > math.MaxUint64/ShannonsPerCKB {
		return Capacity(math.MaxUint64)
	}
	return Capacity(n * ShannonsPerCKB)
}

func (c Capacity) Shannons() uint64 {
	return uint64(c)
}

func (c Capacity) SafeAdd(other Capacity) (Capacity, error) {
	sum, carry := bits.Add64(uint64(c), uint64(other), 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrCapacityOverflow, c, other)
	}
	return Capacity(sum), nil
}

func (c Capacity) SafeSub(other Capacity) (Capacity, error) {
	diff, borrow := bits.Sub64(uint64(c), uint64(other), 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrCapacityOverflow, c, other)
	}
	return Capacity(diff), nil
}

func (c Capacity) SafeMul(n uint64) (Capacity, error) {
	hi, lo := bits.Mul64(uint64(c), n)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrCapacityOverflow, c, n)
	}
	return Capacity(lo), nil
}

// MulRatio returns c * numer / denom without intermediate overflow.
func (c Capacity) MulRatio(numer, denom uint64) (Capacity, error) {
	if denom == 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrCapacityOverflow)
	}
	hi, lo := bits.Mul64(uint64(c), numer)
	if hi >= denom {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrCapacityOverflow, c, numer, denom)
	}
	quo, _ := bits.Div64(hi, lo, denom)
	return Capacity(quo), nil
}

// String renders the capacity in CKB with 8 decimals.
func (c Capacity) String() string {
	return fmt.Sprintf("%d.%08d CKB", uint64(c)/ShannonsPerCKB, uint64(c)%ShannonsPerCKB)
}
