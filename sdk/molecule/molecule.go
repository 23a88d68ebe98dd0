// Package molecule implements the molecule binary serialization format used by
// CKB for scripts, transactions and cell data.
package molecule

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

const headerSize = 4

var (
	ErrInvalidHeader = errors.New("invalid molecule header")
	ErrInvalidLength = errors.New("invalid molecule length")
)

// Uint8 packs a byte.
func Uint8(v uint8) []byte {
	return []byte{v}
}

// Uint16 packs v little endian.
func Uint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// Uint32 packs v little endian.
func Uint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// Uint64 packs v little endian.
func Uint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// Uint128 packs v as a 16 byte little endian integer.
func Uint128(v *big.Int) ([]byte, error) {
	if v.Sign() < 0 || v.BitLen() > 128 {
		return nil, fmt.Errorf("value %s does not fit in 128 bits", v)
	}
	be := v.FillBytes(make([]byte, 16))
	return reverse(be), nil
}

// UnpackUint128 reads a 16 byte little endian integer.
func UnpackUint128(b []byte) (*big.Int, error) {
	if len(b) != 16 {
		return nil, fmt.Errorf("%w: uint128 needs 16 bytes, got %d", ErrInvalidLength, len(b))
	}
	return new(big.Int).SetBytes(reverse(b)), nil
}

// UnpackUint32 reads a little endian uint32.
func UnpackUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: uint32 needs 4 bytes, got %d", ErrInvalidLength, len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// UnpackByte reads a single byte item.
func UnpackByte(b []byte) (byte, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("%w: byte needs 1 byte, got %d", ErrInvalidLength, len(b))
	}
	return b[0], nil
}

// UnpackUint64 reads a little endian uint64.
func UnpackUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: uint64 needs 8 bytes, got %d", ErrInvalidLength, len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Bytes packs a fixvec<byte>.
func Bytes(b []byte) []byte {
	out := make([]byte, 0, headerSize+len(b))
	out = append(out, Uint32(uint32(len(b)))...)
	return append(out, b...)
}

// UnpackBytes reads a fixvec<byte>.
func UnpackBytes(b []byte) ([]byte, error) {
	items, err := UnpackFixvec(b, 1)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(items))
	for i, item := range items {
		out[i] = item[0]
	}
	return out, nil
}

// Fixvec packs items of equal size prefixed by the item count.
func Fixvec(items [][]byte) []byte {
	size := headerSize
	for _, item := range items {
		size += len(item)
	}
	out := make([]byte, 0, size)
	out = append(out, Uint32(uint32(len(items)))...)
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

// UnpackFixvec splits a fixvec whose items are itemSize bytes long.
func UnpackFixvec(b []byte, itemSize int) ([][]byte, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: fixvec shorter than header", ErrInvalidHeader)
	}
	count := int(binary.LittleEndian.Uint32(b))
	if len(b) != headerSize+count*itemSize {
		return nil, fmt.Errorf("%w: fixvec of %d items of %d bytes has %d bytes", ErrInvalidLength, count, itemSize, len(b))
	}
	items := make([][]byte, count)
	for i := range items {
		start := headerSize + i*itemSize
		items[i] = b[start : start+itemSize]
	}
	return items, nil
}

// Dynvec packs variable sized items with an offset header.
func Dynvec(items [][]byte) []byte {
	return Table(items...)
}

// UnpackDynvec splits a dynvec into its items.
func UnpackDynvec(b []byte) ([][]byte, error) {
	return unpackOffsets(b, -1)
}

// Table packs fields with an offset header. A table with no fields is 4 bytes.
func Table(fields ...[]byte) []byte {
	header := headerSize * (len(fields) + 1)
	total := header
	for _, f := range fields {
		total += len(f)
	}
	out := make([]byte, 0, total)
	out = append(out, Uint32(uint32(total))...)
	offset := header
	for _, f := range fields {
		out = append(out, Uint32(uint32(offset))...)
		offset += len(f)
	}
	for _, f := range fields {
		out = append(out, f...)
	}
	return out
}

// UnpackTable splits a table. Tables written by newer schemas may carry extra
// trailing fields, which are returned too; fieldCount is the minimum expected.
func UnpackTable(b []byte, fieldCount int) ([][]byte, error) {
	fields, err := unpackOffsets(b, fieldCount)
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func unpackOffsets(b []byte, minFields int) ([][]byte, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: shorter than header", ErrInvalidHeader)
	}
	total := int(binary.LittleEndian.Uint32(b))
	if total != len(b) {
		return nil, fmt.Errorf("%w: total size %d, got %d bytes", ErrInvalidLength, total, len(b))
	}
	if total == headerSize {
		if minFields > 0 {
			return nil, fmt.Errorf("%w: expected %d fields, got 0", ErrInvalidHeader, minFields)
		}
		return [][]byte{}, nil
	}
	if total < headerSize*2 {
		return nil, fmt.Errorf("%w: missing first offset", ErrInvalidHeader)
	}
	first := int(binary.LittleEndian.Uint32(b[headerSize:]))
	if first%headerSize != 0 || first < headerSize*2 || first > total {
		return nil, fmt.Errorf("%w: bad first offset %d", ErrInvalidHeader, first)
	}
	count := first/headerSize - 1
	if minFields > 0 && count < minFields {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidHeader, minFields, count)
	}
	offsets := make([]int, count+1)
	for i := 0; i < count; i++ {
		offsets[i] = int(binary.LittleEndian.Uint32(b[headerSize*(i+1):]))
	}
	offsets[count] = total
	fields := make([][]byte, count)
	for i := 0; i < count; i++ {
		if offsets[i] > offsets[i+1] {
			return nil, fmt.Errorf("%w: offsets out of order", ErrInvalidHeader)
		}
		fields[i] = b[offsets[i]:offsets[i+1]]
	}
	return fields, nil
}

// Option packs an optional value; nil means absent.
func Option(inner []byte) []byte {
	if inner == nil {
		return []byte{}
	}
	return inner
}

// Union packs a union item with its type id.
func Union(id uint32, item []byte) []byte {
	return append(Uint32(id), item...)
}

// UnpackUnion splits a union into its type id and item.
func UnpackUnion(b []byte) (uint32, []byte, error) {
	if len(b) < headerSize {
		return 0, nil, fmt.Errorf("%w: union shorter than header", ErrInvalidHeader)
	}
	return binary.LittleEndian.Uint32(b), b[headerSize:], nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
