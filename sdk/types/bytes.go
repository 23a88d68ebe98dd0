package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bytes is a byte slice encoded as 0x-prefixed hex in JSON.
type Bytes = hexutil.Bytes

// BytesHash returns the blake2b-256 digest of b.
func BytesHash(b []byte) H256 {
	return Blake2b256(b)
}

// BytesRequiredCapacity is the capacity needed to store b on chain.
func BytesRequiredCapacity(b []byte) Capacity {
	return BytesCapacity(uint64(len(b)))
}

// ParseHex decodes a hex string with an optional 0x prefix.
func ParseHex(input string) ([]byte, error) {
	input = strings.TrimPrefix(strings.TrimPrefix(input, "0x"), "0X")
	if len(input)%2 != 0 {
		return nil, fmt.Errorf("invalid hex string length: %d", len(input))
	}
	b, err := hexutil.Decode("0x" + input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hex string: %w", err)
	}
	return b, nil
}
