package types

import (
	"hash"

	"github.com/ethereum/go-ethereum/common"
	"github.com/minio/blake2b-simd"
)

// H256 is a 32 byte hash rendered as 0x-prefixed hex.
type H256 = common.Hash

var ckbHashPersonalization = []byte("ckb-default-hash")

// EmptyHash is the blake2b-256 digest of no input.
var EmptyHash = Blake2b256()

// NewBlake2b returns the 32 byte blake2b hasher personalized for CKB.
func NewBlake2b() hash.Hash {
	h, err := blake2b.New(&blake2b.Config{Size: 32, Person: ckbHashPersonalization})
	if err != nil {
		// Size and personalization are constants within the supported limits.
		panic(err)
	}
	return h
}

// Blake2b256 hashes the concatenation of parts.
func Blake2b256(parts ...[]byte) H256 {
	h := NewBlake2b()
	for _, p := range parts {
		h.Write(p)
	}
	return common.BytesToHash(h.Sum(nil))
}

// Blake160 returns the first 20 bytes of the blake2b-256 digest.
func Blake160(data []byte) []byte {
	sum := Blake2b256(data)
	return sum[:20]
}
