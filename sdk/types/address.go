package types

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
)

// Network selects the human readable prefix of an address.
type Network int

const (
	Mainnet Network = iota
	Testnet
	// Dev chains use the testnet prefix.
	Dev
)

const fullFormat byte = 0x00

// SighashAllTypeHash is the type hash of the genesis secp256k1-blake160-sighash-all lock.
var SighashAllTypeHash = common.HexToHash("0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8")

var ErrInvalidAddress = errors.New("invalid address")

func (n Network) Prefix() string {
	if n == Mainnet {
		return "ckb"
	}
	return "ckt"
}

// Address is a lock script bound to a network.
type Address struct {
	Network Network
	Script  Script
}

// AddressFromScript wraps a lock script.
func AddressFromScript(network Network, script Script) Address {
	return Address{Network: network, Script: script.Clone()}
}

// AddressFromLockArg returns the sighash-all address for a 20 byte lock arg.
func AddressFromLockArg(network Network, lockArg []byte) (Address, error) {
	if len(lockArg) != 20 {
		return Address{}, fmt.Errorf("%w: lock arg must be 20 bytes, got %d", ErrInvalidAddress, len(lockArg))
	}
	return AddressFromScript(network, NewScript(SighashAllTypeHash, HashTypeType, lockArg)), nil
}

// AddressFromPubkey returns the sighash-all address for a compressed public key.
func AddressFromPubkey(network Network, pubkey []byte) (Address, error) {
	if len(pubkey) != 33 {
		return Address{}, fmt.Errorf("%w: compressed public key must be 33 bytes, got %d", ErrInvalidAddress, len(pubkey))
	}
	return AddressFromLockArg(network, Blake160(pubkey))
}

// String encodes the address in the full bech32m format.
func (a Address) String() string {
	payload := make([]byte, 0, 34+len(a.Script.Args))
	payload = append(payload, fullFormat)
	payload = append(payload, a.Script.CodeHash.Bytes()...)
	payload = append(payload, byte(a.Script.HashType))
	payload = append(payload, a.Script.Args...)
	data, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return ""
	}
	s, err := bech32.EncodeM(a.Network.Prefix(), data)
	if err != nil {
		return ""
	}
	return s
}

// ParseAddress decodes a full format address.
func ParseAddress(s string) (Address, error) {
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	var network Network
	switch hrp {
	case "ckb":
		network = Mainnet
	case "ckt":
		network = Testnet
	default:
		return Address{}, fmt.Errorf("%w: unknown prefix %q", ErrInvalidAddress, hrp)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if len(payload) < 34 || payload[0] != fullFormat {
		return Address{}, fmt.Errorf("%w: only the full format is supported", ErrInvalidAddress)
	}
	var codeHash H256
	copy(codeHash[:], payload[1:33])
	script := NewScript(codeHash, HashType(payload[33]), payload[34:])
	if _, err := script.HashType.MarshalText(); err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return Address{Network: network, Script: script}, nil
}
