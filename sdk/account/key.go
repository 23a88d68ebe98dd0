// Package account manages secp256k1 keys, CKB lock args and transaction signing.
package account

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/manifest-network/trampoline/sdk/types"
)

var (
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrInvalidKey       = errors.New("invalid key")
)

// KeyPair is a secp256k1 key pair.
type KeyPair struct {
	secret *ecdsa.PrivateKey
}

// NewKeyPair builds a key pair from a 32 byte secret.
func NewKeyPair(secret []byte) (*KeyPair, error) {
	if len(secret) != 32 {
		return nil, ErrInvalidKeyLength
	}
	key, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return &KeyPair{secret: key}, nil
}

// KeyPairFromHex parses a hex encoded secret, with or without 0x.
func KeyPairFromHex(s string) (*KeyPair, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return NewKeyPair(b)
}

// GenerateKeyPair returns a random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &KeyPair{secret: key}, nil
}

// Secret returns the raw 32 byte secret.
func (k *KeyPair) Secret() []byte {
	return crypto.FromECDSA(k.secret)
}

func (k *KeyPair) SecretHex() string {
	return hex.EncodeToString(k.Secret())
}

// PublicKey returns the 33 byte compressed public key.
func (k *KeyPair) PublicKey() []byte {
	return crypto.CompressPubkey(&k.secret.PublicKey)
}

// LockArg is blake160 of the compressed public key.
func (k *KeyPair) LockArg() []byte {
	return types.Blake160(k.PublicKey())
}

func (k *KeyPair) LockArgHex() string {
	return hex.EncodeToString(k.LockArg())
}

// Sign signs a 32 byte message, returning r || s || recovery id.
func (k *KeyPair) Sign(message types.H256) ([]byte, error) {
	sig, err := crypto.Sign(message.Bytes(), k.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig, nil
}

// Account is a key pair with its lock arg.
type Account struct {
	*KeyPair
}

// NewAccount generates a random account.
func NewAccount() (*Account, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Account{KeyPair: kp}, nil
}

// AccountFromHex imports an account from a hex secret.
func AccountFromHex(sk string) (*Account, error) {
	kp, err := KeyPairFromHex(sk)
	if err != nil {
		return nil, err
	}
	return &Account{KeyPair: kp}, nil
}

// Lock returns the sighash-all lock guarding the account's cells.
func (a *Account) Lock() types.Script {
	return SighashAllLock(a.LockArg())
}

// Address returns the account address on network.
func (a *Account) Address(network types.Network) types.Address {
	return types.AddressFromScript(network, a.Lock())
}

func (a *Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"sk":       a.SecretHex(),
		"lock_arg": a.LockArgHex(),
	})
}

// SighashAllLock returns the genesis secp256k1-blake160-sighash-all lock for lockArg.
func SighashAllLock(lockArg []byte) types.Script {
	return types.NewScript(types.SighashAllTypeHash, types.HashTypeType, lockArg)
}
