package account

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/manifest-network/trampoline/sdk/molecule"
	"github.com/manifest-network/trampoline/sdk/types"
)

// SignatureSize is the size of a recoverable secp256k1 signature.
const SignatureSize = 65

var (
	ErrEmptyGroup       = errors.New("script group has no inputs")
	ErrMissingSignature = errors.New("witness has no 65 byte lock signature")
	ErrSignerMismatch   = errors.New("signature does not match lock args")
)

// SighashAllMessage computes the message signed by the secp256k1-blake160-sighash-all
// lock for the input group. The first witness of the group is hashed with its lock
// field zeroed.
func SighashAllMessage(tx *types.Transaction, group []int) (types.H256, error) {
	if len(group) == 0 {
		return types.H256{}, ErrEmptyGroup
	}
	first, err := witnessArgsAt(tx, group[0])
	if err != nil {
		return types.H256{}, err
	}
	first.Lock = make([]byte, SignatureSize)

	txHash := tx.Hash()
	h := types.NewBlake2b()
	h.Write(txHash.Bytes())
	writeWitness(h, first.Serialize())
	for _, idx := range group[1:] {
		writeWitness(h, witnessAt(tx, idx))
	}
	for idx := len(tx.Inputs); idx < len(tx.Witnesses); idx++ {
		writeWitness(h, tx.Witnesses[idx])
	}
	var msg types.H256
	copy(msg[:], h.Sum(nil))
	return msg, nil
}

func writeWitness(h io.Writer, w []byte) {
	h.Write(molecule.Uint64(uint64(len(w))))
	h.Write(w)
}

func witnessAt(tx *types.Transaction, idx int) []byte {
	if idx < len(tx.Witnesses) {
		return tx.Witnesses[idx]
	}
	return nil
}

func witnessArgsAt(tx *types.Transaction, idx int) (types.WitnessArgs, error) {
	w := witnessAt(tx, idx)
	if len(w) == 0 {
		return types.WitnessArgs{}, nil
	}
	args, err := types.DeserializeWitnessArgs(w)
	if err != nil {
		return types.WitnessArgs{}, fmt.Errorf("failed to read witness %d: %w", idx, err)
	}
	return args, nil
}

// Signer signs input groups locked by its key's sighash-all lock.
type Signer struct {
	key *KeyPair
}

func NewSigner(key *KeyPair) *Signer {
	return &Signer{key: key}
}

// Lock returns the lock script this signer can unlock.
func (s *Signer) Lock() types.Script {
	return SighashAllLock(s.key.LockArg())
}

// SignGroup signs the inputs at group indices and stores the signature in the
// lock field of the group's first witness.
func (s *Signer) SignGroup(tx *types.Transaction, group []int) error {
	if len(group) == 0 {
		return ErrEmptyGroup
	}
	for len(tx.Witnesses) < len(tx.Inputs) {
		tx.Witnesses = append(tx.Witnesses, types.Bytes{})
	}
	args, err := witnessArgsAt(tx, group[0])
	if err != nil {
		return err
	}
	args.Lock = make([]byte, SignatureSize)
	tx.Witnesses[group[0]] = args.Serialize()

	msg, err := SighashAllMessage(tx, group)
	if err != nil {
		return err
	}
	sig, err := s.key.Sign(msg)
	if err != nil {
		return err
	}
	args.Lock = sig
	tx.Witnesses[group[0]] = args.Serialize()
	return nil
}

// SignInputs signs every input group guarded by the signer's lock. inputs are
// the resolved cells in the order of tx.Inputs. It returns the number of
// groups signed.
func (s *Signer) SignInputs(tx *types.Transaction, inputs []types.CellMeta) (int, error) {
	lockHash := s.Lock().Hash()
	var group []int
	for i, in := range inputs {
		if in.Output.Lock.Hash() == lockHash {
			group = append(group, i)
		}
	}
	if len(group) == 0 {
		return 0, nil
	}
	if err := s.SignGroup(tx, group); err != nil {
		return 0, err
	}
	return 1, nil
}

// VerifySighashAll checks the group signature against a 20 byte lock arg.
func VerifySighashAll(tx *types.Transaction, group []int, lockArg []byte) error {
	if len(group) == 0 {
		return ErrEmptyGroup
	}
	args, err := witnessArgsAt(tx, group[0])
	if err != nil {
		return err
	}
	if len(args.Lock) != SignatureSize {
		return ErrMissingSignature
	}
	msg, err := SighashAllMessage(tx, group)
	if err != nil {
		return err
	}
	pub, err := crypto.SigToPub(msg.Bytes(), args.Lock)
	if err != nil {
		return fmt.Errorf("failed to recover public key: %w", err)
	}
	if !bytes.Equal(types.Blake160(crypto.CompressPubkey(pub)), lockArg) {
		return ErrSignerMismatch
	}
	return nil
}
