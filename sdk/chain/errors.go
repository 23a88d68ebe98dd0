package chain

import (
	"errors"
	"fmt"

	"github.com/manifest-network/trampoline/sdk/types"
)

var (
	ErrCellNotFound                = errors.New("cell not found, make sure it is deployed")
	ErrTransactionNotIncluded      = errors.New("transaction not included in any block yet")
	ErrBlockNotFound               = errors.New("block not found")
	ErrGenesisBlockNotFound        = errors.New("genesis block not found in chain, check your chain setup")
	ErrDeployCellTxHasLockedGroups = errors.New("failed to unlock deploy cell transaction, it has extra lock groups")
	ErrInvalidInputs               = errors.New("failed to deploy transaction due to invalid cell inputs")
	ErrTransactionVerification     = errors.New("cannot verify transaction")
	ErrTransactionSend             = errors.New("failed to send transaction to network")
	ErrNoDefaultLock               = errors.New("chain has no default lock")
	ErrMissingSigner               = errors.New("chain has no signing key")
	ErrScriptNotFound              = errors.New("script code not found in cell deps")
	ErrExceededMaximumCycles       = errors.New("exceeded maximum cycles")
	ErrDuplicateInput              = errors.New("transaction spends the same cell twice")
)

// OutputsDataLengthMismatchError is returned when a transaction has a
// different number of outputs and outputs data.
type OutputsDataLengthMismatchError struct {
	OutputsLen     int
	OutputsDataLen int
}

func (e *OutputsDataLengthMismatchError) Error() string {
	return fmt.Sprintf("outputs data length mismatch: %d outputs, %d outputs data", e.OutputsLen, e.OutputsDataLen)
}

// ScriptGroupKind tells whether a script group runs a lock or a type script.
type ScriptGroupKind int

const (
	LockGroup ScriptGroupKind = iota
	TypeGroup
)

func (k ScriptGroupKind) String() string {
	if k == TypeGroup {
		return "type"
	}
	return "lock"
}

// VerificationError is a script group that rejected a transaction.
type VerificationError struct {
	Kind       ScriptGroupKind
	ScriptHash types.H256
	Err        error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s script %s failed: %v", e.Kind, e.ScriptHash.Hex(), e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// RpcError is a failed call to a node.
type RpcError struct {
	Method string
	Err    error
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("failed to connect to node via RPC (%s): %v", e.Method, e.Err)
}

func (e *RpcError) Unwrap() error {
	return e.Err
}
