package types

import (
	"errors"
	"fmt"
)

var (
	ErrMissingTypeScript        = errors.New("cell has no type script")
	ErrMissingOutPoint          = errors.New("cell has no out point")
	ErrInsufficientCellCapacity = errors.New("cell capacity is lower than required")
)

// Cell is a cell output together with its data and, once deployed, its location.
type Cell struct {
	Data     Bytes
	OutPoint *OutPoint
	Capacity Capacity
	Lock     Script
	Type     *Script
}

// NewCellWithData returns a cell holding data with exactly the capacity it needs.
func NewCellWithData(data []byte) *Cell {
	c := &Cell{Data: append(Bytes{}, data...)}
	c.Capacity = c.RequiredCapacity()
	return c
}

// NewCellWithLock returns an empty cell guarded by lock.
func NewCellWithLock(lock Script) *Cell {
	c := &Cell{Lock: lock.Clone()}
	c.Capacity = c.RequiredCapacity()
	return c
}

// CellFromOutput builds a cell from an output and its data.
func CellFromOutput(output CellOutput, data []byte) *Cell {
	return &Cell{
		Data:     append(Bytes{}, data...),
		Capacity: output.Capacity,
		Lock:     output.Lock.Clone(),
		Type:     CloneScriptPtr(output.Type),
	}
}

// CellFromMeta builds a located cell from resolved cell metadata.
func CellFromMeta(meta CellMeta) *Cell {
	c := CellFromOutput(meta.Output, meta.Data)
	op := meta.OutPoint
	c.OutPoint = &op
	return c
}

// ScriptFromCell returns a script that runs the code stored in c.
func ScriptFromCell(c *Cell) Script {
	return Script{CodeHash: c.DataHash(), HashType: HashTypeData1, Args: Bytes{}}
}

// RequiredCapacity is the capacity the cell occupies.
func (c *Cell) RequiredCapacity() Capacity {
	return c.Output().OccupiedCapacity(len(c.Data))
}

// Validate checks that the cell holds enough capacity.
func (c *Cell) Validate() error {
	required := c.RequiredCapacity()
	if c.Capacity < required {
		return fmt.Errorf("%w: has %s, requires %s", ErrInsufficientCellCapacity, c.Capacity, required)
	}
	return nil
}

func (c *Cell) Output() CellOutput {
	return CellOutput{Capacity: c.Capacity, Lock: c.Lock.Clone(), Type: CloneScriptPtr(c.Type)}
}

func (c *Cell) DataHash() H256 {
	return Blake2b256(c.Data)
}

func (c *Cell) LockHash() H256 {
	return c.Lock.Hash()
}

// TypeHash returns the type script hash, or false when the cell has none.
func (c *Cell) TypeHash() (H256, bool) {
	if c.Type == nil {
		return H256{}, false
	}
	return c.Type.Hash(), true
}

// SetData replaces the data and grows the capacity when needed.
func (c *Cell) SetData(data []byte) {
	c.Data = append(Bytes{}, data...)
	c.ensureCapacity()
}

func (c *Cell) SetLock(lock Script) {
	c.Lock = lock.Clone()
	c.ensureCapacity()
}

func (c *Cell) SetType(typ Script) {
	c.Type = CloneScriptPtr(&typ)
	c.ensureCapacity()
}

func (c *Cell) SetLockArgs(args []byte) {
	c.Lock.SetArgs(args)
	c.ensureCapacity()
}

func (c *Cell) SetTypeArgs(args []byte) error {
	if c.Type == nil {
		return ErrMissingTypeScript
	}
	c.Type.SetArgs(args)
	c.ensureCapacity()
	return nil
}

func (c *Cell) SetCapacity(capacity Capacity) {
	c.Capacity = capacity
}

func (c *Cell) SetOutPoint(op OutPoint) {
	c.OutPoint = &op
}

// CellDep returns a dep pointing at the cell.
func (c *Cell) CellDep(depType DepType) (CellDep, error) {
	if c.OutPoint == nil {
		return CellDep{}, ErrMissingOutPoint
	}
	return CellDep{OutPoint: *c.OutPoint, DepType: depType}, nil
}

// Input returns a CellInput spending the cell.
func (c *Cell) Input() (CellInput, error) {
	if c.OutPoint == nil {
		return CellInput{}, ErrMissingOutPoint
	}
	return CellInput{PreviousOutput: *c.OutPoint}, nil
}

func (c *Cell) Clone() *Cell {
	out := CellFromOutput(c.Output(), c.Data)
	if c.OutPoint != nil {
		op := *c.OutPoint
		out.OutPoint = &op
	}
	return out
}

func (c *Cell) ensureCapacity() {
	if required := c.RequiredCapacity(); c.Capacity < required {
		c.Capacity = required
	}
}

// CellMeta is a live cell resolved from the chain.
type CellMeta struct {
	OutPoint OutPoint   `json:"out_point"`
	Output   CellOutput `json:"output"`
	Data     Bytes      `json:"data"`
}

func (m CellMeta) DataHash() H256 {
	return Blake2b256(m.Data)
}
