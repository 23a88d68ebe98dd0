package types

import (
	"fmt"
	"strings"
)

// AttributeKind names the cell property a query attribute matches on.
type AttributeKind int

const (
	AttrLockHash AttributeKind = iota
	AttrLockScript
	AttrTypeScript
	AttrMinCapacity
	AttrMaxCapacity
	AttrDataHash
)

func (k AttributeKind) String() string {
	switch k {
	case AttrLockHash:
		return "lock_hash"
	case AttrLockScript:
		return "lock_script"
	case AttrTypeScript:
		return "type_script"
	case AttrMinCapacity:
		return "min_capacity"
	case AttrMaxCapacity:
		return "max_capacity"
	case AttrDataHash:
		return "data_hash"
	}
	return "unknown"
}

// CellQueryAttribute is a single predicate over a cell.
type CellQueryAttribute struct {
	Kind     AttributeKind
	Hash     H256
	Script   Script
	Capacity Capacity
}

func LockHash(h H256) CellQueryAttribute {
	return CellQueryAttribute{Kind: AttrLockHash, Hash: h}
}

func LockScript(s Script) CellQueryAttribute {
	return CellQueryAttribute{Kind: AttrLockScript, Script: s.Clone()}
}

func TypeScript(s Script) CellQueryAttribute {
	return CellQueryAttribute{Kind: AttrTypeScript, Script: s.Clone()}
}

func MinCapacity(c Capacity) CellQueryAttribute {
	return CellQueryAttribute{Kind: AttrMinCapacity, Capacity: c}
}

func MaxCapacity(c Capacity) CellQueryAttribute {
	return CellQueryAttribute{Kind: AttrMaxCapacity, Capacity: c}
}

func DataHash(h H256) CellQueryAttribute {
	return CellQueryAttribute{Kind: AttrDataHash, Hash: h}
}

// Matches reports whether the cell satisfies the attribute.
func (a CellQueryAttribute) Matches(cell CellMeta) bool {
	switch a.Kind {
	case AttrLockHash:
		return cell.Output.Lock.Hash() == a.Hash
	case AttrLockScript:
		return cell.Output.Lock.Equal(a.Script)
	case AttrTypeScript:
		return cell.Output.Type != nil && cell.Output.Type.Equal(a.Script)
	case AttrMinCapacity:
		return cell.Output.Capacity >= a.Capacity
	case AttrMaxCapacity:
		return cell.Output.Capacity <= a.Capacity
	case AttrDataHash:
		return cell.DataHash() == a.Hash
	}
	return false
}

func (a CellQueryAttribute) String() string {
	switch a.Kind {
	case AttrLockHash, AttrDataHash:
		return fmt.Sprintf("%s=%s", a.Kind, a.Hash.Hex())
	case AttrLockScript, AttrTypeScript:
		return fmt.Sprintf("%s=%s", a.Kind, a.Script.Hash().Hex())
	}
	return fmt.Sprintf("%s=%d", a.Kind, a.Capacity)
}

// StatementKind combines attributes.
type StatementKind int

const (
	StatementSingle StatementKind = iota
	// StatementFilterFrom narrows the cells matching the first attribute by the second.
	StatementFilterFrom
	StatementAny
	StatementAll
)

// QueryStatement combines one or more attributes.
type QueryStatement struct {
	Kind       StatementKind
	Attributes []CellQueryAttribute
}

func Single(a CellQueryAttribute) QueryStatement {
	return QueryStatement{Kind: StatementSingle, Attributes: []CellQueryAttribute{a}}
}

func FilterFrom(from, filter CellQueryAttribute) QueryStatement {
	return QueryStatement{Kind: StatementFilterFrom, Attributes: []CellQueryAttribute{from, filter}}
}

func Any(attrs ...CellQueryAttribute) QueryStatement {
	return QueryStatement{Kind: StatementAny, Attributes: attrs}
}

func All(attrs ...CellQueryAttribute) QueryStatement {
	return QueryStatement{Kind: StatementAll, Attributes: attrs}
}

func (s QueryStatement) Matches(cell CellMeta) bool {
	switch s.Kind {
	case StatementAny:
		for _, a := range s.Attributes {
			if a.Matches(cell) {
				return true
			}
		}
		return false
	default:
		if len(s.Attributes) == 0 {
			return false
		}
		for _, a := range s.Attributes {
			if !a.Matches(cell) {
				return false
			}
		}
		return true
	}
}

// CellQuery selects up to Limit cells; a zero limit means no limit.
type CellQuery struct {
	Query QueryStatement
	Limit int
}

func (q CellQuery) Matches(cell CellMeta) bool {
	return q.Query.Matches(cell)
}

// Key is a stable identity used to deduplicate queries.
func (q CellQuery) Key() string {
	parts := make([]string, len(q.Query.Attributes))
	for i, a := range q.Query.Attributes {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%d:%d:%s", q.Query.Kind, q.Limit, strings.Join(parts, ","))
}
