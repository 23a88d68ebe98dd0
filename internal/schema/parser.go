package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrSyntax        = errors.New("molecule syntax error")
	ErrDuplicateType = errors.New("duplicate type")
	ErrUnknownType   = errors.New("unknown type")
	ErrNotFixedSize  = errors.New("type is not fixed size")
)

const Byte = "byte"

type Kind string

const (
	KindArray  Kind = "array"
	KindStruct Kind = "struct"
	KindVector Kind = "vector"
	KindTable  Kind = "table"
	KindOption Kind = "option"
	KindUnion  Kind = "union"
)

type Field struct {
	Name string
	Type string
}

type UnionItem struct {
	Type string
	ID   uint32
}

// Decl is one named type of a schema. Item is the element type of arrays,
// vectors and options.
type Decl struct {
	Kind   Kind
	Name   string
	Item   string
	Length int
	Fields []Field
	Items  []UnionItem
}

type Schema struct {
	Decls []Decl
	sizes map[string]int
}

func (s *Schema) Decl(name string) (Decl, bool) {
	for _, d := range s.Decls {
		if d.Name == name {
			return d, true
		}
	}
	return Decl{}, false
}

// FixedSize returns the encoded size of a fixed size type.
func (s *Schema) FixedSize(name string) (int, bool) {
	size, ok := s.sizes[name]
	return size, ok
}

type tokenizer struct {
	src  []rune
	pos  int
	line int
}

func (t *tokenizer) skip() {
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		switch {
		case c == '\n':
			t.line++
			t.pos++
		case unicode.IsSpace(c):
			t.pos++
		case c == '/' && t.pos+1 < len(t.src) && t.src[t.pos+1] == '/':
			for t.pos < len(t.src) && t.src[t.pos] != '\n' {
				t.pos++
			}
		case c == '/' && t.pos+1 < len(t.src) && t.src[t.pos+1] == '*':
			t.pos += 2
			for t.pos+1 < len(t.src) && !(t.src[t.pos] == '*' && t.src[t.pos+1] == '/') {
				if t.src[t.pos] == '\n' {
					t.line++
				}
				t.pos++
			}
			t.pos += 2
		default:
			return
		}
	}
}

func isIdent(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

// next returns the next token, or "" at the end of input.
func (t *tokenizer) next() string {
	t.skip()
	if t.pos >= len(t.src) {
		return ""
	}
	start := t.pos
	if !isIdent(t.src[t.pos]) {
		t.pos++
		return string(t.src[start:t.pos])
	}
	for t.pos < len(t.src) && isIdent(t.src[t.pos]) {
		t.pos++
	}
	return string(t.src[start:t.pos])
}

func (t *tokenizer) peek() string {
	pos, line := t.pos, t.line
	tok := t.next()
	t.pos, t.line = pos, line
	return tok
}

func (t *tokenizer) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at line %d: %s", ErrSyntax, t.line+1, fmt.Sprintf(format, args...))
}

func (t *tokenizer) expect(want string) error {
	if got := t.next(); got != want {
		return t.errorf("expected %q, got %q", want, got)
	}
	return nil
}

func (t *tokenizer) ident() (string, error) {
	tok := t.next()
	if tok == "" || !isIdent([]rune(tok)[0]) {
		return "", t.errorf("expected identifier, got %q", tok)
	}
	return tok, nil
}

func (t *tokenizer) number() (int, error) {
	tok := t.next()
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return 0, t.errorf("expected number, got %q", tok)
	}
	return n, nil
}

// Parse reads a molecule schema. Imports are skipped.
func Parse(src string) (*Schema, error) {
	t := &tokenizer{src: []rune(src)}
	s := &Schema{}
	for {
		kw := t.next()
		if kw == "" {
			break
		}
		if kw == "import" {
			for tok := t.next(); tok != ";"; tok = t.next() {
				if tok == "" {
					return nil, t.errorf("unterminated import")
				}
			}
			continue
		}
		d, err := parseDecl(t, Kind(kw))
		if err != nil {
			return nil, err
		}
		s.Decls = append(s.Decls, d)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseDecl(t *tokenizer, kind Kind) (Decl, error) {
	name, err := t.ident()
	if err != nil {
		return Decl{}, err
	}
	d := Decl{Kind: kind, Name: name}
	switch kind {
	case KindArray:
		if err := t.expect("["); err != nil {
			return d, err
		}
		if d.Item, err = t.ident(); err != nil {
			return d, err
		}
		if err := t.expect(";"); err != nil {
			return d, err
		}
		if d.Length, err = t.number(); err != nil {
			return d, err
		}
		if err := t.expect("]"); err != nil {
			return d, err
		}
		return d, t.expect(";")
	case KindVector, KindOption:
		openTok, closeTok := "<", ">"
		if kind == KindOption {
			openTok, closeTok = "(", ")"
		}
		if err := t.expect(openTok); err != nil {
			return d, err
		}
		if d.Item, err = t.ident(); err != nil {
			return d, err
		}
		if err := t.expect(closeTok); err != nil {
			return d, err
		}
		return d, t.expect(";")
	case KindStruct, KindTable:
		if err := t.expect("{"); err != nil {
			return d, err
		}
		for t.peek() != "}" {
			var f Field
			if f.Name, err = t.ident(); err != nil {
				return d, err
			}
			if err := t.expect(":"); err != nil {
				return d, err
			}
			if f.Type, err = t.ident(); err != nil {
				return d, err
			}
			d.Fields = append(d.Fields, f)
			if t.peek() == "," {
				t.next()
			}
		}
		t.next()
		if t.peek() == ";" {
			t.next()
		}
		return d, nil
	case KindUnion:
		if err := t.expect("{"); err != nil {
			return d, err
		}
		for t.peek() != "}" {
			item := UnionItem{ID: uint32(len(d.Items))}
			if item.Type, err = t.ident(); err != nil {
				return d, err
			}
			if t.peek() == ":" {
				t.next()
				id, err := t.number()
				if err != nil {
					return d, err
				}
				item.ID = uint32(id)
			}
			d.Items = append(d.Items, item)
			if t.peek() == "," {
				t.next()
			}
		}
		t.next()
		if t.peek() == ";" {
			t.next()
		}
		return d, nil
	}
	return d, t.errorf("unknown declaration %q", kind)
}

// check resolves names and computes the size of fixed size types.
func (s *Schema) check() error {
	decls := map[string]Decl{}
	for _, d := range s.Decls {
		if _, dup := decls[d.Name]; dup || d.Name == Byte {
			return fmt.Errorf("%w: %s", ErrDuplicateType, d.Name)
		}
		decls[d.Name] = d
	}
	s.sizes = map[string]int{Byte: 1}
	for _, d := range s.Decls {
		for _, ref := range d.refs() {
			if _, ok := decls[ref]; !ok && ref != Byte {
				return fmt.Errorf("%w: %s referenced by %s", ErrUnknownType, ref, d.Name)
			}
		}
		switch d.Kind {
		case KindArray, KindStruct:
			if _, err := s.fixedSize(decls, d.Name, map[string]bool{}); err != nil {
				return err
			}
		case KindUnion:
			seen := map[uint32]bool{}
			for _, item := range d.Items {
				if seen[item.ID] {
					return fmt.Errorf("%w: union %s reuses id %d", ErrSyntax, d.Name, item.ID)
				}
				seen[item.ID] = true
			}
		}
	}
	return nil
}

func (s *Schema) fixedSize(decls map[string]Decl, name string, visiting map[string]bool) (int, error) {
	if size, ok := s.sizes[name]; ok {
		return size, nil
	}
	if visiting[name] {
		return 0, fmt.Errorf("%w: %s is recursive", ErrNotFixedSize, name)
	}
	visiting[name] = true
	d := decls[name]
	size := 0
	switch d.Kind {
	case KindArray:
		item, err := s.fixedSize(decls, d.Item, visiting)
		if err != nil {
			return 0, fmt.Errorf("%w: array %s of %s", ErrNotFixedSize, d.Name, d.Item)
		}
		size = item * d.Length
	case KindStruct:
		for _, f := range d.Fields {
			fs, err := s.fixedSize(decls, f.Type, visiting)
			if err != nil {
				return 0, fmt.Errorf("%w: field %s.%s of %s", ErrNotFixedSize, d.Name, f.Name, f.Type)
			}
			size += fs
		}
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotFixedSize, name)
	}
	s.sizes[name] = size
	return size, nil
}

func (d Decl) refs() []string {
	switch d.Kind {
	case KindArray, KindVector, KindOption:
		return []string{d.Item}
	case KindStruct, KindTable:
		out := make([]string, len(d.Fields))
		for i, f := range d.Fields {
			out[i] = f.Type
		}
		return out
	case KindUnion:
		out := make([]string, len(d.Items))
		for i, item := range d.Items {
			out[i] = item.Type
		}
		return out
	}
	return nil
}

// goName turns a molecule identifier into an exported Go identifier.
func goName(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}
