package schema

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/internal/project"
)

const sample = `
import blockchain;

/* basic types */
array Byte32 [byte; 32];
array Uint32 [byte; 4];
vector Bytes <byte>;
struct Point {
    x: Uint32,
    y: Uint32,
}
array Line [Point; 2];
vector Points <Point>;
vector BytesVec <Bytes>;
option BytesOpt (Bytes);
table Nft {
    genesis_id: Byte32,
    cid: Bytes,
    origin: Point,
    tags: BytesVec,
    note: BytesOpt,
}
union Shape {
    Point,
    Line: 5,
}
`

func TestParse(t *testing.T) {
	s, err := Parse(sample)
	require.NoError(t, err)
	require.Len(t, s.Decls, 10)

	for name, want := range map[string]int{"Byte32": 32, "Uint32": 4, "Point": 8, "Line": 16} {
		size, ok := s.FixedSize(name)
		require.True(t, ok, name)
		assert.Equal(t, want, size, name)
	}
	_, ok := s.FixedSize("Bytes")
	assert.False(t, ok)

	nft, ok := s.Decl("Nft")
	require.True(t, ok)
	assert.Equal(t, KindTable, nft.Kind)
	assert.Equal(t, Field{Name: "genesis_id", Type: "Byte32"}, nft.Fields[0])

	shape, ok := s.Decl("Shape")
	require.True(t, ok)
	assert.Equal(t, []UnionItem{{Type: "Point", ID: 0}, {Type: "Line", ID: 5}}, shape.Items)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  error
	}{
		{"duplicate", "vector A <byte>; vector A <byte>;", ErrDuplicateType},
		{"unknown", "vector A <Missing>;", ErrUnknownType},
		{"dynamic struct field", "vector A <byte>; struct S { a: A, }", ErrNotFixedSize},
		{"dynamic array item", "vector A <byte>; array B [A; 2];", ErrNotFixedSize},
		{"missing semicolon", "array A [byte; 2]", ErrSyntax},
		{"bad keyword", "enum A {}", ErrSyntax},
		{"reused union id", "array A [byte; 1]; array B [byte; 2]; union U { A: 1, B: 1 }", ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParseForwardReference(t *testing.T) {
	s, err := Parse("struct P { a: A, } array A [byte; 3];")
	require.NoError(t, err)
	size, ok := s.FixedSize("P")
	require.True(t, ok)
	assert.Equal(t, 3, size)
}

func TestGenerate(t *testing.T) {
	s, err := Parse(sample)
	require.NoError(t, err)
	code, err := Generate(s, Package)
	require.NoError(t, err)

	f, err := parser.ParseFile(token.NewFileSet(), "nft.go", code, 0)
	require.NoError(t, err)
	assert.Equal(t, Package, f.Name.Name)

	funcs := map[string]bool{}
	for _, decl := range f.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil {
			funcs[fn.Name.Name] = true
		}
	}
	for _, d := range s.Decls {
		assert.True(t, funcs["Decode"+d.Name], d.Name)
	}

	src := string(code)
	assert.Contains(t, src, "type Byte32 [32]byte")
	assert.Contains(t, src, "GenesisId Byte32")
	assert.Contains(t, src, "molecule.UnpackFixvec(b, 8)")
	assert.Contains(t, src, "molecule.UnpackDynvec(b)")
	assert.Contains(t, src, "molecule.Union(5, (*v.Line).Marshal())")
	assert.Contains(t, src, "DO NOT EDIT")
}

const owner = `
array Byte20 [byte; 20];
vector Locks <Byte20>;
option LockOpt (Byte20);
struct Flagged {
    flag: byte,
    lock: Byte20,
}
union Key {
    Byte20,
    Locks,
}
table Owner {
    lock: Byte20,
    locks: Locks,
    backup: LockOpt,
    key: Key,
    flag: byte,
}
`

const bindingsTest = `package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip[T interface{ Marshal() []byte }](t *testing.T, v T, decode func([]byte) (T, error)) {
	t.Helper()
	got, err := decode(v.Marshal())
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestRoundTrip(t *testing.T) {
	origin := Point{X: Uint32{1}, Y: Uint32{2}}
	cid := Bytes("bafy")
	lock := Byte20{0xaa, 19: 0xbb}

	roundTrip(t, Byte32{1, 2, 31: 3}, DecodeByte32)
	roundTrip(t, origin, DecodePoint)
	roundTrip(t, Line{origin, {X: Uint32{3}, Y: Uint32{4}}}, DecodeLine)
	roundTrip(t, cid, DecodeBytes)
	roundTrip(t, Points{origin, origin}, DecodePoints)
	roundTrip(t, BytesVec{cid, Bytes("x")}, DecodeBytesVec)
	roundTrip(t, BytesOpt{}, DecodeBytesOpt)
	roundTrip(t, BytesOpt{Value: &cid}, DecodeBytesOpt)
	roundTrip(t, Shape{Point: &origin}, DecodeShape)
	roundTrip(t, Shape{Line: &Line{origin, origin}}, DecodeShape)
	roundTrip(t, Nft{
		GenesisId: Byte32{9},
		Cid:       cid,
		Origin:    origin,
		Tags:      BytesVec{cid},
		Note:      BytesOpt{Value: &cid},
	}, DecodeNft)

	roundTrip(t, lock, DecodeByte20)
	roundTrip(t, Locks{lock, lock}, DecodeLocks)
	roundTrip(t, LockOpt{Value: &lock}, DecodeLockOpt)
	roundTrip(t, Flagged{Flag: 7, Lock: lock}, DecodeFlagged)
	roundTrip(t, Key{Locks: &Locks{lock}}, DecodeKey)
	roundTrip(t, Owner{
		Lock:   lock,
		Locks:  Locks{lock},
		Backup: LockOpt{},
		Key:    Key{Byte20: &lock},
		Flag:   1,
	}, DecodeOwner)

	_, err := DecodeShape([]byte{9, 0, 0, 0})
	assert.ErrorContains(t, err, "unknown item id 9")
	_, err = DecodeFlagged(make([]byte, 20))
	assert.ErrorContains(t, err, "Flagged: expected 21 bytes")
}
`

// TestGeneratedBindings compiles the bindings of two schemas into one
// package and round trips every kind of declaration through them.
func TestGeneratedBindings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not found")
	}

	dir, err := os.MkdirTemp(".", "bindings")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	for name, src := range map[string]string{"nft": sample, "owner": owner} {
		s, err := Parse(src)
		require.NoError(t, err, name)
		code, err := Generate(s, Package)
		require.NoError(t, err, name)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".go"), code, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bindings_test.go"), []byte(bindingsTest), 0o644))

	cmd := exec.Command(goBin, "test", "-count=1", "./"+filepath.Base(dir))
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestNewAndBuild(t *testing.T) {
	p, err := project.Init(t.TempDir(), "demo")
	require.NoError(t, err)

	path, err := New(p, "empty", "")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(p.Path("schemas", "src", "empty.go"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = New(p, "nft", sample)
	require.NoError(t, err)
	code, err := os.ReadFile(p.Path("schemas", "src", "nft.go"))
	require.NoError(t, err)
	assert.Contains(t, string(code), "func DecodeNft(")

	require.NoError(t, os.WriteFile(p.Path("schemas", "mol", "broken.mol"), []byte("table X { a: Nope, }"), 0o644))
	_, err = Build(p, "broken")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Build(p, "missing")
	assert.Error(t, err)
}
