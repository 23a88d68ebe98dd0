package schema

import (
	"bytes"
	"fmt"
	"go/format"
)

const moleculeImport = "github.com/manifest-network/trampoline/sdk/molecule"

// Generate renders Go bindings for s. Every type gets a Marshal method and
// a Decode<Type> function. The output declares nothing besides the schema's
// own types, so several schemas can share one package.
func Generate(s *Schema, pkg string) ([]byte, error) {
	g := &generator{s: s}
	g.printf("// Code generated by trampoline schema build. DO NOT EDIT.\n\n")
	g.printf("package %s\n\n", pkg)
	g.printf("import (\n\t\"fmt\"\n\n\t%q\n)\n\n", moleculeImport)
	g.printf("var (\n\t_ = fmt.Errorf\n\t_ = molecule.Bytes\n)\n\n")
	for _, d := range s.Decls {
		switch d.Kind {
		case KindArray:
			g.array(d)
		case KindStruct:
			g.structDecl(d)
		case KindVector:
			g.vector(d)
		case KindTable:
			g.table(d)
		case KindOption:
			g.option(d)
		case KindUnion:
			g.union(d)
		}
	}
	out, err := format.Source(g.buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format generated code: %w", err)
	}
	return out, nil
}

type generator struct {
	s   *Schema
	buf bytes.Buffer
}

func (g *generator) printf(format string, args ...any) {
	fmt.Fprintf(&g.buf, format, args...)
}

func goType(t string) string {
	if t == Byte {
		return "byte"
	}
	return goName(t)
}

func marshalExpr(t, expr string) string {
	if t == Byte {
		return fmt.Sprintf("[]byte{%s}", expr)
	}
	return expr + ".Marshal()"
}

func decodeFunc(t string) string {
	if t == Byte {
		return "molecule.UnpackByte"
	}
	return "Decode" + goName(t)
}

func (g *generator) array(d Decl) {
	name := goName(d.Name)
	item, _ := g.s.FixedSize(d.Item)
	total, _ := g.s.FixedSize(d.Name)
	g.printf("type %s [%d]%s\n\n", name, d.Length, goType(d.Item))
	if d.Item == Byte {
		g.printf("func (v %s) Marshal() []byte {\n\treturn append([]byte(nil), v[:]...)\n}\n\n", name)
		g.printf("func Decode%s(b []byte) (%s, error) {\n\tvar v %s\n", name, name, name)
		g.printf("\tif len(b) != %d {\n\t\treturn v, fmt.Errorf(\"%s: expected %d bytes, got %%d\", len(b))\n\t}\n", total, name, total)
		g.printf("\tcopy(v[:], b)\n\treturn v, nil\n}\n\n")
		return
	}
	g.printf("func (v %s) Marshal() []byte {\n\tout := make([]byte, 0, %d)\n", name, total)
	g.printf("\tfor _, e := range v {\n\t\tout = append(out, %s...)\n\t}\n\treturn out\n}\n\n", marshalExpr(d.Item, "e"))
	g.printf("func Decode%s(b []byte) (%s, error) {\n\tvar v %s\n", name, name, name)
	g.printf("\tif len(b) != %d {\n\t\treturn v, fmt.Errorf(\"%s: expected %d bytes, got %%d\", len(b))\n\t}\n", total, name, total)
	g.printf("\tfor i := range v {\n\t\te, err := %s(b[i*%d : (i+1)*%d])\n", decodeFunc(d.Item), item, item)
	g.printf("\t\tif err != nil {\n\t\t\treturn v, fmt.Errorf(\"%s[%%d]: %%w\", i, err)\n\t\t}\n\t\tv[i] = e\n\t}\n\treturn v, nil\n}\n\n", name)
}

func (g *generator) fields(name string, fields []Field) {
	g.printf("type %s struct {\n", name)
	for _, f := range fields {
		g.printf("\t%s %s\n", goName(f.Name), goType(f.Type))
	}
	g.printf("}\n\n")
}

func (g *generator) structDecl(d Decl) {
	name := goName(d.Name)
	total, _ := g.s.FixedSize(d.Name)
	g.fields(name, d.Fields)
	g.printf("func (v %s) Marshal() []byte {\n\tout := make([]byte, 0, %d)\n", name, total)
	for _, f := range d.Fields {
		g.printf("\tout = append(out, %s...)\n", marshalExpr(f.Type, "v."+goName(f.Name)))
	}
	g.printf("\treturn out\n}\n\n")

	g.printf("func Decode%s(b []byte) (%s, error) {\n\tvar v %s\n", name, name, name)
	g.printf("\tif len(b) != %d {\n\t\treturn v, fmt.Errorf(\"%s: expected %d bytes, got %%d\", len(b))\n\t}\n", total, name, total)
	if len(d.Fields) > 0 {
		g.printf("\tvar err error\n")
	}
	offset := 0
	for _, f := range d.Fields {
		size, _ := g.s.FixedSize(f.Type)
		g.printf("\tif v.%s, err = %s(b[%d:%d]); err != nil {\n", goName(f.Name), decodeFunc(f.Type), offset, offset+size)
		g.printf("\t\treturn v, fmt.Errorf(\"%s.%s: %%w\", err)\n\t}\n", name, f.Name)
		offset += size
	}
	g.printf("\treturn v, nil\n}\n\n")
}

func (g *generator) vector(d Decl) {
	name := goName(d.Name)
	if d.Item == Byte {
		g.printf("type %s []byte\n\n", name)
		g.printf("func (v %s) Marshal() []byte {\n\treturn molecule.Bytes(v)\n}\n\n", name)
		g.printf("func Decode%s(b []byte) (%s, error) {\n\tv, err := molecule.UnpackBytes(b)\n", name, name)
		g.printf("\tif err != nil {\n\t\treturn nil, fmt.Errorf(\"%s: %%w\", err)\n\t}\n\treturn %s(v), nil\n}\n\n", name, name)
		return
	}
	g.printf("type %s []%s\n\n", name, goType(d.Item))
	g.printf("func (v %s) Marshal() []byte {\n\titems := make([][]byte, len(v))\n", name)
	g.printf("\tfor i, e := range v {\n\t\titems[i] = %s\n\t}\n", marshalExpr(d.Item, "e"))
	size, fixed := g.s.FixedSize(d.Item)
	if fixed {
		g.printf("\treturn molecule.Fixvec(items)\n}\n\n")
	} else {
		g.printf("\treturn molecule.Dynvec(items)\n}\n\n")
	}
	g.printf("func Decode%s(b []byte) (%s, error) {\n", name, name)
	if fixed {
		g.printf("\titems, err := molecule.UnpackFixvec(b, %d)\n", size)
	} else {
		g.printf("\titems, err := molecule.UnpackDynvec(b)\n")
	}
	g.printf("\tif err != nil {\n\t\treturn nil, fmt.Errorf(\"%s: %%w\", err)\n\t}\n", name)
	g.printf("\tv := make(%s, len(items))\n\tfor i, item := range items {\n", name)
	g.printf("\t\tif v[i], err = %s(item); err != nil {\n", decodeFunc(d.Item))
	g.printf("\t\t\treturn nil, fmt.Errorf(\"%s[%%d]: %%w\", i, err)\n\t\t}\n\t}\n\treturn v, nil\n}\n\n", name)
}

func (g *generator) table(d Decl) {
	name := goName(d.Name)
	g.fields(name, d.Fields)
	g.printf("func (v %s) Marshal() []byte {\n\treturn molecule.Table(\n", name)
	for _, f := range d.Fields {
		g.printf("\t\t%s,\n", marshalExpr(f.Type, "v."+goName(f.Name)))
	}
	g.printf("\t)\n}\n\n")

	g.printf("func Decode%s(b []byte) (%s, error) {\n\tvar v %s\n", name, name, name)
	g.printf("\tfields, err := molecule.UnpackTable(b, %d)\n", len(d.Fields))
	g.printf("\tif err != nil {\n\t\treturn v, fmt.Errorf(\"%s: %%w\", err)\n\t}\n", name)
	if len(d.Fields) == 0 {
		g.printf("\t_ = fields\n")
	}
	for i, f := range d.Fields {
		g.printf("\tif v.%s, err = %s(fields[%d]); err != nil {\n", goName(f.Name), decodeFunc(f.Type), i)
		g.printf("\t\treturn v, fmt.Errorf(\"%s.%s: %%w\", err)\n\t}\n", name, f.Name)
	}
	g.printf("\treturn v, nil\n}\n\n")
}

func (g *generator) option(d Decl) {
	name := goName(d.Name)
	g.printf("type %s struct {\n\tValue *%s\n}\n\n", name, goType(d.Item))
	g.printf("func (v %s) Marshal() []byte {\n\tif v.Value == nil {\n\t\treturn molecule.Option(nil)\n\t}\n", name)
	g.printf("\treturn molecule.Option(%s)\n}\n\n", marshalExpr(d.Item, "(*v.Value)"))
	g.printf("func Decode%s(b []byte) (%s, error) {\n\tif len(b) == 0 {\n\t\treturn %s{}, nil\n\t}\n", name, name, name)
	g.printf("\tinner, err := %s(b)\n\tif err != nil {\n\t\treturn %s{}, fmt.Errorf(\"%s: %%w\", err)\n\t}\n", decodeFunc(d.Item), name, name)
	g.printf("\treturn %s{Value: &inner}, nil\n}\n\n", name)
}

// union renders a struct with one pointer per variant; Marshal encodes the
// first non-nil one.
func (g *generator) union(d Decl) {
	name := goName(d.Name)
	g.printf("type %s struct {\n", name)
	for _, item := range d.Items {
		g.printf("\t%s *%s\n", goName(item.Type), goType(item.Type))
	}
	g.printf("}\n\n")

	g.printf("func (v %s) Marshal() []byte {\n\tswitch {\n", name)
	for _, item := range d.Items {
		field := goName(item.Type)
		g.printf("\tcase v.%s != nil:\n\t\treturn molecule.Union(%d, %s)\n", field, item.ID, marshalExpr(item.Type, "(*v."+field+")"))
	}
	g.printf("\t}\n\treturn nil\n}\n\n")

	g.printf("func Decode%s(b []byte) (%s, error) {\n\tvar v %s\n", name, name, name)
	g.printf("\tid, item, err := molecule.UnpackUnion(b)\n\tif err != nil {\n\t\treturn v, fmt.Errorf(\"%s: %%w\", err)\n\t}\n", name)
	g.printf("\tswitch id {\n")
	for _, item := range d.Items {
		field := goName(item.Type)
		g.printf("\tcase %d:\n\t\tx, err := %s(item)\n\t\tif err != nil {\n\t\t\treturn v, fmt.Errorf(\"%s: %%w\", err)\n\t\t}\n\t\tv.%s = &x\n", item.ID, decodeFunc(item.Type), name, field)
	}
	g.printf("\tdefault:\n\t\treturn v, fmt.Errorf(\"%s: unknown item id %%d\", id)\n\t}\n\treturn v, nil\n}\n\n", name)
}
