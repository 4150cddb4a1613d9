package pobj

import (
	"fmt"
	"strings"

	"github.com/joshuapare/pmemkit/internal/format"
)

// FieldKind is the storage class of a field. Every field occupies 8 bytes.
type FieldKind uint8

const (
	KindInt64 FieldKind = iota + 1
	KindOwning
	KindAlias
)

func (k FieldKind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindOwning:
		return "owning"
	case KindAlias:
		return "alias"
	default:
		return fmt.Sprintf("FieldKind(%d)", uint8(k))
	}
}

const fieldSize = format.QWORDSize

// FieldSpec declares one field of a Type.
type FieldSpec struct {
	name   string
	kind   FieldKind
	target uint32
}

// Int64Field declares a scalar field.
func Int64Field(name string) FieldSpec { return FieldSpec{name: name, kind: KindInt64} }

// OwningRef declares a reference that owns its referent of type target.
func OwningRef(name string, target uint32) FieldSpec {
	return FieldSpec{name: name, kind: KindOwning, target: target}
}

// AliasRef declares a non-owning reference to an object of type target.
func AliasRef(name string, target uint32) FieldSpec {
	return FieldSpec{name: name, kind: KindAlias, target: target}
}

// Field is a resolved field of a Type.
type Field struct {
	Name   string
	Kind   FieldKind
	Target uint32 // referent type id for reference fields
	owner  uint32
	off    int
}

// Offset returns the byte offset of the field inside the object.
func (f Field) Offset() int { return f.off }

// IsRef reports whether the field holds a reference.
func (f Field) IsRef() bool { return f.Kind == KindOwning || f.Kind == KindAlias }

// Type describes the layout of a persistent object.
type Type struct {
	ID     uint32
	Name   string
	Size   int
	fields []Field
}

// NewType lays out the fields in declaration order. It panics on a zero id
// or a duplicate field name; types are declared once at package level.
func NewType(id uint32, name string, specs ...FieldSpec) *Type {
	if id == format.FreeTypeID {
		panic("pobj: type id 0 is reserved")
	}
	t := &Type{ID: id, Name: name}
	for i, s := range specs {
		if _, dup := t.Field(s.name); dup {
			panic(fmt.Sprintf("pobj: type %s declares field %q twice", name, s.name))
		}
		t.fields = append(t.fields, Field{
			Name:   s.name,
			Kind:   s.kind,
			Target: s.target,
			owner:  id,
			off:    i * fieldSize,
		})
	}
	t.Size = max(len(specs), 1) * fieldSize
	return t
}

// Fields returns the fields in layout order.
func (t *Type) Fields() []Field { return t.fields }

// Field looks a field up by name.
func (t *Type) Field(name string) (Field, bool) {
	for _, f := range t.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// MustField is like Field but panics if the field does not exist.
func (t *Type) MustField(name string) Field {
	f, ok := t.Field(name)
	if !ok {
		panic(fmt.Sprintf("pobj: type %s has no field %q", t.Name, name))
	}
	return f
}

func (t *Type) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s#%d{", t.Name, t.ID)
	for i, f := range t.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte(' ')
		b.WriteString(f.Kind.String())
		if f.IsRef() {
			fmt.Fprintf(&b, "->%d", f.Target)
		}
	}
	b.WriteByte('}')
	return b.String()
}
