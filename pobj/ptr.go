package pobj

import (
	"fmt"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/region"
	"github.com/joshuapare/pmemkit/region/alloc"
)

// OID identifies an object by the region offset of its payload. Zero is null.
type OID = alloc.OID

// Ptr is a typed reference to an object in a Pool. The zero Ptr is null.
type Ptr struct {
	pool *Pool
	oid  OID
	typ  *Type
}

// OID returns the object id.
func (p Ptr) OID() OID { return p.oid }

// Type returns the object's type. A null Ptr read from a field still reports
// the field's target type.
func (p Ptr) Type() *Type { return p.typ }

// Pool returns the pool the object lives in.
func (p Ptr) Pool() *Pool { return p.pool }

// IsNull reports whether the reference names no object.
func (p Ptr) IsNull() bool { return p.oid.IsNull() }

// Equal reports whether both references name the same object of the same pool.
// Two null references are equal.
func (p Ptr) Equal(q Ptr) bool {
	if p.IsNull() || q.IsNull() {
		return p.IsNull() && q.IsNull()
	}
	return p.pool == q.pool && p.oid == q.oid
}

func (p Ptr) String() string {
	if p.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%s@%s", p.typ.Name, p.oid)
}

// Int64 reads a scalar field.
func (p Ptr) Int64(f Field) (int64, error) {
	off, err := p.fieldOff(f, KindInt64)
	if err != nil {
		return 0, err
	}
	return int64(format.ReadU64(p.pool.r.Bytes(), off)), nil
}

// Ref reads a reference field. The result is null when the field is.
func (p Ptr) Ref(f Field) (Ptr, error) {
	off, err := p.fieldOff(f, KindOwning, KindAlias)
	if err != nil {
		return Ptr{}, err
	}
	target, err := p.pool.typeByID(f.Target)
	if err != nil {
		return Ptr{}, err
	}
	oid := OID(format.ReadU64(p.pool.r.Bytes(), off))
	got, err := p.pool.resolve(oid, target)
	if err != nil {
		return Ptr{}, fmt.Errorf("%s.%s: %w", p, f.Name, err)
	}
	return got, nil
}

// View returns a guarded view of the object's bytes. The view turns stale when
// the region is remapped, which heap growth inside any transaction can do, so
// do not hold it across a Run.
func (p Ptr) View() (region.View, error) {
	if p.IsNull() {
		return region.View{}, ErrNullRef
	}
	if err := p.pool.check(); err != nil {
		return region.View{}, err
	}
	return p.pool.r.View(int(p.oid), p.typ.Size)
}

// fieldOff validates that f is a field of p's type with one of kinds and
// returns its absolute region offset.
func (p Ptr) fieldOff(f Field, kinds ...FieldKind) (int, error) {
	if p.IsNull() {
		return 0, ErrNullRef
	}
	if err := p.pool.check(); err != nil {
		return 0, err
	}
	if err := p.pool.live(p); err != nil {
		return 0, err
	}
	if f.owner != p.typ.ID {
		return 0, fmt.Errorf("%w: %s is not a field of %s", ErrFieldType, f.Name, p.typ.Name)
	}
	for _, k := range kinds {
		if f.Kind == k {
			return int(p.oid) + f.off, nil
		}
	}
	return 0, fmt.Errorf("%w: %s.%s is %s", ErrFieldType, p.typ.Name, f.Name, f.Kind)
}
