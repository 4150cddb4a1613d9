package pobj

import (
	"context"
	"fmt"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/region/tx"
)

// Tx is a transaction on a Pool. Every write snapshots the field first.
type Tx struct {
	p *Pool
	t *tx.Tx
}

// Raw returns the underlying region transaction.
func (t *Tx) Raw() *tx.Tx { return t.t }

// Pool returns the pool the transaction writes to.
func (t *Tx) Pool() *Pool { return t.p }

// Commit makes the transaction durable.
func (t *Tx) Commit(ctx context.Context) error { return t.t.Commit(ctx) }

// Abort rolls the transaction back.
func (t *Tx) Abort(ctx context.Context) error { return t.t.Abort(ctx) }

// New allocates a zeroed object of type typ. It is not reachable until a
// reference to it is stored somewhere reachable.
func (t *Tx) New(typ *Type) (Ptr, error) {
	if err := t.p.register(typ); err != nil {
		return Ptr{}, err
	}
	oid, err := t.t.Alloc(typ.Size, typ.ID)
	if err != nil {
		return Ptr{}, fmt.Errorf("pobj: new %s: %w", typ.Name, err)
	}
	return Ptr{pool: t.p, oid: oid, typ: typ}, nil
}

// SetInt64 writes a scalar field.
func (t *Tx) SetInt64(obj Ptr, f Field, v int64) error {
	off, err := t.field(obj, f, KindInt64)
	if err != nil {
		return err
	}
	return t.t.PutI64(off, v)
}

// SetRef points a reference field at target (which may be null). Assigning
// to an owning field deletes the referent it held before; assigning to an
// alias never frees anything.
func (t *Tx) SetRef(obj Ptr, f Field, target Ptr) error {
	off, err := t.field(obj, f, KindOwning, KindAlias)
	if err != nil {
		return err
	}
	if err := t.p.checkTarget(f, target); err != nil {
		return err
	}
	if f.Kind == KindOwning {
		// The new target may sit inside the old subtree (root.a = root.a.next);
		// it survives and everything else the field owned is deleted.
		prev := OID(format.ReadU64(t.p.r.Bytes(), off))
		if !prev.IsNull() && prev != target.oid && !t.p.mgr.Freed(prev) {
			old, err := obj.Ref(f)
			if err != nil {
				return err
			}
			if err := t.deleteTree(old, target.oid); err != nil {
				return err
			}
		}
	}
	return t.t.PutU64(off, uint64(target.oid))
}

// Take moves the referent out of an owning field: the field becomes null and
// the object is returned without being freed, so it can be stored elsewhere.
func (t *Tx) Take(obj Ptr, f Field) (Ptr, error) {
	off, err := t.field(obj, f, KindOwning)
	if err != nil {
		return Ptr{}, err
	}
	got, err := obj.Ref(f)
	if err != nil {
		return Ptr{}, err
	}
	if err := t.t.PutU64(off, uint64(format.NullOID)); err != nil {
		return Ptr{}, err
	}
	return got, nil
}

// Clear nulls a reference field, deleting the referent if the field owns it.
func (t *Tx) Clear(obj Ptr, f Field) error {
	return t.SetRef(obj, f, Ptr{})
}

// Delete frees obj and, depth first, everything it owns. The space is
// released when the transaction commits.
func (t *Tx) Delete(obj Ptr) error {
	if obj.IsNull() {
		return nil
	}
	if !t.t.Active() {
		return ErrNoActiveTransaction
	}
	if err := t.p.own(obj); err != nil {
		return err
	}
	if err := t.p.live(obj); err != nil {
		return err
	}
	return t.deleteTree(obj, format.NullOID)
}

// deleteTree frees root and its owned descendants except keep and whatever
// keep owns.
func (t *Tx) deleteTree(root Ptr, keep OID) error {
	stack := []Ptr{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, f := range cur.typ.fields {
			if f.Kind != KindOwning {
				continue
			}
			off, err := cur.fieldOff(f, KindOwning)
			if err != nil {
				return err
			}
			oid := OID(format.ReadU64(t.p.r.Bytes(), off))
			if oid.IsNull() || oid == keep || t.p.mgr.Freed(oid) {
				continue
			}
			child, err := cur.Ref(f)
			if err != nil {
				return err
			}
			stack = append(stack, child)
		}
		if err := t.t.Free(cur.oid); err != nil {
			return fmt.Errorf("pobj: delete %s: %w", cur, err)
		}
	}
	return nil
}

func (t *Tx) field(obj Ptr, f Field, kinds ...FieldKind) (int, error) {
	if !t.t.Active() {
		return 0, ErrNoActiveTransaction
	}
	if err := t.p.own(obj); err != nil {
		return 0, err
	}
	return obj.fieldOff(f, kinds...)
}
