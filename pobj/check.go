package pobj

import (
	"fmt"

	"github.com/joshuapare/pmemkit/internal/format"
)

// CheckReport is the outcome of a reachability check.
type CheckReport struct {
	Reachable int      // objects reachable from the root through owning references
	Leaked    []OID    // live objects nothing owns
	Problems  []string // dangling, mistyped, doubly owned or unreachable references
}

// OK reports whether the graph is consistent.
func (r CheckReport) OK() bool { return len(r.Problems) == 0 && len(r.Leaked) == 0 }

// Check walks the object graph from the root and verifies that every
// reference names a live object of its declared type, that no object has two
// owners, that alias targets are reachable and that every live object is
// owned by something.
func (p *Pool) Check() (CheckReport, error) {
	var rep CheckReport
	if err := p.check(); err != nil {
		return rep, err
	}
	if p.mgr.InTransaction() {
		return rep, ErrTransactionActive
	}

	h := p.r.Header()
	owners := make(map[OID]int)
	reached := make(map[OID]bool)
	type alias struct {
		from string
		to   OID
		typ  uint32
	}
	var aliases []alias
	var stack []Ptr

	if rootOID := OID(h.RootOID()); !rootOID.IsNull() {
		rt, err := p.typeByID(h.RootType())
		if err != nil {
			rep.Problems = append(rep.Problems, fmt.Sprintf("root: %v", err))
		} else if root, err := p.resolve(rootOID, rt); err != nil {
			rep.Problems = append(rep.Problems, fmt.Sprintf("root: %v", err))
		} else {
			owners[rootOID] = 1
			reached[rootOID] = true
			stack = append(stack, root)
		}
	}

	data := p.r.Bytes()
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		rep.Reachable++
		for _, f := range cur.typ.fields {
			if !f.IsRef() {
				continue
			}
			oid := OID(format.ReadU64(data, int(cur.oid)+f.off))
			if oid.IsNull() {
				continue
			}
			where := fmt.Sprintf("%s.%s", cur, f.Name)
			if f.Kind == KindAlias {
				aliases = append(aliases, alias{from: where, to: oid, typ: f.Target})
				continue
			}
			owners[oid]++
			if owners[oid] > 1 {
				rep.Problems = append(rep.Problems, fmt.Sprintf("%s: %s has more than one owner", where, oid))
				continue
			}
			target, err := p.typeByID(f.Target)
			if err != nil {
				rep.Problems = append(rep.Problems, fmt.Sprintf("%s: %v", where, err))
				continue
			}
			child, err := p.resolve(oid, target)
			if err != nil {
				rep.Problems = append(rep.Problems, fmt.Sprintf("%s: %v", where, err))
				continue
			}
			reached[oid] = true
			stack = append(stack, child)
		}
	}

	for _, a := range aliases {
		switch id, err := p.heap.TypeOf(a.to); {
		case err != nil:
			rep.Problems = append(rep.Problems, fmt.Sprintf("%s: %v", a.from, err))
		case id != a.typ:
			rep.Problems = append(rep.Problems, fmt.Sprintf("%s: %v: %s is type %d", a.from, ErrTypeMismatch, a.to, id))
		case !reached[a.to]:
			rep.Problems = append(rep.Problems, fmt.Sprintf("%s: alias to unreachable object %s", a.from, a.to))
		}
	}
	for _, oid := range p.heap.LiveObjects() {
		if owners[oid] == 0 {
			rep.Leaked = append(rep.Leaked, oid)
		}
	}

	if !rep.OK() {
		return rep, fmt.Errorf("%w: %d problems, %d leaked objects", ErrCheckFailed, len(rep.Problems), len(rep.Leaked))
	}
	return rep, nil
}
