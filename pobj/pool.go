package pobj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/internal/logger"
	"github.com/joshuapare/pmemkit/region"
	"github.com/joshuapare/pmemkit/region/alloc"
	"github.com/joshuapare/pmemkit/region/dirty"
	"github.com/joshuapare/pmemkit/region/tx"
	"github.com/joshuapare/pmemkit/region/undo"
)

// Options configures Open. Zero values select defaults; Logger is handed to
// every layer that has none of its own.
type Options struct {
	Region region.OpenOptions
	Alloc  alloc.Options
	Tx     tx.Options
	Logger *slog.Logger
}

// Stats summarises an open pool.
type Stats struct {
	Path     string
	Layout   string
	Size     int64
	Seq      uint32 // sequence of the last transaction begun
	Objects  int
	Heap     alloc.Stats
	Tx       tx.Stats
	Recovery tx.RecoveryReport
}

// Pool is an open region together with its transactional machinery.
type Pool struct {
	r      *region.Region
	dt     *dirty.Tracker
	log    *undo.Log
	heap   *alloc.CellAllocator
	mgr    *tx.Manager
	rep    tx.RecoveryReport
	types  map[uint32]*Type
	logger *slog.Logger
}

// Create makes a new, empty pool file.
func Create(path, layout string, opts region.CreateOptions) error {
	return region.Create(path, layout, opts)
}

// Open maps the pool at path, rolls back any transaction a crash left
// behind and registers types. The pool is ready for use once Open returns.
func Open(ctx context.Context, path, layout string, opts Options, types ...*Type) (*Pool, error) {
	l := logger.Or(opts.Logger)
	if opts.Region.Logger == nil {
		opts.Region.Logger = l
	}
	if opts.Alloc.Logger == nil {
		opts.Alloc.Logger = l
	}
	if opts.Tx.Logger == nil {
		opts.Tx.Logger = l
	}

	r, err := region.Open(path, layout, opts.Region)
	if err != nil {
		return nil, err
	}
	p := &Pool{r: r, types: make(map[uint32]*Type), logger: l}
	for _, t := range types {
		if err := p.register(t); err != nil {
			_ = r.Close()
			return nil, err
		}
	}

	p.dt = dirty.NewTracker(r)
	if p.log, err = undo.Attach(r, p.dt); err != nil {
		_ = r.Close()
		return nil, &region.OpenError{Path: path, Err: err}
	}
	p.heap = alloc.New(r, opts.Alloc)
	p.mgr = tx.NewManager(r, p.dt, p.log, p.heap, opts.Tx)
	if p.rep, err = p.mgr.Recover(ctx); err != nil {
		_ = r.Close()
		return nil, &region.OpenError{Path: path, Err: err}
	}
	l.Info("pool opened", "path", path, "layout", layout, "size", r.Size(), "rolled_back", p.rep.RolledBack())
	return p, nil
}

// Close releases the pool. A transaction still running is rolled back by the
// next Open.
func (p *Pool) Close() error {
	if p == nil || p.r == nil {
		return nil
	}
	if p.mgr.InTransaction() {
		p.logger.Warn("closing pool with a running transaction", "path", p.r.Path())
	}
	err := p.r.Close()
	p.r = nil
	return err
}

// Region returns the underlying region.
func (p *Pool) Region() *region.Region { return p.r }

// Recovery returns what Open found on the region.
func (p *Pool) Recovery() tx.RecoveryReport { return p.rep }

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() Stats {
	h := p.r.Header()
	return Stats{
		Path:     p.r.Path(),
		Layout:   h.Layout(),
		Size:     p.r.Size(),
		Seq:      p.mgr.CurrentSequence(),
		Objects:  len(p.heap.LiveObjects()),
		Heap:     p.heap.Stats(),
		Tx:       p.mgr.Stats(),
		Recovery: p.rep,
	}
}

// Run executes fn in a transaction: commit when fn returns nil, abort when it
// returns an error or panics.
func (p *Pool) Run(ctx context.Context, fn func(t *Tx) error) error {
	if err := p.check(); err != nil {
		return err
	}
	return p.mgr.Run(ctx, func(t *tx.Tx) error {
		return fn(&Tx{p: p, t: t})
	})
}

// Begin starts a transaction the caller commits or aborts explicitly.
func (p *Pool) Begin(ctx context.Context) (*Tx, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	t, err := p.mgr.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{p: p, t: t}, nil
}

// Root returns the root object, allocating a zeroed one of type t in its own
// transaction the first time.
func (p *Pool) Root(ctx context.Context, t *Type) (Ptr, error) {
	if err := p.check(); err != nil {
		return Ptr{}, err
	}
	if err := p.register(t); err != nil {
		return Ptr{}, err
	}
	h := p.r.Header()
	if oid := OID(h.RootOID()); !oid.IsNull() {
		if h.RootType() != t.ID || int(h.RootSize()) < t.Size {
			return Ptr{}, fmt.Errorf("%w: stored root is type %d (%d bytes), want %s (%d bytes)",
				ErrRootType, h.RootType(), h.RootSize(), t.Name, t.Size)
		}
		return p.resolve(oid, t)
	}

	var root Ptr
	err := p.Run(ctx, func(x *Tx) error {
		var err error
		if root, err = x.New(t); err != nil {
			return err
		}
		if err := x.t.PutU64(format.RootOIDOffset, uint64(root.oid)); err != nil {
			return err
		}
		if err := x.t.PutU32(format.RootTypeOffset, t.ID); err != nil {
			return err
		}
		return x.t.PutU32(format.RootSizeOffset, uint32(t.Size))
	})
	if err != nil {
		return Ptr{}, fmt.Errorf("pobj: allocate root: %w", err)
	}
	p.logger.Debug("root allocated", "type", t.Name, "oid", root.oid)
	return root, nil
}

// Deref returns a typed reference to oid.
func (p *Pool) Deref(oid OID, t *Type) (Ptr, error) {
	if err := p.check(); err != nil {
		return Ptr{}, err
	}
	return p.resolve(oid, t)
}

// StoreInt64 writes a scalar field outside any transaction and flushes it
// before returning. The write is durable but cannot be rolled back.
func (p *Pool) StoreInt64(ctx context.Context, obj Ptr, f Field, v int64) error {
	if p.mgr.InTransaction() {
		return ErrTransactionActive
	}
	if err := p.own(obj); err != nil {
		return err
	}
	off, err := obj.fieldOff(f, KindInt64)
	if err != nil {
		return err
	}
	format.PutU64(p.r.Bytes(), off, uint64(v))
	return p.dt.Persist(ctx, off, fieldSize)
}

// PublishAlias points an alias field at target outside any transaction. The
// target object is flushed first and the pointer second, so no durable
// pointer ever names bytes that are not durable themselves. Owning fields
// can only be written inside a transaction.
func (p *Pool) PublishAlias(ctx context.Context, obj Ptr, f Field, target Ptr) error {
	if f.Kind == KindOwning {
		return fmt.Errorf("pobj: owning field %s: %w", f.Name, ErrNoActiveTransaction)
	}
	if p.mgr.InTransaction() {
		return ErrTransactionActive
	}
	if err := p.own(obj); err != nil {
		return err
	}
	off, err := obj.fieldOff(f, KindAlias)
	if err != nil {
		return err
	}
	if err := p.checkTarget(f, target); err != nil {
		return err
	}
	if !target.IsNull() {
		cell := int(target.oid) - format.CellHeaderSize
		if err := p.dt.Persist(ctx, cell, format.CellHeaderSize+target.typ.Size); err != nil {
			return fmt.Errorf("pobj: flush alias target: %w", err)
		}
	}
	format.PutU64(p.r.Bytes(), off, uint64(target.oid))
	return p.dt.Persist(ctx, off, fieldSize)
}

func (p *Pool) check() error {
	if p == nil || p.r == nil || p.r.Closed() {
		return region.ErrClosed
	}
	return nil
}

func (p *Pool) own(obj Ptr) error {
	if !obj.IsNull() && obj.pool != p {
		return ErrForeignRef
	}
	return nil
}

// checkTarget validates target as a value for reference field f.
func (p *Pool) checkTarget(f Field, target Ptr) error {
	if target.IsNull() {
		return nil
	}
	if err := p.own(target); err != nil {
		return err
	}
	if target.typ.ID != f.Target {
		return fmt.Errorf("%w: %s expects type %d, got %s", ErrTypeMismatch, f.Name, f.Target, target.typ.Name)
	}
	return p.live(target)
}

// live rejects objects that are not allocated or were freed by the running
// transaction.
func (p *Pool) live(obj Ptr) error {
	if !p.heap.IsLive(obj.oid) {
		return fmt.Errorf("%s: %w", obj, alloc.ErrBadRef)
	}
	if p.mgr.Freed(obj.oid) {
		return fmt.Errorf("%s: deleted in this transaction: %w", obj, alloc.ErrBadRef)
	}
	return nil
}

func (p *Pool) register(t *Type) error {
	if t == nil {
		return fmt.Errorf("%w: nil type", ErrUnknownType)
	}
	if prev, ok := p.types[t.ID]; ok && prev != t {
		if prev.Name != t.Name || prev.Size != t.Size {
			return fmt.Errorf("%w: id %d is %s and %s", ErrTypeConflict, t.ID, prev, t)
		}
		return nil
	}
	p.types[t.ID] = t
	return nil
}

func (p *Pool) typeByID(id uint32) (*Type, error) {
	t, ok := p.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, id)
	}
	return t, nil
}

// resolve turns oid into a Ptr after checking it names a live object of
// type want. A null oid resolves to a null Ptr of type want.
func (p *Pool) resolve(oid OID, want *Type) (Ptr, error) {
	if oid.IsNull() {
		return Ptr{pool: p, typ: want}, nil
	}
	if p.mgr.Freed(oid) {
		return Ptr{}, fmt.Errorf("%s: deleted in this transaction: %w", oid, alloc.ErrBadRef)
	}
	id, err := p.heap.TypeOf(oid)
	if err != nil {
		return Ptr{}, err
	}
	if want != nil && id != want.ID {
		return Ptr{}, fmt.Errorf("%w: %s is type %d, want %s", ErrTypeMismatch, oid, id, want.Name)
	}
	t, err := p.typeByID(id)
	if err != nil {
		return Ptr{}, err
	}
	if n, err := p.heap.SizeOf(oid); err != nil || n < t.Size {
		return Ptr{}, errors.Join(fmt.Errorf("%w: %s smaller than %s", alloc.ErrBadRef, oid, t.Name), err)
	}
	return Ptr{pool: p, oid: oid, typ: t}, nil
}
