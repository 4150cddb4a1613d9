// Package queue implements a persistent FIFO of int64 values.
//
// The root object owns the first node through head and aliases the last one
// through tail; every node owns its successor. Push and Pop change the chain
// inside a single transaction, so after a crash the queue is either as it was
// before the operation or as it is after it.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshuapare/pmemkit/pobj"
)

// Layout is the layout tag queue pools are created with.
const Layout = "queue"

const (
	rootTypeID uint32 = 1
	nodeTypeID uint32 = 2
)

var (
	// RootType is the queue header stored as the pool root.
	RootType = pobj.NewType(rootTypeID, "queue",
		pobj.OwningRef("head", nodeTypeID),
		pobj.AliasRef("tail", nodeTypeID),
	)
	// NodeType is one queued value.
	NodeType = pobj.NewType(nodeTypeID, "queue_node",
		pobj.Int64Field("value"),
		pobj.OwningRef("next", nodeTypeID),
	)

	fieldHead  = RootType.MustField("head")
	fieldTail  = RootType.MustField("tail")
	fieldValue = NodeType.MustField("value")
	fieldNext  = NodeType.MustField("next")
)

var (
	// ErrEmpty is returned by Pop on an empty queue.
	ErrEmpty = errors.New("queue: empty")
	// ErrCorrupt is returned by Check when head and tail disagree.
	ErrCorrupt = errors.New("queue: inconsistent links")
)

// Types returns the object types a queue pool must be opened with.
func Types() []*pobj.Type { return []*pobj.Type{RootType, NodeType} }

// Queue is a FIFO stored in a pool.
type Queue struct {
	pool *pobj.Pool
	root pobj.Ptr
}

// Open returns the queue rooted in pool, creating an empty one on first use.
func Open(ctx context.Context, pool *pobj.Pool) (*Queue, error) {
	root, err := pool.Root(ctx, RootType)
	if err != nil {
		return nil, err
	}
	return &Queue{pool: pool, root: root}, nil
}

// Pool returns the pool holding the queue.
func (q *Queue) Pool() *pobj.Pool { return q.pool }

// Push appends v.
func (q *Queue) Push(ctx context.Context, v int64) error {
	return q.pool.Run(ctx, func(t *pobj.Tx) error { return q.PushTx(t, v) })
}

// PushTx appends v as part of the caller's transaction.
func (q *Queue) PushTx(t *pobj.Tx, v int64) error {
	node, err := t.New(NodeType)
	if err != nil {
		return err
	}
	if err := t.SetInt64(node, fieldValue, v); err != nil {
		return err
	}

	head, err := q.root.Ref(fieldHead)
	if err != nil {
		return err
	}
	if head.IsNull() {
		if err := t.SetRef(q.root, fieldHead, node); err != nil {
			return err
		}
	} else {
		tail, err := q.root.Ref(fieldTail)
		if err != nil {
			return err
		}
		if err := t.SetRef(tail, fieldNext, node); err != nil {
			return err
		}
	}
	return t.SetRef(q.root, fieldTail, node)
}

// Pop removes and returns the oldest value. The value is returned only once
// the removal has committed.
func (q *Queue) Pop(ctx context.Context) (int64, error) {
	var v int64
	err := q.pool.Run(ctx, func(t *pobj.Tx) error {
		var err error
		v, err = q.PopTx(t)
		return err
	})
	if err != nil {
		return 0, err
	}
	return v, nil
}

// PopTx removes the oldest value as part of the caller's transaction.
func (q *Queue) PopTx(t *pobj.Tx) (int64, error) {
	head, err := q.root.Ref(fieldHead)
	if err != nil {
		return 0, err
	}
	if head.IsNull() {
		return 0, ErrEmpty
	}
	if _, err := t.Take(q.root, fieldHead); err != nil {
		return 0, err
	}
	v, err := head.Int64(fieldValue)
	if err != nil {
		return 0, err
	}
	next, err := t.Take(head, fieldNext)
	if err != nil {
		return 0, err
	}
	if err := t.SetRef(q.root, fieldHead, next); err != nil {
		return 0, err
	}
	if err := t.Delete(head); err != nil {
		return 0, err
	}
	if next.IsNull() {
		if err := t.Clear(q.root, fieldTail); err != nil {
			return 0, err
		}
	}
	return v, nil
}

// Walk calls fn for each value from oldest to newest until fn returns false.
func (q *Queue) Walk(fn func(v int64) bool) error {
	node, err := q.root.Ref(fieldHead)
	if err != nil {
		return err
	}
	for !node.IsNull() {
		v, err := node.Int64(fieldValue)
		if err != nil {
			return err
		}
		if !fn(v) {
			return nil
		}
		if node, err = node.Ref(fieldNext); err != nil {
			return err
		}
	}
	return nil
}

// Show returns every value from oldest to newest.
func (q *Queue) Show() ([]int64, error) {
	var out []int64
	err := q.Walk(func(v int64) bool {
		out = append(out, v)
		return true
	})
	return out, err
}

// Len returns the number of queued values.
func (q *Queue) Len() (int, error) {
	n := 0
	err := q.Walk(func(int64) bool {
		n++
		return true
	})
	return n, err
}

// Check verifies that head is null exactly when tail is, and that tail names
// the last node of the chain.
func (q *Queue) Check() error {
	head, err := q.root.Ref(fieldHead)
	if err != nil {
		return err
	}
	tail, err := q.root.Ref(fieldTail)
	if err != nil {
		return err
	}
	if head.IsNull() != tail.IsNull() {
		return fmt.Errorf("%w: head %s, tail %s", ErrCorrupt, head, tail)
	}
	last := head
	for node := head; !node.IsNull(); {
		last = node
		if node, err = node.Ref(fieldNext); err != nil {
			return err
		}
	}
	if !last.Equal(tail) {
		return fmt.Errorf("%w: tail %s is not the last node %s", ErrCorrupt, tail, last)
	}
	return nil
}
