package pobj

import (
	"errors"

	"github.com/joshuapare/pmemkit/region/tx"
)

var (
	// ErrNoActiveTransaction is returned when an owning reference is written
	// outside a transaction.
	ErrNoActiveTransaction = tx.ErrNoActiveTransaction

	// ErrTransactionActive is returned by the non-transactional stores while
	// a transaction is running on the pool.
	ErrTransactionActive = errors.New("pobj: transaction active, write through it instead")

	// ErrRootType is returned when the stored root is not of the requested type.
	ErrRootType = errors.New("pobj: root type mismatch")

	// ErrFieldType is returned when a field does not belong to the object's
	// type or has the wrong kind for the operation.
	ErrFieldType = errors.New("pobj: field not valid for object")

	// ErrTypeMismatch is returned when a reference names an object of another type.
	ErrTypeMismatch = errors.New("pobj: referent type mismatch")

	// ErrUnknownType is returned for a type id no registered Type declares.
	ErrUnknownType = errors.New("pobj: unknown type")

	// ErrTypeConflict is returned when two different Types claim one id.
	ErrTypeConflict = errors.New("pobj: conflicting type registration")

	// ErrNullRef is returned when reading through a null Ptr.
	ErrNullRef = errors.New("pobj: null reference")

	// ErrForeignRef is returned when a Ptr from another pool is used.
	ErrForeignRef = errors.New("pobj: reference belongs to another pool")

	// ErrCheckFailed is returned by Check when the object graph is inconsistent.
	ErrCheckFailed = errors.New("pobj: consistency check failed")
)
