package tx

import (
	"errors"

	"github.com/joshuapare/pmemkit/region/alloc"
)

var (
	// ErrNoActiveTransaction is returned by writes outside a running transaction.
	ErrNoActiveTransaction = alloc.ErrNoActiveTransaction

	// ErrNesting is returned by Begin while another transaction is running.
	ErrNesting = errors.New("tx: transaction already active")

	// ErrAborted is returned by Run when the body aborted the transaction itself.
	ErrAborted = errors.New("tx: transaction aborted")

	// ErrNotRecovered is returned by Begin before Recover has run.
	ErrNotRecovered = errors.New("tx: recovery has not run")

	// ErrProtectedRange is returned when a write targets the undo log area.
	ErrProtectedRange = errors.New("tx: range overlaps the undo log")
)
