// Package pobj provides typed persistent objects on top of a transactional
// region.
//
// A Pool is an open region plus its undo log, allocator and transaction
// manager. Objects are fixed-size records described by a Type; each field is
// either an int64 value or a reference to another object. References come in
// two kinds:
//
//   - Owning: the referent belongs to the field. Clearing or overwriting the
//     field, or deleting the holder, frees the referent when the transaction
//     commits.
//   - Alias: a plain link to an object owned elsewhere. Aliases never free.
//
// Every mutation of a reachable object happens inside Pool.Run (or an
// explicit Begin/Commit pair). The only writes allowed outside a transaction
// are StoreInt64, which flushes the value before returning, and PublishAlias,
// which flushes the target object before the pointer to it.
//
// A Ptr carries its Pool, so the region an object lives in is never looked up
// from an address.
package pobj
