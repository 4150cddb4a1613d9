// Package region maps a persistent region file into memory and exposes the
// raw bytes, the header page, and the primitives the layers above need to
// make changes durable.
//
// A region file is a 4 KiB header page followed by the undo log area and the
// heap of cells (see internal/format for the byte layout). The package itself
// never interprets the log or the heap: recovery belongs to region/tx, cell
// management to region/alloc.
//
// # Remapping
//
// Append and Truncate resize the file and remap it. Every remap invalidates
// slices previously returned by Bytes. Code that needs to hold on to a range
// across an operation that may grow the heap should keep a View instead; a
// View refuses to hand out bytes once the mapping it was taken from is gone.
//
// # Durability
//
// Writes land in the shared mapping and reach the file whenever the kernel
// decides. Sync forces a byte range out synchronously and SyncFile issues the
// platform's strongest data sync. The dirty package builds ordered flushes on
// top of these two calls.
package region
