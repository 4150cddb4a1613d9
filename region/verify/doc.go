// Package verify provides structural validation of region files.
//
// The checks work on raw bytes (a read-only mapping or a copy of the file)
// and never modify them, so they are safe to run on a region that still has
// an undo log pending recovery.
//
// # Checks
//
//   - Header: signature, version, log and heap placement
//   - Checksum: header checksum matches the stored value
//   - SequenceNumbers: primary equals secondary (no transaction in flight)
//   - Log: undo log header and every counted entry verify
//   - Heap: cells tile the heap exactly, sizes are aligned, the root is a
//     live cell
//   - FileSize: the file ends where the heap ends
//
// AllInvariants runs the structural checks and returns the first failure;
// All collects every failure.
//
// # Usage
//
//	data, _ := os.ReadFile(path)
//	if err := verify.AllInvariants(data); err != nil {
//	    var ve *verify.ValidationError
//	    if errors.As(err, &ve) {
//	        fmt.Printf("%s at 0x%X\n", ve.Type, ve.Offset)
//	    }
//	}
package verify
