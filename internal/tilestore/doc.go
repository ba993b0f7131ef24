// Package tilestore owns the on-disk grid of fixed-size tiles for every level
// of a slide pyramid.
//
// The store is pure storage: it validates tile shapes, enforces write-once
// slots, appends payloads, and records per-level directories. It never
// resamples. Deriving reduced levels is the pyramid package's job.
//
// # File Layout
//
//	+-------------------+  offset 0
//	| superblock (64 B) |  magic, version, flags, create-time geometry,
//	|                   |  header offset/length/checksum (zero until finalized)
//	+-------------------+  offset 64
//	| tile payloads     |  appended in write order, possibly compressed
//	| level directory   |  CBOR, appended only once every tile of that level exists
//	| ...               |
//	| header            |  CBOR: id, dimensions, tile size, scale factors, level records
//	+-------------------+
//
// The superblock is rewritten last, after the header is synced. A file whose
// superblock carries no header pointer was never finalized and Open refuses it
// with slideerr.ErrLevelNotReady: base tiles may be present but no reader can
// trust the pyramid.
//
// # Concurrency
//
// A writable store serializes Put, AddLevel and CommitLevel on one mutex; Get
// may run concurrently with them for committed levels. A store opened with
// Open is read-only and immutable, so Get takes no lock at all and any number
// of goroutines may read in parallel.
//
// Only one writable store may exist for a path. That is a caller precondition,
// not something the store checks.
package tilestore
