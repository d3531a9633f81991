// Package pagination implements stable cursor pagination over time-ordered
// collections.
//
// The cursor is an opaque composite of (timestamp, id). Encoding the
// timestamp alone would skip or repeat rows that share a timestamp across
// page boundaries, so both fields always travel together. Items are ordered
// (timestamp DESC, id DESC); "strictly after the cursor" means
// ts < c.ts OR (ts == c.ts AND id < c.id).
package pagination
