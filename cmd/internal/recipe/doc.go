// Package recipe implements project-scoped recipe composition: tags are the
// atomic measurable units, combinations bundle tag values, and recipes are
// ordered sequences of combinations with optional per-use tag overrides that
// never mutate the shared combination template.
package recipe
