// Package project is the registry of collaboration projects: creation with
// credential provisioning (hashed access key, one-time PIN), case-insensitive
// unique names, public join codes, listing and search, secret rotation, and
// PIN-gated deletion.
package project
