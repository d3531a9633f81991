// Package membership implements the per-(user, project) relationship state
// machine: invitation lifecycle (pending -> accepted/rejected), role
// transitions (admin <-> user), and the structural invariants around the
// root owner and the last remaining admin.
//
// The root owner is implicit: it is never materialized as a membership row,
// and the last-admin rule counts explicit accepted admin rows only.
package membership
