// Package schema decides which columns of a loaded table play the
// identifier, period and metric roles, plus the optional group, group name
// and display name roles.
//
// Each role owns an ordered list of rules. A rule is a pure predicate over
// a column (name, type, values). Resolution runs every role's exact-name
// rules first and the content heuristics second, each rule scanning the
// table in column order, and the first column a rule accepts is claimed.
// A claimed column is never handed to a second role.
//
// When a required role stays unclaimed Resolve returns an *UnresolvedError
// carrying the column names and types so a caller can ask the user for an
// explicit mapping, which Override accepts wholesale.
package schema
