// Package query answers lookups against a cleaned table and its resolved
// column roles: entity resolution by identifier or display name, per-entity
// time series, per-group period averages, summary statistics and the outer
// join used to chart several series side by side.
//
// Nothing here copies table data into long lived structures. Entities,
// series and aggregates are recomputed from the table on each call.
package query
