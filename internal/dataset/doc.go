// Package dataset loads tabular spreadsheet data into an immutable, column
// oriented Table.
//
// Column names and types are not assumed. Every column is typed as text,
// integer or float from its non-missing cells, and cells keep both their
// trimmed source text and, when parseable, their numeric value so that the
// schema resolver can reason about names, types and sample values without
// re-reading the source.
//
// Loading happens in two stages:
//
//	raw, err := dataset.Load(path, dataset.LoadOptions{})
//	clean, report, err := dataset.Clean(raw, dataset.CleanSpec{...})
//
// Clean runs after role resolution: it drops rows with missing required
// values, renders identifiers as text (zero padded when numeric) and
// coerces periods to integers. Tables are never mutated after construction.
package dataset
