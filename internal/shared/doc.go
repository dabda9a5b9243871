// Package shared holds code used by several packages that belongs to no
// single layer. Today that is only the testutil subpackage: a buffered slog
// handler for asserting on log output and workbook fixtures built with
// excelize.
package shared
