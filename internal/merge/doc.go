// Package merge joins the digital transformation index workbook with the
// yearly industry classification workbook, producing the dataset the query
// tools read. Merge works on loaded tables; Run adds file validation,
// loading and writing.
package merge
