package services

import (
	"errors"

	"dtindex/internal/dataset"
	"dtindex/internal/query"
	"dtindex/internal/schema"
)

// Service errors
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// Outcome classifies err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, query.ErrNotFound):
		return "not_found"
	case errors.Is(err, query.ErrInvalidIdentifierFormat),
		errors.Is(err, schema.ErrUnknownColumn),
		errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, query.ErrGroupMismatch):
		return "mismatch"
	case errors.Is(err, query.ErrNoGroupColumn):
		return "no_group"
	case Unavailable(err):
		return "unavailable"
	default:
		return "error"
	}
}

// Guidance returns a short, actionable hint for a user facing err, or ""
// when there is nothing to suggest.
func Guidance(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, dataset.ErrFileNotFound):
		return "Place the merged index workbook next to the program or set dataset.path (DTI_DATASET_FILE). " +
			"dtmerge builds it from the index and industry workbooks."
	case errors.Is(err, dataset.ErrParse):
		return "Check that the file is an .xlsx workbook or a .csv file with a header row. Save legacy .xls files as .xlsx."
	case errors.Is(err, dataset.ErrEmptyDataset):
		return "No row has an identifier, period and metric value. Check the sheet and the column mapping."
	case errors.Is(err, schema.ErrUnresolved):
		return "Map the missing columns explicitly in dataset.mapping or through a schema override."
	case errors.Is(err, schema.ErrUnknownColumn):
		return "Use column names exactly as they appear in the header row."
	case errors.Is(err, query.ErrInvalidIdentifierFormat):
		return "Enter the full zero-padded identifier, for example 000858."
	case errors.Is(err, query.ErrNotFound):
		return "Check the spelling or list the entities to find the exact name."
	case errors.Is(err, query.ErrGroupMismatch):
		return "Pick a peer from the same industry group."
	case errors.Is(err, ErrInvalidInput):
		return "Check the request parameters."
	case errors.Is(err, query.ErrNoGroupColumn):
		return "Run dtmerge to add industry codes to the dataset."
	default:
		return ""
	}
}
