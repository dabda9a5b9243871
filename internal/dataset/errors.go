package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound is returned when the dataset source does not exist.
	ErrFileNotFound = errors.New("dataset file not found")
	// ErrParse classifies every ParseError.
	ErrParse = errors.New("dataset is not a well-formed table")
	// ErrEmptyDataset is returned when no data rows remain after loading or cleanup.
	ErrEmptyDataset = errors.New("dataset has no usable rows")
)

// ParseError describes why a source could not be read as a rectangular
// table with a header row. Row is 1-based and zero when not row specific.
type ParseError struct {
	Source string
	Row    int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s", e.Source)
	if e.Row > 0 {
		msg += fmt.Sprintf(" (row %d)", e.Row)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is lets errors.Is(err, ErrParse) match any ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
