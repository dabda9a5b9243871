package query

import "errors"

var (
	ErrNotFound                = errors.New("no matching entity")
	ErrInvalidIdentifierFormat = errors.New("invalid identifier format")
	ErrGroupMismatch           = errors.New("entities belong to different groups")
	ErrNoGroupColumn           = errors.New("dataset has no group column")
)
