// Package common holds small cross-package sentinels and helpers shared by
// the grid arbitrage engine. It deliberately stays tiny: anything with real
// behaviour belongs in the package that owns the concept.
package common

import "errors"

// Cross-cutting sentinel errors. Packages wrap these with fmt.Errorf("...: %w")
// rather than declaring their own near-duplicates, so callers can
// errors.Is(err, common.ErrNilPointer) regardless of which package raised it.
var (
	ErrNilPointer    = errors.New("nil pointer")
	ErrDateUnset     = errors.New("date unset")
	ErrEmptyParams   = errors.New("received empty parameters")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
)
