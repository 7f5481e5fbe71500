package cell

import (
	"errors"
)

var (
	// ErrCellUnderflow is returned when reading past the bits or refs of a
	// cell.
	ErrCellUnderflow = errors.New("cell underflow")
	// ErrCellOverflow is returned when a builder exceeds 1023 bits or 4 refs.
	ErrCellOverflow = errors.New("cell overflow")
	// ErrInvalidExotic is returned when an exotic cell does not follow the
	// layout of its type.
	ErrInvalidExotic = errors.New("invalid exotic cell")
	// ErrInvalidBOC is returned for malformed bag-of-cells input.
	ErrInvalidBOC = errors.New("invalid bag of cells")
	// ErrInvalidDict is returned for malformed dictionary nodes.
	ErrInvalidDict = errors.New("invalid dictionary")
)
