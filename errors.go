package sigtree

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownScheme is returned for signature scheme names without an
	// implementation.
	ErrUnknownScheme = errors.New("unknown signature scheme")

	// ErrStageOrder is returned when a signature stage is requested before
	// the stages it depends on have completed.
	ErrStageOrder = errors.New("signature stage not computed")

	// ErrNotInserted is returned for items that have no node in the tree.
	ErrNotInserted = errors.New("item not inserted")

	// ErrInconsistentTree is the cause of every CreationError.
	ErrInconsistentTree = errors.New("tree failed consistency check")

	// ErrCorrupt is returned when serialized index streams cannot be decoded.
	ErrCorrupt = errors.New("corrupt index stream")

	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
)

// FinalCheck is the Cell of a CreationError raised by the consistency check
// that runs after all cells were inserted.
const FinalCheck = -1

// CreationError aborts a build whose tree failed a consistency check.
//
// The original underlying error can be accessed via errors.Unwrap; it always
// wraps ErrInconsistentTree.
type CreationError struct {
	// Cell is the cell after whose insertion the check failed, or FinalCheck.
	Cell  int
	cause error
}

func (e *CreationError) Error() string {
	if e.Cell == FinalCheck {
		return fmt.Sprintf("index creation failed after final check: %v", e.cause)
	}
	return fmt.Sprintf("index creation failed after cell %d: %v", e.Cell, e.cause)
}

func (e *CreationError) Unwrap() error { return e.cause }

func newCreationError(cell int, err error) *CreationError {
	return &CreationError{Cell: cell, cause: fmt.Errorf("%w: %w", ErrInconsistentTree, err)}
}
