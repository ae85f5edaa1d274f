package core

import (
	"errors"
	"fmt"
)

var (
	// ErrOpNotFound reports that no handler in the chain has an entry for
	// an operation name.
	ErrOpNotFound = errors.New("op not found")

	// ErrUnsupportedTensor reports that no handler in the chain can
	// convert a tensor.
	ErrUnsupportedTensor = errors.New("unsupported tensor")
)

// opNotFoundError identifies the unknown operation. It is the same value
// regardless of which handler reports it, so delegation stays
// transparent to callers.
type opNotFoundError struct {
	name string
}

func (e *opNotFoundError) Error() string {
	return fmt.Sprintf("op not found: %q", e.name)
}

func (e *opNotFoundError) Is(target error) bool {
	return target == ErrOpNotFound
}

func notFound(name string) error {
	return &opNotFoundError{name: name}
}
