package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidRequestType = errors.New("request type is required")
)

// NotFoundError reports a missing requester, project or leave type.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewNotFoundError is used by store adapters outside this package.
func NewNotFoundError(entity, id string) error {
	return notFound(entity, id)
}
