package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate indicates a unique constraint was violated.
var ErrDuplicate = errors.New("repository: duplicate entry")

// ErrInvalidArgument indicates the store rejected a value outright.
var ErrInvalidArgument = errors.New("repository: invalid argument")
