package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicateEmail indicates an insert violated the email uniqueness
// constraint. The constraint lives in the storage engine so two racing
// inserts can never both succeed.
var ErrDuplicateEmail = errors.New("repository: email already registered")
