package domain

import (
	"errors"
	"fmt"
)

// Error kinds reported by ledger and registry operations. Callers match them
// with errors.Is; operations wrap them with context.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidRecipient      = errors.New("invalid recipient")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrAlreadyInitialized    = errors.New("already initialized")
	ErrNotInitialized        = errors.New("not initialized")
	ErrInvalidArgument       = errors.New("invalid argument")
)

// NotFoundError is returned when a lookup by id fails.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
