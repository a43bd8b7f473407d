package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("Resource not found")
	ErrOutOfStock   = errors.New("No bottles left in stock")
	ErrConflict     = errors.New("Wine was modified concurrently, please retry")
	ErrUnauthorized = errors.New("Unauthorized")
	ErrStorage      = errors.New("Storage is unavailable, please retry")
)

// ValidationError reports bad input; the operation was not attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError names the missing resource within the caller's house.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFoundError(resource string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

type OutOfStockError struct {
	WineID uuid.UUID
}

func (e *OutOfStockError) Error() string { return ErrOutOfStock.Error() }

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

// StorageFailure wraps a backing store error. Callers may retry.
type StorageFailure struct {
	Op  string
	Err error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

func (e *StorageFailure) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageFailure unless it already belongs to the taxonomy.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageFailure{Op: op, Err: err}
}

// ChunkFailure is one failed chunk of a bulk import.
type ChunkFailure struct {
	Phase string `json:"phase"` // "wines" or "purchases"
	Index int    `json:"index"`
	Rows  int    `json:"rows"`
	Error string `json:"error"`
}

// PartialBatchFailure describes a bulk import that completed with failed chunks.
type PartialBatchFailure struct {
	Failed int
	Chunks []ChunkFailure
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("%d rows failed in %d chunks", e.Failed, len(e.Chunks))
}
