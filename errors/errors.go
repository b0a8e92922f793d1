/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create an entity that already exists
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrConditionFailed is returned when a conditional write fails
	ErrConditionFailed = errors.New("condition check failed")

	// ErrNoIndexMap is returned when no index map is found for a table
	ErrNoIndexMap = errors.New("no index map found for table")

	// ErrNotManaged is returned when an operation needs a proxy and got a plain entity
	ErrNotManaged = errors.New("entity is not managed")

	// ErrInvalidState is returned when a context or entity cannot serve the request
	ErrInvalidState = errors.New("invalid state")

	// ErrBackend is returned when a storage round trip fails
	ErrBackend = errors.New("backend failure")
)

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AlreadyExistsError represents an error when an entity already exists
type AlreadyExistsError struct {
	Type string
	Key  string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Type, e.Key)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ConditionFailedError represents a failed conditional operation
type ConditionFailedError struct {
	Operation string
	Condition string
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition check failed for %s operation: %s", e.Operation, e.Condition)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

// NotManagedError is returned by guards that require a proxied entity.
type NotManagedError struct {
	Entity string
}

func (e *NotManagedError) Error() string {
	return fmt.Sprintf("the entity '%s' is not in 'managed' state", e.Entity)
}

func (e *NotManagedError) Is(target error) bool {
	return target == ErrNotManaged
}

// InvalidStateError covers unresolvable primary keys, incompatible duplicates
// and operations applied to an entity in the wrong lifecycle state.
type InvalidStateError struct {
	Entity string
	Reason string
}

func (e *InvalidStateError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("invalid state for %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("invalid state: %s", e.Reason)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// BackendError wraps a failure surfaced by a storage round trip. The driver
// error stays reachable through errors.Unwrap / errors.As.
type BackendError struct {
	Op    string
	Table string
	Err   error
}

func (e *BackendError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s on %q failed: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Helper functions for creating errors

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return &NotFoundError{Type: entityType, Key: key}
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(entityType, key string) error {
	return &AlreadyExistsError{Type: entityType, Key: key}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewConditionFailedError creates a new ConditionFailedError
func NewConditionFailedError(operation, condition string) error {
	return &ConditionFailedError{Operation: operation, Condition: condition}
}

// NewNotManagedError creates a new NotManagedError for the given value
func NewNotManagedError(entity any) error {
	return &NotManagedError{Entity: fmt.Sprintf("%v", entity)}
}

// NewInvalidStateError creates a new InvalidStateError
func NewInvalidStateError(entity, reason string) error {
	return &InvalidStateError{Entity: entity, Reason: reason}
}

// NewBackendError wraps err, or returns nil when err is nil. Errors that are
// already BackendErrors are returned unchanged.
func NewBackendError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Table: table, Err: err}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConditionFailed checks if an error is a condition failed error
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// IsNotManaged checks if an error is a not managed error
func IsNotManaged(err error) bool {
	return errors.Is(err, ErrNotManaged)
}

// IsInvalidState checks if an error is an invalid state error
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsBackendError checks if an error came from a storage round trip
func IsBackendError(err error) bool {
	return errors.Is(err, ErrBackend)
}
