package services

import (
	"errors"
	"fmt"
	"strings"

	"projectflow/backend/internal/repository"
)

// ErrorKind is the stable, client-visible classification of a service error.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
)

// Error is returned by every service operation that fails for a reason the
// caller can act on. Store failures are returned wrapped, not as *Error.
type Error struct {
	Kind    ErrorKind
	Entity  string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NotFound reports that the named entity does not exist.
func NotFound(entity string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Entity:  entity,
		Message: fmt.Sprintf("%s not found", humanize(entity)),
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of a service error.
func KindOf(err error) (ErrorKind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}

func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}

func IsConflict(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConflict
}

// storeErr translates repository sentinels for the given entity.
func storeErr(entity string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return NotFound(entity)
	case errors.Is(err, repository.ErrVersionConflict):
		return Conflict("%s was modified concurrently", humanize(entity))
	default:
		return fmt.Errorf("%s store: %w", entity, err)
	}
}

func humanize(entity string) string {
	s := strings.ReplaceAll(entity, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
