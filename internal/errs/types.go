package errs

import "fmt"

type ErrorMessage struct {
	Message string
}

func (e *ErrorMessage) Error() string { return e.Message }

type NotFoundError struct {
	ErrorMessage
}

type ValidationError struct {
	ErrorMessage
}

// FatalError marks a job failure that retrying cannot fix (unknown entity,
// empty artifact, missing required field).
type FatalError struct {
	ErrorMessage
	Err error
}

func (e *FatalError) Unwrap() error { return e.Err }

// SchemaError is returned when generated AI output does not match the
// expected structure.
type SchemaError struct {
	ErrorMessage
	Err error
}

func (e *SchemaError) Unwrap() error { return e.Err }

type DatabaseError struct {
	ErrorMessage
	Operation string
	Err       error
}

func (e *DatabaseError) Unwrap() error { return e.Err }

type ExternalServiceError struct {
	ErrorMessage
	Service   string
	Transient bool
	Detail    string
	Err       error
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// LockedError means another job currently holds the resource.
type LockedError struct {
	ErrorMessage
	Resource string
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewFatalError(message string, err error) *FatalError {
	return &FatalError{
		ErrorMessage: ErrorMessage{Message: message},
		Err:          err,
	}
}

func NewSchemaError(message string, err error) *SchemaError {
	return &SchemaError{
		ErrorMessage: ErrorMessage{Message: message},
		Err:          err,
	}
}

func NewDatabaseError(operation string, err error) *DatabaseError {
	return &DatabaseError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("%s: %v", operation, err)},
		Operation:    operation,
		Err:          err,
	}
}

func NewExternalServiceError(service string, transient bool, detail string, err error) *ExternalServiceError {
	return &ExternalServiceError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("%s: %v", service, err)},
		Service:      service,
		Transient:    transient,
		Detail:       detail,
		Err:          err,
	}
}

func NewLockedError(resource string) *LockedError {
	return &LockedError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("%s is locked by another job", resource)},
		Resource:     resource,
	}
}
