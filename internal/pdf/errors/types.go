package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// PDFError represents a failure of a slot or document operation with its kind and context
type PDFError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	Field     string    `json:"field,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	err error
}

// ErrorType represents the categories of failures surfaced to callers
type ErrorType int

const (
	ErrorTypeInternal ErrorType = iota
	ErrorTypeNotFound
	ErrorTypeParse
	ErrorTypeFieldNotFound
	ErrorTypeUnsupportedFieldKind
	ErrorTypeValidation
	ErrorTypeInvalidRequest
	ErrorTypeTooLarge
)

// Error implements the error interface
func (e *PDFError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type.String(), e.Detail())
}

// Detail returns the message with field, context and cause but without the kind
func (e *PDFError) Detail() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %q)", msg, e.Field)
	}
	if e.Context != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Context)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying cause, if any
func (e *PDFError) Unwrap() error {
	return e.err
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeParse:
		return "PARSE_ERROR"
	case ErrorTypeFieldNotFound:
		return "FIELD_NOT_FOUND"
	case ErrorTypeUnsupportedFieldKind:
		return "UNSUPPORTED_FIELD_KIND"
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeInvalidRequest:
		return "INVALID_REQUEST"
	case ErrorTypeTooLarge:
		return "TOO_LARGE"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps an error type to the status code a handler responds with
func (et ErrorType) HTTPStatus() int {
	switch et {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeParse, ErrorTypeFieldNotFound, ErrorTypeUnsupportedFieldKind:
		return http.StatusUnprocessableEntity
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new PDFError of the given type
func New(errorType ErrorType, message string) *PDFError {
	return &PDFError{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Newf creates a new PDFError with a formatted message
func Newf(errorType ErrorType, format string, args ...any) *PDFError {
	return New(errorType, fmt.Sprintf(format, args...))
}

// Wrap wraps err as a PDFError of the given type
func Wrap(errorType ErrorType, err error, message string) *PDFError {
	e := New(errorType, message)
	e.err = err
	return e
}

// WithContext adds context to an existing PDFError
func (e *PDFError) WithContext(context string) *PDFError {
	e.Context = context
	return e
}

// WithField records the form field the error refers to
func (e *PDFError) WithField(name string) *PDFError {
	e.Field = name
	return e
}

// TypeOf returns the type of the first PDFError in err's chain, or ErrorTypeInternal
func TypeOf(err error) ErrorType {
	var pe *PDFError
	if stderrors.As(err, &pe) {
		return pe.Type
	}
	return ErrorTypeInternal
}

// Detail returns the detail of the first PDFError in err's chain, or err's text
func Detail(err error) string {
	var pe *PDFError
	if stderrors.As(err, &pe) {
		return pe.Detail()
	}
	return err.Error()
}

// Is reports whether err carries a PDFError of the given type
func Is(err error, errorType ErrorType) bool {
	var pe *PDFError
	return stderrors.As(err, &pe) && pe.Type == errorType
}

// Recover turns a panic in the calling function into a PDFError of the given
// type stored in *err. It must be deferred directly:
//
//	defer pdferrors.Recover(&err, pdferrors.ErrorTypeParse, "failed to read PDF")
func Recover(err *error, errorType ErrorType, message string) {
	if r := recover(); r != nil {
		*err = Newf(errorType, "%s: %v", message, r)
	}
}
