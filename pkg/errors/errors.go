package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeRateLimit  Code = "RATE_LIMIT_EXCEEDED"
	CodeTransient  Code = "TRANSIENT_ERROR"
	CodeDependency Code = "DEPENDENCY_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
	CodeFatal      Code = "FATAL_ERROR"
)

// Metadata describes how callers should treat a code.
type Metadata struct {
	Retryable     bool
	Fatal         bool
	HTTPStatus    int
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {HTTPStatus: http.StatusBadRequest, PublicMessage: "invalid request"},
	CodeNotFound:   {HTTPStatus: http.StatusNotFound, PublicMessage: "not found"},
	CodeConflict:   {HTTPStatus: http.StatusConflict, PublicMessage: "conflict"},
	CodeRateLimit:  {Retryable: true, HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limited"},
	CodeTransient:  {Retryable: true, HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "temporarily unavailable"},
	CodeDependency: {Retryable: true, HTTPStatus: http.StatusBadGateway, PublicMessage: "upstream dependency failed"},
	CodeInternal:   {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal error"},
	CodeFatal:      {Fatal: true, HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal error"},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsRetryable reports whether the error carries a retryable code. Errors
// without a domain code are treated as permanent.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Retryable
}

// IsFatal reports whether the error should abort the whole run.
func IsFatal(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Fatal
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
