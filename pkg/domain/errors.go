package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes of the chassis taxonomy.
const (
	EUnauthenticated   = "unauthenticated"
	EInsufficientScope = "insufficient scope"
	EAccessDenied      = "access denied"
	EInvalid           = "invalid"
	ENotFound          = "not found"
	EConflict          = "conflict"
	EStorage           = "storage"
	EInternal          = "internal error"
)

// Error is the coded error propagated through the request pipeline.
//
// Code drives recovery in the pipeline and the HTTP status of the response.
// Msg is the human readable message surfaced to callers. Op names the
// operation that failed and Err chains the underlying cause.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// ErrorCode returns the code of the first coded error in the chain, EInternal
// for uncoded errors and "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return EInternal
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return ErrorCode(e.Err)
	}
	return EInternal
}

// ErrorMessage returns the human readable message of the first coded error
// that carries one.
func ErrorMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return "An internal error has occurred"
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return ErrorMessage(e.Err)
	}
	return e.Code
}

// IsCode reports whether err classifies as code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// Constructors for the taxonomy.

func Unauthenticated(msg string, cause error) *Error {
	return &Error{Code: EUnauthenticated, Msg: msg, Err: cause}
}

func InsufficientScope(msg string) *Error {
	return &Error{Code: EInsufficientScope, Msg: msg}
}

func AccessDenied(msg string) *Error {
	return &Error{Code: EAccessDenied, Msg: msg}
}

func ValidationError(msg string) *Error {
	return &Error{Code: EInvalid, Msg: msg}
}

func NotFound(msg string) *Error {
	return &Error{Code: ENotFound, Msg: msg}
}

func ConflictError(msg string) *Error {
	return &Error{Code: EConflict, Msg: msg}
}

// StorageError wraps an unrecoverable backing-store failure.
func StorageError(op string, cause error) *Error {
	return &Error{Code: EStorage, Op: op, Msg: "storage failure", Err: cause}
}

var statusCodes = map[string]int{
	EUnauthenticated:   http.StatusUnauthorized,
	EInsufficientScope: http.StatusForbidden,
	EAccessDenied:      http.StatusForbidden,
	EInvalid:           http.StatusBadRequest,
	ENotFound:          http.StatusNotFound,
	EConflict:          http.StatusConflict,
	EStorage:           http.StatusInternalServerError,
	EInternal:          http.StatusInternalServerError,
}

// HTTPStatus maps an error code to its HTTP-equivalent status.
func HTTPStatus(code string) int {
	if status, ok := statusCodes[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
