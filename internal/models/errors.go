package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "ValidationError"
	KindTransport  ErrorKind = "TransportError"
	KindService    ErrorKind = "ServiceError"
	KindDecode     ErrorKind = "DecodeError"
	KindStorage    ErrorKind = "StorageError"
)

var ErrMissingEnsemble = errors.New("response has no ensemble field")

// Error is the failure surfaced by every analysis path. Message is the one
// user-facing string; Kind keeps decode failures distinguishable in logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewTransportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

func NewServiceError(status int, msg string) *Error {
	return &Error{Kind: KindService, Message: msg, Status: status}
}

func NewDecodeError(err error) *Error {
	return &Error{Kind: KindDecode, Message: "Malformed response from analysis service", Err: err}
}

func NewStorageError(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}

// KindOf returns the kind of a wrapped *Error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage returns the single string shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
