// Package coreerr defines the small, stable error vocabulary the core
// exposes at its package boundaries (spec.md §6/§7). Callers compare
// against these sentinels with errors.Is; internal causes (a sqlite
// error, a transport exception string, ...) are wrapped underneath with
// fmt.Errorf("...: %w", err) in the style of the teacher's
// internal/scheduler/store.go.
package coreerr

import "errors"

// Code is one of the ERR_* codes from spec.md §6.
type Code string

const (
	NoError          Code = "ERR_NOERROR"
	NotFound         Code = "ERR_NOT_FOUND"
	InvalidType      Code = "ERR_INVALID_TYPE"
	NotSupported     Code = "ERR_NOT_SUPPORTED"
	NotInitialised   Code = "ERR_NOT_INITIALISED"
	DeviceNotReady   Code = "ERR_DEVICE_NOT_READY"
	Failed           Code = "ERR_FAILED"
	InvalidArg       Code = "ERR_INVALID_ARG"
	InvalidFile      Code = "ERR_INVALID_FILE"
	Empty            Code = "ERR_EMPTY"
	Unexpected       Code = "ERR_UNEXPECTED"
	NotConnected     Code = "ERR_NOT_CONNECTED"
	ResourceInUse    Code = "ERR_RESOURCE_IN_USE"
	InvalidState     Code = "ERR_INVALID_STATE"
	Pointer          Code = "ERR_POINTER"
)

// Error pairs a stable Code with a human-readable description. Two
// Errors compare equal under errors.Is iff their Codes match — the
// description is diagnostic only, never part of the comparable
// identity, so callers can keep using errors.Is(err, coreerr.NotFound)
// after the description grows more context.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Msg
}

// Is implements the errors.Is comparison contract: two *Error values
// (or an *Error and a bare Code sentinel constructed via Sentinel) are equal
// iff their Code fields match.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New constructs an *Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Sentinel returns a bare *Error carrying only a Code, suitable as the
// target of errors.Is(err, coreerr.Sentinel(coreerr.NotFound)).
func Sentinel(code Code) *Error {
	return &Error{Code: code}
}

// Convenience sentinels for the common errors.Is comparisons.
var (
	ErrNotFound       = Sentinel(NotFound)
	ErrInvalidType    = Sentinel(InvalidType)
	ErrNotSupported   = Sentinel(NotSupported)
	ErrNotInitialised = Sentinel(NotInitialised)
	ErrDeviceNotReady = Sentinel(DeviceNotReady)
	ErrFailed         = Sentinel(Failed)
	ErrInvalidArg     = Sentinel(InvalidArg)
	ErrInvalidFile    = Sentinel(InvalidFile)
	ErrEmpty          = Sentinel(Empty)
	ErrUnexpected     = Sentinel(Unexpected)
	ErrNotConnected   = Sentinel(NotConnected)
	ErrResourceInUse  = Sentinel(ResourceInUse)
	ErrInvalidState   = Sentinel(InvalidState)
	ErrPointer        = Sentinel(Pointer)
)
