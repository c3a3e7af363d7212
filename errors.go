package mirrorset

import (
	"errors"
	"fmt"
)

// Error represents a structured mirror-set error with context.
type Error struct {
	Op      string    // Operation that failed (e.g., "MAP", "SET_WEIGHT", "RECONFIG")
	DevName string    // Device name (empty if not applicable)
	Leg     int       // Leg index (-1 if not applicable)
	Code    ErrorCode // High-level error category
	Msg     string    // Human-readable message
	Inner   error     // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.DevName != "" {
		parts = append(parts, fmt.Sprintf("dev=%s", e.DevName))
	}
	if e.Leg >= 0 {
		parts = append(parts, fmt.Sprintf("leg=%d", e.Leg))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("mirrorset: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("mirrorset: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support, including compatibility with the
// legacy sentinel MirrorError values.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if me, ok := target.(MirrorError); ok {
		return e.Code == ErrorCode(me)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents high-level error categories.
type ErrorCode string

const (
	ErrCodeInvalidArgument  ErrorCode = "invalid argument"
	ErrCodeAllLegsDead      ErrorCode = "all legs dead"
	ErrCodeLegIndexRange    ErrorCode = "leg index out of range"
	ErrCodeLegCountRange    ErrorCode = "leg count out of range"
	ErrCodeUnknownPolicy    ErrorCode = "unknown read policy"
	ErrCodeQuantumRange     ErrorCode = "round-robin quantum out of range"
	ErrCodeChunkRange       ErrorCode = "logical partition chunk out of range"
	ErrCodeWeightRange      ErrorCode = "weight out of range"
	ErrCodeUnknownCommand   ErrorCode = "unknown control command"
	ErrCodeRegistryFull     ErrorCode = "reconfiguration registry full"
	ErrCodeIOError          ErrorCode = "I/O error"
	ErrCodeNotSupported     ErrorCode = "operation not supported"
	ErrCodeMismatch         ErrorCode = "mirror data mismatch"
	ErrCodeDeviceNameLength ErrorCode = "device name too long"
)

// MirrorError is a legacy sentinel-style error type, kept alongside the
// structured Error for comparison convenience (errors.Is-compatible
// with *Error via Error.Is above).
type MirrorError string

func (e MirrorError) Error() string { return string(e) }

const (
	ErrInvalidArgument = MirrorError(ErrCodeInvalidArgument)
	ErrAllLegsDead     = MirrorError(ErrCodeAllLegsDead)
	ErrRegistryFull    = MirrorError(ErrCodeRegistryFull)
	ErrNotSupported    = MirrorError(ErrCodeNotSupported)
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Leg: -1, Code: code, Msg: msg}
}

// NewLegError creates a new leg-specific error.
func NewLegError(op string, leg int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Leg: leg, Code: code, Msg: msg}
}

// NewDeviceError creates a new device-specific error.
func NewDeviceError(op, devName string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, DevName: devName, Leg: -1, Code: code, Msg: msg}
}

// WrapError wraps an existing error with mirror-set context.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if me, ok := inner.(*Error); ok {
		return &Error{Op: op, DevName: me.DevName, Leg: me.Leg, Code: me.Code, Msg: me.Msg, Inner: me.Inner}
	}
	return &Error{Op: op, Leg: -1, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

// IsCode checks if an error matches a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var merr *Error
	if errors.As(err, &merr) {
		return merr.Code == code
	}
	return false
}
