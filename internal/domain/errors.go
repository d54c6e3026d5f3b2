package domain

import (
	"errors"
	"fmt"
)

// Access-control sentinels. Every rejection path returns (or wraps) one of these.
var (
	ErrUnauthorizedConnection = fmt.Errorf("unauthorized connection")
	ErrUnauthorizedPairing    = fmt.Errorf("unauthorized pairing")
	ErrAuthenticationFailed   = fmt.Errorf("authentication failed")
	ErrAllocation             = fmt.Errorf("bonded device enumeration buffer unavailable")
	ErrNoBondedDevices        = fmt.Errorf("no bonded devices")
	ErrUnknownCommand         = fmt.Errorf("unknown command")
	ErrLinkNotAuthenticated   = fmt.Errorf("link not authenticated")
)

// Infrastructure sentinels.
var (
	ErrRestartRequested = fmt.Errorf("restart requested")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrStore            = fmt.Errorf("store operation failed")
	ErrUnknownLink      = fmt.Errorf("unknown link")
	ErrInvalidIdentity  = fmt.Errorf("invalid peer identity")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Gatekeeper.OnLinkEstablished")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category recorded in the audit log.
type ErrorCode string

const (
	CodeNone                   ErrorCode = ""
	CodeUnknown                ErrorCode = "UNKNOWN"
	CodeUnauthorizedConnection ErrorCode = "UNAUTHORIZED_CONNECTION"
	CodeUnauthorizedPairing    ErrorCode = "UNAUTHORIZED_PAIRING"
	CodeAuthenticationFailed   ErrorCode = "AUTHENTICATION_FAILED"
	CodeAllocation             ErrorCode = "ALLOCATION_ERROR"
	CodeNoBondedDevices        ErrorCode = "NO_BONDED_DEVICES"
	CodeUnknownCommand         ErrorCode = "UNKNOWN_COMMAND"
	CodeLinkNotAuthenticated   ErrorCode = "LINK_NOT_AUTHENTICATED"
	CodeRestartRequested       ErrorCode = "RESTART_REQUESTED"
	CodeConfigLoad             ErrorCode = "CONFIG_LOAD"
	CodeStore                  ErrorCode = "STORE"
	CodeUnknownLink            ErrorCode = "UNKNOWN_LINK"
	CodeInvalidIdentity        ErrorCode = "INVALID_IDENTITY"
)

// errorCodes is ordered: an allocation failure during a connection check is
// reported as the allocation failure, not as the rejection it caused.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrAllocation, CodeAllocation},
	{ErrUnauthorizedConnection, CodeUnauthorizedConnection},
	{ErrUnauthorizedPairing, CodeUnauthorizedPairing},
	{ErrAuthenticationFailed, CodeAuthenticationFailed},
	{ErrNoBondedDevices, CodeNoBondedDevices},
	{ErrUnknownCommand, CodeUnknownCommand},
	{ErrLinkNotAuthenticated, CodeLinkNotAuthenticated},
	{ErrRestartRequested, CodeRestartRequested},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrStore, CodeStore},
	{ErrUnknownLink, CodeUnknownLink},
	{ErrInvalidIdentity, CodeInvalidIdentity},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It walks the error chain with errors.Is. Returns CodeNone for a nil error and
// CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeUnknown
}

// IsRejection reports whether err is one of the per-link or per-operation
// rejections that terminate only the current link or operation.
func IsRejection(err error) bool {
	switch ErrorCodeOf(err) {
	case CodeUnauthorizedConnection, CodeUnauthorizedPairing, CodeAuthenticationFailed,
		CodeAllocation, CodeNoBondedDevices, CodeUnknownCommand, CodeLinkNotAuthenticated:
		return true
	}
	return false
}
