package cdse

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies failures so callers can pick a retry strategy per
// kind instead of matching error strings.
type ErrorKind int

const (
	// ErrorConfiguration means required settings are missing. Fatal, never
	// retried.
	ErrorConfiguration ErrorKind = iota
	// ErrorAuth means the identity exchange was rejected or a token expired
	// mid-use. The orchestrator retries once via a forced refresh.
	ErrorAuth
	// ErrorNetwork is a transient transport failure, retried with backoff.
	ErrorNetwork
	// ErrorNotFound means the remote resource does not exist. Never retried.
	ErrorNotFound
	// ErrorFilesystem is a local create/write/rename failure. Never retried.
	ErrorFilesystem
	// ErrorValidation is malformed input, rejected before any network call.
	ErrorValidation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorConfiguration:
		return "configuration"
	case ErrorAuth:
		return "auth"
	case ErrorNetwork:
		return "network"
	case ErrorNotFound:
		return "not-found"
	case ErrorFilesystem:
		return "filesystem"
	case ErrorValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged failure from the Copernicus client stack.
// Status holds the HTTP status code when a remote response produced the
// error, zero otherwise.
type Error struct {
	Kind   ErrorKind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func statusTagged(kind ErrorKind, op string, status int, err error) *Error {
	return &Error{Kind: kind, Op: op, Status: status, Err: err}
}

// IsKind reports whether err carries the given kind. Untagged transport
// errors and exceeded deadlines still classify as network so wrapped
// net-layer failures retry correctly.
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	if kind == ErrorNetwork {
		return isTransportError(err)
	}
	return false
}

func IsConfiguration(err error) bool { return IsKind(err, ErrorConfiguration) }
func IsAuth(err error) bool          { return IsKind(err, ErrorAuth) }
func IsNetwork(err error) bool       { return IsKind(err, ErrorNetwork) }
func IsNotFound(err error) bool      { return IsKind(err, ErrorNotFound) }
func IsFilesystem(err error) bool    { return IsKind(err, ErrorFilesystem) }
func IsValidation(err error) bool    { return IsKind(err, ErrorValidation) }

// KindOf returns the kind of err. Untagged transport failures classify as
// network; any other untagged error is treated as filesystem, the only
// untagged source in this stack being local I/O.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if isTransportError(err) {
		return ErrorNetwork
	}
	return ErrorFilesystem
}

// isTransportError checks if an error is likely due to network
// unavailability rather than a remote rejection.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkIndicators := []string{
		"connection refused",
		"no such host",
		"timeout",
		"network is unreachable",
		"no route to host",
		"host is down",
		"dial tcp",
		"dial udp",
		"i/o timeout",
		"connection reset",
		"temporary failure in name resolution",
		"unexpected eof",
	}
	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
