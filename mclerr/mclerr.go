// Package mclerr defines the flat error-code taxonomy shared by every
// package in this module. Every exported operation returns an error that
// unwraps to exactly one Code via errors.As.
package mclerr

import "fmt"

// Code identifies the category of failure. Codes are grouped the same way
// the original MindConnect Library groups its mcl_error_t values:
// programmer errors, resource errors, persistence errors, lifecycle
// errors, transport errors, and server-status errors.
type Code int

const (
	// OK is never wrapped into an error; it exists so Code has a useful
	// zero-adjacent value for table-driven tests.
	OK Code = iota

	// Programmer errors.
	TriggeredWithNull
	InvalidParameter

	// Resource errors.
	OutOfMemory
	LimitExceeded

	// Persistence errors.
	NoAccessTokenProvided
	CredentialsNotLoaded
	CredentialsNotSaved
	CredentialsUpToDate

	// Lifecycle errors.
	AlreadyOnboarded
	NotOnboarded
	NoAccessTokenExists
	NoServerTime

	// Transport errors.
	CouldNotResolveProxy
	CouldNotResolveHost
	CouldNotConnect
	SSLHandshakeFail
	ServerCertificateNotVerified
	ImproperCertificate
	NetworkSendFail
	NetworkReceiveFail
	RequestTimeout

	// Server status errors.
	BadRequest
	Unauthorized
	Forbidden
	NotFound
	Conflict
	RequestPayloadTooLarge
	TooManyRequests
	ServerFail

	// Generic.
	Fail
)

var names = map[Code]string{
	OK:                           "OK",
	TriggeredWithNull:            "TRIGGERED_WITH_NULL",
	InvalidParameter:             "INVALID_PARAMETER",
	OutOfMemory:                  "OUT_OF_MEMORY",
	LimitExceeded:                "LIMIT_EXCEEDED",
	NoAccessTokenProvided:        "NO_ACCESS_TOKEN_PROVIDED",
	CredentialsNotLoaded:         "CREDENTIALS_NOT_LOADED",
	CredentialsNotSaved:          "CREDENTIALS_NOT_SAVED",
	CredentialsUpToDate:          "CREDENTIALS_UP_TO_DATE",
	AlreadyOnboarded:             "ALREADY_ONBOARDED",
	NotOnboarded:                 "NOT_ONBOARDED",
	NoAccessTokenExists:          "NO_ACCESS_TOKEN_EXISTS",
	NoServerTime:                 "NO_SERVER_TIME",
	CouldNotResolveProxy:         "COULD_NOT_RESOLVE_PROXY",
	CouldNotResolveHost:          "COULD_NOT_RESOLVE_HOST",
	CouldNotConnect:              "COULD_NOT_CONNECT",
	SSLHandshakeFail:             "SSL_HANDSHAKE_FAIL",
	ServerCertificateNotVerified: "SERVER_CERTIFICATE_NOT_VERIFIED",
	ImproperCertificate:          "IMPROPER_CERTIFICATE",
	NetworkSendFail:              "NETWORK_SEND_FAIL",
	NetworkReceiveFail:           "NETWORK_RECEIVE_FAIL",
	RequestTimeout:               "REQUEST_TIMEOUT",
	BadRequest:                   "BAD_REQUEST",
	Unauthorized:                 "UNAUTHORIZED",
	Forbidden:                    "FORBIDDEN",
	NotFound:                     "NOT_FOUND",
	Conflict:                     "CONFLICT",
	RequestPayloadTooLarge:       "REQUEST_PAYLOAD_TOO_LARGE",
	TooManyRequests:              "TOO_MANY_REQUESTS",
	ServerFail:                   "SERVER_FAIL",
	Fail:                         "FAIL",
}

// String returns the taxonomy name, e.g. "BAD_REQUEST".
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_CODE(%d)", int(c))
}

// Error wraps a Code with an optional underlying cause and a short message.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, mclerr.New(mclerr.NotFound, "")) works as a sentinel
// comparison.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an *Error carrying code and message with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an *Error carrying code and message, wrapping cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Of extracts the Code from err, returning Fail if err does not wrap an
// *Error produced by this package.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code
	}
	return Fail
}

// asError is a tiny errors.As shim kept local to avoid importing errors
// just for this one call site elsewhere in the package.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
