// Package status carries the control-plane error vocabulary.
//
// Every failure a collaborator reports is classified exactly once, at the
// point of receipt, into one of these codes; the session maps codes to its
// retry / session-error / permanent-error handling.
package status

import (
	"errors"
	"fmt"
)

type Code int

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeNotFound
	CodePermissionDenied
	CodeFailedPrecondition
	CodeUnavailable
	CodeDeadlineExceeded
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeNotFound:
		return "NotFound"
	case CodePermissionDenied:
		return "PermissionDenied"
	case CodeFailedPrecondition:
		return "FailedPrecondition"
	case CodeUnavailable:
		return "Unavailable"
	case CodeDeadlineExceeded:
		return "DeadlineExceeded"
	default:
		return "Internal"
	}
}

// Status is a coded error. The zero value is not meaningful; use the
// constructors below. A nil *Status means OK.
type Status struct {
	code Code
	msg  string
}

func (s *Status) Error() string { return fmt.Sprintf("%s: %s", s.code, s.msg) }
func (s *Status) Code() Code    { return s.code }
func (s *Status) Message() string {
	return s.msg
}

func New(code Code, msg string) *Status { return &Status{code: code, msg: msg} }

func InvalidArgument(msg string) *Status    { return New(CodeInvalidArgument, msg) }
func NotFound(msg string) *Status           { return New(CodeNotFound, msg) }
func PermissionDenied(msg string) *Status   { return New(CodePermissionDenied, msg) }
func FailedPrecondition(msg string) *Status { return New(CodeFailedPrecondition, msg) }
func Unavailable(msg string) *Status        { return New(CodeUnavailable, msg) }
func DeadlineExceeded(msg string) *Status   { return New(CodeDeadlineExceeded, msg) }
func Internal(msg string) *Status           { return New(CodeInternal, msg) }

// FromCode extracts the status code of err. A nil error is OK; an error that
// does not wrap a *Status is Internal.
func FromCode(err error) Code {
	if err == nil {
		return CodeOK
	}
	var s *Status
	if errors.As(err, &s) {
		return s.code
	}
	return CodeInternal
}

// IsPermanent reports whether err denotes a policy/permission denial that
// must never be retried.
func IsPermanent(err error) bool {
	return FromCode(err) == CodePermissionDenied
}

// FromHTTPCode maps a control-plane HTTP status to the error vocabulary.
// 2xx maps to nil.
func FromHTTPCode(code int, msg string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 400:
		return InvalidArgument(msg)
	case code == 401 || code == 403:
		return PermissionDenied(msg)
	case code == 404:
		return NotFound(msg)
	case code == 503:
		return Unavailable(msg)
	case code == 504:
		return DeadlineExceeded(msg)
	default:
		return Internal(msg)
	}
}

// Text renders err for diagnostics; nil renders as the OK sentinel.
func Text(err error) string {
	if err == nil {
		return "OK"
	}
	return err.Error()
}
