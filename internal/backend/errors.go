package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

type Code string

const (
	CodeTimeout     Code = "timeout"
	CodeUnavailable Code = "unavailable"
	CodeBadResponse Code = "bad_response"
	CodeRejected    Code = "rejected"
	CodeJobFailed   Code = "job_failed"
)

// Error is a classified failure of an external backend call.
type Error struct {
	Backend string
	Code    Code
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Backend, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsTimeout reports whether err is a backend timeout or an expired deadline.
func IsTimeout(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == CodeTimeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Retryable reports whether a call failing with err may succeed when repeated.
// Timeouts are excluded: the budget they exhausted is not refilled by a retry.
func Retryable(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == CodeUnavailable
	}
	return false
}

func transportError(backend string, err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Backend: backend, Code: CodeTimeout, Message: "не ответил вовремя", Cause: err}
	case errors.Is(err, context.Canceled):
		return &Error{Backend: backend, Code: CodeRejected, Message: "запрос отменён", Cause: err}
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return &Error{Backend: backend, Code: CodeUnavailable, Message: "недоступен: " + err.Error(), Cause: err}
	}
	return &Error{Backend: backend, Code: CodeUnavailable, Message: "не ответил: " + err.Error(), Cause: err}
}

func statusError(backend string, status int, detail string) *Error {
	if detail == "" {
		detail = http.StatusText(status)
	}
	code := CodeRejected
	if status >= 500 || status == http.StatusTooManyRequests {
		code = CodeUnavailable
	}
	if status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout {
		code = CodeTimeout
	}
	return &Error{Backend: backend, Code: code, Status: status, Message: detail}
}

func badResponse(backend, msg string, cause error) *Error {
	return &Error{Backend: backend, Code: CodeBadResponse, Message: msg, Cause: cause}
}
