package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable"
	KindTimeout     ErrorKind = "timeout"
	KindRejected    ErrorKind = "rejected"
	KindUpstream    ErrorKind = "upstream"
	KindTransport   ErrorKind = "transport"
	KindDecode      ErrorKind = "decode"
)

// Error is a failed gateway call. StatusCode is zero when no response arrived.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gateway %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsKind(err error, kind ErrorKind) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Kind == kind
}

// IsUnavailable reports whether the gateway could not serve the request at all.
func IsUnavailable(err error) bool {
	return IsKind(err, KindUnavailable)
}

func IsTimeout(err error) bool {
	return IsKind(err, KindTimeout)
}

func statusError(op string, status int, message string) *Error {
	kind := KindUpstream
	switch {
	case status == 503 || strings.Contains(strings.ToLower(message), "unavailable"):
		kind = KindUnavailable
	case status == 504 || status == 408:
		kind = KindTimeout
	case status >= 400 && status < 500:
		kind = KindRejected
	}
	return &Error{Op: op, Kind: kind, StatusCode: status, Message: message}
}

func transportError(op string, err error) *Error {
	kind := KindTransport
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED), strings.Contains(strings.ToLower(err.Error()), "unavailable"):
		kind = KindUnavailable
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
