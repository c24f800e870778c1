package apperr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/sony/gobreaker/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Classify maps an arbitrary error to a kind. It never returns nil for a non-nil err.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTransient, Cause: CauseTimeout, Err: err}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &Error{Kind: KindTransient, Cause: CauseUnreachable, Err: err}
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyHTTP(sc.HTTPStatus(), err)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown && st.Code() != codes.OK {
		return classifyGRPC(st.Code(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTransient, Cause: CauseTimeout, Err: err}
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF):
		return &Error{Kind: KindTransient, Cause: CauseUnreachable, Err: err}
	}

	return &Error{Kind: KindUnknown, Err: err}
}

func classifyHTTP(code int, err error) *Error {
	e := &Error{Status: code, Err: err}
	switch {
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		e.Kind = KindTransient
		e.Cause = CauseServer
		if code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout {
			e.Cause = CauseTimeout
		}
	case code == http.StatusNotFound:
		e.Kind = KindNotFound
	case code == http.StatusUnauthorized:
		e.Kind = KindUnauthenticated
	case code == http.StatusForbidden:
		e.Kind = KindUnauthorized
	case code >= 400:
		e.Kind = KindInvalid
	default:
		e.Kind = KindUnknown
	}
	return e
}

func classifyGRPC(code codes.Code, err error) *Error {
	e := &Error{Err: err}
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		e.Kind = KindTransient
		e.Cause = CauseUnreachable
	case codes.DeadlineExceeded:
		e.Kind = KindTransient
		e.Cause = CauseTimeout
	case codes.NotFound:
		e.Kind = KindNotFound
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists:
		e.Kind = KindInvalid
	case codes.Unauthenticated:
		e.Kind = KindUnauthenticated
	case codes.PermissionDenied:
		e.Kind = KindUnauthorized
	default:
		e.Kind = KindUnknown
	}
	return e
}

// UserMessage is the text shown to the customer for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	c := Classify(err)
	switch c.Kind {
	case KindTransient:
		switch c.Cause {
		case CauseTimeout:
			return "server took too long to respond"
		case CauseServer:
			if c.Status > 0 {
				return fmt.Sprintf("server error (code %d)", c.Status)
			}
			return "server error"
		default:
			return "no connection, check your network"
		}
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "request error"
	case KindUnauthenticated:
		return "please sign in again"
	case KindUnauthorized:
		return "access denied"
	default:
		return "unexpected error"
	}
}
