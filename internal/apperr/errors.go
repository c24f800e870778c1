// Package apperr classifies failures coming out of the remote and storage
// layers into the small set of kinds the rest of the data layer reacts to.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindTransient covers timeouts, unreachable hosts and 5xx answers. Eligible
	// for retry and for cache fallback.
	KindTransient
	KindNotFound
	KindInvalid
	KindUnauthenticated
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Cause refines a transient failure so the message can tell "no network" from
// "server too slow" from "server error".
type Cause int

const (
	CauseNone Cause = iota
	CauseTimeout
	CauseUnreachable
	CauseServer
)

type Error struct {
	Kind   Kind
	Cause  Cause
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with its classification. Already classified errors keep their kind.
func E(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	c := Classify(err)
	c.Op = op
	return c
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Invalid builds a validation failure.
func Invalid(op, msg string) *Error {
	return &Error{Kind: KindInvalid, Op: op, Err: errors.New(msg)}
}

func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Classify(err).Kind
}

func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}
