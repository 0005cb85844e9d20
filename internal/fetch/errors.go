package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/steliosspap/Argos-public-sub005/internal/source"
)

// Kind is the failure taxonomy of one fetch attempt.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindRateLimited Kind = "rate_limited"
	KindParse       Kind = "parse"
	KindUnreachable Kind = "unreachable"
)

// Error is a typed fetch failure, local to one source.
type Error struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether another attempt may succeed.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited:
		return true
	case KindUnreachable:
		var se *source.StatusError
		if errors.As(e.Err, &se) {
			return se.Code >= 500
		}
		return true
	default:
		return false
	}
}

// Classify maps a fetcher error onto the taxonomy.
func Classify(sourceID string, err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	kind := KindUnreachable
	var (
		se *source.StatusError
		ne net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &ne) && ne.Timeout():
		kind = KindTimeout
	case errors.As(err, &se) && se.Code == http.StatusTooManyRequests:
		kind = KindRateLimited
	case errors.Is(err, source.ErrParse):
		kind = KindParse
	}
	return &Error{Kind: kind, Source: sourceID, Err: err}
}
