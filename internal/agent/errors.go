package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a call to the agent failed.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota + 1
	KindConnection
	KindAPI
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindAPI:
		return "api"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by Client calls. Switch on Kind, or
// use errors.Is against the sentinels below.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Detail     string
	Err        error
}

var (
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrConnection = &Error{Kind: KindConnection}
	ErrAPI        = &Error{Kind: KindAPI}
	ErrValidation = &Error{Kind: KindValidation}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		if e.Detail != "" {
			return "agent: request timed out: " + e.Detail
		}
		return "agent: request timed out"
	case KindConnection:
		if e.Err != nil {
			return fmt.Sprintf("agent: failed to connect: %v", e.Err)
		}
		return "agent: failed to connect"
	case KindValidation:
		return fmt.Sprintf("agent: invalid request: %s", e.Detail)
	default:
		if e.Detail != "" {
			return fmt.Sprintf("agent: api error %d: %s", e.StatusCode, e.Detail)
		}
		return fmt.Sprintf("agent: api error %d", e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of an agent error, or zero for anything else.
func KindOf(err error) ErrorKind {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Kind
	}
	return 0
}
