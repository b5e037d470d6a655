package certpage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnreachable       = errors.New("certificate page unreachable")
	ErrConnectionRefused = errors.New("connection refused")
)

// UnreachableError is returned once every endpoint exhausted its
// retries. Cause is the error of the last endpoint tried, so
// errors.Is(err, transport.ErrBlocked) holds when that endpoint was
// blocking us.
type UnreachableError struct {
	Identifier string
	Attempted  []string
	Cause      error
	// Refused is set when the last failure was an actively refused
	// connection, which usually points at the local network.
	Refused bool
}

func (e *UnreachableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "could not reach the certificate page for %s, tried %s", e.Identifier, strings.Join(e.Attempted, ", "))
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Refused {
		b.WriteString(" (connection refused, check the network, firewall or proxy settings)")
	}
	return b.String()
}

func (e *UnreachableError) Is(target error) bool {
	switch target {
	case ErrUnreachable:
		return true
	case ErrConnectionRefused:
		return e.Refused
	}
	return false
}

func (e *UnreachableError) Unwrap() error {
	return e.Cause
}
