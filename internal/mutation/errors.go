package mutation

import (
	"errors"
	"fmt"
	"net"

	"github.com/cartops/cartguard/internal/models"
)

// ErrorKind classifies why a mutation tier failed. The tier that produced
// the failure decides the kind; callers never infer it from message text.
type ErrorKind string

const (
	KindNoCredentials  ErrorKind = "no_credentials"
	KindNetwork        ErrorKind = "network"
	KindTimeout        ErrorKind = "timeout"
	KindRemoteRejected ErrorKind = "remote_rejected"
	KindBadResponse    ErrorKind = "bad_response"
)

// Error is a structured mutation-tier failure.
type Error struct {
	Tier models.Tier
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s tier: %s: %v", e.Tier, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s tier: %s", e.Tier, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(tier models.Tier, kind ErrorKind, err error) *Error {
	return &Error{Tier: tier, Kind: kind, Err: err}
}

// classifyTransportError distinguishes timeouts from other network failures.
func classifyTransportError(tier models.Tier, err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(tier, KindTimeout, err)
	}
	return newError(tier, KindNetwork, err)
}
