package channel

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ErrorKind is the explicit, exhaustive failure classification every adapter
// must map its underlying library's errors onto. The orchestrator's retry
// policy branches on the kind, never on error text.
type ErrorKind int

const (
	// KindTransient covers timeouts and network interruptions; the job is
	// retried with backoff.
	KindTransient ErrorKind = iota

	// KindAuth means the portal rejected the credentials. Retrying cannot
	// help; a rotation-needed alert is raised instead.
	KindAuth

	// KindMFA means login succeeded but the second factor was rejected.
	KindMFA

	// KindStructural means the remote site no longer matches what the
	// adapter expects (missing element, unexpected response shape). Needs
	// human attention; never retried.
	KindStructural
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuth:
		return "authentication"
	case KindMFA:
		return "mfa"
	case KindStructural:
		return "structural"
	default:
		return "unknown"
	}
}

// Retryable reports whether the orchestrator may retry this kind.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

// ChannelError is the typed outcome adapters return instead of letting raw
// library errors cross the component boundary.
type ChannelError struct {
	Kind  ErrorKind
	Op    string
	cause error
}

func (e *ChannelError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s failure during %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s failure during %s: %s", e.Kind, e.Op, e.cause)
}

func (e *ChannelError) Unwrap() error { return e.cause }

func newError(kind ErrorKind, op string, cause error) *ChannelError {
	return &ChannelError{Kind: kind, Op: op, cause: cause}
}

func errf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Classify extracts the kind from an adapter error. Errors that are not
// ChannelErrors are treated as structural: their cause is unknown, and
// unknown failures must never be silently retried.
func Classify(err error) ErrorKind {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindStructural
}

// classifyTransport maps context and socket errors that any adapter can hit
// mid-call. Deadline expiry and net errors are transient by policy.
func classifyTransport(op string, err error) *ChannelError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(KindTransient, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newError(KindTransient, op, err)
	}

	return newError(KindStructural, op, err)
}
