package channel

import (
	"context"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindStrings(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "authentication", KindAuth.String())
	assert.Equal(t, "mfa", KindMFA.String())
	assert.Equal(t, "structural", KindStructural.String())
}

func TestOnlyTransientIsRetryable(t *testing.T) {
	assert.True(t, KindTransient.Retryable())
	assert.False(t, KindAuth.Retryable())
	assert.False(t, KindMFA.Retryable())
	assert.False(t, KindStructural.Retryable())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"typed error keeps its kind", newError(KindAuth, "login", errors.New("denied")), KindAuth},
		{"wrapped typed error keeps its kind", errors.Wrap(newError(KindTransient, "dial", errors.New("reset")), "submit"), KindTransient},
		{"unknown error is structural", errors.New("something new"), KindStructural},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyTransport(t *testing.T) {
	timeoutErr := &net.OpError{Op: "dial", Err: &timeoutNetError{}}

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline exceeded", context.DeadlineExceeded, KindTransient},
		{"canceled", context.Canceled, KindTransient},
		{"net error", timeoutErr, KindTransient},
		{"anything else", errors.New("protocol violation"), KindStructural},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chErr := classifyTransport("op", tt.err)
			var typed *ChannelError
			require.True(t, errors.As(chErr, &typed))
			assert.Equal(t, tt.want, typed.Kind)
		})
	}
}

func TestChannelErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := newError(KindStructural, "parse", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "parse")
}

type timeoutNetError struct{}

func (e *timeoutNetError) Error() string   { return "i/o timeout" }
func (e *timeoutNetError) Timeout() bool   { return true }
func (e *timeoutNetError) Temporary() bool { return true }

var _ net.Error = &timeoutNetError{}
