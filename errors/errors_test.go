package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil defaults transient", nil, ErrorTransient},
		{"printer offline", ErrPrinterOffline, ErrorTransient},
		{"delivery timeout", ErrDeliveryTimeout, ErrorTransient},
		{"deadline exceeded", context.DeadlineExceeded, ErrorTransient},
		{"bad style", ErrBadStyle, ErrorInvalid},
		{"unsupported opcode", ErrUnsupportedOpcode, ErrorInvalid},
		{"unknown tag", ErrUnknownTag, ErrorInvalid},
		{"no transport", ErrNoTransport, ErrorFatal},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"unknown error defaults transient", stderrors.New("socket weirdness"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_Wrapped(t *testing.T) {
	// fmt.Errorf wrapping must not lose the classification.
	err := fmt.Errorf("sending ticket: %w", ErrPrinterOffline)
	assert.True(t, IsTransient(err))
	assert.False(t, IsInvalid(err))

	err = fmt.Errorf("building entry: %w", ErrBadStyle)
	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))
}

func TestWrapHelpers(t *testing.T) {
	base := stderrors.New("boom")

	te := WrapTransient(base, "Dispatcher", "deliver", "printer send")
	require.Error(t, te)
	assert.True(t, IsTransient(te))
	assert.Equal(t, ErrorTransient, Classify(te))
	assert.ErrorIs(t, te, base)
	assert.Contains(t, te.Error(), "Dispatcher.deliver")

	ie := WrapInvalid(base, "TicketBuilder", "Build", "style descriptor")
	assert.True(t, IsInvalid(ie))
	assert.False(t, IsTransient(ie))

	fe := WrapFatal(base, "Dispatcher", "Dispatch", "no transport")
	assert.True(t, IsFatal(fe))
	assert.Equal(t, ErrorFatal, Classify(fe))
}

func TestWrapHelpers_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestTransientPatternFallback(t *testing.T) {
	assert.True(t, IsTransient(stderrors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(stderrors.New("printer busy")))
	assert.False(t, IsTransient(ErrBadStyle))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
