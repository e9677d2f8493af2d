package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextState(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	tests := []struct {
		name          string
		attempt       int
		usingFallback bool
		err           error
		want          State
	}{
		{"primary succeeds", 1, false, nil, StateSuccess},
		{"primary fails", 1, false, boom, StateRetryWithFallback},
		{"fallback fails", 2, true, boom, StateRetryWithBackoff},
		{"fallback succeeds", 2, true, nil, StateSuccess},
		{"last attempt fails", 3, true, boom, StateExhausted},
		{"last attempt succeeds", 3, true, nil, StateSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, nextState(tt.attempt, 3, tt.usingFallback, tt.err))
		})
	}
}

func TestNextState_SingleAttempt(t *testing.T) {
	t.Parallel()
	assert.Equal(t, StateExhausted, nextState(1, 1, false, errors.New("x")))
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "retry_with_fallback", StateRetryWithFallback.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "unknown", State(42).String())
}
