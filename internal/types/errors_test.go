package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{
			name: "without cause",
			err:  NewError(TASK_NOT_FOUND, "no such task"),
			want: "[TASK_NOT_FOUND] no such task",
		},
		{
			name: "with cause",
			err:  WrapError(DB_QUERY_FAILED, "lookup failed", fmt.Errorf("disk io")),
			want: "[DB_QUERY_FAILED] lookup failed: disk io",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := WrapError(WORKFLOW_PARSE_FAILED, "bad workflow", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestEngineError_Is(t *testing.T) {
	err := NewError(TASK_NOT_FOUND, "one message")
	other := NewError(TASK_NOT_FOUND, "different message")
	different := NewError(DELIVERY_FAILED, "one message")

	assert.True(t, errors.Is(err, other))
	assert.False(t, errors.Is(err, different))
}

func TestNewRetryableError(t *testing.T) {
	err := NewRetryableError(DELIVERY_FAILED, "callback timed out")

	require.NotNil(t, err)
	assert.True(t, err.Retryable)
	assert.False(t, NewError(DELIVERY_FAILED, "x").Retryable)
}
