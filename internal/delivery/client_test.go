package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenovak/2100-AAA/internal/task"
)

func newTerminalTask(t *testing.T, callback string) task.Snapshot {
	t.Helper()

	tsk := task.New("test_flow", callback)
	tsk.Append("step: Running")
	require.NoError(t, tsk.Complete(map[string]any{"answer": "42"}))
	return tsk.Snapshot()
}

func TestDeliverPostsFullTask(t *testing.T) {
	var got task.Snapshot
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	snap := newTerminalTask(t, server.URL)
	client := NewClient(WithRetryDelay(0))

	require.NoError(t, client.Deliver(context.Background(), snap))
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, task.StatusComplete, got.Status)
	assert.Equal(t, []string{"step: Running"}, got.Logs)
	assert.Equal(t, "42", got.Output["answer"])
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer server.Close()

	client := NewClient(WithRetryDelay(0))
	require.NoError(t, client.Deliver(context.Background(), newTerminalTask(t, server.URL)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(WithRetryDelay(0), WithMaxAttempts(5))
	err := client.Deliver(context.Background(), newTerminalTask(t, server.URL))
	require.Error(t, err)
	assert.Equal(t, int32(5), calls.Load())
}

func TestDeliverAtLeastOnceWithIdempotentReceiver(t *testing.T) {
	// A receiver that upserts by task id converges to one record even when
	// the same terminal snapshot arrives several times.
	received := make(map[string]task.Snapshot)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var snap task.Snapshot
		require.NoError(t, json.NewDecoder(r.Body).Decode(&snap))
		received[snap.ID.String()] = snap
		// Fail after storing so the sender retries a delivery that in fact
		// landed.
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	snap := newTerminalTask(t, server.URL)
	client := NewClient(WithRetryDelay(0))
	require.NoError(t, client.Deliver(context.Background(), snap))

	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, received, 1)
	assert.Equal(t, task.StatusComplete, received[snap.ID.String()].Status)
}

func TestDeliverNoCallbackIsNoop(t *testing.T) {
	client := NewClient()
	assert.NoError(t, client.Deliver(context.Background(), newTerminalTask(t, "")))
}
