package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenovak/2100-AAA/internal/config"
	"github.com/zenovak/2100-AAA/internal/database"
	"github.com/zenovak/2100-AAA/internal/engine"
	"github.com/zenovak/2100-AAA/internal/task"
	"github.com/zenovak/2100-AAA/internal/types"
	"github.com/zenovak/2100-AAA/internal/workflow"
)

func newTestServer(t *testing.T) (*Server, database.TaskDAO) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tasks := database.NewTaskDAO(db)
	agents := database.NewAgentDAO(db)
	manager := engine.NewManager(workflow.NewExecutor(), engine.WithTaskDAO(tasks))

	srv := New(config.DefaultConfig().Server, manager,
		WithAgentDAO(agents),
		WithTaskDAO(tasks))
	return srv, tasks
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func inlineWorkflow() map[string]any {
	return map[string]any{
		"name": "echo_flow",
		"prompt_chain": []map[string]any{
			{
				"type":     "function",
				"name":     "bounce",
				"function": "urfn_echo",
				"input":    map[string]any{"msg": "$msg"},
				"output":   "echoed",
			},
			{"type": "return", "name": "done", "output": []string{"echoed"}},
		},
	}
}

func TestSubmitTaskInlineWorkflow(t *testing.T) {
	srv, _ := newTestServer(t)
	routes := srv.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/api/task", map[string]any{
		"workflow": inlineWorkflow(),
		"input":    map[string]any{"msg": "hi"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var snap task.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.False(t, snap.ID.IsZero())
	assert.Equal(t, "echo_flow", snap.Agent)

	// Poll until the background run finishes.
	require.Eventually(t, func() bool {
		poll := doJSON(t, routes, http.MethodGet, "/api/task/"+snap.ID.String(), nil)
		if poll.Code != http.StatusOK {
			return false
		}
		var polled task.Snapshot
		if err := json.Unmarshal(poll.Body.Bytes(), &polled); err != nil {
			return false
		}
		return polled.Status == task.StatusComplete
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSubmitTaskWithDSL(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/task", map[string]any{
		"dsl": "workflow: tiny\nnode: return(name=done, output=[msg])",
		"input": map[string]any{
			"msg": "hello",
		},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSubmitTaskRequiresDefinition(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/task", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTaskBadWorkflow(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/task", map[string]any{
		"workflow": map[string]any{"name": "empty", "prompt_chain": []any{}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/task/"+types.NewID().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv.Routes(), http.MethodGet, "/api/task/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	routes := srv.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/api/agent", map[string]any{
		"definition": inlineWorkflow(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, routes, http.MethodGet, "/api/agent/echo_flow", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record database.AgentRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "json", record.Dialect)

	rec = doJSON(t, routes, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Submitting by stored name works.
	rec = doJSON(t, routes, http.MethodPost, "/api/task", map[string]any{
		"agent": "echo_flow",
		"input": map[string]any{"msg": "stored"},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, routes, http.MethodDelete, "/api/agent/echo_flow", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, routes, http.MethodGet, "/api/agent/echo_flow", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterAgentRejectsInvalidDefinition(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/agent", map[string]any{
		"dsl": "node: warp(name=x)",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackReceiverIsIdempotent(t *testing.T) {
	srv, tasks := newTestServer(t)
	routes := srv.Routes()

	tsk := task.New("remote_flow", "")
	require.NoError(t, tsk.Complete(map[string]any{"answer": "42"}))
	snap := tsk.Snapshot()

	for i := 0; i < 3; i++ {
		rec := doJSON(t, routes, http.MethodPost, "/api/callback", snap)
		require.Equal(t, http.StatusOK, rec.Code, "delivery %d", i)
	}

	stored, err := tasks.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, snap.ID, stored[0].ID)
	assert.Equal(t, task.StatusComplete, stored[0].Status)
}

func TestCallbackReceiverRequiresID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/callback", map[string]any{
		"status": "complete",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	routes := srv.Routes()

	rec := doJSON(t, routes, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, routes, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusForUnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("plain")))
	assert.Equal(t, http.StatusNotFound,
		statusFor(types.NewError(types.TASK_NOT_FOUND, "x")))
}
