package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenovak/2100-AAA/internal/delivery"
	"github.com/zenovak/2100-AAA/internal/task"
	"github.com/zenovak/2100-AAA/internal/types"
	"github.com/zenovak/2100-AAA/internal/workflow"
)

func echoAgent() *workflow.Agent {
	return &workflow.Agent{
		Name: "echoing",
		Chain: []*workflow.Node{
			{
				Type:     workflow.NodeFunction,
				Name:     "bounce",
				Function: "urfn_echo",
				Input:    map[string]any{"msg": "$msg"},
				Output:   workflow.OutputField{"echoed"},
			},
			{Type: workflow.NodeReturn, Name: "done", Output: workflow.OutputField{"echoed"}},
		},
	}
}

// memTaskDAO is an in-memory TaskDAO for manager tests.
type memTaskDAO struct {
	mu    sync.Mutex
	tasks map[types.ID]task.Snapshot
}

func newMemTaskDAO() *memTaskDAO {
	return &memTaskDAO{tasks: make(map[types.ID]task.Snapshot)}
}

func (d *memTaskDAO) Upsert(ctx context.Context, snap task.Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks[snap.ID] = snap
	return nil
}

func (d *memTaskDAO) GetByID(ctx context.Context, id types.ID) (*task.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.tasks[id]
	if !ok {
		return nil, types.NewError(types.TASK_NOT_FOUND, "task not found: "+id.String())
	}
	return &snap, nil
}

func (d *memTaskDAO) List(ctx context.Context, status task.Status) ([]*task.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*task.Snapshot
	for _, snap := range d.tasks {
		if status != "" && snap.Status != status {
			continue
		}
		copied := snap
		out = append(out, &copied)
	}
	return out, nil
}

func (d *memTaskDAO) Delete(ctx context.Context, id types.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tasks, id)
	return nil
}

func waitTerminal(t *testing.T, tsk *task.Task) {
	t.Helper()
	require.Eventually(t, func() bool {
		return tsk.Status().Terminal()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitRunsToCompletion(t *testing.T) {
	m := NewManager(workflow.NewExecutor())

	tsk, err := m.Submit(context.Background(), echoAgent(),
		map[string]any{"msg": "hello"}, "")
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, tsk.Status())

	waitTerminal(t, tsk)
	snap := tsk.Snapshot()
	assert.Equal(t, task.StatusComplete, snap.Status)
	assert.Equal(t, []string{"bounce: Running", "done: Running"}, snap.Logs)

	echoed := snap.Output["echoed"].(map[string]any)
	assert.Equal(t, "hello", echoed["msg"])

	got, err := m.Get(context.Background(), tsk.ID())
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)

	m.Wait()
}

func TestSubmitFailedRun(t *testing.T) {
	m := NewManager(workflow.NewExecutor())

	ag := &workflow.Agent{
		Name: "broken",
		Chain: []*workflow.Node{
			{Type: workflow.NodeFunction, Name: "boom", Function: "urfn_missing"},
		},
	}

	tsk, err := m.Submit(context.Background(), ag, nil, "")
	require.NoError(t, err)

	waitTerminal(t, tsk)
	snap := tsk.Snapshot()
	assert.Equal(t, task.StatusError, snap.Status)
	assert.Contains(t, snap.Error, "boom")
	m.Wait()
}

func TestSubmitRejectsInvalidDefinition(t *testing.T) {
	m := NewManager(workflow.NewExecutor())

	_, err := m.Submit(context.Background(), &workflow.Agent{Name: "empty"}, nil, "")
	assert.Error(t, err)
}

func TestSubmitDeliversCallback(t *testing.T) {
	var mu sync.Mutex
	var got task.Snapshot
	received := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		received <- struct{}{}
	}))
	defer server.Close()

	m := NewManager(workflow.NewExecutor(),
		WithDelivery(delivery.NewClient(delivery.WithRetryDelay(0))))

	tsk, err := m.Submit(context.Background(), echoAgent(),
		map[string]any{"msg": "ping"}, server.URL)
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never arrived")
	}
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, tsk.ID(), got.ID)
	assert.Equal(t, task.StatusComplete, got.Status)
}

func TestRunEvictsPersistedTerminalTask(t *testing.T) {
	dao := newMemTaskDAO()
	m := NewManager(workflow.NewExecutor(), WithTaskDAO(dao))

	tsk, err := m.Submit(context.Background(), echoAgent(),
		map[string]any{"msg": "bye"}, "")
	require.NoError(t, err)

	waitTerminal(t, tsk)
	m.Wait()

	m.mu.RLock()
	live := len(m.live)
	m.mu.RUnlock()
	assert.Zero(t, live)

	// Polling still works through the store.
	got, err := m.Get(context.Background(), tsk.ID())
	require.NoError(t, err)
	assert.Equal(t, tsk.ID(), got.ID)
	assert.Equal(t, task.StatusComplete, got.Status)
}

func TestGetUnknownTask(t *testing.T) {
	m := NewManager(workflow.NewExecutor())

	_, err := m.Get(context.Background(), types.NewID())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.TASK_NOT_FOUND, ""))
}
