package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenovak/2100-AAA/internal/task"
	"github.com/zenovak/2100-AAA/internal/types"
)

func TestTaskDAOUpsertIsIdempotent(t *testing.T) {
	dao := NewTaskDAO(openTestDB(t))
	ctx := context.Background()

	tsk := task.New("research_flow", "http://callback.local/hook")
	tsk.Append("draft: Running")

	// First write while running.
	require.NoError(t, dao.Upsert(ctx, tsk.Snapshot()))

	// Terminal write, then the same snapshot replayed as a delivery retry
	// would do.
	require.NoError(t, tsk.Complete(map[string]any{"answer": "42"}))
	terminal := tsk.Snapshot()
	require.NoError(t, dao.Upsert(ctx, terminal))
	require.NoError(t, dao.Upsert(ctx, terminal))

	got, err := dao.GetByID(ctx, tsk.ID())
	require.NoError(t, err)
	assert.Equal(t, task.StatusComplete, got.Status)
	assert.Equal(t, []string{"draft: Running"}, got.Logs)
	assert.Equal(t, "42", got.Output["answer"])
	assert.NotNil(t, got.CompletedAt)

	all, err := dao.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTaskDAOGetMissing(t *testing.T) {
	dao := NewTaskDAO(openTestDB(t))

	_, err := dao.GetByID(context.Background(), types.NewID())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.TASK_NOT_FOUND, ""))
}

func TestTaskDAOListByStatus(t *testing.T) {
	dao := NewTaskDAO(openTestDB(t))
	ctx := context.Background()

	running := task.New("flow", "")
	require.NoError(t, dao.Upsert(ctx, running.Snapshot()))

	failed := task.New("flow", "")
	require.NoError(t, failed.Fail("node boom failed"))
	require.NoError(t, dao.Upsert(ctx, failed.Snapshot()))

	got, err := dao.List(ctx, task.StatusError)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, failed.ID(), got[0].ID)
	assert.Contains(t, got[0].Logs, "error: node boom failed")
}

func TestTaskDAODelete(t *testing.T) {
	dao := NewTaskDAO(openTestDB(t))
	ctx := context.Background()

	tsk := task.New("flow", "")
	require.NoError(t, dao.Upsert(ctx, tsk.Snapshot()))
	require.NoError(t, dao.Delete(ctx, tsk.ID()))

	err := dao.Delete(ctx, tsk.ID())
	assert.Error(t, err)
}

func TestAgentDAOUpsertAndGet(t *testing.T) {
	dao := NewAgentDAO(openTestDB(t))
	ctx := context.Background()

	record := &AgentRecord{
		Name:       "research_flow",
		Definition: `{"name": "research_flow"}`,
		Dialect:    "json",
	}
	require.NoError(t, dao.Upsert(ctx, record))
	assert.False(t, record.ID.IsZero())

	// Replacing by name keeps a single row.
	record.Definition = `{"name": "research_flow", "variables": {}}`
	require.NoError(t, dao.Upsert(ctx, record))

	got, err := dao.GetByName(ctx, "research_flow")
	require.NoError(t, err)
	assert.Contains(t, got.Definition, "variables")

	all, err := dao.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = dao.GetByName(ctx, "ghost")
	assert.ErrorIs(t, err, types.NewError(AGENT_NOT_FOUND, ""))
}
