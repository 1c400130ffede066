// Package engine coordinates workflow runs: it owns the task for each run,
// drives the executor in a background goroutine, persists task records, and
// hands terminal tasks to the delivery client.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zenovak/2100-AAA/internal/database"
	"github.com/zenovak/2100-AAA/internal/delivery"
	"github.com/zenovak/2100-AAA/internal/metrics"
	"github.com/zenovak/2100-AAA/internal/task"
	"github.com/zenovak/2100-AAA/internal/types"
	"github.com/zenovak/2100-AAA/internal/workflow"
)

// Manager runs workflows and tracks their tasks.
type Manager struct {
	executor *workflow.Executor
	tasks    database.TaskDAO
	delivery *delivery.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu   sync.RWMutex
	live map[types.ID]*task.Task
	wg   sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTaskDAO enables task persistence.
func WithTaskDAO(dao database.TaskDAO) Option {
	return func(m *Manager) {
		m.tasks = dao
	}
}

// WithDelivery sets the callback delivery client.
func WithDelivery(client *delivery.Client) Option {
	return func(m *Manager) {
		m.delivery = client
	}
}

// WithMetrics sets the collector set.
func WithMetrics(met *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = met
	}
}

// NewManager creates a manager around an executor.
func NewManager(executor *workflow.Executor, opts ...Option) *Manager {
	m := &Manager{
		executor: executor,
		delivery: delivery.NewClient(),
		logger:   slog.Default(),
		live:     make(map[types.ID]*task.Task),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit validates the definition, creates a running task, and starts the
// run in the background. The returned task can be polled immediately; it
// reaches a terminal state when the run finishes.
func (m *Manager) Submit(ctx context.Context, ag *workflow.Agent, input map[string]any, callback string) (*task.Task, error) {
	if err := ag.Validate(); err != nil {
		return nil, err
	}

	tsk := task.New(ag.Name, callback)

	m.mu.Lock()
	m.live[tsk.ID()] = tsk
	m.mu.Unlock()

	m.persist(ctx, tsk)
	if m.metrics != nil {
		m.metrics.TasksStarted.WithLabelValues(ag.Name).Inc()
	}

	// The run outlives the submitting request.
	runCtx := context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(runCtx, ag, input, tsk)
	}()

	return tsk, nil
}

func (m *Manager) run(ctx context.Context, ag *workflow.Agent, input map[string]any, tsk *task.Task) {
	result, err := m.executor.Execute(ctx, ag, input, tsk)

	if m.metrics != nil && result != nil {
		for _, nr := range result.Nodes {
			m.metrics.NodeExecutions.WithLabelValues(ag.Name, string(nr.Type)).Inc()
			m.metrics.NodeDuration.WithLabelValues(ag.Name, string(nr.Type)).Observe(nr.Duration.Seconds())
		}
	}

	if err != nil {
		if failErr := tsk.Fail(err.Error()); failErr != nil {
			m.logger.Error("could not mark task failed",
				"task", tsk.ID().String(), "error", failErr)
		}
		if m.metrics != nil {
			m.metrics.TasksFailed.WithLabelValues(ag.Name).Inc()
		}
		m.logger.Error("run failed",
			"workflow", ag.Name,
			"task", tsk.ID().String(),
			"error", err)
	} else {
		if completeErr := tsk.Complete(result.Output); completeErr != nil {
			m.logger.Error("could not mark task complete",
				"task", tsk.ID().String(), "error", completeErr)
		}
		if m.metrics != nil {
			m.metrics.TasksCompleted.WithLabelValues(ag.Name).Inc()
		}
		m.logger.Info("run complete",
			"workflow", ag.Name,
			"task", tsk.ID().String(),
			"path", result.Path)
	}

	m.persist(ctx, tsk)

	// A persisted terminal task no longer needs its live record; Get falls
	// back to the store. Without a store the live map is the only record.
	if m.tasks != nil {
		m.mu.Lock()
		delete(m.live, tsk.ID())
		m.mu.Unlock()
	}

	if tsk.Callback() != "" {
		// Delivery failures are logged inside the client and never alter
		// the task record.
		_ = m.delivery.Deliver(ctx, tsk.Snapshot())
	}
}

func (m *Manager) persist(ctx context.Context, tsk *task.Task) {
	if m.tasks == nil {
		return
	}
	if err := m.tasks.Upsert(ctx, tsk.Snapshot()); err != nil {
		m.logger.Error("could not persist task",
			"task", tsk.ID().String(), "error", err)
	}
}

// Get returns the task's current snapshot, preferring the live record over
// the persisted one.
func (m *Manager) Get(ctx context.Context, id types.ID) (task.Snapshot, error) {
	m.mu.RLock()
	tsk, ok := m.live[id]
	m.mu.RUnlock()
	if ok {
		return tsk.Snapshot(), nil
	}

	if m.tasks != nil {
		snap, err := m.tasks.GetByID(ctx, id)
		if err != nil {
			return task.Snapshot{}, err
		}
		return *snap, nil
	}

	return task.Snapshot{}, types.NewError(types.TASK_NOT_FOUND,
		"task not found: "+id.String())
}

// Wait blocks until all in-flight runs have finished. Used on shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}
