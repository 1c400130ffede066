// Package task tracks workflow runs. Each run owns exactly one Task: a
// record of status, accumulated execution logs, and the final output. Tasks
// move running -> complete or running -> error and never leave a terminal
// state.
package task

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/zenovak/2100-AAA/internal/types"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Task is the live record of one workflow run. It is safe for concurrent
// use: the executor appends logs while API handlers snapshot it for polling.
type Task struct {
	mu sync.RWMutex

	id          types.ID
	agent       string
	status      Status
	logs        []string
	output      map[string]any
	errMsg      string
	callback    string
	createdAt   time.Time
	completedAt time.Time
}

// Snapshot is an immutable copy of a task, used for JSON responses,
// persistence, and callback delivery.
type Snapshot struct {
	ID          types.ID       `json:"id"`
	Agent       string         `json:"agent,omitempty"`
	Status      Status         `json:"status"`
	Logs        []string       `json:"logs"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Callback    string         `json:"callback,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// New creates a running task for the named agent.
func New(agent, callback string) *Task {
	return &Task{
		id:        types.NewID(),
		agent:     agent,
		status:    StatusRunning,
		logs:      make([]string, 0, 8),
		callback:  callback,
		createdAt: time.Now().UTC(),
	}
}

// ID returns the task identifier.
func (t *Task) ID() types.ID {
	return t.id
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Callback returns the delivery URL registered at submission, if any.
func (t *Task) Callback() string {
	return t.callback
}

// Append adds one line to the execution log.
func (t *Task) Append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs = append(t.logs, line)
}

// Complete moves the task to its successful terminal state with the run's
// final output. Completing an already-terminal task is an error.
func (t *Task) Complete(output map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return types.NewError(types.TASK_ALREADY_TERMINAL,
			"task "+t.id.String()+" is already "+string(t.status))
	}

	t.status = StatusComplete
	t.output = output
	t.completedAt = time.Now().UTC()
	return nil
}

// Fail moves the task to its error terminal state, recording the reason in
// both the error field and the log.
func (t *Task) Fail(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return types.NewError(types.TASK_ALREADY_TERMINAL,
			"task "+t.id.String()+" is already "+string(t.status))
	}

	t.status = StatusError
	t.errMsg = reason
	t.logs = append(t.logs, "error: "+reason)
	t.completedAt = time.Now().UTC()
	return nil
}

// Snapshot returns a copy of the task's current state.
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		ID:        t.id,
		Agent:     t.agent,
		Status:    t.status,
		Logs:      append([]string(nil), t.logs...),
		Error:     t.errMsg,
		Callback:  t.callback,
		CreatedAt: t.createdAt,
	}

	if t.output != nil {
		out := make(map[string]any, len(t.output))
		for k, v := range t.output {
			out[k] = v
		}
		snap.Output = out
	}

	if !t.completedAt.IsZero() {
		completed := t.completedAt
		snap.CompletedAt = &completed
	}

	return snap
}

// MarshalJSON serializes the task as its snapshot.
func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}
