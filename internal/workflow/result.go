package workflow

import "time"

// NodeStatus is the outcome of one node execution.
type NodeStatus string

const (
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
)

// NodeResult records the outcome of a single node.
type NodeResult struct {
	Name     string        `json:"name"`
	Type     NodeType      `json:"type"`
	Status   NodeStatus    `json:"status"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunResult is the outcome of a full workflow run.
type RunResult struct {
	// Output holds the keys collected by a Return node, or nil when the
	// run ended without reaching one.
	Output map[string]any `json:"output,omitempty"`

	// Path lists the node names in execution order.
	Path []string `json:"path"`

	// Nodes holds per-node outcomes in execution order.
	Nodes []NodeResult `json:"nodes"`

	// Registry is the final variable registry contents.
	Registry map[string]any `json:"registry,omitempty"`
}
