// Package workflow implements the declarative workflow engine: typed node
// graphs, the shared variable registry, template resolution, condition
// branching, and single-pass execution.
package workflow

import (
	"fmt"

	"github.com/zenovak/2100-AAA/internal/types"
)

// Agent is a workflow definition: an ordered prompt chain plus optional
// explicit connections. When no connections are declared the chain runs in
// declaration order; otherwise execution follows edges from the first node.
type Agent struct {
	ID          types.ID       `json:"id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Chain       []*Node        `json:"prompt_chain"`
	Connections []Connection   `json:"connections,omitempty"`
}

// Node returns the named node, or nil when absent.
func (a *Agent) Node(name string) *Node {
	for _, n := range a.Chain {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// First returns the entry node of the workflow.
func (a *Agent) First() *Node {
	if len(a.Chain) == 0 {
		return nil
	}
	return a.Chain[0]
}

// Next returns the target of the first matching edge out of node for the
// given edge type, or nil when no such edge exists.
func (a *Agent) Next(node string, edge ConnectionType) *Node {
	for _, c := range a.Connections {
		if c.Source == node && c.Type == edge {
			return a.Node(c.Target)
		}
	}
	return nil
}

// Validate checks the definition: a non-empty uniquely-named chain, valid
// nodes, and connections that reference declared nodes.
func (a *Agent) Validate() error {
	if a.Name == "" {
		return types.NewError(types.WORKFLOW_INVALID, "workflow missing name")
	}
	if len(a.Chain) == 0 {
		return types.NewError(types.WORKFLOW_INVALID,
			fmt.Sprintf("workflow %s has no nodes", a.Name))
	}

	seen := make(map[string]bool, len(a.Chain))
	for _, n := range a.Chain {
		if err := n.Validate(); err != nil {
			return err
		}
		if seen[n.Name] {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("duplicate node name %q", n.Name))
		}
		seen[n.Name] = true
	}

	for _, c := range a.Connections {
		if !seen[c.Source] {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("connection references unknown node %q", c.Source))
		}
		if !seen[c.Target] {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("connection references unknown node %q", c.Target))
		}
		switch c.Type {
		case ConnectionSequence, ConnectionTrue, ConnectionFalse:
		default:
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("connection %s -> %s has unknown type %q", c.Source, c.Target, c.Type))
		}
		if (c.Type == ConnectionTrue || c.Type == ConnectionFalse) &&
			a.Node(c.Source).Type != NodeCondition {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("branch connection out of non-condition node %q", c.Source))
		}
	}

	return nil
}
