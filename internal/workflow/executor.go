package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zenovak/2100-AAA/internal/llm"
	"github.com/zenovak/2100-AAA/internal/types"
	"github.com/zenovak/2100-AAA/internal/urfn"
)

// RunLog receives the human-readable execution log lines for one run, in
// order. Implementations must be safe for use from the run's goroutine.
type RunLog interface {
	Append(line string)
}

// nopRunLog discards log lines.
type nopRunLog struct{}

func (nopRunLog) Append(string) {}

// defaultMaxSteps bounds connection-following runs so a cyclic definition
// cannot spin forever.
const defaultMaxSteps = 1000

// Executor runs workflow definitions. A single executor is shared across
// runs; all per-run state lives in the registry created for each Execute
// call.
type Executor struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	llms      *llm.Registry
	functions *urfn.Registry
	client    *http.Client
	evaluator *ConditionEvaluator
	maxSteps  int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithTracer sets the tracer for run and node spans.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithLLMRegistry sets the provider registry Prompt nodes resolve against.
func WithLLMRegistry(registry *llm.Registry) ExecutorOption {
	return func(e *Executor) {
		e.llms = registry
	}
}

// WithFunctionRegistry sets the registry Function and Agent nodes dispatch to.
func WithFunctionRegistry(registry *urfn.Registry) ExecutorOption {
	return func(e *Executor) {
		e.functions = registry
	}
}

// WithHTTPClient sets the client Event nodes use for outbound calls.
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) {
		e.client = client
	}
}

// WithMaxSteps bounds the number of node executions in one run.
func WithMaxSteps(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewExecutor creates an executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("workflow"),
		llms:      llm.NewRegistry(),
		functions: urfn.NewRegistry(),
		client:    &http.Client{Timeout: 30 * time.Second},
		evaluator: NewConditionEvaluator(),
		maxSteps:  defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runState is the per-run working set shared by the node handlers.
type runState struct {
	agent    *Agent
	reg      *Registry
	resolver *Resolver
	log      RunLog

	// output accumulates the values written by Output nodes. A run ending
	// without a Return node still finishes with these as its final output.
	output map[string]any
}

// Execute runs the workflow in a single pass. The input map is merged over
// the definition's variables to seed the registry. Log lines are appended to
// log as nodes run. A handler error halts the run and is returned; template
// resolution problems are logged as warnings and never halt anything.
func (e *Executor) Execute(ctx context.Context, ag *Agent, input map[string]any, log RunLog) (*RunResult, error) {
	if err := ag.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = nopRunLog{}
	}

	ctx, span := e.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.name", ag.Name),
			attribute.Int("workflow.nodes", len(ag.Chain)),
		))
	defer span.End()

	reg := NewRegistry(ag.Variables)
	for k, v := range input {
		reg.Set(k, v)
	}

	rs := &runState{
		agent:    ag,
		reg:      reg,
		resolver: NewResolver(reg),
		log:      log,
		output:   make(map[string]any),
	}

	result := &RunResult{}
	connected := len(ag.Connections) > 0

	node := ag.First()
	chainIdx := 0
	steps := 0

	for node != nil {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return result, types.WrapError(types.NODE_EXECUTION_FAILED, "run canceled", err)
		}

		steps++
		if steps > e.maxSteps {
			err := types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("run exceeded %d steps, definition likely cyclic", e.maxSteps))
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}

		log.Append(node.Name + ": Running")
		e.logger.Info("executing node",
			"workflow", ag.Name,
			"node", node.Name,
			"type", string(node.Type))

		started := time.Now()
		output, branch, err := e.runNode(ctx, rs, node)

		nodeResult := NodeResult{
			Name:     node.Name,
			Type:     node.Type,
			Status:   NodeCompleted,
			Output:   output,
			Duration: time.Since(started),
		}
		result.Path = append(result.Path, node.Name)

		if err != nil {
			nodeResult.Status = NodeFailed
			nodeResult.Error = err.Error()
			result.Nodes = append(result.Nodes, nodeResult)
			result.Registry = reg.Snapshot()

			e.logger.Error("node failed",
				"workflow", ag.Name,
				"node", node.Name,
				"error", err)
			span.SetStatus(codes.Error, err.Error())
			return result, types.WrapError(types.NODE_EXECUTION_FAILED,
				fmt.Sprintf("node %s failed", node.Name), err)
		}
		result.Nodes = append(result.Nodes, nodeResult)

		if node.Type == NodeReturn {
			out, _ := output.(map[string]any)
			result.Output = out
			break
		}

		node, chainIdx = e.next(ag, node, branch, connected, chainIdx)
	}

	// Output node values survive into the final output. Keys collected by a
	// Return node win on conflict.
	if len(rs.output) > 0 {
		if result.Output == nil {
			result.Output = make(map[string]any, len(rs.output))
		}
		for k, v := range rs.output {
			if _, ok := result.Output[k]; !ok {
				result.Output[k] = v
			}
		}
	}

	result.Registry = reg.Snapshot()
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// next picks the node to run after current. In connection mode condition
// nodes follow their true or false edge and everything else follows its
// sequence edge; a missing edge ends the run. In chain mode execution walks
// the declaration order, and a false condition halts the chain.
func (e *Executor) next(ag *Agent, current *Node, branch bool, connected bool, chainIdx int) (*Node, int) {
	if connected {
		if current.Type == NodeCondition {
			if branch {
				return ag.Next(current.Name, ConnectionTrue), chainIdx
			}
			return ag.Next(current.Name, ConnectionFalse), chainIdx
		}
		return ag.Next(current.Name, ConnectionSequence), chainIdx
	}

	if current.Type == NodeCondition && !branch {
		return nil, chainIdx
	}
	if chainIdx+1 >= len(ag.Chain) {
		return nil, chainIdx
	}
	return ag.Chain[chainIdx+1], chainIdx + 1
}

// runNode dispatches a node to its handler, records warnings, and stores
// the output under the node's declared key plus the reserved <name>_result
// key. For condition nodes branch carries the evaluation outcome.
func (e *Executor) runNode(ctx context.Context, rs *runState, node *Node) (output any, branch bool, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("node.name", node.Name),
			attribute.String("node.type", string(node.Type)),
		))
	defer span.End()

	start := time.Now()
	var warnings []string

	switch node.Type {
	case NodeInput:
		output, warnings = e.execInput(rs, node)
	case NodeOutput:
		output, warnings = e.execOutput(rs, node)
	case NodePrompt:
		output, warnings, err = e.execPrompt(ctx, rs, node)
	case NodeFunction, NodeAgent:
		output, warnings, err = e.execFunction(ctx, rs, node)
	case NodeCondition:
		branch, err = e.execCondition(rs, node)
		output = branch
	case NodeParser:
		output, warnings, err = e.execParser(rs, node)
	case NodeEvent:
		output, warnings, err = e.execEvent(ctx, rs, node)
	case NodeReturn:
		output = e.execReturn(rs, node)
	}

	for _, w := range warnings {
		rs.log.Append(node.Name + ": warning: " + w)
		e.logger.Warn("resolution warning",
			"workflow", rs.agent.Name,
			"node", node.Name,
			"warning", w)
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	if node.Type != NodeReturn {
		if key := node.Output.Key(); key != "" && node.Type != NodeOutput {
			rs.reg.Set(key, output)
		}
		rs.reg.Set(node.ResultKey(), output)
	}

	span.SetAttributes(attribute.Int64("node.duration_ms", time.Since(start).Milliseconds()))
	return output, branch, nil
}
