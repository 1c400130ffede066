package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zenovak/2100-AAA/internal/task"
	"github.com/zenovak/2100-AAA/internal/urfn"
	"github.com/zenovak/2100-AAA/internal/workflow"
)

var runInput string

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Execute a workflow definition locally",
	Long: `Run parses a workflow definition (.flow text dialect or .json) and
executes it in-process, printing the finished task as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger(cfg.Logging)

	ag, err := workflow.LoadFile(args[0])
	if err != nil {
		return err
	}

	input, err := parseRunInput(runInput)
	if err != nil {
		return err
	}

	llmRegistry, err := buildLLMRegistry(cfg.LLM)
	if err != nil {
		return err
	}

	executor := workflow.NewExecutor(
		workflow.WithLogger(logger),
		workflow.WithLLMRegistry(llmRegistry),
		workflow.WithFunctionRegistry(urfn.NewRegistry()),
		workflow.WithHTTPClient(&http.Client{Timeout: cfg.Engine.HTTPTimeout}),
		workflow.WithMaxSteps(cfg.Engine.MaxSteps),
	)

	tsk := task.New(ag.Name, "")
	result, err := executor.Execute(ctx, ag, input, tsk)

	// A freshly created task cannot already be terminal.
	if err != nil {
		_ = tsk.Fail(err.Error())
	} else {
		_ = tsk.Complete(result.Output)
	}

	out, err := json.MarshalIndent(tsk.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if tsk.Status() == task.StatusError {
		return fmt.Errorf("workflow %q failed", ag.Name)
	}
	return nil
}

// parseRunInput decodes the --input flag: inline JSON, or @path to read a
// JSON file.
func parseRunInput(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		var err error
		data, err = os.ReadFile(raw[1:])
		if err != nil {
			return nil, err
		}
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("invalid input JSON: %w", err)
	}
	return input, nil
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "Workflow input as JSON, or @file")
}
