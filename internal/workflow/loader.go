package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zenovak/2100-AAA/internal/types"
)

// ParseJSON parses the JSON workflow dialect. Both prompt_chain and the
// legacy promptChain key are accepted, and connections may be written either
// as arrow strings ("a ==> b") or as {source, target, type} objects.
func ParseJSON(data []byte) (*Agent, error) {
	var raw struct {
		ID          types.ID          `json:"id"`
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Variables   map[string]any    `json:"variables"`
		Chain       []*Node           `json:"prompt_chain"`
		LegacyChain []*Node           `json:"promptChain"`
		Connections []json.RawMessage `json:"connections"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, types.WrapError(types.WORKFLOW_PARSE_FAILED,
			"could not parse workflow json", err)
	}

	agent := &Agent{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Variables:   raw.Variables,
		Chain:       raw.Chain,
	}
	if len(agent.Chain) == 0 {
		agent.Chain = raw.LegacyChain
	}

	for i, rawConn := range raw.Connections {
		conn, err := parseJSONConnection(rawConn)
		if err != nil {
			return nil, types.WrapError(types.WORKFLOW_PARSE_FAILED,
				fmt.Sprintf("bad connection at index %d", i), err)
		}
		agent.Connections = append(agent.Connections, conn)
	}

	if err := agent.Validate(); err != nil {
		return nil, err
	}
	return agent, nil
}

func parseJSONConnection(raw json.RawMessage) (Connection, error) {
	var arrow string
	if err := json.Unmarshal(raw, &arrow); err == nil {
		return parseConnection(arrow, 0)
	}

	var conn Connection
	if err := json.Unmarshal(raw, &conn); err != nil {
		return Connection{}, err
	}
	if conn.Type == "" {
		conn.Type = ConnectionSequence
	}
	return conn, nil
}

// LoadFile reads a workflow definition from disk, choosing the dialect by
// extension: .json for the JSON dialect, anything else for the text DSL.
func LoadFile(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.WORKFLOW_PARSE_FAILED,
			fmt.Sprintf("could not read workflow file %s", path), err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return ParseDSL(string(data))
}
