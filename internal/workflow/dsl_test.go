package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDSL = `
# research workflow
workflow: research_flow

topic := "large language models"
limit := 3
verbose := true

node: prompt(name=draft, service=claude, model=claude-3-5-haiku-20241022,
      user="Write a paragraph about {{topic}}", output=text)
node: condition(name=check, expression="len(text) > 0")
node: function(name=summarize, function=urfn_summarize_text,
      input={"text": "$text", "max_sentences": 1}, output=summary)
node: return(name=done, output=[text, summary])

draft --> check
check ==> summarize
summarize --> done
`

func TestParseDSL(t *testing.T) {
	agent, err := ParseDSL(sampleDSL)
	require.NoError(t, err)

	assert.Equal(t, "research_flow", agent.Name)
	assert.Equal(t, "large language models", agent.Variables["topic"])
	assert.Equal(t, float64(3), agent.Variables["limit"])
	assert.Equal(t, true, agent.Variables["verbose"])

	require.Len(t, agent.Chain, 4)

	draft := agent.Node("draft")
	require.NotNil(t, draft)
	assert.Equal(t, NodePrompt, draft.Type)
	assert.Equal(t, "claude", draft.Service)
	assert.Equal(t, "claude-3-5-haiku-20241022", draft.Model)
	assert.Equal(t, "Write a paragraph about {{topic}}", draft.User)
	assert.Equal(t, "text", draft.Output.Key())

	check := agent.Node("check")
	require.NotNil(t, check)
	assert.Equal(t, "len(text) > 0", check.Expression)

	summarize := agent.Node("summarize")
	require.NotNil(t, summarize)
	assert.Equal(t, "urfn_summarize_text", summarize.Function)
	assert.Equal(t, "$text", summarize.Input["text"])

	done := agent.Node("done")
	require.NotNil(t, done)
	assert.Equal(t, OutputField{"text", "summary"}, done.Output)

	require.Len(t, agent.Connections, 3)
	assert.Equal(t, Connection{Source: "draft", Target: "check", Type: ConnectionSequence}, agent.Connections[0])
	assert.Equal(t, Connection{Source: "check", Target: "summarize", Type: ConnectionTrue}, agent.Connections[1])
}

func TestParseDSLFalseBranch(t *testing.T) {
	agent, err := ParseDSL(`
workflow: branching
node: condition(name=gate, expression="ready")
node: return(name=yes, output=[ready])
node: return(name=no, output=[])
gate ==> yes
gate =/> no
`)
	require.NoError(t, err)
	assert.Equal(t, ConnectionFalse, agent.Connections[1].Type)
	assert.Equal(t, "no", agent.Connections[1].Target)
}

func TestParseDSLComments(t *testing.T) {
	agent, err := ParseDSL(`
workflow: commented  # trailing comment
# whole line comment
greeting := "hi # not a comment"
node: return(name=done, output=[greeting])
`)
	require.NoError(t, err)
	assert.Equal(t, "commented", agent.Name)
	assert.Equal(t, "hi # not a comment", agent.Variables["greeting"])
}

func TestParseDSLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "unknown node type", src: "workflow: w\nnode: warp(name=x)"},
		{name: "unknown parameter", src: "workflow: w\nnode: return(name=x, bogus=1)"},
		{name: "garbage line", src: "workflow: w\nnode: return(name=x)\nwhat is this"},
		{name: "duplicate node names", src: "workflow: w\nnode: return(name=x)\nnode: return(name=x)"},
		{name: "connection to unknown node", src: "workflow: w\nnode: return(name=x)\nx --> y"},
		{name: "no nodes", src: "workflow: w"},
		{name: "condition without expression", src: "workflow: w\nnode: condition(name=c)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDSL(tt.src)
			assert.Error(t, err)
		})
	}
}

func TestParseJSON(t *testing.T) {
	data := []byte(`{
		"name": "json_flow",
		"variables": {"topic": "go"},
		"promptChain": [
			{"type": "condition", "name": "gate", "expression": "topic"},
			{"type": "return", "name": "done", "output": ["topic"]}
		],
		"connections": ["gate ==> done"]
	}`)

	agent, err := ParseJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "json_flow", agent.Name)
	require.Len(t, agent.Chain, 2)
	assert.Equal(t, OutputField{"topic"}, agent.Node("done").Output)
	require.Len(t, agent.Connections, 1)
	assert.Equal(t, ConnectionTrue, agent.Connections[0].Type)
}

func TestParseJSONObjectConnections(t *testing.T) {
	data := []byte(`{
		"name": "obj_conns",
		"prompt_chain": [
			{"type": "return", "name": "a", "output": []},
			{"type": "return", "name": "b", "output": []}
		],
		"connections": [{"source": "a", "target": "b"}]
	}`)

	agent, err := ParseJSON(data)
	require.NoError(t, err)
	assert.Equal(t, ConnectionSequence, agent.Connections[0].Type)
}

func TestParseJSONInvalid(t *testing.T) {
	_, err := ParseJSON([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseJSON([]byte(`{"name": "x", "prompt_chain": []}`))
	assert.Error(t, err)
}
