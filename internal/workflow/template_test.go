package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandStringSubstitution(t *testing.T) {
	reg := NewRegistry(map[string]any{
		"topic": "cats",
		"count": float64(3),
		"flag":  true,
		"draft_result": map[string]any{
			"title": "On Cats",
		},
	})
	resolver := NewResolver(reg)

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "double braces", template: "write about {{topic}}", want: "write about cats"},
		{name: "single braces", template: "write about {topic}", want: "write about cats"},
		{name: "number renders bare", template: "give me {count}", want: "give me 3"},
		{name: "bool renders bare", template: "flag is {{flag}}", want: "flag is true"},
		{name: "dotted path", template: "title: {{draft_result.title}}", want: "title: On Cats"},
		{name: "multiple keys", template: "{topic} x{count}", want: "cats x3"},
		{name: "json braces left alone", template: `{"a": 1}`, want: `{"a": 1}`},
		{name: "no templates", template: "plain text", want: "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := resolver.ExpandString(tt.template)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, warnings)
		})
	}
}

func TestExpandStringWarnings(t *testing.T) {
	reg := NewRegistry(nil)
	resolver := NewResolver(reg)

	// Unset key resolves empty and warns.
	got, warnings := resolver.ExpandString("hello {{ghost}}!")
	assert.Equal(t, "hello !", got)
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "ghost")

	// The key was lazily created by the reference.
	_, ok := reg.Lookup("ghost")
	assert.True(t, ok)

	// Unterminated template warns and keeps the text literal.
	got, warnings = resolver.ExpandString("broken {{key")
	assert.Equal(t, "broken {{key", got)
	assert.Len(t, warnings, 1)

	// Malformed key inside double braces warns.
	_, warnings = resolver.ExpandString("bad {{a b}}")
	assert.Len(t, warnings, 1)
}

func TestExpandValueStructured(t *testing.T) {
	reg := NewRegistry(map[string]any{
		"items": []any{"a", "b"},
		"count": float64(2),
		"name":  "cats",
	})
	resolver := NewResolver(reg)

	input := map[string]any{
		"list":    "$items",
		"n":       "$count",
		"text":    "about {{name}}",
		"literal": float64(7),
		"nested":  map[string]any{"inner": "$items"},
	}

	expanded, warnings := resolver.ExpandMap(input)
	assert.Empty(t, warnings)
	assert.Equal(t, []any{"a", "b"}, expanded["list"])
	assert.Equal(t, float64(2), expanded["n"])
	assert.Equal(t, "about cats", expanded["text"])
	assert.Equal(t, float64(7), expanded["literal"])
	assert.Equal(t, []any{"a", "b"}, expanded["nested"].(map[string]any)["inner"])
}

func TestExpandValueDottedReference(t *testing.T) {
	reg := NewRegistry(map[string]any{
		"parse_result": map[string]any{"score": float64(9)},
	})
	resolver := NewResolver(reg)

	expanded, warnings := resolver.ExpandValue("$parse_result.score")
	assert.Empty(t, warnings)
	assert.Equal(t, float64(9), expanded)

	expanded, warnings = resolver.ExpandValue("$parse_result.missing")
	assert.Nil(t, expanded)
	assert.Len(t, warnings, 1)
}
