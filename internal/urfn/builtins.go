package urfn

import (
	"context"
	"fmt"
	"strings"

	"github.com/zenovak/2100-AAA/internal/types"
)

func registerBuiltins(r *Registry) {
	r.funcs[Prefix+"echo"] = builtinEcho
	r.funcs[Prefix+"summarize_text"] = builtinSummarizeText
}

// builtinEcho returns its input map unchanged. Useful for wiring tests and
// as a placeholder target while authoring a workflow.
func builtinEcho(ctx context.Context, input map[string]any) (any, error) {
	return input, nil
}

// builtinSummarizeText produces a short extractive summary of input["text"]:
// the first max_sentences sentences (default 3), whitespace-normalized.
func builtinSummarizeText(ctx context.Context, input map[string]any) (any, error) {
	raw, ok := input["text"]
	if !ok {
		return nil, types.NewError(ErrCodeInvalidInput, "summarize_text requires a text input")
	}

	text, ok := raw.(string)
	if !ok {
		text = fmt.Sprintf("%v", raw)
	}

	maxSentences := 3
	if n, ok := input["max_sentences"].(float64); ok && n > 0 {
		maxSentences = int(n)
	}

	text = strings.Join(strings.Fields(text), " ")
	sentences := splitSentences(text)
	if len(sentences) > maxSentences {
		sentences = sentences[:maxSentences]
	}

	return strings.Join(sentences, " "), nil
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentence := strings.TrimSpace(text[start : i+1])
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
