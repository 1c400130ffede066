package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// keyPattern matches a registry key with an optional dotted path.
var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*$`)

// Resolver expands templates against a run's variable registry.
//
// In plain strings, {{key}} and {key} substitute the key's textual value.
// In structured values, a string of the form $key or $key.path is replaced
// by the registry value itself, preserving its type.
//
// Resolution problems never fail a run. A malformed template or a reference
// to a key that does not exist yet produces a warning and resolves to the
// empty string (textual) or nil (structured); unset keys are created as a
// side effect.
type Resolver struct {
	reg *Registry
}

// NewResolver creates a resolver over reg.
func NewResolver(reg *Registry) *Resolver {
	return &Resolver{reg: reg}
}

// ExpandString substitutes {{key}} and {key} templates in s and returns the
// expanded string plus any resolution warnings.
func (r *Resolver) ExpandString(s string) (string, []string) {
	var b strings.Builder
	var warnings []string

	i := 0
	for i < len(s) {
		if s[i] != '{' {
			b.WriteByte(s[i])
			i++
			continue
		}

		if strings.HasPrefix(s[i:], "{{") {
			end := strings.Index(s[i+2:], "}}")
			if end < 0 {
				warnings = append(warnings, fmt.Sprintf("unterminated template in %q", s))
				b.WriteString(s[i:])
				break
			}
			key := s[i+2 : i+2+end]
			i += end + 4
			if !keyPattern.MatchString(key) {
				warnings = append(warnings, fmt.Sprintf("malformed template key %q", key))
				continue
			}
			b.WriteString(r.textValue(key, &warnings))
			continue
		}

		end := strings.IndexByte(s[i+1:], '}')
		if end < 0 {
			// A lone { with no closing brace is treated as literal text.
			b.WriteString(s[i:])
			break
		}
		key := s[i+1 : i+1+end]
		if !keyPattern.MatchString(key) {
			// Not a template, e.g. JSON braces. Emit the brace and keep
			// scanning so templates nested inside still expand.
			b.WriteByte('{')
			i++
			continue
		}
		b.WriteString(r.textValue(key, &warnings))
		i += end + 2
	}

	return b.String(), warnings
}

// ExpandValue expands templates in an arbitrary value. Strings of the form
// $key resolve to the registry value with its type intact; other strings go
// through textual expansion; maps and slices are expanded recursively.
func (r *Resolver) ExpandValue(v any) (any, []string) {
	switch val := v.(type) {
	case string:
		if path, ok := strings.CutPrefix(val, "$"); ok && keyPattern.MatchString(path) {
			resolved, existed := r.reg.ResolvePath(path)
			if !existed {
				return nil, []string{fmt.Sprintf("reference to unset key %q", path)}
			}
			return resolved, nil
		}
		return r.ExpandString(val)

	case map[string]any:
		out := make(map[string]any, len(val))
		var warnings []string
		for k, inner := range val {
			expanded, w := r.ExpandValue(inner)
			out[k] = expanded
			warnings = append(warnings, w...)
		}
		return out, warnings

	case []any:
		out := make([]any, len(val))
		var warnings []string
		for idx, inner := range val {
			expanded, w := r.ExpandValue(inner)
			out[idx] = expanded
			warnings = append(warnings, w...)
		}
		return out, warnings

	default:
		return v, nil
	}
}

// ExpandMap expands every value of a string-keyed map.
func (r *Resolver) ExpandMap(m map[string]any) (map[string]any, []string) {
	expanded, warnings := r.ExpandValue(m)
	if expanded == nil {
		return map[string]any{}, warnings
	}
	return expanded.(map[string]any), warnings
}

// textValue resolves key and renders it as text for substitution.
func (r *Resolver) textValue(key string, warnings *[]string) string {
	value, existed := r.reg.ResolvePath(key)
	if !existed {
		*warnings = append(*warnings, fmt.Sprintf("reference to unset key %q", key))
		return ""
	}
	return stringify(value)
}

// stringify renders a registry value for textual substitution.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}
