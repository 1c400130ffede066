package workflow

import (
	"sort"
	"strconv"
	"strings"
)

// Registry is the shared variable store for one run. Keys are created
// lazily: resolving a key that does not exist yet creates it with a nil
// value, so later writers and earlier readers agree on the key set.
//
// A registry belongs to exactly one run and is not safe for concurrent use.
type Registry struct {
	values map[string]any
}

// NewRegistry creates a registry seeded with the given values.
func NewRegistry(seed map[string]any) *Registry {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &Registry{values: values}
}

// Set stores value under key, creating the key when needed.
func (r *Registry) Set(key string, value any) {
	r.values[key] = value
}

// Lookup returns the value under key without creating it.
func (r *Registry) Lookup(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Resolve returns the value under key, creating the key with a nil value
// when it does not exist yet. The second return reports whether the key
// existed before the call.
func (r *Registry) Resolve(key string) (any, bool) {
	if v, ok := r.values[key]; ok {
		return v, true
	}
	r.values[key] = nil
	return nil, false
}

// ResolvePath resolves a dotted path, e.g. "parse_result.title". The first
// segment is a registry key (lazily created like Resolve); the rest walk
// into maps and slices. A path that cannot be walked yields nil and false.
func (r *Registry) ResolvePath(path string) (any, bool) {
	segments := strings.Split(path, ".")
	value, existed := r.Resolve(segments[0])
	if len(segments) == 1 {
		return value, existed
	}
	if !existed {
		return nil, false
	}
	return walkPath(value, segments[1:])
}

// Keys returns the sorted list of keys currently in the registry.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of the registry contents.
func (r *Registry) Snapshot() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// walkPath descends into nested maps and slices along path segments.
func walkPath(value any, segments []string) (any, bool) {
	current := value
	for _, seg := range segments {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}
