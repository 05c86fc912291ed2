package normalize

import "github.com/tidwall/gjson"

// DefaultMaxDepth bounds how far Locate descends below the node it is given.
const DefaultMaxDepth = 8

// wrapperKeys are the field names upstream services nest payloads under,
// in priority order. Structured wrappers come before prose-prone ones.
var wrapperKeys = []string{"result", "response", "data", "output", "content", "message", "text"}

// Locate searches node for the first object that satisfies schema. Wrapper
// keys are tried first in fixed order; string-valued wrappers are parsed
// loosely before descending. Remaining object-valued keys follow in
// document order. Nodes deeper than maxDepth are never inspected.
func Locate(node gjson.Result, schema Schema, depth, maxDepth int) (gjson.Result, bool) {
	if !node.IsObject() || depth > maxDepth {
		return gjson.Result{}, false
	}
	if schema.Matches(node) {
		return node, true
	}

	seen := make(map[string]bool, len(wrapperKeys))
	for _, key := range wrapperKeys {
		child := node.Get(key)
		if !child.Exists() {
			continue
		}
		seen[key] = true

		switch {
		case child.Type == gjson.String:
			parsed, ok := ParseLoosely(child.Str)
			if !ok {
				continue
			}
			if schema.Matches(parsed) {
				return parsed, true
			}
			if found, ok := Locate(parsed, schema, depth+1, maxDepth); ok {
				return found, true
			}
		case child.IsObject():
			if found, ok := Locate(child, schema, depth+1, maxDepth); ok {
				return found, true
			}
		}
	}

	var (
		found gjson.Result
		ok    bool
	)
	node.ForEach(func(key, value gjson.Result) bool {
		if seen[key.String()] || !value.IsObject() {
			return true
		}
		found, ok = Locate(value, schema, depth+1, maxDepth)
		return !ok
	})
	return found, ok
}
