// Package paths provides dot-path traversal and assignment over generic
// tree-of-maps values. It is the shared address scheme for normalization
// source paths, transformer targets, condition paths, and ignore paths.
package paths

import (
	"strconv"
	"strings"
)

// Get resolves a dot-delimited path against root. The second return is
// false when any segment is missing or traverses into a non-container —
// a malformed path is "value does not exist", never an error.
func Get(root any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	current := root
	for _, seg := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = val
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

// Has reports whether the path resolves to a present value (nil counts
// as present; an absent key does not).
func Has(root any, path string) bool {
	_, ok := Get(root, path)
	return ok
}

// Set assigns value at a dot-delimited path, creating intermediate maps
// as needed. Existing non-map intermediates are replaced by maps so the
// write always lands.
func Set(root map[string]any, path string, value any) {
	if path == "" {
		return
	}
	segs := strings.Split(path, ".")
	current := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[seg] = next
		}
		current = next
	}
	current[segs[len(segs)-1]] = value
}
