package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// splitPath turns "a/b/c" into its segments. Leading and trailing slashes are ignored.
func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// normalize converts an arbitrary Go value into the generic JSON tree representation.
func normalize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

func getAt(node interface{}, parts []string) (interface{}, bool) {
	for _, p := range parts {
		switch n := node.(type) {
		case map[string]interface{}:
			child, ok := n[p]
			if !ok {
				return nil, false
			}
			node = child
		case []interface{}:
			idx, err := strconv.Atoi(p)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, node != nil
}

// setAt writes value below root and returns the new root. A nil value deletes the
// node, and objects emptied by a delete are pruned on the way back up.
func setAt(root interface{}, parts []string, value interface{}) interface{} {
	if len(parts) == 0 {
		return value
	}
	node, ok := root.(map[string]interface{})
	if !ok {
		if value == nil {
			return root
		}
		node = make(map[string]interface{})
	}

	key := parts[0]
	child := setAt(node[key], parts[1:], value)
	if child == nil {
		delete(node, key)
	} else {
		node[key] = child
	}

	if len(node) == 0 {
		return nil
	}
	return node
}

// related reports whether a change at changed is visible to a watcher of watched.
func related(watched, changed []string) bool {
	n := len(watched)
	if len(changed) < n {
		n = len(changed)
	}
	for i := 0; i < n; i++ {
		if watched[i] != changed[i] {
			return false
		}
	}
	return true
}
