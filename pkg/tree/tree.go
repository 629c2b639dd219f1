// Package tree implements dot-path access over decoded JSON documents
// (map[string]any, []any and scalars).
package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

var (
	ErrEmptyPath    = errors.New("tree: empty path")
	ErrEmptySegment = errors.New("tree: empty path segment")
	ErrBadIndex     = errors.New("tree: array index out of range")
)

// Split breaks a dot path into its segments.
func Split(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w in %q", ErrEmptySegment, path)
		}
	}
	return segs, nil
}

// Get returns the value at path. The boolean is false when any segment is absent.
func Get(root any, path string) (any, bool) {
	segs, err := Split(path)
	if err != nil {
		return nil, false
	}
	node := root
	for _, seg := range segs {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

// Set writes value at path, creating intermediate maps where the path is absent
// or runs through a scalar. Index segments address existing array elements; an
// index equal to the array length appends.
func Set(root map[string]any, path string, value any) error {
	segs, err := Split(path)
	if err != nil {
		return err
	}
	_, err = setIn(root, segs, value)
	return err
}

func setIn(node any, segs []string, value any) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}
	seg, rest := segs[0], segs[1:]
	switch n := node.(type) {
	case map[string]any:
		child, err := setIn(n[seg], rest, value)
		if err != nil {
			return nil, err
		}
		n[seg] = child
		return n, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("tree: segment %q does not index an array", seg)
		}
		switch {
		case idx >= 0 && idx < len(n):
			child, err := setIn(n[idx], rest, value)
			if err != nil {
				return nil, err
			}
			n[idx] = child
			return n, nil
		case idx == len(n):
			child, err := setIn(nil, rest, value)
			if err != nil {
				return nil, err
			}
			return append(n, child), nil
		default:
			return nil, fmt.Errorf("%w: %d (len %d)", ErrBadIndex, idx, len(n))
		}
	default:
		m := map[string]any{}
		child, err := setIn(nil, rest, value)
		if err != nil {
			return nil, err
		}
		m[seg] = child
		return m, nil
	}
}

// Unset removes the value at path. Array elements are spliced out. Absent paths
// are a no-op and report false.
func Unset(root map[string]any, path string) bool {
	segs, err := Split(path)
	if err != nil {
		return false
	}
	_, removed := unsetIn(root, segs)
	return removed
}

func unsetIn(node any, segs []string) (any, bool) {
	seg := segs[0]
	last := len(segs) == 1
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[seg]
		if !ok {
			return n, false
		}
		if last {
			delete(n, seg)
			return n, true
		}
		updated, removed := unsetIn(child, segs[1:])
		if removed {
			n[seg] = updated
		}
		return n, removed
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(n) {
			return n, false
		}
		if last {
			out := make([]any, 0, len(n)-1)
			out = append(out, n[:idx]...)
			return append(out, n[idx+1:]...), true
		}
		updated, removed := unsetIn(n[idx], segs[1:])
		if removed {
			n[idx] = updated
		}
		return n, removed
	default:
		return node, false
	}
}

// DeepCopy copies maps and slices recursively. Scalars are returned as is.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DeepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DeepCopy(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// CopyMap is DeepCopy for a document root.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return DeepCopy(m).(map[string]any)
}

// Normalize converts typed Go values into the generic JSON shape by encoding
// and decoding them.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Equal reports structural equality. Containers compare by their canonical JSON
// encoding, scalars by value.
func Equal(a, b any) bool {
	if isContainer(a) || isContainer(b) {
		if !isContainer(a) || !isContainer(b) {
			return false
		}
		ra, errA := json.Marshal(a)
		rb, errB := json.Marshal(b)
		return errA == nil && errB == nil && bytes.Equal(ra, rb)
	}
	if fa, ok := AsNumber(a); ok {
		if fb, ok := AsNumber(b); ok {
			_, aStr := a.(string)
			_, bStr := b.(string)
			if !aStr && !bStr {
				return fa == fb
			}
		}
	}
	return reflect.DeepEqual(a, b)
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

// AsNumber coerces numeric values and numeric strings to float64.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
