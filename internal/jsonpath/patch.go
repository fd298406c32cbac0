package jsonpath

import "strconv"

// Get projects value at the given segments within doc. It reports false when traversal hits a
// missing object key or an out-of-range/absent array index, mirroring the engine's PathAbsent
// behavior for any intermediate or terminal segment.
func Get(doc any, segments []Segment) (any, bool) {
	cur := doc
	for _, seg := range segments {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func child(node any, seg Segment) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		key := seg.Key
		if seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		}
		v, ok := n[key]
		return v, ok
	case []any:
		if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(n) {
			return nil, false
		}
		return n[seg.Index], true
	default:
		return nil, false
	}
}

// Set returns doc with value assigned at the given segments, creating intermediate JSON objects
// wherever the path currently has no node (per the reference behavior, missing intermediates are
// always objects, never auto-vivified arrays). An empty segment list replaces the document root
// outright. Existing arrays are indexed in place when a segment lands within their bounds.
func Set(doc any, segments []Segment, value any) any {
	if len(segments) == 0 {
		return value
	}
	return setAt(doc, segments, value)
}

func setAt(node any, segments []Segment, value any) any {
	seg, rest := segments[0], segments[1:]
	if len(rest) == 0 {
		return assign(node, seg, value)
	}
	existing, _ := child(node, seg)
	updatedChild := setAt(existing, rest, value)
	return assign(node, seg, updatedChild)
}

// assign stores child at seg within node, returning the (possibly newly created) container that
// now owns it.
func assign(node any, seg Segment, value any) any {
	switch n := node.(type) {
	case map[string]any:
		key := seg.Key
		if seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		}
		n[key] = value
		return n
	case []any:
		if seg.IsIndex && seg.Index >= 0 && seg.Index < len(n) {
			n[seg.Index] = value
			return n
		}
		// Out-of-range index or a key segment against an existing array: fall back to the
		// reference behavior of creating an object at this position.
	}
	m := map[string]any{}
	key := seg.Key
	if seg.IsIndex {
		key = strconv.Itoa(seg.Index)
	}
	m[key] = value
	return m
}
