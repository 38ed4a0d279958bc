package store

import (
	"sort"
	"strings"
	"time"
)

// The accessors below tolerate the value shapes each backend decodes into
// (int64 from Firestore, int32 from Mongo, float64 from JSON snapshots).

func Int(doc Doc, key string, def int64) int64 {
	v, ok := doc[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	}
	return def
}

func Bool(doc Doc, key string, def bool) bool {
	if b, ok := doc[key].(bool); ok {
		return b
	}
	return def
}

func String(doc Doc, key string) string {
	s, _ := doc[key].(string)
	return s
}

func Time(doc Doc, key string) (time.Time, bool) {
	switch t := doc[key].(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func Map(doc Doc, key string) Doc {
	if m, ok := doc[key].(map[string]interface{}); ok {
		return m
	}
	return Doc{}
}

func Strings(doc Doc, key string) []string {
	switch vs := doc[key].(type) {
	case []string:
		return append([]string(nil), vs...)
	case []interface{}:
		out := make([]string, 0, len(vs))
		for _, v := range vs {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Lookup resolves a dotted path such as "restrictions.isBanned".
func Lookup(doc Doc, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts {
		v, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// Clone deep-copies nested maps and slices so callers never share state with a backend.
func Clone(doc Doc) Doc {
	if doc == nil {
		return nil
	}
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return Clone(t)
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

// SortedKeys is used where deterministic iteration matters (tests, flattening).
func SortedKeys(doc Doc) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
