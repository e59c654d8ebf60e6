package scheduler

import (
	"encoding/json"
	"strconv"
	"strings"
)

// fieldAt walks a dotted path (e.g. "status.state") into a decoded JSON
// value and returns its value rendered as a string, and whether the path
// resolved to a value at all.
func fieldAt(raw json.RawMessage, path string) (string, bool) {
	if path == "" {
		return strings.TrimSpace(string(raw)), true
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	for _, part := range strings.Split(path, ".") {
		m, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		v, ok = m[part]
		if !ok {
			return "", false
		}
	}
	return toComparableString(v), true
}

func toComparableString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
