package codec

import (
	"bytes"
	"encoding/json"
)

// Lookup walks path through nested JSON objects in doc. It reports false if
// any step is missing, is not an object, or if the final value is JSON null
// or an empty array. Empty arrays are how the documents encode "no labels",
// "no claims" and so on.
func Lookup(doc json.RawMessage, path ...string) (json.RawMessage, bool) {
	cur := doc
	for _, key := range path {
		if !isObject(cur) {
			return nil, false
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(cur, &m); err != nil {
			return nil, false
		}
		next, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	trimmed := bytes.TrimSpace(cur)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || isEmptyArray(trimmed) {
		return nil, false
	}
	return cur, true
}

// LookupString is Lookup for a string leaf.
func LookupString(doc json.RawMessage, path ...string) (string, bool) {
	raw, ok := Lookup(doc, path...)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func isEmptyArray(raw []byte) bool {
	if len(raw) < 2 || raw[0] != '[' {
		return false
	}
	return len(bytes.TrimSpace(raw[1:len(raw)-1])) == 0
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return buf.String()
}
