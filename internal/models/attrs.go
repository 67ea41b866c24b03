package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Attr is a single key/value pair of a note's values or fields.
type Attr struct {
	Key   string
	Value string
}

// Attrs is an ordered string map. Keys keep their original casing;
// case-insensitive lookup goes through Lookup.
type Attrs []Attr

// Set replaces the value of key (exact match) or appends a new pair.
func (a Attrs) Set(key, value string) Attrs {
	for i := range a {
		if a[i].Key == key {
			a[i].Value = value
			return a
		}
	}
	return append(a, Attr{Key: key, Value: value})
}

// Get returns the value stored under the exact key.
func (a Attrs) Get(key string) (string, bool) {
	for _, kv := range a {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Lookup returns the first value whose key equals key ignoring case and
// surrounding whitespace.
func (a Attrs) Lookup(key string) (string, bool) {
	want := NormalizeKey(key)
	for _, kv := range a {
		if NormalizeKey(kv.Key) == want {
			return kv.Value, true
		}
	}
	return "", false
}

// Clone returns a copy that does not share storage with a.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	copy(out, a)
	return out
}

// NormalizeKey lower-cases and trims an attribute key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// MarshalJSON encodes the pairs as a JSON object in insertion order.
func (a Attrs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. Non-string values
// are stored in their compact JSON form.
func (a *Attrs) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attrs: expected object, got %v", tok)
	}
	out := Attrs{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attrs: expected string key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		out = append(out, Attr{Key: key, Value: s})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}

// UnmarshalYAML decodes a YAML mapping keeping key order.
func (a *Attrs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("attrs: expected mapping at line %d", node.Line)
	}
	out := make(Attrs, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, Attr{Key: node.Content[i].Value, Value: node.Content[i+1].Value})
	}
	*a = out
	return nil
}
